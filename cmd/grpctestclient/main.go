package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"modsecmon/grpc"

	"github.com/goccy/go-json"
)

// A command line utility to send test Decide calls to the verdict server
func main() {
	grpcHostArg := flag.String("grpchost", "127.0.0.1:50051", "verdict server gRPC address")
	ipArg := flag.String("ip", "", "address to check")
	xffArg := flag.String("xff", "", "X-Forwarded-For value to send instead of -ip")
	remoteArg := flag.String("remote", "", "peer address to send instead of -ip")
	verbose := flag.Bool("v", false, "print the whole response as JSON")
	timeout := flag.Duration("timeout", 20*time.Second, "deadline for the call")
	flag.Parse()

	c, err := grpc.NewClient(*grpcHostArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := c.Decide(ctx, &grpc.DecideRequest{Address: *ipArg, ForwardedFor: *xffArg, RemoteAddr: *remoteArg})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if *verbose {
		b, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Println(resp.Verdict)
}

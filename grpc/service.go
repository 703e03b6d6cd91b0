package grpc

import (
	"context"

	"modsecmon/reputation"
	"modsecmon/verdict"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified name of the verdict service.
const ServiceName = "modsecmon.VerdictService"

const decideMethod = "/" + ServiceName + "/Decide"

// DecideRequest asks for a verdict. Address wins over the forwarding headers when set.
type DecideRequest struct {
	Address      string `json:"address,omitempty"`
	ForwardedFor string `json:"forwardedFor,omitempty"`
	RemoteAddr   string `json:"remoteAddr,omitempty"`
}

// DecideResponse carries the verdict and what it was based on.
type DecideResponse struct {
	Address        string              `json:"ip"`
	Verdict        string              `json:"verdict"`
	Reason         string              `json:"reason"`
	Signals        []reputation.Result `json:"signals,omitempty"`
	FlaggedVendors int                 `json:"flaggedVendors"`
	TotalFlags     int                 `json:"totalFlags"`
	Country        string              `json:"country,omitempty"`
}

func newDecideResponse(d verdict.Decision) *DecideResponse {
	return &DecideResponse{
		Address:        d.Address,
		Verdict:        string(d.Verdict),
		Reason:         string(d.Reason),
		Signals:        d.Signals,
		FlaggedVendors: d.FlaggedVendors,
		TotalFlags:     d.TotalFlags,
		Country:        d.Country,
	}
}

// VerdictServiceServer is the server side of the verdict service.
type VerdictServiceServer interface {
	Decide(ctx context.Context, req *DecideRequest) (*DecideResponse, error)
}

func decideHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DecideRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerdictServiceServer).Decide(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: decideMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VerdictServiceServer).Decide(ctx, req.(*DecideRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var verdictServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VerdictServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Decide",
			Handler:    decideHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "modsecmon/verdict",
}

// RegisterVerdictServiceServer registers srv on s.
func RegisterVerdictServiceServer(s *grpc.Server, srv VerdictServiceServer) {
	s.RegisterService(&verdictServiceDesc, srv)
}

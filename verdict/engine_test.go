package verdict

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"modsecmon/alert"
	"modsecmon/bancache"
	"modsecmon/ipaddresses"
	"modsecmon/reputation"
	"modsecmon/testutils"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

const banlistPath = "ip_banlist.json"

type mockProvider struct {
	name   string
	counts map[string]int
	mu     sync.Mutex
	calls  int
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Query(ctx context.Context, addr string) reputation.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return reputation.Signal{Count: m.counts[addr], OK: true}
}

type mockFileSystem struct {
	mu              sync.Mutex
	files           map[string][]byte
	readFileCalled  int
	writeFileCalled int
}

func (m *mockFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFileCalled++
	data, ok := m.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *mockFileSystem) WriteFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeFileCalled++
	m.files[name] = data
	return nil
}

type mockSink struct {
	mu     sync.Mutex
	alerts []alert.Alert
	err    error
}

func (m *mockSink) Send(ctx context.Context, a alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return m.err
}

type mockResultsLogger struct {
	mu        sync.Mutex
	decisions []Decision
}

func (m *mockResultsLogger) VerdictIssued(d Decision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, d)
}

type fixture struct {
	engine    *Engine
	fs        *mockFileSystem
	sink      *mockSink
	rl        *mockResultsLogger
	providers []*mockProvider
	now       time.Time
}

func newFixture(t *testing.T, policy Policy, vt, av, ab map[string]int) *fixture {
	f := &fixture{
		fs:   &mockFileSystem{files: make(map[string][]byte)},
		sink: &mockSink{},
		rl:   &mockResultsLogger{},
		now:  time.Unix(1700000000, 0),
		providers: []*mockProvider{
			{name: reputation.VirusTotal, counts: vt},
			{name: reputation.AlienVault, counts: av},
			{name: reputation.AbuseIPDB, counts: ab},
		},
	}

	logger := testutils.NewTestLogger(t)
	cache := bancache.New(logger, f.fs, banlistPath, func() time.Time { return f.now })
	var providers []reputation.Provider
	for _, p := range f.providers {
		providers = append(providers, p)
	}
	f.engine = NewEngine(logger, policy, cache, nil, providers, f.sink, f.rl, nil)
	return f
}

func (f *fixture) calls() (n int) {
	for _, p := range f.providers {
		n += p.calls
	}
	return
}

func (f *fixture) banlist(t *testing.T) map[string]int64 {
	var m map[string]int64
	if err := json.Unmarshal(f.fs.files[banlistPath], &m); err != nil {
		t.Fatalf("Got unexpected error: %v", err)
	}
	return m
}

func TestDecideAllowlisted(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	allowlist, _ := ipaddresses.NewSet([]string{"192.168.10.10"})
	policy := DefaultPolicy()
	policy.Allowlist = allowlist
	f := newFixture(t, policy, map[string]int{"192.168.10.10": 9}, map[string]int{"192.168.10.10": 9}, nil)
	f.fs.files[banlistPath] = []byte(`{"192.168.10.10": 1800000000}`)

	// Act
	d := f.engine.Decide(context.Background(), "192.168.10.10")

	// Assert
	assert.Equal(Allow, d.Verdict)
	assert.Equal(ReasonAllowlisted, d.Reason)
	assert.Equal(0, f.calls())
	assert.Equal(0, f.fs.readFileCalled)
	assert.Empty(f.sink.alerts)
	assert.Empty(f.rl.decisions)
}

func TestDecideEmptyAddress(t *testing.T) {
	assert := assert.New(t)

	f := newFixture(t, DefaultPolicy(), nil, nil, nil)

	d := f.engine.Decide(context.Background(), "")

	assert.Equal(Allow, d.Verdict)
	assert.Equal(ReasonNoAddress, d.Reason)
	assert.Equal(0, f.calls())
}

func TestDecideBannedSkipsProviders(t *testing.T) {
	assert := assert.New(t)

	f := newFixture(t, DefaultPolicy(), nil, nil, nil)
	f.fs.files[banlistPath] = []byte(`{"198.51.100.23": 1700000100}`)

	d := f.engine.Decide(context.Background(), "198.51.100.23")

	assert.Equal(Block, d.Verdict)
	assert.Equal(ReasonBanned, d.Reason)
	assert.Equal(0, f.calls())
	assert.Equal(0, f.fs.writeFileCalled)
	assert.Empty(f.sink.alerts)
}

func TestDecideExpiredBanIsRequeried(t *testing.T) {
	assert := assert.New(t)

	f := newFixture(t, DefaultPolicy(), nil, nil, nil)
	f.fs.files[banlistPath] = []byte(`{"198.51.100.23": 1700000000}`)

	d := f.engine.Decide(context.Background(), "198.51.100.23")

	assert.Equal(Allow, d.Verdict)
	assert.Equal(ReasonClean, d.Reason)
	assert.Equal(3, f.calls())
}

func TestDecideBlockPersistsAndAlerts(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	addr := "198.51.100.23"
	f := newFixture(t, DefaultPolicy(), map[string]int{addr: 5}, nil, nil)

	// Act
	d := f.engine.Decide(context.Background(), addr)

	// Assert
	assert.Equal(Block, d.Verdict)
	assert.Equal(ReasonFlagged, d.Reason)
	assert.Equal(5, d.TotalFlags)
	assert.Equal(1, d.FlaggedVendors)
	assert.Equal(map[string]int64{addr: 1700086400}, f.banlist(t))
	assert.Len(f.sink.alerts, 1)
	assert.Equal(alert.ColorCritical, f.sink.alerts[0].Color())
	assert.Len(f.sink.alerts[0].Signals, 3)
	assert.Len(f.rl.decisions, 1)

	// A second request is answered from the ban list.
	d = f.engine.Decide(context.Background(), addr)
	assert.Equal(Block, d.Verdict)
	assert.Equal(ReasonBanned, d.Reason)
	assert.Equal(3, f.calls())
	assert.Len(f.sink.alerts, 1)
}

func TestDecideTwoVendorsBlock(t *testing.T) {
	assert := assert.New(t)

	addr := "198.51.100.23"
	f := newFixture(t, DefaultPolicy(), map[string]int{addr: 1}, map[string]int{addr: 1}, nil)

	d := f.engine.Decide(context.Background(), addr)

	assert.Equal(Block, d.Verdict)
	assert.Equal(alert.ColorWarning, f.sink.alerts[0].Color())
}

func TestDecideAllowDoesNotPersist(t *testing.T) {
	assert := assert.New(t)

	addr := "198.51.100.23"
	f := newFixture(t, DefaultPolicy(), map[string]int{addr: 1}, nil, nil)

	d := f.engine.Decide(context.Background(), addr)

	assert.Equal(Allow, d.Verdict)
	assert.Equal(0, f.fs.writeFileCalled)
	assert.Empty(f.sink.alerts)
	assert.Len(f.rl.decisions, 1)
}

func TestDecideAlertFailureKeepsVerdict(t *testing.T) {
	assert := assert.New(t)

	addr := "198.51.100.23"
	f := newFixture(t, DefaultPolicy(), map[string]int{addr: 3}, nil, nil)
	f.sink.err = errors.New("webhook down")

	d := f.engine.Decide(context.Background(), addr)

	assert.Equal(Block, d.Verdict)
	assert.Equal(1, f.fs.writeFileCalled)
}

func TestDecideKeepsBansWrittenMeanwhile(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	addr := "198.51.100.23"
	f := newFixture(t, DefaultPolicy(), map[string]int{addr: 2}, nil, nil)
	hook := &writerDuringQuery{fs: f.fs, inner: &mockProvider{name: reputation.VirusTotal, counts: map[string]int{addr: 2}}}
	f.engine.providers[0] = hook

	// Act
	d := f.engine.Decide(context.Background(), addr)

	// Assert
	assert.Equal(Block, d.Verdict)
	bans := f.banlist(t)
	assert.Contains(bans, addr)
	assert.Contains(bans, "203.0.113.50")
}

// writerDuringQuery simulates another process banning an address while providers are queried.
type writerDuringQuery struct {
	fs    *mockFileSystem
	inner reputation.Provider
}

func (w *writerDuringQuery) Name() string { return w.inner.Name() }

func (w *writerDuringQuery) Query(ctx context.Context, addr string) reputation.Signal {
	w.fs.WriteFile(banlistPath, []byte(`{"203.0.113.50": 1800000000}`))
	return w.inner.Query(ctx, addr)
}

func TestDecideConcurrentBansAreNotLost(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	counts := make(map[string]int)
	var addrs []string
	for i := 1; i <= 20; i++ {
		addr := fmt.Sprintf("198.51.100.%d", i)
		addrs = append(addrs, addr)
		counts[addr] = 4
	}
	f := newFixture(t, DefaultPolicy(), counts, nil, nil)

	// Act
	var wg sync.WaitGroup
	for _, addr := range addrs {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			f.engine.Decide(context.Background(), addr)
		}(addr)
	}
	wg.Wait()

	// Assert
	assert.Len(f.banlist(t), 20)
}

func TestDecideSlowProviderTimesOut(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	addr := "198.51.100.23"
	f := newFixture(t, DefaultPolicy(), nil, map[string]int{addr: 1}, map[string]int{addr: 1})
	f.engine.providers[0] = reputation.NewVirusTotal(testutils.NewTestLogger(t), reputation.Options{BaseURL: srv.URL, Timeout: 100 * time.Millisecond})

	// Act
	startTime := time.Now()
	d := f.engine.Decide(context.Background(), addr)

	// Assert
	assert.Equal(Block, d.Verdict)
	assert.Equal(reputation.Signal{Count: 0, OK: false}, d.Signals[0].Signal)
	assert.True(time.Since(startTime) < 2*time.Second)
}

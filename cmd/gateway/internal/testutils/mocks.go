package testutils

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
	"github.com/shubham-shewale/stock-rooms/pkg/protocol"
)

// Frame is one message queued to a MockClient.
type Frame struct {
	Room     string
	Envelope protocol.Envelope
}

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal   string
	NameVal string
	Room    string
	Frames  []Frame
	Closed  bool
	Mu      sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, NameVal: "user-" + id}
}

func (m *MockClient) ID() string   { return m.IDVal }
func (m *MockClient) Name() string { return m.NameVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SetRoom(room string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Room = room
}

func (m *MockClient) SendJSON(msgType string, v interface{}) {
	b, err := protocol.Encode(msgType, v)
	if err != nil {
		panic(err)
	}
	m.SendBytes("", b)
}

func (m *MockClient) SendBytes(room string, b []byte) {
	env, err := protocol.Decode(b)
	if err != nil {
		panic(err)
	}
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Frames = append(m.Frames, Frame{Room: room, Envelope: env})
}

func (m *MockClient) CurrentRoom() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Room
}

// Of returns the envelopes of the given type in arrival order.
func (m *MockClient) Of(msgType string) []protocol.Envelope {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []protocol.Envelope
	for _, f := range m.Frames {
		if f.Envelope.Type == msgType {
			out = append(out, f.Envelope)
		}
	}
	return out
}

func (m *MockClient) Count(msgType string) int { return len(m.Of(msgType)) }

func (m *MockClient) LastMsgType() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Frames) == 0 {
		return ""
	}
	return m.Frames[len(m.Frames)-1].Envelope.Type
}

func (m *MockClient) Reset() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Frames = nil
}

// MockClock hands out tickers that only fire when the test says so.
type MockClock struct {
	CurrentTime time.Time
	Tickers     []*MockTicker
	Mu          sync.Mutex
}

func (m *MockClock) Now() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) Advance(d time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

func (m *MockClock) NewTicker(d time.Duration) market.Ticker {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	t := &MockTicker{Period: d, ch: make(chan time.Time)}
	m.Tickers = append(m.Tickers, t)
	return t
}

func (m *MockClock) TickerCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Tickers)
}

func (m *MockClock) Ticker(i int) *MockTicker {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Tickers[i]
}

type MockTicker struct {
	Period  time.Duration
	ch      chan time.Time
	stopped bool
	mu      sync.Mutex
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *MockTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire delivers one tick. It reports false if nobody received it within a
// second, which means the feed goroutine has exited.
func (t *MockTicker) Fire(now time.Time) bool {
	select {
	case t.ch <- now:
		return true
	case <-time.After(time.Second):
		return false
	}
}

// MockRand always returns ValInt, clamped to the requested range.
type MockRand struct {
	ValInt int
}

func (m *MockRand) Intn(n int) int {
	if m.ValInt >= n {
		return n - 1
	}
	return m.ValInt
}

// MockTradeSink records what the gateway forwards to the trade feed.
type MockTradeSink struct {
	Trades []models.Trade
	Mu     sync.Mutex
}

func (m *MockTradeSink) Enqueue(t models.Trade) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Trades = append(m.Trades, t)
}

func (m *MockTradeSink) Len() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Trades)
}

// Eventually polls cond until it holds or a second has passed.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("Assertion failed: %s", msg)
	}
}

// MockEngine counts start/stop transitions and lets tests emit ticks.
type MockEngine struct {
	Starts  map[string]int
	Stops   map[string]int
	Sinks   map[string]func(string, market.Move)
	running map[string]bool
	Mu      sync.Mutex
}

func NewMockEngine() *MockEngine {
	return &MockEngine{
		Starts:  make(map[string]int),
		Stops:   make(map[string]int),
		Sinks:   make(map[string]func(string, market.Move)),
		running: make(map[string]bool),
	}
}

func (m *MockEngine) Start(instrument string, sink func(string, market.Move)) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.running[instrument] {
		return false
	}
	m.running[instrument] = true
	m.Starts[instrument]++
	m.Sinks[instrument] = sink
	return true
}

func (m *MockEngine) Stop(instrument string) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if !m.running[instrument] {
		return false
	}
	delete(m.running, instrument)
	m.Stops[instrument]++
	return true
}

func (m *MockEngine) Snapshot(instrument string) (market.PriceState, bool) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if !m.running[instrument] {
		return market.PriceState{}, false
	}
	return market.NewPriceState(decimal.NewFromInt(500)), true
}

func (m *MockEngine) Running(instrument string) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.running[instrument]
}

func (m *MockEngine) StartCount(instrument string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Starts[instrument]
}

func (m *MockEngine) StopCount(instrument string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Stops[instrument]
}

// Sink returns the sink registered by the latest Start of instrument.
func (m *MockEngine) Sink(instrument string) func(string, market.Move) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Sinks[instrument]
}

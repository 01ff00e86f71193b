package syncagent_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
	"github.com/shubham-shewale/stock-rooms/pkg/protocol"
	"github.com/shubham-shewale/stock-rooms/pkg/syncagent"
)

type recorder struct {
	mu     sync.Mutex
	events []syncagent.Event
}

func (r *recorder) sink(e syncagent.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) of(typ string) []syncagent.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []syncagent.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) states() []syncagent.State {
	var out []syncagent.State
	for _, e := range r.of(syncagent.EventStateChanged) {
		out = append(out, e.Payload.(syncagent.State))
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, typ string, n int) []syncagent.Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.of(typ)) >= n }, time.Second, 5*time.Millisecond, "waiting for %d %s events", n, typ)
	return r.of(typ)
}

// dialer fails every attempt unless a conn is queued for it.
type fakeDialer struct {
	mu        sync.Mutex
	calls     int
	block     bool
	failFirst int
	conns     []syncagent.Conn
	deadlines []time.Duration
}

func (d *fakeDialer) DialContext(ctx context.Context, url string) (syncagent.Conn, error) {
	d.mu.Lock()
	d.calls++
	if dl, ok := ctx.Deadline(); ok {
		d.deadlines = append(d.deadlines, time.Until(dl))
	}
	var conn syncagent.Conn
	if d.calls > d.failFirst && len(d.conns) > 0 {
		conn, d.conns = d.conns[0], d.conns[1:]
	}
	block := d.block
	d.mu.Unlock()

	if conn != nil {
		return conn, nil
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, errors.New("connection refused")
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeConn struct {
	inbound chan []byte
	mu      sync.Mutex
	written []protocol.Envelope
	closed  bool
	once    sync.Once
}

func newFakeConn() *fakeConn { return &fakeConn{inbound: make(chan []byte, 16)} }

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	b, ok := <-c.inbound
	if !ok {
		return 0, nil, errors.New("use of closed connection")
	}
	return websocket.TextMessage, b, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed connection")
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	env, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	c.written = append(c.written, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.inbound)
	})
	return nil
}

func (c *fakeConn) Written() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.written...)
}

func (c *fakeConn) push(t *testing.T, msgType string, payload any) {
	b, err := protocol.Encode(msgType, payload)
	require.NoError(t, err)
	c.inbound <- b
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) fire() bool {
	select {
	case t.ch <- time.Now():
		return true
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

type fakeClock struct {
	now     time.Time
	mu      sync.Mutex
	tickers []*fakeTicker
	periods []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) NewTicker(d time.Duration) market.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	c.periods = append(c.periods, d)
	return t
}

func (c *fakeClock) ticker(i int) *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[i]
}

type fixedRand struct{ v int }

func (r fixedRand) Intn(n int) int {
	if r.v >= n {
		return n - 1
	}
	return r.v
}

func newAgent(d syncagent.Dialer, rec *recorder, clock *fakeClock) *syncagent.Agent {
	return syncagent.New(d, rec.sink, syncagent.Options{
		URL:            "ws://gateway.invalid/ws",
		AttemptTimeout: 20 * time.Millisecond,
		Clock:          clock,
		Rand:           fixedRand{v: 150},
	})
}

func fallbackAgent(t *testing.T) (*syncagent.Agent, *recorder, *fakeClock) {
	rec := &recorder{}
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)}
	a := newAgent(&fakeDialer{}, rec, clock)
	require.Equal(t, syncagent.FallbackSimulated, a.Connect(context.Background()))
	t.Cleanup(func() { a.Close() })
	return a, rec, clock
}

func TestConnect_TimeoutsEnterFallbackAfterThreeAttempts(t *testing.T) {
	rec := &recorder{}
	dialer := &fakeDialer{block: true}
	a := newAgent(dialer, rec, &fakeClock{})
	defer a.Close()

	state := a.Connect(context.Background())

	assert.Equal(t, syncagent.FallbackSimulated, state)
	assert.Equal(t, 3, dialer.Calls())
	assert.Equal(t, []syncagent.State{syncagent.Connecting, syncagent.FallbackSimulated}, rec.states())
	for _, left := range dialer.deadlines {
		assert.LessOrEqual(t, left, 20*time.Millisecond, "each attempt is bounded by the attempt timeout")
	}

	// fallback is absorbing: no fourth attempt
	assert.Equal(t, syncagent.FallbackSimulated, a.Connect(context.Background()))
	assert.Equal(t, 3, dialer.Calls())

	ids := rec.of(protocol.TypeIdentity)
	require.Len(t, ids, 1)
	id := ids[0].Payload.(*protocol.Identity)
	assert.Equal(t, syncagent.MockUserName, id.Name)
	assert.True(t, id.Wallet.Balance.Equal(decimal.NewFromInt(25000)))
}

func TestConnect_SucceedsAfterFailure(t *testing.T) {
	rec := &recorder{}
	conn := newFakeConn()
	dialer := &fakeDialer{failFirst: 2, conns: []syncagent.Conn{conn}}
	a := newAgent(dialer, rec, &fakeClock{})
	defer a.Close()

	state := a.Connect(context.Background())

	assert.Equal(t, syncagent.Connected, state)
	assert.Equal(t, 3, dialer.Calls())
	assert.Equal(t, 0, a.Attempts(), "success resets the consecutive failure count")
	assert.Equal(t, []syncagent.State{syncagent.Connecting, syncagent.Connected}, rec.states())
}

func TestConnected_RoomAndOrderFrames(t *testing.T) {
	rec := &recorder{}
	conn := newFakeConn()
	a := newAgent(&fakeDialer{conns: []syncagent.Conn{conn}}, rec, &fakeClock{})
	defer a.Close()
	require.Equal(t, syncagent.Connected, a.Connect(context.Background()))

	require.NoError(t, a.JoinRoom("TCS"))
	require.NoError(t, a.JoinRoom("Zomato"))
	require.NoError(t, a.SubmitOrder(models.Order{
		Instrument: "Zomato",
		Price:      decimal.RequireFromString("142.32"),
		Quantity:   100,
		Side:       models.SideBuy,
	}))
	require.NoError(t, a.LeaveRoom())

	var types []string
	for _, env := range conn.Written() {
		types = append(types, env.Type)
	}
	assert.Equal(t, []string{
		protocol.TypeJoinRoom,
		protocol.TypeLeaveRoom,
		protocol.TypeJoinRoom,
		protocol.TypeSubmitOrder,
		protocol.TypeLeaveRoom,
	}, types)

	var leave protocol.RoomRequest
	require.NoError(t, conn.Written()[1].Into(&leave))
	assert.Equal(t, "TCS", leave.Instrument)
	assert.Equal(t, "", a.Room())
}

func TestConnected_ServerFramesBecomeEvents(t *testing.T) {
	rec := &recorder{}
	conn := newFakeConn()
	a := newAgent(&fakeDialer{conns: []syncagent.Conn{conn}}, rec, &fakeClock{})
	defer a.Close()
	require.Equal(t, syncagent.Connected, a.Connect(context.Background()))

	conn.push(t, protocol.TypeIdentity, protocol.Identity{SessionID: "s1", Name: "Divya", Wallet: models.NewWallet(decimal.NewFromInt(30000))})
	conn.inbound <- []byte(`{"type":"price_upd`)
	conn.push(t, protocol.TypeRoomNotice, protocol.RoomNotice{Message: "Amey joined the room"})

	notices := rec.waitFor(t, protocol.TypeRoomNotice, 1)
	assert.Equal(t, "Amey joined the room", notices[0].Payload.(*protocol.RoomNotice).Message)

	ids := rec.of(protocol.TypeIdentity)
	require.Len(t, ids, 1)
	assert.Equal(t, "Divya", ids[0].Payload.(*protocol.Identity).Name)
	assert.Empty(t, rec.of(protocol.TypePriceUpdated))
}

func TestConnected_DropMovesToDisconnected(t *testing.T) {
	rec := &recorder{}
	conn := newFakeConn()
	a := newAgent(&fakeDialer{conns: []syncagent.Conn{conn}}, rec, &fakeClock{})
	defer a.Close()
	require.Equal(t, syncagent.Connected, a.Connect(context.Background()))

	conn.Close()

	require.Eventually(t, func() bool { return a.State() == syncagent.Disconnected }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, a.SubmitOrder(models.Order{Instrument: "TCS"}), syncagent.ErrNotConnected)
	assert.ErrorIs(t, a.JoinRoom("TCS"), syncagent.ErrNotConnected)
}

func TestFallback_JoinSeedsHistoryAndTicks(t *testing.T) {
	a, rec, clock := fallbackAgent(t)

	require.NoError(t, a.JoinRoom("TCS"))

	snaps := rec.of(protocol.TypePriceSnapshot)
	require.Len(t, snaps, 1)
	snap := snaps[0].Payload.(*protocol.PriceSnapshot)
	// 500 + Intn(200) with the fixed draw of 150
	assert.True(t, snap.Price.Equal(decimal.NewFromInt(650)), "start price %s", snap.Price)
	require.Len(t, snap.History, 10)
	assert.True(t, snap.History[9].Price.Equal(snap.Price))
	assert.Equal(t, clock.now, snap.History[9].Timestamp)
	assert.Equal(t, market.TickInterval, clock.periods[0])

	require.True(t, clock.ticker(0).fire())

	upd := rec.waitFor(t, protocol.TypePriceUpdated, 1)[0].Payload.(*protocol.PriceUpdated)
	assert.Equal(t, "TCS", upd.Instrument)
	assert.True(t, upd.PreviousPrice.Equal(decimal.NewFromInt(650)))
	// Intn(1001) = 150 gives a step of -350
	assert.True(t, upd.Price.Equal(decimal.NewFromInt(300)), "price %s", upd.Price)
	assert.Equal(t, int64(-350), upd.Delta)
	assert.InDelta(t, -53.846, upd.PercentChange, 0.001)
}

func TestFallback_LeaveStopsTicks(t *testing.T) {
	a, rec, clock := fallbackAgent(t)

	require.NoError(t, a.JoinRoom("TCS"))
	require.NoError(t, a.LeaveRoom())

	assert.False(t, clock.ticker(0).fire(), "ticker goroutine should have exited")
	assert.Empty(t, rec.of(protocol.TypePriceUpdated))
}

func TestFallback_SwitchingRoomsRestartsFeed(t *testing.T) {
	a, rec, clock := fallbackAgent(t)

	require.NoError(t, a.JoinRoom("TCS"))
	require.NoError(t, a.JoinRoom("Zomato"))

	assert.False(t, clock.ticker(0).fire(), "old feed should be stopped")
	require.True(t, clock.ticker(1).fire())

	upd := rec.waitFor(t, protocol.TypePriceUpdated, 1)
	assert.Equal(t, "Zomato", upd[0].Payload.(*protocol.PriceUpdated).Instrument)
	assert.Len(t, rec.of(protocol.TypePriceSnapshot), 2)
}

func TestFallback_SettlesLikeTheGateway(t *testing.T) {
	a, rec, _ := fallbackAgent(t)

	require.NoError(t, a.SubmitOrder(models.Order{
		Instrument: "Zomato",
		Price:      decimal.RequireFromString("142.32"),
		Quantity:   100,
		Side:       models.SideBuy,
	}))

	results := rec.of(protocol.TypeOrderResult)
	require.Len(t, results, 1)
	res := results[0].Payload.(*protocol.OrderResult)
	assert.Equal(t, models.StatusExecuted, res.Trade.Status)
	assert.Equal(t, "ZOM", res.Trade.Symbol)
	assert.Equal(t, syncagent.MockUserName, res.Trade.User)
	assert.True(t, res.Wallet.Balance.Equal(decimal.NewFromInt(10768)), "balance %s", res.Wallet.Balance)
	assert.Equal(t, int64(100), res.Wallet.Holding("Zomato"))
	assert.Len(t, rec.of(protocol.TypeLiveTrade), 1)

	require.NoError(t, a.SubmitOrder(models.Order{
		Instrument: "Zomato",
		Price:      decimal.RequireFromString("142.32"),
		Quantity:   150,
		Side:       models.SideSell,
	}))

	results = rec.of(protocol.TypeOrderResult)
	require.Len(t, results, 2)
	res = results[1].Payload.(*protocol.OrderResult)
	assert.Equal(t, models.StatusRejected, res.Trade.Status)
	assert.Contains(t, res.Reason, "insufficient holdings")
	assert.Equal(t, int64(100), res.Wallet.Holding("Zomato"))
	assert.True(t, res.Wallet.Balance.Equal(decimal.NewFromInt(10768)))
	assert.Len(t, rec.of(protocol.TypeLiveTrade), 1, "rejections are not broadcast")
}

func TestClose_StopsEverything(t *testing.T) {
	a, _, clock := fallbackAgent(t)
	require.NoError(t, a.JoinRoom("TCS"))

	require.NoError(t, a.Close())

	assert.False(t, clock.ticker(0).fire())
	assert.ErrorIs(t, a.JoinRoom("TCS"), syncagent.ErrClosed)
	assert.ErrorIs(t, a.SubmitOrder(models.Order{}), syncagent.ErrClosed)
}

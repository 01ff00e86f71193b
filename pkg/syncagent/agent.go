// Package syncagent is the client side of a trading room: it keeps one
// connection to the gateway and, when the gateway cannot be reached after a
// few attempts, switches for good to a local simulation that emits the same
// events.
package syncagent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
	"github.com/shubham-shewale/stock-rooms/pkg/protocol"
)

const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 3 * time.Second
)

var (
	ErrNotConnected = errors.New("agent is not connected")
	ErrClosed       = errors.New("agent is closed")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	FallbackSimulated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case FallbackSimulated:
		return "fallback"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventStateChanged carries the new State as its payload. Every other event
// type is a protocol message type with the matching protocol struct.
const EventStateChanged = "state_changed"

type Event struct {
	Type    string
	Payload any
}

// Sink receives events from the read loop, the fallback ticker and the
// calling goroutine, so it must be safe for concurrent use. It must not call
// back into the Agent synchronously.
type Sink func(Event)

type Options struct {
	URL            string
	MaxAttempts    int
	AttemptTimeout time.Duration
	TickInterval   time.Duration
	Logger         *zap.Logger
	Clock          market.Clock
	Rand           market.Rand
}

func (o *Options) defaults() {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = DefaultAttemptTimeout
	}
	if o.TickInterval <= 0 {
		o.TickInterval = market.TickInterval
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = market.RealClock{}
	}
	if o.Rand == nil {
		o.Rand = market.NewLockedRand(time.Now().UnixNano())
	}
}

type Agent struct {
	opts   Options
	dialer Dialer
	sink   Sink
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	attempts int // consecutive failures
	conn     Conn
	room     string
	closed   bool
	sim      *simulator

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func New(dialer Dialer, sink Sink, opts Options) *Agent {
	opts.defaults()
	if sink == nil {
		sink = func(Event) {}
	}
	return &Agent{
		opts:   opts,
		dialer: dialer,
		sink:   sink,
		logger: opts.Logger,
	}
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Room is the instrument the agent last joined, or "".
func (a *Agent) Room() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.room
}

// Attempts is the number of consecutive failed connection attempts.
func (a *Agent) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

// Connect dials until it succeeds or MaxAttempts consecutive attempts have
// failed, each bounded by AttemptTimeout. After the cap the agent stays in
// FallbackSimulated and never dials again.
func (a *Agent) Connect(ctx context.Context) State {
	a.mu.Lock()
	if a.closed || a.state == Connected || a.state == FallbackSimulated || a.state == Connecting {
		s := a.state
		a.mu.Unlock()
		return s
	}
	a.mu.Unlock()
	a.setState(Connecting)

	for {
		a.mu.Lock()
		if a.attempts >= a.opts.MaxAttempts {
			a.mu.Unlock()
			a.enterFallback()
			return FallbackSimulated
		}
		a.attempts++
		attempt := a.attempts
		a.mu.Unlock()

		conn, err := a.dial(ctx)
		if err == nil {
			a.mu.Lock()
			if a.closed {
				a.mu.Unlock()
				conn.Close()
				return a.State()
			}
			a.attempts = 0
			a.conn = conn
			a.mu.Unlock()

			a.logger.Info("Connected to gateway", zap.String("url", a.opts.URL), zap.Int("attempt", attempt))
			a.wg.Add(1)
			go a.readLoop(conn)
			a.setState(Connected)
			return Connected
		}

		a.logger.Warn("Connection attempt failed",
			zap.String("url", a.opts.URL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", a.opts.MaxAttempts),
			zap.Error(err))

		if ctx.Err() != nil {
			a.setState(Disconnected)
			return Disconnected
		}
	}
}

func (a *Agent) dial(ctx context.Context) (Conn, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.opts.AttemptTimeout)
	defer cancel()
	return a.dialer.DialContext(attemptCtx, a.opts.URL)
}

// JoinRoom subscribes to instrument, leaving the current room first.
func (a *Agent) JoinRoom(instrument string) error {
	instrument = strings.TrimSpace(instrument)
	if instrument == "" {
		return fmt.Errorf("join: empty instrument")
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	state, prev, sim := a.state, a.room, a.sim
	a.room = instrument
	a.mu.Unlock()

	switch state {
	case Connected:
		if prev != "" && prev != instrument {
			if err := a.send(protocol.TypeLeaveRoom, protocol.RoomRequest{Instrument: prev}); err != nil {
				return err
			}
		}
		return a.send(protocol.TypeJoinRoom, protocol.RoomRequest{Instrument: instrument})
	case FallbackSimulated:
		sim.join(instrument)
		return nil
	default:
		a.mu.Lock()
		a.room = prev
		a.mu.Unlock()
		return ErrNotConnected
	}
}

func (a *Agent) LeaveRoom() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	state, room, sim := a.state, a.room, a.sim
	a.room = ""
	a.mu.Unlock()

	switch state {
	case Connected:
		if room == "" {
			return nil
		}
		return a.send(protocol.TypeLeaveRoom, protocol.RoomRequest{Instrument: room})
	case FallbackSimulated:
		sim.leave()
		return nil
	default:
		return ErrNotConnected
	}
}

// SubmitOrder sends o to the gateway, or settles it locally in fallback.
// Either way the outcome arrives as an order_result event.
func (a *Agent) SubmitOrder(o models.Order) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	state, sim := a.state, a.sim
	a.mu.Unlock()

	switch state {
	case Connected:
		return a.send(protocol.TypeSubmitOrder, protocol.SubmitOrder{Order: o})
	case FallbackSimulated:
		sim.submit(o)
		return nil
	default:
		return ErrNotConnected
	}
}

// Close stops the simulator or the connection and waits for the agent's
// goroutines.
func (a *Agent) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	conn, sim := a.conn, a.sim
	a.conn = nil
	a.mu.Unlock()

	var err error
	if conn != nil {
		a.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		a.writeMu.Unlock()
		err = conn.Close()
	}
	if sim != nil {
		sim.leave()
	}
	a.wg.Wait()

	if a.State() == Connected {
		a.setState(Disconnected)
	}
	return err
}

func (a *Agent) send(msgType string, payload any) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	b, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	return nil
}

func (a *Agent) readLoop(conn Conn) {
	defer a.wg.Done()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			a.logger.Info("Gateway connection closed", zap.Error(err))
			break
		}

		env, err := protocol.Decode(b)
		if err != nil {
			a.logger.Warn("Malformed frame from gateway", zap.Error(err))
			continue
		}
		msg, err := env.Message()
		if err != nil {
			a.logger.Warn("Unreadable frame from gateway", zap.String("type", env.Type), zap.Error(err))
			continue
		}
		a.sink(Event{Type: env.Type, Payload: msg})
	}

	a.mu.Lock()
	current := a.conn == conn
	if current {
		a.conn = nil
		a.room = ""
	}
	a.mu.Unlock()
	conn.Close()

	if current {
		a.setState(Disconnected)
	}
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	if a.state == s {
		a.mu.Unlock()
		return
	}
	a.state = s
	a.mu.Unlock()

	a.logger.Debug("Agent state changed", zap.Stringer("state", s))
	a.sink(Event{Type: EventStateChanged, Payload: s})
}

func (a *Agent) enterFallback() {
	sim := newSimulator(a.opts, a.sink, &a.wg)

	a.mu.Lock()
	a.sim = sim
	room := a.room
	a.mu.Unlock()

	a.logger.Warn("Gateway unreachable, switching to local simulation", zap.Int("attempts", a.opts.MaxAttempts))
	a.setState(FallbackSimulated)
	sim.identify()
	if room != "" {
		sim.join(room)
	}
}

package testutils

import (
	"errors"
	"sync"
	"time"

	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

// MockAgent records what the bot asks of the sync agent.
type MockAgent struct {
	Joined     []string
	Orders     []models.Order
	ShouldFail bool
	Mu         sync.Mutex
}

func (m *MockAgent) JoinRoom(instrument string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("agent is not connected")
	}
	m.Joined = append(m.Joined, instrument)
	return nil
}

func (m *MockAgent) SubmitOrder(o models.Order) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("agent is not connected")
	}
	m.Orders = append(m.Orders, o)
	return nil
}

func (m *MockAgent) OrderCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Orders)
}

type MockTicker struct {
	ch chan time.Time
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }
func (t *MockTicker) Stop()               {}

// Fire reports false if nobody took the tick within a second.
func (t *MockTicker) Fire() bool {
	select {
	case t.ch <- time.Now():
		return true
	case <-time.After(time.Second):
		return false
	}
}

type MockClock struct {
	CurrentTime time.Time
	Tickers     []*MockTicker
	Mu          sync.Mutex
}

func (m *MockClock) Now() time.Time { return m.CurrentTime }

func (m *MockClock) NewTicker(d time.Duration) market.Ticker {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	t := &MockTicker{ch: make(chan time.Time)}
	m.Tickers = append(m.Tickers, t)
	return t
}

// Ticker waits for the i-th ticker to be created.
func (m *MockClock) Ticker(i int) *MockTicker {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m.Mu.Lock()
		if len(m.Tickers) > i {
			t := m.Tickers[i]
			m.Mu.Unlock()
			return t
		}
		m.Mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

type MockRand struct {
	ValInt int
}

func (m *MockRand) Intn(n int) int {
	if m.ValInt >= n {
		return n - 1
	}
	return m.ValInt
}

// Package ledger keeps one in-memory wallet per connected session.
//
// The wallet map has its own RWMutex; each wallet carries a mutex of its own
// so orders from one session settle strictly one at a time while different
// sessions never contend.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/stock-rooms/pkg/market"
	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

var (
	ErrWalletExists  = errors.New("wallet already exists")
	ErrUnknownWallet = errors.New("unknown wallet")
)

// account must not be read or written without its own lock.
type account struct {
	mu     sync.Mutex
	owner  string
	wallet models.Wallet
}

type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
	now      func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*account), now: time.Now}
}

// Open creates the session's wallet with the given starting balance.
func (l *Ledger) Open(sessionID, owner string, balance decimal.Decimal) (models.Wallet, error) {
	if balance.IsNegative() {
		return models.Wallet{}, fmt.Errorf("open wallet %s: negative balance %s", sessionID, balance)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.accounts[sessionID]; exists {
		return models.Wallet{}, fmt.Errorf("%w: %s", ErrWalletExists, sessionID)
	}
	w := models.NewWallet(balance)
	l.accounts[sessionID] = &account{owner: owner, wallet: w}
	return w.Clone(), nil
}

// Close drops the wallet. Unknown ids are ignored.
func (l *Ledger) Close(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, sessionID)
}

func (l *Ledger) Wallet(sessionID string) (models.Wallet, bool) {
	a := l.get(sessionID)
	if a == nil {
		return models.Wallet{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wallet.Clone(), true
}

// Settle validates and applies o against the session's wallet. Business
// rejections come back as a trade with StatusRejected; the error is only set
// when the wallet does not exist.
func (l *Ledger) Settle(sessionID string, o models.Order) (models.Trade, models.Wallet, error) {
	a := l.get(sessionID)
	if a == nil {
		return models.Trade{}, models.Wallet{}, fmt.Errorf("%w: %s", ErrUnknownWallet, sessionID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	next, trade := market.Execute(a.wallet, o, a.owner, l.now())
	a.wallet = next
	return trade, next.Clone(), nil
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.accounts)
}

func (l *Ledger) get(sessionID string) *account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts[sessionID]
}

package usecase

import (
	"errors"
	"sync"
	"time"

	"CopyRelay/internal/domain/models"
)

// ErrAccountIDRequired is returned by Register when account_id is empty.
var ErrAccountIDRequired = errors.New("account id required")

// RegisterParams carries everything a terminal reports at registration.
type RegisterParams struct {
	AccountID    string
	Name         string
	IsMaster     bool
	Equity       float64
	Profit       float64
	IPAddress    string
	LicenseOwner string
	LicenseKey   string
}

// Registry owns the connected-account set and the master pointer. The two
// live under a single mutex: evicting or disconnecting the elected master
// must clear the pointer in the same critical section, so partial reads
// without the lock are not allowed.
//
// The master pointer is the single source of truth for who is elected. An
// account row may still claim is_master=true after another master registers;
// the stale row is intentionally left untouched.
type Registry struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	master   string // account id, "" = no master
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		accounts: make(map[string]*models.Account),
		now:      time.Now,
	}
}

// Register inserts or fully overwrites the account row. Re-registration is
// not a merge: timestamps, metrics and license fields are all taken fresh.
// A master registration repoints the master pointer atomically.
func (r *Registry) Register(p RegisterParams) (models.Account, error) {
	if p.AccountID == "" {
		return models.Account{}, ErrAccountIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	acc := &models.Account{
		AccountID:      p.AccountID,
		Name:           p.Name,
		IsMaster:       p.IsMaster,
		ConnectedSince: now,
		LastSeen:       now,
		Equity:         p.Equity,
		Profit:         p.Profit,
		Status:         models.StatusConnected,
		IPAddress:      p.IPAddress,
		LicenseOwner:   p.LicenseOwner,
		LicenseKey:     p.LicenseKey,
	}
	r.accounts[p.AccountID] = acc
	if p.IsMaster {
		r.master = p.AccountID
	}
	return *acc, nil
}

// Heartbeat refreshes last_seen and status, and updates equity/profit only
// when the terminal reported them. Unknown ids are tolerated: no row is
// created and the caller decides whether to log. Returns false when unknown.
func (r *Registry) Heartbeat(accountID string, equity, profit *float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[accountID]
	if !ok {
		return false
	}
	acc.LastSeen = r.now()
	acc.Status = models.StatusConnected
	if equity != nil {
		acc.Equity = *equity
	}
	if profit != nil {
		acc.Profit = *profit
	}
	return true
}

// Disconnect marks the row disconnected (the row is kept; only the reaper
// deletes) and clears the master pointer when this id is the elected master.
// Unknown ids are a no-op. Returns false when unknown.
func (r *Registry) Disconnect(accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[accountID]
	if !ok {
		return false
	}
	acc.Status = models.StatusDisconnected
	if r.master == accountID {
		r.master = ""
	}
	return true
}

// Snapshot returns a copy of every account row plus the current master id
// ("" when none). Read-only: listing never triggers cleanup.
func (r *Registry) Snapshot() (map[string]models.Account, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]models.Account, len(r.accounts))
	for id, acc := range r.accounts {
		out[id] = *acc
	}
	return out, r.master
}

// Master returns the row currently designated by the master pointer.
func (r *Registry) Master() (models.Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.master == "" {
		return models.Account{}, false
	}
	acc, ok := r.accounts[r.master]
	if !ok {
		return models.Account{}, false
	}
	return *acc, true
}

// MasterID returns the elected master id, or the no_master sentinel for
// snapshotting into published signals.
func (r *Registry) MasterID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.master == "" {
		return models.NoMaster
	}
	return r.master
}

// Counts reports totals for the health endpoint.
func (r *Registry) Counts() (total, masters, slaves int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, acc := range r.accounts {
		if acc.IsMaster {
			masters++
		} else {
			slaves++
		}
	}
	return len(r.accounts), masters, slaves
}

// EvictStale removes every account not seen within maxAge and demotes the
// master if its row was evicted. Scan, delete and demotion happen in one
// critical section so a concurrent re-registration cannot slip between scan
// and delete. Returns the evicted ids. Called only by the reaper.
func (r *Registry) EvictStale(maxAge time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var stale []string
	for id, acc := range r.accounts {
		if now.Sub(acc.LastSeen) > maxAge {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(r.accounts, id)
		if r.master == id {
			r.master = ""
		}
	}
	return stale
}

package usecase

import (
	"sync"
	"testing"
	"time"

	"CopyRelay/internal/domain/models"
)

func TestRegisterRequiresAccountID(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(RegisterParams{Name: "nameless"}); err != ErrAccountIDRequired {
		t.Fatalf("expected ErrAccountIDRequired, got %v", err)
	}
}

func TestRegisterMasterSetsPointer(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(RegisterParams{AccountID: "A1", Name: "Master", IsMaster: true}); err != nil {
		t.Fatalf("register: %v", err)
	}
	m, ok := r.Master()
	if !ok || m.AccountID != "A1" {
		t.Fatalf("expected master A1, got %+v ok=%v", m, ok)
	}
	if r.MasterID() != "A1" {
		t.Fatalf("unexpected master id %q", r.MasterID())
	}
}

func TestMasterReplacementLeavesOldRowUntouched(t *testing.T) {
	r := NewRegistry()
	r.Register(RegisterParams{AccountID: "A1", IsMaster: true})
	r.Register(RegisterParams{AccountID: "A2", IsMaster: true})

	accounts, master := r.Snapshot()
	if master != "A2" {
		t.Fatalf("expected master A2, got %q", master)
	}
	// The superseded master keeps claiming is_master on its own row.
	if !accounts["A1"].IsMaster {
		t.Fatalf("expected A1 row to keep is_master")
	}
}

func TestReRegisterOverwritesVolatileFields(t *testing.T) {
	r := NewRegistry()
	r.Register(RegisterParams{AccountID: "A1", Equity: 1000, Profit: 50, LicenseOwner: "alice"})
	r.Register(RegisterParams{AccountID: "A1", Name: "fresh"})

	accounts, _ := r.Snapshot()
	acc := accounts["A1"]
	if acc.Equity != 0 || acc.Profit != 0 {
		t.Fatalf("expected reset metrics, got equity=%v profit=%v", acc.Equity, acc.Profit)
	}
	if acc.Name != "fresh" {
		t.Fatalf("expected overwritten name, got %q", acc.Name)
	}
	// License comes fresh from the new request, not merged from the old row.
	if acc.LicenseOwner != "" {
		t.Fatalf("expected empty license owner, got %q", acc.LicenseOwner)
	}
}

func TestHeartbeatUpdatesMetricsWhenSupplied(t *testing.T) {
	r := NewRegistry()
	r.Register(RegisterParams{AccountID: "A2", Equity: 100})

	if !r.Heartbeat("A2", nil, nil) {
		t.Fatalf("expected known account")
	}
	eq := 500.0
	if !r.Heartbeat("A2", &eq, nil) {
		t.Fatalf("expected known account")
	}

	accounts, _ := r.Snapshot()
	acc := accounts["A2"]
	if acc.Equity != 500 {
		t.Fatalf("expected equity 500, got %v", acc.Equity)
	}
	if acc.Status != models.StatusConnected {
		t.Fatalf("expected connected, got %q", acc.Status)
	}
}

func TestHeartbeatUnknownAccountCreatesNothing(t *testing.T) {
	r := NewRegistry()
	if r.Heartbeat("ghost", nil, nil) {
		t.Fatalf("expected unknown account")
	}
	accounts, _ := r.Snapshot()
	if len(accounts) != 0 {
		t.Fatalf("heartbeat must not create rows, got %d", len(accounts))
	}
}

func TestDisconnectKeepsRowAndClearsMaster(t *testing.T) {
	r := NewRegistry()
	r.Register(RegisterParams{AccountID: "A1", IsMaster: true})
	r.Register(RegisterParams{AccountID: "A2"})

	if !r.Disconnect("A1") {
		t.Fatalf("expected known account")
	}
	accounts, master := r.Snapshot()
	if master != "" {
		t.Fatalf("expected cleared master, got %q", master)
	}
	if accounts["A1"].Status != models.StatusDisconnected {
		t.Fatalf("expected disconnected row to remain")
	}
	if _, ok := r.Master(); ok {
		t.Fatalf("expected no master")
	}
	if r.MasterID() != models.NoMaster {
		t.Fatalf("expected sentinel, got %q", r.MasterID())
	}
}

func TestDisconnectOtherAccountKeepsMaster(t *testing.T) {
	r := NewRegistry()
	r.Register(RegisterParams{AccountID: "A1", IsMaster: true})
	r.Register(RegisterParams{AccountID: "A2"})

	r.Disconnect("A2")
	if _, ok := r.Master(); !ok {
		t.Fatalf("disconnecting a slave must not demote the master")
	}
}

func TestDisconnectUnknownIsNoOp(t *testing.T) {
	r := NewRegistry()
	if r.Disconnect("ghost") {
		t.Fatalf("expected unknown account")
	}
}

func TestEvictStaleDemotesMaster(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	r.Register(RegisterParams{AccountID: "A1", IsMaster: true})
	r.Register(RegisterParams{AccountID: "A2"})

	// A2 heartbeats later; A1 goes silent.
	r.now = func() time.Time { return base.Add(4 * time.Minute) }
	r.Heartbeat("A2", nil, nil)

	r.now = func() time.Time { return base.Add(6 * time.Minute) }
	evicted := r.EvictStale(300 * time.Second)
	if len(evicted) != 1 || evicted[0] != "A1" {
		t.Fatalf("expected [A1], got %v", evicted)
	}
	accounts, master := r.Snapshot()
	if _, ok := accounts["A1"]; ok {
		t.Fatalf("expected A1 removed")
	}
	if master != "" {
		t.Fatalf("expected master cleared, got %q", master)
	}
	if _, ok := accounts["A2"]; !ok {
		t.Fatalf("expected A2 kept")
	}
}

func TestEvictStaleKeepsUnrelatedMaster(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	r.Register(RegisterParams{AccountID: "A2"})

	r.now = func() time.Time { return base.Add(6 * time.Minute) }
	r.Register(RegisterParams{AccountID: "A1", IsMaster: true})

	evicted := r.EvictStale(300 * time.Second)
	if len(evicted) != 1 || evicted[0] != "A2" {
		t.Fatalf("expected [A2], got %v", evicted)
	}
	if id := r.MasterID(); id != "A1" {
		t.Fatalf("evicting a slave must not demote the master, got %q", id)
	}
}

func TestConcurrentHeartbeatRegisterEvict(t *testing.T) {
	r := NewRegistry()
	one := RegisterParams{AccountID: "A1", IsMaster: true, Name: "one", LicenseOwner: "alice", LicenseKey: "k1"}
	two := RegisterParams{AccountID: "A1", IsMaster: true, Name: "two", LicenseOwner: "bob", LicenseKey: "k2"}
	r.Register(one)

	const iterations = 500
	var wg sync.WaitGroup

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eq, pr := 500.0, 12.5
			for i := 0; i < iterations; i++ {
				r.Heartbeat("A1", &eq, &pr)
			}
		}()
	}
	for _, p := range []RegisterParams{one, two} {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if _, err := r.Register(p); err != nil {
					t.Errorf("register: %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			r.EvictStale(time.Hour)
			r.Snapshot()
			r.MasterID()
		}
	}()
	wg.Wait()

	accounts, master := r.Snapshot()
	acc, ok := accounts["A1"]
	if !ok {
		t.Fatalf("row lost under contention")
	}
	if master != "A1" {
		t.Fatalf("master pointer = %q, want A1", master)
	}
	// The row must be entirely one registration or the other, never a mix
	// of identity fields from both.
	isOne := acc.Name == "one" && acc.LicenseOwner == "alice" && acc.LicenseKey == "k1"
	isTwo := acc.Name == "two" && acc.LicenseOwner == "bob" && acc.LicenseKey == "k2"
	if !isOne && !isTwo {
		t.Fatalf("torn row after concurrent register/heartbeat: %+v", acc)
	}
	// Equity is 0 when a register landed last, 500 when a heartbeat did;
	// anything else means a torn write.
	if acc.Equity != 0 && acc.Equity != 500 {
		t.Fatalf("torn equity %v", acc.Equity)
	}
	if acc.Status != models.StatusConnected {
		t.Fatalf("status = %q", acc.Status)
	}
}

func TestCounts(t *testing.T) {
	r := NewRegistry()
	r.Register(RegisterParams{AccountID: "A1", IsMaster: true})
	r.Register(RegisterParams{AccountID: "A2"})
	r.Register(RegisterParams{AccountID: "A3"})

	total, masters, slaves := r.Counts()
	if total != 3 || masters != 1 || slaves != 2 {
		t.Fatalf("unexpected counts total=%d masters=%d slaves=%d", total, masters, slaves)
	}
}

package apireplay

import (
	"testing"
)

func openTestPool(t *testing.T) *Pool {
	t.Helper()
	pool, err := OpenPool(t.TempDir() + "/accounts.db")
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestPool_AddAndStats(t *testing.T) {
	pool := openTestPool(t)

	if err := pool.Add("alice", "tok-a", "csrf-a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := pool.Add("bob", "tok-b", "csrf-b"); err != nil {
		t.Fatalf("add: %v", err)
	}

	stats, err := pool.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.Active != 2 || stats.Inactive != 0 {
		t.Errorf("stats = %+v, want 2 active", stats)
	}
}

func TestPool_AddRejectsIncompleteCookies(t *testing.T) {
	pool := openTestPool(t)
	if err := pool.Add("alice", "tok-a", ""); err == nil {
		t.Error("expected error for missing ct0")
	}
	if err := pool.Add("", "tok-a", "csrf-a"); err == nil {
		t.Error("expected error for missing username")
	}
}

func TestPool_ReAddReactivates(t *testing.T) {
	pool := openTestPool(t)
	if err := pool.Add("alice", "tok-a", "csrf-a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := pool.markInactive("alice", "http 401"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if err := pool.Add("alice", "tok-a2", "csrf-a2"); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	accounts, err := pool.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("accounts = %d, want re-add to replace", len(accounts))
	}
	a := accounts[0]
	if !a.Active || a.ErrorMsg != "" || a.AuthToken != "tok-a2" || a.CT0 != "csrf-a2" {
		t.Errorf("account = %+v, want reactivated with fresh cookies", a)
	}
}

func TestPool_NextRotatesLeastRecentlyUsed(t *testing.T) {
	pool := openTestPool(t)
	if err := pool.Add("alice", "tok-a", "csrf-a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := pool.Add("bob", "tok-b", "csrf-b"); err != nil {
		t.Fatalf("add: %v", err)
	}

	first, err := pool.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	second, err := pool.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if first.Username == second.Username {
		t.Errorf("consecutive picks both %q, want rotation", first.Username)
	}
}

func TestPool_NextSkipsInactive(t *testing.T) {
	pool := openTestPool(t)
	if err := pool.Add("alice", "tok-a", "csrf-a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := pool.Add("bob", "tok-b", "csrf-b"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := pool.markInactive("alice", "http 403"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	for i := 0; i < 3; i++ {
		a, err := pool.next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if a.Username != "bob" {
			t.Fatalf("picked %q, want only active account", a.Username)
		}
	}
}

func TestPool_NextFailsWhenEmpty(t *testing.T) {
	pool := openTestPool(t)
	if _, err := pool.next(); err == nil {
		t.Error("expected error from empty pool")
	}
}

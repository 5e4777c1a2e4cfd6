package usecase

import (
	"context"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
)

func newTestRegistry(t *testing.T) *SessionRegistry {
	t.Helper()
	factory := func(session models.Session) (*Orchestrator, error) {
		return newOrchHarnessForSession(t, session).orch, nil
	}
	return NewSessionRegistry(factory, testLogger(t))
}

func TestRegistryStartRegistersSession(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	session, err := reg.Start(ctx, []string{"EURUSD", "GBPUSD"})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	defer reg.StopAll(time.Second)

	if session.State != models.StateRunning {
		t.Fatalf("state = %s, want RUNNING", session.State)
	}
	if len(session.Symbols) != 2 {
		t.Fatalf("symbols = %v, want both", session.Symbols)
	}
	if _, ok := reg.Get(session.ID); !ok {
		t.Fatal("session not registered")
	}
}

func TestRegistryRequiresSymbols(t *testing.T) {
	reg := newTestRegistry(t)
	if _, err := reg.Start(context.Background(), nil); err == nil {
		t.Fatal("expected an error for an empty symbol set")
	}
}

func TestRegistryStopKeepsSessionInspectable(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	session, err := reg.Start(ctx, []string{"EURUSD"})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := reg.Stop(ctx, session.ID); err != nil {
		t.Fatalf("stop session: %v", err)
	}

	orch, ok := reg.Get(session.ID)
	if !ok {
		t.Fatal("stopped session dropped from the registry")
	}
	if got := orch.Session().State; got != models.StateStopped {
		t.Fatalf("state = %s, want STOPPED", got)
	}
	if err := reg.Stop(ctx, "no-such-session"); err == nil {
		t.Fatal("expected an error for an unknown session")
	}
}

func TestRegistryListsNewestFirst(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.Start(ctx, []string{"EURUSD"})
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := reg.Start(ctx, []string{"GBPUSD"})
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	defer reg.StopAll(time.Second)

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("sessions = %d, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("order = [%s %s], want newest first", list[0].ID, list[1].ID)
	}
}

func TestRegistryStopAll(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	for _, sym := range []string{"EURUSD", "GBPUSD", "USDJPY"} {
		if _, err := reg.Start(ctx, []string{sym}); err != nil {
			t.Fatalf("start %s: %v", sym, err)
		}
	}
	reg.StopAll(2 * time.Second)

	for _, s := range reg.List() {
		if s.State != models.StateStopped {
			t.Fatalf("session %s state = %s, want STOPPED", s.ID, s.State)
		}
	}
}

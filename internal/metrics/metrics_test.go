package metrics

import (
	"context"
	"io"
	"math/big"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Klingon-tech/monterrey/internal/ledger"
)

func TestRecorder(t *testing.T) {
	m := New()
	m.ObserveTick(10*time.Millisecond, true)
	m.ObserveTick(time.Millisecond, false)
	m.ObserveTick(time.Millisecond, false)
	m.TickFailed()
	m.SetHead(120)
	m.SetCursor(118)
	m.Credited("native", new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18)))

	if got := testutil.ToFloat64(m.TicksTotal.WithLabelValues("reconciled")); got != 1 {
		t.Errorf("reconciled ticks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TicksTotal.WithLabelValues("idle")); got != 2 {
		t.Errorf("idle ticks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TickErrors); got != 1 {
		t.Errorf("tick errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Head); got != 120 {
		t.Errorf("head = %v, want 120", got)
	}
	if got := testutil.ToFloat64(m.Cursor); got != 118 {
		t.Errorf("cursor = %v, want 118", got)
	}
	if got := testutil.ToFloat64(m.DepositUnits.WithLabelValues("native")); got != 3 {
		t.Errorf("deposit units = %v, want 3", got)
	}
}

func TestObserveLedger(t *testing.T) {
	m := New()
	m.ObserveLedger(ledger.Event{Kind: ledger.EventCredit, Account: "a", Amount: big.NewInt(1)})
	m.ObserveLedger(ledger.Event{Kind: ledger.EventDebit, Account: "a", Amount: big.NewInt(1)})
	m.ObserveLedger(ledger.Event{Kind: ledger.EventCredit, Account: "b", Amount: big.NewInt(1)})
	if got := testutil.ToFloat64(m.LedgerEvents.WithLabelValues("credit")); got != 2 {
		t.Errorf("credit events = %v, want 2", got)
	}
}

func TestIndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New(), New()
	a.TickFailed()
	if testutil.ToFloat64(b.TickErrors) != 0 {
		t.Fatal("instances share collectors")
	}
}

func TestServer(t *testing.T) {
	m := New()
	m.SetCursor(7)
	srv, err := Listen("127.0.0.1:0", m)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer srv.Close(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "monterrey_watcher_cursor_block 7") {
		t.Fatalf("cursor metric missing from output")
	}
}

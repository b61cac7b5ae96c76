package metric

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.registry == nil {
		t.Error("registry field is nil")
	}
	if r.CommandsTotal == nil || r.CommandDuration == nil || r.SessionsOpen == nil {
		t.Error("metrics not initialized")
	}
}

func TestCommandMetrics(t *testing.T) {
	r := NewRegistry()

	r.ObserveCommand("encrypt", "success", 10*time.Millisecond)
	r.ObserveCommand("encrypt", "success", 20*time.Millisecond)
	r.ObserveCommand("encrypt", "0x00008001", time.Millisecond)

	if got := testutil.ToFloat64(r.CommandsTotal.WithLabelValues("encrypt", "success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.CommandsTotal.WithLabelValues("encrypt", "0x00008001")); got != 1 {
		t.Errorf("failure count = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(r.CommandDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestSessionAndRejectionMetrics(t *testing.T) {
	r := NewRegistry()

	r.SessionOpened()
	r.SessionOpened()
	r.SessionClosed()
	r.Rejected("SE-VALD-4003")
	r.Rejected("")
	r.Aborted()
	r.AddPayload(32)

	if got := testutil.ToFloat64(r.SessionsOpen); got != 1 {
		t.Errorf("sessions open = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.Rejections.WithLabelValues("SE-VALD-4003")); got != 1 {
		t.Errorf("rejections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.Rejections.WithLabelValues("unknown")); got != 1 {
		t.Errorf("unknown rejections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.Aborts); got != 1 {
		t.Errorf("aborts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.PayloadBytes); got != 32 {
		t.Errorf("payload bytes = %v, want 32", got)
	}
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	r.ObserveCommand("encrypt", "success", time.Millisecond)
	r.SessionOpened()
	r.SessionClosed()
	r.Rejected("x")
	r.Aborted()
	r.AddPayload(1)
	if r.Gatherer() == nil {
		t.Error("Gatherer() returned nil")
	}
}

func TestWriteTextfile(t *testing.T) {
	r := NewRegistry()
	r.ObserveCommand("encrypt", "success", time.Millisecond)

	path := filepath.Join(t.TempDir(), "trustm.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `trustm_element_commands_total{op="encrypt",result="success"} 1`) {
		t.Errorf("textfile missing command counter:\n%s", data)
	}
}

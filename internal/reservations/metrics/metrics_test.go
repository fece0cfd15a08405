package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister(t *testing.T) {
	reg := NewRegistry()
	m := New()
	m.Register(reg)

	m.ObserveBooking(ResultSuccess, 20*time.Millisecond)
	m.LockAttempt(ResultHeld)
	m.ProposalTransition("approved")
	m.Sweep(3)
	m.Notification("change_expired", errors.New("boom"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) != 7 {
		t.Fatalf("expected 7 metric families, got %d", len(mfs))
	}
	if got := testutil.ToFloat64(m.SweepExpired); got != 3 {
		t.Errorf("sweep expired = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Notifications.WithLabelValues("change_expired", ResultError)); got != 1 {
		t.Errorf("notification errors = %v, want 1", got)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	m := New()
	m.Register(reg)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	m.Register(reg)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBooking(ResultSuccess, time.Second)
	m.LockAttempt(ResultAcquired)
	m.ProposalTransition("rejected")
	m.Sweep(1)
	m.Notification("change_proposed", nil)
}

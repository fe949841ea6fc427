package circuitbreaker

import (
	"testing"
	"time"
)

func TestTripsAfterThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Minute})
	cb.RecordFailure()
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed after one failure, got %s", cb.GetState())
	}
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.GetState())
	}
	if cb.AllowRequest() {
		t.Fatal("open breaker must reject requests before the timeout")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, OpenTimeout: time.Minute})
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.GetState())
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: 30 * time.Second})
	cb.SetClock(func() time.Time { return now })

	var transitions []string
	cb.SetStateChangeCallback(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	cb.RecordFailure()
	now = now.Add(31 * time.Second)
	if !cb.AllowRequest() {
		t.Fatal("expected half-open probe after timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.GetState())
	}
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.GetState())
	}

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("unexpected transitions %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transition %d: got %s want %s", i, transitions[i], want[i])
		}
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := New(Config{FailureThreshold: 1, OpenTimeout: time.Second})
	cb.SetClock(func() time.Time { return now })
	cb.RecordFailure()
	now = now.Add(2 * time.Second)
	cb.AllowRequest()
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.GetState())
	}
}

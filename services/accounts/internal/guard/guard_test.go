package guard_test

import (
	"testing"
	"time"

	"github.com/diagnosis/staybook/services/accounts/internal/guard"
)

var (
	policy = guard.Policy{MaxAttempts: 5, Window: 30 * time.Minute}
	start  = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func TestFourFailuresStayActive(t *testing.T) {
	s := guard.State{Active: true}
	for i := 0; i < 4; i++ {
		var locked bool
		s, locked = policy.Fail(s, start.Add(time.Duration(i)*time.Minute))
		if locked {
			t.Fatalf("locked after %d failures", i+1)
		}
	}
	if !s.Active || s.Attempts != 4 {
		t.Fatalf("state = %+v, want active with 4 attempts", s)
	}
}

func TestFifthFailureLocksOnce(t *testing.T) {
	s := guard.State{Active: true}
	var locks int
	for i := 0; i < 7; i++ {
		var locked bool
		s, locked = policy.Fail(s, start.Add(time.Duration(i)*time.Minute))
		if locked {
			locks++
			if i != 4 {
				t.Errorf("locked on failure %d, want 5", i+1)
			}
		}
	}
	if locks != 1 {
		t.Errorf("locks = %d, want 1", locks)
	}
	if s.Active {
		t.Error("account still active")
	}
}

func TestStaleFailureResetsCount(t *testing.T) {
	last := start
	s := guard.State{Attempts: 4, LastFailure: &last, Active: true}

	s, locked := policy.Fail(s, start.Add(31*time.Minute))
	if locked {
		t.Fatal("stale failures should not count toward a lockout")
	}
	if s.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", s.Attempts)
	}
	if !s.LastFailure.Equal(start.Add(31 * time.Minute)) {
		t.Errorf("last failure = %v", s.LastFailure)
	}
}

func TestFailureInsideWindowCounts(t *testing.T) {
	last := start
	s := guard.State{Attempts: 4, LastFailure: &last, Active: true}

	s, locked := policy.Fail(s, start.Add(30*time.Minute))
	if !locked || s.Active {
		t.Fatalf("state = %+v locked=%v, want locked", s, locked)
	}
}

func TestSucceedClearsHistory(t *testing.T) {
	last := start
	s := policy.Succeed(guard.State{Attempts: 3, LastFailure: &last, Active: true})
	if !s.Clean() || !s.Active {
		t.Errorf("state = %+v", s)
	}
}

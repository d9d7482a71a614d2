package scheduler_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"miniq/internal/logging"
	"miniq/internal/scheduler"
	"miniq/internal/testsupport"
)

func TestSelectJobTypeIgnoresEmptyCounts(t *testing.T) {
	s := scheduler.New()
	if _, ok := s.SelectJobType(map[string]int{"a": 0, "b": -1}); ok {
		t.Fatal("expected no selection when nothing is waiting")
	}
	if _, ok := s.SelectJobType(nil); ok {
		t.Fatal("expected no selection for nil map")
	}
	for i := 0; i < 50; i++ {
		got, ok := s.SelectJobType(map[string]int{"a": 0, "b": 3})
		if !ok || got != "b" {
			t.Fatalf("SelectJobType = %q, %v; want b", got, ok)
		}
	}
}

func TestRandomPolicyCoversAllTypes(t *testing.T) {
	s := scheduler.New()
	if s.Policy().Name() != "random" {
		t.Fatalf("default policy = %q", s.Policy().Name())
	}
	waiting := map[string]int{"a": 1, "b": 1, "c": 1}
	seen := make(map[string]bool)
	for i := 0; i < 500 && len(seen) < len(waiting); i++ {
		got, _ := s.SelectJobType(waiting)
		if _, ok := waiting[got]; !ok {
			t.Fatalf("selected unknown type %q", got)
		}
		seen[got] = true
	}
	if len(seen) != len(waiting) {
		t.Fatalf("random policy only produced %v", seen)
	}
}

func TestFirstPolicy(t *testing.T) {
	s := scheduler.New(scheduler.WithPolicy(scheduler.First{}))
	got, ok := s.SelectJobType(map[string]int{"zeta": 5, "alpha": 1, "mid": 2})
	if !ok || got != "alpha" {
		t.Fatalf("First selected %q", got)
	}
}

func TestFairPolicyPrefersLeastRunning(t *testing.T) {
	s := scheduler.New(scheduler.WithPolicy(scheduler.Fair{}))
	s.JobsStarted("a", 3)
	s.JobsStarted("b", 1)
	got, _ := s.SelectJobType(map[string]int{"a": 10, "b": 10, "c": 10})
	if got != "c" {
		t.Fatalf("Fair selected %q, want c", got)
	}
	s.JobsStarted("c", 1)
	got, _ = s.SelectJobType(map[string]int{"a": 10, "b": 10, "c": 10})
	if got != "b" {
		t.Fatalf("Fair tie-break selected %q, want b", got)
	}
}

func TestParsePolicy(t *testing.T) {
	for _, name := range []string{"", "random", "First", " fair "} {
		if _, err := scheduler.ParsePolicy(name); err != nil {
			t.Fatalf("ParsePolicy(%q): %v", name, err)
		}
	}
	if _, err := scheduler.ParsePolicy("lottery"); err == nil {
		t.Fatal("expected unknown policy to fail")
	}
}

func TestRunningLedger(t *testing.T) {
	s := scheduler.New()
	s.JobsStarted("a", 2)
	s.JobsStarted("b", 1)
	s.JobsStarted("a", 0)
	if got := s.RunningCount("a"); got != 2 {
		t.Fatalf("RunningCount(a) = %d", got)
	}
	if got := s.TotalRunning(); got != 3 {
		t.Fatalf("TotalRunning = %d", got)
	}
	s.JobsStopped("a", 2)
	counts := s.RunningCounts()
	if _, ok := counts["a"]; ok {
		t.Fatalf("zero counts should be omitted: %v", counts)
	}
	if counts["b"] != 1 {
		t.Fatalf("RunningCounts = %v", counts)
	}
}

func TestJobsStoppedClampsUndercount(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	s := scheduler.New(scheduler.WithLogger(logger))
	s.JobsStarted("a", 1)
	s.JobsStopped("a", 4)
	if got := s.RunningCount("a"); got != 0 {
		t.Fatalf("RunningCount after undercount = %d, want 0", got)
	}
	if !strings.Contains(buf.String(), "scheduler_undercount") {
		t.Fatalf("expected undercount warning, got %q", buf.String())
	}
}

func TestLedgerGarbageCollection(t *testing.T) {
	clock := testsupport.NewClock(time.Time{})
	s := scheduler.New(scheduler.WithClock(clock.Now), scheduler.WithGCInterval(time.Minute))
	s.JobsStarted("a", 1)
	s.JobsStopped("a", 1)
	s.JobsStarted("b", 1)
	if got := s.LedgerSize(); got != 2 {
		t.Fatalf("LedgerSize before GC = %d, want 2", got)
	}
	clock.Advance(2 * time.Minute)
	s.JobsStarted("b", 1)
	if got := s.LedgerSize(); got != 1 {
		t.Fatalf("LedgerSize after GC = %d, want 1", got)
	}
	if got := s.RunningCount("b"); got != 2 {
		t.Fatalf("RunningCount(b) = %d, want 2", got)
	}
}

func TestConcurrentLedgerUpdates(t *testing.T) {
	s := scheduler.New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				s.JobsStarted("a", 1)
				s.JobsStopped("a", 1)
			}
		}()
	}
	wg.Wait()
	if got := s.TotalRunning(); got != 0 {
		t.Fatalf("TotalRunning = %d, want 0", got)
	}
}

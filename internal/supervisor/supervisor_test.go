//go:build !windows

package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"overture/internal/directive"
	"overture/internal/graph"
	"overture/internal/sched"
)

func newTestSupervisor() *Supervisor {
	return New(Options{
		DefaultTimeout: 30 * time.Second,
		Grace:          100 * time.Millisecond,
		BufferLines:    100,
	})
}

func waitTerminal(t *testing.T, s *Supervisor, id string) Snapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		snap, err := s.Status(id, -1)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if snap.State.Terminal() {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("environment %s never reached a terminal state: %+v", id, snap)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestLaunchAndStatus(t *testing.T) {
	s := newTestSupervisor()
	id, err := s.Launch(LaunchSpec{Directives: []string{"A=echo hello", "B+A=echo world"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if !strings.HasPrefix(id, "env_") || len(id) != len("env_")+8 {
		t.Fatalf("unexpected environment id %q", id)
	}

	snap := waitTerminal(t, s, id)
	if snap.State != EnvCompleted {
		t.Fatalf("expected completed environment, got %+v", snap)
	}
	if len(snap.Nodes) != 2 {
		t.Fatalf("expected two nodes, got %d", len(snap.Nodes))
	}
	for _, node := range snap.Nodes {
		if node.State != sched.StateSucceeded {
			t.Fatalf("expected node succeeded, got %+v", node)
		}
	}
}

func TestLaunchRejectsInvalidBatchBeforeSpawn(t *testing.T) {
	s := newTestSupervisor()

	if _, err := s.Launch(LaunchSpec{Directives: []string{"broken"}}); err == nil {
		t.Fatalf("expected parse error")
	} else {
		var malformed *directive.MalformedError
		if !errors.As(err, &malformed) {
			t.Fatalf("expected MalformedError, got %T", err)
		}
	}

	if _, err := s.Launch(LaunchSpec{Directives: []string{"A+B=one", "B+A=two"}}); err == nil {
		t.Fatalf("expected cycle error")
	} else {
		var cycle *graph.CycleError
		if !errors.As(err, &cycle) {
			t.Fatalf("expected CycleError, got %T", err)
		}
	}

	if ids := s.List(); len(ids) != 0 {
		t.Fatalf("rejected batches must not register environments, got %v", ids)
	}
}

func TestStatusUnknownEnvironment(t *testing.T) {
	s := newTestSupervisor()
	_, err := s.Status("env_missing", 0)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	s := newTestSupervisor()
	id, err := s.Launch(LaunchSpec{Directives: []string{"LONG=sleep 30"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	s.Terminate(id)
	s.Terminate(id)              // already removed
	s.Terminate("env_not_there") // never existed

	if ids := s.List(); len(ids) != 0 {
		t.Fatalf("expected empty registry, got %v", ids)
	}
}

func TestTimeoutMarksEnvironmentTerminated(t *testing.T) {
	s := newTestSupervisor()
	id, err := s.Launch(LaunchSpec{
		Directives: []string{"LONG=sleep 30"},
		Timeout:    300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	snap := waitTerminal(t, s, id)
	if snap.State != EnvTerminated || snap.Reason != sched.ReasonTimeoutExceeded {
		t.Fatalf("expected timeout termination, got %+v", snap)
	}
	// Terminal environments stay queryable until reaped or terminated.
	if _, err := s.Status(id, 0); err != nil {
		t.Fatalf("terminal environment disappeared: %v", err)
	}
}

func TestEndActionOutcomeRecorded(t *testing.T) {
	s := newTestSupervisor()
	id, err := s.Launch(LaunchSpec{
		Directives: []string{"LONG=sleep 30", "DONE+1|end=true"},
		Template:   "testing_pipeline",
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	snap := waitTerminal(t, s, id)
	if snap.State != EnvCompleted || snap.EndedBy != "DONE" {
		t.Fatalf("expected completion by DONE, got %+v", snap)
	}
	if snap.Template != "testing_pipeline" {
		t.Fatalf("template lost: %+v", snap)
	}
}

func TestSummariesAndList(t *testing.T) {
	s := newTestSupervisor()
	first, err := s.Launch(LaunchSpec{Directives: []string{"A=sleep 30"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	second, err := s.Launch(LaunchSpec{Directives: []string{"B=sleep 30"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer s.TerminateAll()

	ids := s.List()
	if len(ids) != 2 {
		t.Fatalf("expected two environments, got %v", ids)
	}
	if ids[0] > ids[1] {
		t.Fatalf("expected sorted ids, got %v", ids)
	}

	summaries := s.Summaries()
	if len(summaries) != 2 {
		t.Fatalf("expected two summaries, got %v", summaries)
	}
	seen := map[string]bool{first: false, second: false}
	for _, summary := range summaries {
		if summary.NodeCount != 1 {
			t.Fatalf("unexpected node count: %+v", summary)
		}
		seen[summary.ID] = true
	}
	if !seen[first] || !seen[second] {
		t.Fatalf("missing summaries: %v", summaries)
	}
}

func TestReapDropsOldTerminalEnvironments(t *testing.T) {
	s := newTestSupervisor()
	id, err := s.Launch(LaunchSpec{Directives: []string{"A=true"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	waitTerminal(t, s, id)

	// Not old enough yet.
	s.reap(time.Hour)
	if _, err := s.Status(id, 0); err != nil {
		t.Fatalf("environment reaped too early: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	s.reap(10 * time.Millisecond)
	if _, err := s.Status(id, 0); err == nil {
		t.Fatalf("expected environment reaped")
	}
}

func TestSubscribeStreamsEnvironmentOutput(t *testing.T) {
	s := newTestSupervisor()
	id, err := s.Launch(LaunchSpec{Directives: []string{"SLOW+1=echo streamed"}})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	ch, cancel, err := s.Subscribe(id, 16)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	select {
	case event := <-ch:
		if event.Node != "SLOW" || event.Line.Text != "streamed" {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("no output event received")
	}

	waitTerminal(t, s, id)
}

func TestStartReaperStops(t *testing.T) {
	s := newTestSupervisor()
	ctx, cancel := context.WithCancel(context.Background())
	s.StartReaper(ctx, 10*time.Millisecond, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()
}

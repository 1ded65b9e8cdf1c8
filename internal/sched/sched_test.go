//go:build !windows

package sched

import (
	"context"
	"testing"
	"time"

	"overture/internal/directive"
	"overture/internal/graph"
)

func buildGraph(t *testing.T, raw ...string) *graph.Graph {
	t.Helper()
	nodes, err := directive.ParseAll(raw)
	if err != nil {
		t.Fatalf("ParseAll failed: %v", err)
	}
	g, err := graph.Build(nodes)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g
}

func snapshotByName(t *testing.T, s *Scheduler, name string) NodeSnapshot {
	t.Helper()
	snap, ok := s.NodeSnapshot(name, -1)
	if !ok {
		t.Fatalf("unknown node %q", name)
	}
	return snap
}

func TestRunSequencesDependencies(t *testing.T) {
	g := buildGraph(t, "A=echo first", "B+A=echo second")
	s := New(g, Options{Grace: 100 * time.Millisecond})

	outcome := s.Run(context.Background())
	if outcome.State != GroupCompleted {
		t.Fatalf("expected completed group, got %+v", outcome)
	}

	a := snapshotByName(t, s, "A")
	b := snapshotByName(t, s, "B")
	if a.State != StateSucceeded || b.State != StateSucceeded {
		t.Fatalf("expected both succeeded, got A=%s B=%s", a.State, b.State)
	}
	if a.EndedAt == nil || b.StartedAt == nil {
		t.Fatalf("missing timestamps: A=%+v B=%+v", a, b)
	}
	if b.StartedAt.Before(*a.EndedAt) {
		t.Fatalf("B started %v before A ended %v", b.StartedAt, a.EndedAt)
	}
}

func TestRunHonorsDelay(t *testing.T) {
	g := buildGraph(t, "SLOW+1=true")
	s := New(g, Options{Grace: 100 * time.Millisecond})

	begin := time.Now()
	s.Run(context.Background())

	snap := snapshotByName(t, s, "SLOW")
	if snap.State != StateSucceeded {
		t.Fatalf("expected succeeded, got %s", snap.State)
	}
	if snap.StartedAt == nil || snap.StartedAt.Sub(begin) < 900*time.Millisecond {
		t.Fatalf("expected ~1s delayed start, started after %v", snap.StartedAt.Sub(begin))
	}
}

func TestDependencyFailureCascades(t *testing.T) {
	g := buildGraph(t, "A=exit 1", "B+A=echo never", "C+B=echo never")
	s := New(g, Options{Grace: 100 * time.Millisecond})

	outcome := s.Run(context.Background())
	// Node failures without an end action do not fail the group.
	if outcome.State != GroupCompleted {
		t.Fatalf("expected completed group, got %+v", outcome)
	}

	a := snapshotByName(t, s, "A")
	if a.State != StateFailed || a.ExitCode == nil || *a.ExitCode != 1 {
		t.Fatalf("unexpected A snapshot: %+v", a)
	}
	for _, name := range []string{"B", "C"} {
		snap := snapshotByName(t, s, name)
		if snap.State != StateFailed || snap.Reason != ReasonDependencyFailed {
			t.Fatalf("expected %s failed with dependency reason, got %+v", name, snap)
		}
		if snap.StartedAt != nil {
			t.Fatalf("expected %s never started, got %+v", name, snap)
		}
	}
}

func TestEndActionTearsDownGroup(t *testing.T) {
	g := buildGraph(t, "LONG=sleep 30", "DONE+1|end=true")
	s := New(g, Options{Grace: 100 * time.Millisecond})

	outcome := s.Run(context.Background())
	if outcome.State != GroupCompleted || outcome.EndedBy != "DONE" {
		t.Fatalf("expected group completed by DONE, got %+v", outcome)
	}

	long := snapshotByName(t, s, "LONG")
	if long.State != StateKilled || long.Reason != ReasonGroupEnded {
		t.Fatalf("expected LONG killed by group end, got %+v", long)
	}
}

func TestEndActionFailureFailsGroup(t *testing.T) {
	g := buildGraph(t, "LONG=sleep 30", "GATE+1|end=exit 2")
	s := New(g, Options{Grace: 100 * time.Millisecond})

	outcome := s.Run(context.Background())
	if outcome.State != GroupFailed || outcome.EndedBy != "GATE" {
		t.Fatalf("expected group failed by GATE, got %+v", outcome)
	}
}

func TestTimeoutTerminatesGroup(t *testing.T) {
	g := buildGraph(t, "LONG=sleep 30", "LATER+20=echo never")
	s := New(g, Options{Timeout: 300 * time.Millisecond, Grace: 100 * time.Millisecond})

	outcome := s.Run(context.Background())
	if outcome.State != GroupTerminated || outcome.Reason != ReasonTimeoutExceeded {
		t.Fatalf("expected timeout termination, got %+v", outcome)
	}

	long := snapshotByName(t, s, "LONG")
	if long.State != StateKilled || long.Reason != ReasonTimeoutExceeded {
		t.Fatalf("expected LONG killed by timeout, got %+v", long)
	}
	later := snapshotByName(t, s, "LATER")
	if later.State != StateKilled || later.StartedAt != nil {
		t.Fatalf("expected LATER killed without starting, got %+v", later)
	}
}

func TestTerminateStopsWaitingNodes(t *testing.T) {
	g := buildGraph(t, "LONG=sleep 30", "AFTER+LONG=echo never")
	s := New(g, Options{Grace: 100 * time.Millisecond})

	done := make(chan Outcome, 1)
	go func() {
		done <- s.Run(context.Background())
	}()

	time.Sleep(200 * time.Millisecond)
	s.Terminate()
	s.Terminate() // second call must be a no-op

	select {
	case outcome := <-done:
		if outcome.State != GroupTerminated || outcome.Reason != ReasonTerminated {
			t.Fatalf("expected terminated group, got %+v", outcome)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("group did not stop")
	}

	after := snapshotByName(t, s, "AFTER")
	if after.State != StateKilled || after.StartedAt != nil {
		t.Fatalf("expected AFTER killed without starting, got %+v", after)
	}
}

func TestOutputCaptureAndSuppression(t *testing.T) {
	g := buildGraph(t,
		"LOUD#cyan=echo visible",
		"QUIET|silent=echo hidden",
		"HALF|noout=echo dropped; echo kept >&2",
	)
	s := New(g, Options{Grace: 100 * time.Millisecond})
	s.Run(context.Background())

	loud := snapshotByName(t, s, "LOUD")
	if loud.OutputTotal != 1 || len(loud.Output) != 1 {
		t.Fatalf("expected one captured line, got %+v", loud)
	}
	if loud.Output[0].Text != "visible" || loud.Output[0].Stream != StreamStdout {
		t.Fatalf("unexpected line %+v", loud.Output[0])
	}
	if loud.Color != directive.ColorCyan {
		t.Fatalf("expected cyan tag, got %q", loud.Color)
	}

	quiet := snapshotByName(t, s, "QUIET")
	if quiet.OutputTotal != 0 {
		t.Fatalf("silent node captured output: %+v", quiet)
	}

	half := snapshotByName(t, s, "HALF")
	if half.OutputTotal != 1 || half.Output[0].Stream != StreamStderr {
		t.Fatalf("expected only stderr captured, got %+v", half)
	}
}

func TestLaunchErrorMarksNodeFailed(t *testing.T) {
	g := buildGraph(t, "BAD=true")
	s := New(g, Options{Dir: "/nonexistent-overture-dir", Grace: 100 * time.Millisecond})

	outcome := s.Run(context.Background())
	if outcome.State != GroupCompleted {
		t.Fatalf("expected completed group, got %+v", outcome)
	}

	bad := snapshotByName(t, s, "BAD")
	if bad.State != StateFailed || bad.Reason != ReasonLaunchError || bad.Detail == "" {
		t.Fatalf("expected launch error, got %+v", bad)
	}
}

func TestSubscribeStreamsLines(t *testing.T) {
	g := buildGraph(t, "TALKER=echo hello")
	s := New(g, Options{Grace: 100 * time.Millisecond})

	ch, cancel := s.Subscribe(16)
	defer cancel()

	s.Run(context.Background())

	var lines []OutputEvent
	for event := range ch {
		lines = append(lines, event)
	}
	if len(lines) != 1 || lines[0].Node != "TALKER" || lines[0].Line.Text != "hello" {
		t.Fatalf("unexpected events %+v", lines)
	}
}

// Package sched runs one validated directive graph to completion. A
// coordinating goroutine owns the group lifecycle; every node gets its
// own goroutine that waits for its start condition, launches the
// command and watches the exit, so a hung process never blocks the
// rest of the group.
package sched

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"overture/internal/directive"
	"overture/internal/graph"
	"overture/internal/logging"
	"overture/internal/metrics"
	"overture/internal/proc"
)

// GroupState is the terminal state of the whole group.
type GroupState string

const (
	// GroupCompleted: every node reached a terminal state naturally, or
	// an end-flagged node succeeded and tore the rest down.
	GroupCompleted GroupState = "completed"
	// GroupFailed: an end-flagged node failed and tore the rest down.
	GroupFailed GroupState = "failed"
	// GroupTerminated: the timeout fired or termination was requested.
	GroupTerminated GroupState = "terminated"
)

// Outcome describes how the group ended.
type Outcome struct {
	State   GroupState
	Reason  Reason
	EndedBy string
}

// Options configures one scheduler run.
type Options struct {
	Timeout     time.Duration
	Grace       time.Duration
	BufferLines int
	Dir         string
	Env         []string
	Logger      *logging.Logger
	Metrics     *metrics.Registry
}

const (
	defaultGrace       = 5 * time.Second
	defaultBufferLines = 1000
)

type groupCause struct {
	reason  Reason
	endedBy string
	failed  bool
}

// Scheduler coordinates one group of nodes. Construct with New, run
// once with Run; Terminate and the snapshot methods are safe to call
// from other goroutines at any point.
type Scheduler struct {
	graph *graph.Graph
	opts  Options
	nodes map[string]*node
	order []string
	hub   *OutputHub

	cancel context.CancelFunc

	causeOnce sync.Once
	causeMu   sync.Mutex
	cause     *groupCause
}

func New(g *graph.Graph, opts Options) *Scheduler {
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}
	if opts.BufferLines <= 0 {
		opts.BufferLines = defaultBufferLines
	}

	s := &Scheduler{
		graph: g,
		opts:  opts,
		nodes: make(map[string]*node, len(g.Nodes)),
		order: make([]string, 0, len(g.Nodes)),
		hub:   NewOutputHub(),
	}
	for _, d := range g.Nodes {
		s.nodes[d.Name] = newNode(d, opts.BufferLines)
		s.order = append(s.order, d.Name)
	}
	return s
}

// Run launches the group and blocks until every node is terminal. It
// is called exactly once.
func (s *Scheduler) Run(ctx context.Context) Outcome {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Terminate may arrive before or during Run; publish the cancel
	// func under the cause lock so exactly one side fires it.
	s.causeMu.Lock()
	s.cancel = cancel
	pending := s.cause != nil
	s.causeMu.Unlock()
	if pending {
		cancel()
	}

	var wg sync.WaitGroup
	for _, name := range s.order {
		wg.Add(1)
		go func(n *node) {
			defer wg.Done()
			s.runNode(runCtx, n)
		}(s.nodes[name])
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	if s.opts.Timeout > 0 {
		timer := time.NewTimer(s.opts.Timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.endGroup(groupCause{reason: ReasonTimeoutExceeded})
			<-allDone
		case <-allDone:
		}
	} else {
		<-allDone
	}

	s.hub.Close()
	return s.outcome()
}

// Terminate requests group teardown. Safe to call concurrently with
// the group's own termination; only the first cause wins.
func (s *Scheduler) Terminate() {
	s.endGroup(groupCause{reason: ReasonTerminated})
}

// Subscribe streams captured output lines from all nodes. The channel
// closes when the group ends or cancel is called.
func (s *Scheduler) Subscribe(buffer int) (<-chan OutputEvent, func()) {
	return s.hub.Subscribe(buffer)
}

// Snapshots copies the visible state of every node in directive order.
// tailLines bounds the output lines copied per node; 0 omits output.
func (s *Scheduler) Snapshots(tailLines int) []NodeSnapshot {
	snaps := make([]NodeSnapshot, 0, len(s.order))
	for _, name := range s.order {
		snaps = append(snaps, s.nodes[name].snapshot(tailLines))
	}
	return snaps
}

// NodeSnapshot copies one node's visible state.
func (s *Scheduler) NodeSnapshot(name string, tailLines int) (NodeSnapshot, bool) {
	n, ok := s.nodes[name]
	if !ok {
		return NodeSnapshot{}, false
	}
	return n.snapshot(tailLines), true
}

func (s *Scheduler) endGroup(cause groupCause) {
	s.causeOnce.Do(func() {
		s.causeMu.Lock()
		s.cause = &cause
		cancel := s.cancel
		s.causeMu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}

func (s *Scheduler) groupReason() Reason {
	s.causeMu.Lock()
	defer s.causeMu.Unlock()
	if s.cause == nil {
		// Run's parent context was canceled from outside.
		return ReasonTerminated
	}
	return s.cause.reason
}

func (s *Scheduler) outcome() Outcome {
	s.causeMu.Lock()
	defer s.causeMu.Unlock()
	if s.cause == nil {
		return Outcome{State: GroupCompleted}
	}
	switch s.cause.reason {
	case ReasonGroupEnded:
		state := GroupCompleted
		if s.cause.failed {
			state = GroupFailed
		}
		return Outcome{State: state, Reason: s.cause.reason, EndedBy: s.cause.endedBy}
	default:
		return Outcome{State: GroupTerminated, Reason: s.cause.reason}
	}
}

func (s *Scheduler) runNode(ctx context.Context, n *node) {
	d := n.directive
	log := s.opts.Logger.With(map[string]string{"process": d.Name})

	if !s.awaitStart(ctx, n) {
		return
	}
	if ctx.Err() != nil {
		n.finish(StateKilled, s.groupReason(), "", nil)
		return
	}

	stdout, stderr, flush := s.sinks(n)
	handle, err := proc.Start(proc.Options{
		Command: d.Command,
		Dir:     s.opts.Dir,
		Env:     s.opts.Env,
		PTY:     d.HasAction(directive.ActionPTY),
		Stdout:  stdout,
		Stderr:  stderr,
	})
	if err != nil {
		s.opts.Metrics.IncProcessLaunchFailures()
		log.Error("process launch failed", map[string]string{"error": err.Error()})
		n.finish(StateFailed, ReasonLaunchError, err.Error(), nil)
		// A launch failure counts as an immediate failed exit, so an
		// end-flagged node still tears the group down.
		if d.HasAction(directive.ActionEndsGroup) {
			s.endGroup(groupCause{reason: ReasonGroupEnded, endedBy: d.Name, failed: true})
		}
		return
	}

	s.opts.Metrics.IncProcessesSpawned()
	n.setRunning(handle.PID())
	log.Info("process started", map[string]string{"pid": strconv.Itoa(handle.PID())})

	select {
	case <-handle.Done():
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), s.opts.Grace+5*time.Second)
		_ = handle.Stop(stopCtx, s.opts.Grace)
		cancel()
	}
	flush()

	result := handle.Result()
	switch {
	case result.Err != nil:
		n.finish(StateFailed, ReasonLaunchError, result.Err.Error(), nil)
	case result.Signaled:
		reason := ReasonNone
		if ctx.Err() != nil {
			reason = s.groupReason()
		}
		n.finish(StateKilled, reason, "", nil)
		log.Info("process killed", nil)
	default:
		code := result.Code
		state := StateSucceeded
		if code != 0 {
			state = StateFailed
		}
		n.finish(state, ReasonNone, "", &code)
		log.Info("process exited", map[string]string{"exit_code": strconv.Itoa(code)})
		if d.HasAction(directive.ActionEndsGroup) {
			s.endGroup(groupCause{reason: ReasonGroupEnded, endedBy: d.Name, failed: state == StateFailed})
		}
	}
}

// awaitStart blocks on the node's start condition. It returns false
// when the node finished without ever launching.
func (s *Scheduler) awaitStart(ctx context.Context, n *node) bool {
	switch n.directive.Start.Kind {
	case directive.StartAfterDelay:
		n.setWaiting()
		timer := time.NewTimer(n.directive.Start.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			n.finish(StateKilled, s.groupReason(), "", nil)
			return false
		}
	case directive.StartAfterProcess:
		n.setWaiting()
		pred := s.nodes[n.directive.Start.After]
		select {
		case <-pred.done:
			if !pred.succeeded {
				n.finish(StateFailed, ReasonDependencyFailed, "", nil)
				return false
			}
		case <-ctx.Done():
			n.finish(StateKilled, s.groupReason(), "", nil)
			return false
		}
	}
	return true
}

// sinks builds the output writers for a node, honoring suppression
// actions. The returned flush emits any trailing partial line.
func (s *Scheduler) sinks(n *node) (stdout, stderr io.Writer, flush func()) {
	var writers []*lineWriter
	if !n.directive.SuppressStdout() {
		w := &lineWriter{sched: s, node: n, stream: StreamStdout}
		writers = append(writers, w)
		stdout = w
	}
	if !n.directive.SuppressStderr() {
		w := &lineWriter{sched: s, node: n, stream: StreamStderr}
		writers = append(writers, w)
		stderr = w
	}
	return stdout, stderr, func() {
		for _, w := range writers {
			w.Flush()
		}
	}
}

func (s *Scheduler) publishLine(n *node, line Line) {
	s.opts.Metrics.AddOutputLines(1)
	s.hub.Broadcast(OutputEvent{Node: n.directive.Name, Color: n.directive.Color, Line: line})
}

package sched

import (
	"io"
	"strings"
	"sync"
	"time"

	"overture/internal/buffer"
	"overture/internal/directive"
)

// State is a node's lifecycle state. Succeeded, Failed and Killed are
// terminal.
type State string

const (
	StatePending   State = "pending"
	StateWaiting   State = "waiting"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateKilled    State = "killed"
)

func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateKilled:
		return true
	}
	return false
}

// Reason qualifies a terminal state that was not a plain exit.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonDependencyFailed Reason = "dependency_failed"
	ReasonLaunchError      Reason = "process_launch_error"
	ReasonTimeoutExceeded  Reason = "timeout_exceeded"
	ReasonGroupEnded       Reason = "group_ended"
	ReasonTerminated       Reason = "terminated"
)

// Stream identifies which side of the process a line came from. PTY
// processes only produce stdout lines; the terminal merges the streams.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Line is one captured output line.
type Line struct {
	Time   time.Time `json:"time"`
	Stream Stream    `json:"stream"`
	Text   string    `json:"text"`
}

// NodeSnapshot is an immutable copy of a node's visible state.
type NodeSnapshot struct {
	Name        string          `json:"name"`
	Color       directive.Color `json:"color,omitempty"`
	Command     string          `json:"command"`
	State       State           `json:"state"`
	Reason      Reason          `json:"reason,omitempty"`
	Detail      string          `json:"detail,omitempty"`
	PID         int             `json:"pid,omitempty"`
	ExitCode    *int            `json:"exit_code,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	Output      []Line          `json:"output,omitempty"`
	OutputTotal uint64          `json:"output_total"`
}

type node struct {
	directive directive.Directive

	mu        sync.Mutex
	state     State
	reason    Reason
	detail    string
	pid       int
	exitCode  *int
	startedAt time.Time
	endedAt   time.Time
	output    *buffer.Ring[Line]

	// succeeded is written before done closes and read only after.
	succeeded bool
	done      chan struct{}
}

func newNode(d directive.Directive, bufferLines int) *node {
	return &node{
		directive: d,
		state:     StatePending,
		output:    buffer.NewRing[Line](bufferLines),
		done:      make(chan struct{}),
	}
}

func (n *node) setWaiting() {
	n.mu.Lock()
	n.state = StateWaiting
	n.mu.Unlock()
}

func (n *node) setRunning(pid int) {
	n.mu.Lock()
	n.state = StateRunning
	n.pid = pid
	n.startedAt = time.Now()
	n.mu.Unlock()
}

// finish moves the node into a terminal state and releases waiters.
// Calling it twice is a programming error.
func (n *node) finish(state State, reason Reason, detail string, exitCode *int) {
	n.mu.Lock()
	n.state = state
	n.reason = reason
	n.detail = detail
	n.exitCode = exitCode
	if !n.startedAt.IsZero() {
		n.endedAt = time.Now()
	}
	n.mu.Unlock()

	n.succeeded = state == StateSucceeded
	close(n.done)
}

func (n *node) appendLine(line Line) {
	n.mu.Lock()
	n.output.Add(line)
	n.mu.Unlock()
}

func (n *node) snapshot(tailLines int) NodeSnapshot {
	n.mu.Lock()
	defer n.mu.Unlock()

	snap := NodeSnapshot{
		Name:        n.directive.Name,
		Color:       n.directive.Color,
		Command:     n.directive.Command,
		State:       n.state,
		Reason:      n.reason,
		Detail:      n.detail,
		PID:         n.pid,
		OutputTotal: n.output.TotalAdded(),
	}
	if n.exitCode != nil {
		code := *n.exitCode
		snap.ExitCode = &code
	}
	if !n.startedAt.IsZero() {
		started := n.startedAt
		snap.StartedAt = &started
	}
	if !n.endedAt.IsZero() {
		ended := n.endedAt
		snap.EndedAt = &ended
	}
	switch {
	case tailLines < 0:
		snap.Output = n.output.List()
	case tailLines > 0:
		snap.Output = n.output.Tail(tailLines)
	}
	return snap
}

// lineWriter splits a process stream into lines and fans each one out
// to the node's ring buffer and the scheduler's output hub.
type lineWriter struct {
	sched  *Scheduler
	node   *node
	stream Stream

	mu      sync.Mutex
	pending []byte
}

var _ io.Writer = (*lineWriter)(nil)

func (w *lineWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, data...)
	for {
		newline := -1
		for i, b := range w.pending {
			if b == '\n' {
				newline = i
				break
			}
		}
		if newline < 0 {
			break
		}
		line := string(w.pending[:newline])
		w.pending = w.pending[newline+1:]
		line = strings.TrimSuffix(line, "\r")
		w.emit(line)
	}
	return len(data), nil
}

// Flush emits any trailing partial line. Called once after the process
// exits.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return
	}
	w.emit(strings.TrimSuffix(string(w.pending), "\r"))
	w.pending = nil
}

func (w *lineWriter) emit(text string) {
	line := Line{Time: time.Now(), Stream: w.stream, Text: text}
	w.node.appendLine(line)
	w.sched.publishLine(w.node, line)
}

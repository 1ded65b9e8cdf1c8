// Package supervisor owns the process-wide registry of environments.
// Each launch compiles a directive batch into a scheduler run; the
// registry maps generated environment ids onto the live runs and is
// the only place that mutates it.
package supervisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"overture/internal/directive"
	"overture/internal/graph"
	"overture/internal/logging"
	"overture/internal/metrics"
	"overture/internal/sched"
)

// EnvState is an environment's lifecycle state.
type EnvState string

const (
	EnvStarting   EnvState = "starting"
	EnvRunning    EnvState = "running"
	EnvCompleted  EnvState = "completed"
	EnvFailed     EnvState = "failed"
	EnvTerminated EnvState = "terminated"
)

func (s EnvState) Terminal() bool {
	switch s {
	case EnvCompleted, EnvFailed, EnvTerminated:
		return true
	}
	return false
}

// NotFoundError reports a query for an unknown environment id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("environment %q not found", e.ID)
}

// NodeStatus pairs a node snapshot with sampled resource usage for
// running nodes.
type NodeStatus struct {
	sched.NodeSnapshot
	Resources *ResourceUsage `json:"resources,omitempty"`
}

// ResourceUsage is a point-in-time sample for one running process.
type ResourceUsage struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// Snapshot is an immutable copy of one environment's visible state.
type Snapshot struct {
	ID         string       `json:"id"`
	Template   string       `json:"template,omitempty"`
	State      EnvState     `json:"state"`
	Reason     sched.Reason `json:"reason,omitempty"`
	EndedBy    string       `json:"ended_by,omitempty"`
	Timeout    float64      `json:"timeout_seconds"`
	LaunchedAt time.Time    `json:"launched_at"`
	EndedAt    *time.Time   `json:"ended_at,omitempty"`
	Nodes      []NodeStatus `json:"nodes"`
	Directives []string     `json:"directives"`
}

// Summary is the list view of an environment.
type Summary struct {
	ID         string    `json:"id"`
	Template   string    `json:"template,omitempty"`
	State      EnvState  `json:"state"`
	LaunchedAt time.Time `json:"launched_at"`
	NodeCount  int       `json:"node_count"`
}

type environment struct {
	id         string
	template   string
	directives []string
	timeout    time.Duration
	launchedAt time.Time
	scheduler  *sched.Scheduler

	mu      sync.Mutex
	state   EnvState
	reason  sched.Reason
	endedBy string
	endedAt time.Time

	done chan struct{}
}

func (e *environment) setRunning() {
	e.mu.Lock()
	if e.state == EnvStarting {
		e.state = EnvRunning
	}
	e.mu.Unlock()
}

func (e *environment) finish(outcome sched.Outcome) {
	e.mu.Lock()
	switch outcome.State {
	case sched.GroupCompleted:
		e.state = EnvCompleted
	case sched.GroupFailed:
		e.state = EnvFailed
	default:
		e.state = EnvTerminated
	}
	e.reason = outcome.Reason
	e.endedBy = outcome.EndedBy
	e.endedAt = time.Now()
	e.mu.Unlock()
	close(e.done)
}

// Options configures a Supervisor.
type Options struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	Grace          time.Duration
	BufferLines    int
	Dir            string
	Env            []string
	Logger         *logging.Logger
	Metrics        *metrics.Registry
}

const (
	defaultLaunchTimeout = 10 * time.Minute
	defaultReapAge       = time.Hour
)

// Supervisor is the registry of environments plus the launch pipeline
// (parse, build, run). All methods are safe for concurrent use.
type Supervisor struct {
	opts Options

	mu   sync.Mutex
	envs map[string]*environment
}

func New(opts Options) *Supervisor {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultLaunchTimeout
	}
	return &Supervisor{
		opts: opts,
		envs: make(map[string]*environment),
	}
}

// LaunchSpec describes one launch request.
type LaunchSpec struct {
	Directives []string
	Timeout    time.Duration
	Template   string
}

// Launch validates the batch and, only if the whole batch is valid,
// spawns the environment. Parse and graph errors surface here; nothing
// has been started when they do.
func (s *Supervisor) Launch(spec LaunchSpec) (string, error) {
	directives, err := directive.ParseAll(spec.Directives)
	if err != nil {
		return "", err
	}
	g, err := graph.Build(directives)
	if err != nil {
		return "", err
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = s.opts.DefaultTimeout
	}
	if s.opts.MaxTimeout > 0 && timeout > s.opts.MaxTimeout {
		timeout = s.opts.MaxTimeout
	}

	env := &environment{
		id:         newEnvID(),
		template:   spec.Template,
		directives: append([]string{}, spec.Directives...),
		timeout:    timeout,
		launchedAt: time.Now(),
		state:      EnvStarting,
		done:       make(chan struct{}),
	}
	env.scheduler = sched.New(g, sched.Options{
		Timeout:     timeout,
		Grace:       s.opts.Grace,
		BufferLines: s.opts.BufferLines,
		Dir:         s.opts.Dir,
		Env:         s.opts.Env,
		Logger:      s.opts.Logger.With(map[string]string{"environment": env.id}),
		Metrics:     s.opts.Metrics,
	})

	s.mu.Lock()
	s.envs[env.id] = env
	s.mu.Unlock()

	s.opts.Metrics.IncEnvironmentsLaunched()
	s.opts.Metrics.RecordTemplateLaunch(spec.Template)
	s.opts.Logger.Info("environment launched", map[string]string{
		"environment": env.id,
		"template":    spec.Template,
		"nodes":       fmt.Sprintf("%d", len(directives)),
	})

	go s.run(env)
	return env.id, nil
}

func (s *Supervisor) run(env *environment) {
	env.setRunning()
	outcome := env.scheduler.Run(context.Background())
	env.finish(outcome)

	switch outcome.State {
	case sched.GroupCompleted:
		s.opts.Metrics.IncEnvironmentsCompleted()
	case sched.GroupFailed:
		s.opts.Metrics.IncEnvironmentsFailed()
	default:
		s.opts.Metrics.IncEnvironmentsTerminated()
	}
	s.opts.Logger.Info("environment ended", map[string]string{
		"environment": env.id,
		"state":       string(envStateOf(outcome)),
	})
}

func envStateOf(outcome sched.Outcome) EnvState {
	switch outcome.State {
	case sched.GroupCompleted:
		return EnvCompleted
	case sched.GroupFailed:
		return EnvFailed
	default:
		return EnvTerminated
	}
}

// Status copies the environment's state. tailLines bounds the output
// copied per node: 0 omits output, negative copies the whole buffer.
func (s *Supervisor) Status(id string, tailLines int) (Snapshot, error) {
	env, ok := s.lookup(id)
	if !ok {
		return Snapshot{}, &NotFoundError{ID: id}
	}

	env.mu.Lock()
	snap := Snapshot{
		ID:         env.id,
		Template:   env.template,
		State:      env.state,
		Reason:     env.reason,
		EndedBy:    env.endedBy,
		Timeout:    env.timeout.Seconds(),
		LaunchedAt: env.launchedAt,
		Directives: append([]string{}, env.directives...),
	}
	if !env.endedAt.IsZero() {
		ended := env.endedAt
		snap.EndedAt = &ended
	}
	env.mu.Unlock()

	for _, node := range env.scheduler.Snapshots(tailLines) {
		status := NodeStatus{NodeSnapshot: node}
		if node.State == sched.StateRunning && node.PID > 0 {
			status.Resources = sampleUsage(node.PID)
		}
		snap.Nodes = append(snap.Nodes, status)
	}
	return snap, nil
}

// Terminate tears the environment down, waits for it to stop and
// removes it from the registry. Unknown or already-removed ids
// succeed; termination is idempotent.
func (s *Supervisor) Terminate(id string) {
	env, ok := s.lookup(id)
	if !ok {
		return
	}

	env.scheduler.Terminate()
	<-env.done

	s.mu.Lock()
	delete(s.envs, id)
	s.mu.Unlock()
	s.opts.Logger.Info("environment removed", map[string]string{"environment": id})
}

// List returns all registered environment ids, sorted.
func (s *Supervisor) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.envs))
	for id := range s.envs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Summaries returns the list view of every environment, sorted by id.
func (s *Supervisor) Summaries() []Summary {
	s.mu.Lock()
	envs := make([]*environment, 0, len(s.envs))
	for _, env := range s.envs {
		envs = append(envs, env)
	}
	s.mu.Unlock()

	summaries := make([]Summary, 0, len(envs))
	for _, env := range envs {
		env.mu.Lock()
		summaries = append(summaries, Summary{
			ID:         env.id,
			Template:   env.template,
			State:      env.state,
			LaunchedAt: env.launchedAt,
			NodeCount:  len(env.directives),
		})
		env.mu.Unlock()
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// Subscribe streams output lines from one environment.
func (s *Supervisor) Subscribe(id string, buffer int) (<-chan sched.OutputEvent, func(), error) {
	env, ok := s.lookup(id)
	if !ok {
		return nil, nil, &NotFoundError{ID: id}
	}
	ch, cancel := env.scheduler.Subscribe(buffer)
	return ch, cancel, nil
}

// TerminateAll tears down every environment. Used during shutdown.
func (s *Supervisor) TerminateAll() {
	for _, id := range s.List() {
		s.Terminate(id)
	}
}

// StartReaper periodically drops environments that have been terminal
// for longer than age. They stay queryable until then.
func (s *Supervisor) StartReaper(ctx context.Context, interval, age time.Duration) {
	if age <= 0 {
		age = defaultReapAge
	}
	if interval <= 0 {
		interval = age / 4
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reap(age)
			}
		}
	}()
}

func (s *Supervisor) reap(age time.Duration) {
	cutoff := time.Now().Add(-age)

	s.mu.Lock()
	var expired []string
	for id, env := range s.envs {
		env.mu.Lock()
		if env.state.Terminal() && !env.endedAt.IsZero() && env.endedAt.Before(cutoff) {
			expired = append(expired, id)
		}
		env.mu.Unlock()
	}
	for _, id := range expired {
		delete(s.envs, id)
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.opts.Logger.Info("environment reaped", map[string]string{"environment": id})
	}
}

func (s *Supervisor) lookup(id string) (*environment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.envs[id]
	return env, ok
}

func newEnvID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "env_" + raw[:8]
}

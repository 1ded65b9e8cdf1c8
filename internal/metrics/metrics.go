package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type Registry struct {
	environmentsLaunched   atomic.Int64
	environmentsCompleted  atomic.Int64
	environmentsFailed     atomic.Int64
	environmentsTerminated atomic.Int64
	processesSpawned       atomic.Int64
	processLaunchFailures  atomic.Int64
	outputLines            atomic.Int64
	templates              sync.Map
}

var Default = &Registry{}

func (r *Registry) IncEnvironmentsLaunched() {
	if r == nil {
		return
	}
	r.environmentsLaunched.Add(1)
}

func (r *Registry) IncEnvironmentsCompleted() {
	if r == nil {
		return
	}
	r.environmentsCompleted.Add(1)
}

func (r *Registry) IncEnvironmentsFailed() {
	if r == nil {
		return
	}
	r.environmentsFailed.Add(1)
}

func (r *Registry) IncEnvironmentsTerminated() {
	if r == nil {
		return
	}
	r.environmentsTerminated.Add(1)
}

func (r *Registry) IncProcessesSpawned() {
	if r == nil {
		return
	}
	r.processesSpawned.Add(1)
}

func (r *Registry) IncProcessLaunchFailures() {
	if r == nil {
		return
	}
	r.processLaunchFailures.Add(1)
}

func (r *Registry) AddOutputLines(count int64) {
	if r == nil || count <= 0 {
		return
	}
	r.outputLines.Add(count)
}

func (r *Registry) RecordTemplateLaunch(name string) {
	if r == nil {
		return
	}
	if strings.TrimSpace(name) == "" {
		name = "custom"
	}
	counter := r.templateCounter(name)
	counter.Add(1)
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "overture_environments_launched_total", "Total environments launched", r.environmentsLaunched.Load())
	writeCounter(writer, "overture_environments_completed_total", "Total environments that completed", r.environmentsCompleted.Load())
	writeCounter(writer, "overture_environments_failed_total", "Total environments that failed", r.environmentsFailed.Load())
	writeCounter(writer, "overture_environments_terminated_total", "Total environments terminated by timeout or request", r.environmentsTerminated.Load())
	writeCounter(writer, "overture_processes_spawned_total", "Total node processes spawned", r.processesSpawned.Load())
	writeCounter(writer, "overture_process_launch_failures_total", "Total node commands that failed to start", r.processLaunchFailures.Load())
	writeCounter(writer, "overture_output_lines_total", "Total output lines captured", r.outputLines.Load())

	names := r.templateNames()
	sort.Strings(names)

	writeHelp(writer, "overture_template_launches_total", "Environment launches by template")
	fmt.Fprintln(writer, "# TYPE overture_template_launches_total counter")
	for _, name := range names {
		counter := r.templateCounter(name)
		fmt.Fprintf(writer, "overture_template_launches_total{template=%s} %d\n", formatLabel(name), counter.Load())
	}

	return nil
}

func (r *Registry) templateCounter(name string) *atomic.Int64 {
	value, _ := r.templates.LoadOrStore(name, &atomic.Int64{})
	return value.(*atomic.Int64)
}

func (r *Registry) templateNames() []string {
	if r == nil {
		return nil
	}
	var names []string
	r.templates.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}

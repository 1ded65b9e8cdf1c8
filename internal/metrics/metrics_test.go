package metrics

import (
	"strings"
	"testing"
)

func TestWritePrometheusCounters(t *testing.T) {
	registry := &Registry{}
	registry.IncEnvironmentsLaunched()
	registry.IncEnvironmentsLaunched()
	registry.IncEnvironmentsCompleted()
	registry.IncProcessesSpawned()
	registry.AddOutputLines(42)

	var builder strings.Builder
	if err := registry.WritePrometheus(&builder); err != nil {
		t.Fatalf("WritePrometheus failed: %v", err)
	}
	output := builder.String()

	for _, want := range []string{
		"overture_environments_launched_total 2",
		"overture_environments_completed_total 1",
		"overture_processes_spawned_total 1",
		"overture_output_lines_total 42",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestTemplateLaunchLabels(t *testing.T) {
	registry := &Registry{}
	registry.RecordTemplateLaunch("full_stack")
	registry.RecordTemplateLaunch("full_stack")
	registry.RecordTemplateLaunch("")

	var builder strings.Builder
	if err := registry.WritePrometheus(&builder); err != nil {
		t.Fatalf("WritePrometheus failed: %v", err)
	}
	output := builder.String()

	if !strings.Contains(output, `overture_template_launches_total{template="full_stack"} 2`) {
		t.Fatalf("expected labeled template counter in output:\n%s", output)
	}
	if !strings.Contains(output, `overture_template_launches_total{template="custom"} 1`) {
		t.Fatalf("expected empty template recorded as custom:\n%s", output)
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var registry *Registry
	registry.IncEnvironmentsLaunched()
	registry.AddOutputLines(1)
	if err := registry.WritePrometheus(&strings.Builder{}); err != nil {
		t.Fatalf("nil registry WritePrometheus failed: %v", err)
	}
}

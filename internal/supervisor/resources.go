package supervisor

import (
	"github.com/shirou/gopsutil/v3/process"
)

// sampleUsage reads CPU and resident memory for one pid. Returns nil
// when the process is gone or the platform refuses the query; status
// responses simply omit the sample then.
func sampleUsage(pid int) *ResourceUsage {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	usage := &ResourceUsage{}
	if percent, err := p.CPUPercent(); err == nil {
		usage.CPUPercent = percent
	}
	if info, err := p.MemoryInfo(); err == nil && info != nil {
		usage.RSSBytes = info.RSS
	}
	return usage
}

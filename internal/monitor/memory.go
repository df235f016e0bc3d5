package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessMemory samples the resident set size of the running process.
type ProcessMemory struct {
	proc    *process.Process
	timeout time.Duration
}

func NewProcessMemory() (*ProcessMemory, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open self process: %w", err)
	}
	return &ProcessMemory{proc: p, timeout: 2 * time.Second}, nil
}

func (m *ProcessMemory) RSS() (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	info, err := m.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("read memory info: %w", err)
	}
	return info.RSS, nil
}

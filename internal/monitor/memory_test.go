package monitor

import "testing"

func TestProcessMemoryReportsRSS(t *testing.T) {
	m, err := NewProcessMemory()
	if err != nil {
		t.Skipf("process info unavailable: %v", err)
	}
	rss, err := m.RSS()
	if err != nil {
		t.Skipf("memory info unavailable: %v", err)
	}
	if rss == 0 {
		t.Error("RSS of a running test binary should be non-zero")
	}
}

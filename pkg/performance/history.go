package performance

import "github.com/din-network/din-monitor/pkg/types"

// HistoryCapacity is the number of samples kept per operator.
const HistoryCapacity = 1000

// history is a bounded FIFO; once full the oldest sample is overwritten.
type history struct {
	capacity int
	samples  []types.PerformanceMetrics
	start    int
}

func newHistory(capacity int) *history {
	return &history{capacity: capacity}
}

func (h *history) push(m types.PerformanceMetrics) {
	if len(h.samples) < h.capacity {
		h.samples = append(h.samples, m)
		return
	}
	h.samples[h.start] = m
	h.start = (h.start + 1) % h.capacity
}

// last returns up to n most recent samples, oldest first. n <= 0 returns all of them.
func (h *history) last(n int) []types.PerformanceMetrics {
	size := len(h.samples)
	if n <= 0 || n > size {
		n = size
	}
	out := make([]types.PerformanceMetrics, 0, n)
	for i := size - n; i < size; i++ {
		out = append(out, h.samples[(h.start+i)%size])
	}
	return out
}

func (h *history) latest() (types.PerformanceMetrics, bool) {
	size := len(h.samples)
	if size == 0 {
		return types.PerformanceMetrics{}, false
	}
	return h.samples[(h.start+size-1)%size], true
}

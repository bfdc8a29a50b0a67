package obs

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogRecord is a stored copy of a log entry
type LogRecord struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// MemoryLogHook is a logrus hook that keeps the most recent records in a
// fixed-size ring.
type MemoryLogHook struct {
	records  []LogRecord
	writeIdx int
	count    int
	levels   []logrus.Level
	mu       sync.RWMutex
}

// NewMemoryLogHook creates a hook holding up to capacity records for the
// given levels, or all levels when none are given.
func NewMemoryLogHook(capacity int, levels ...logrus.Level) *MemoryLogHook {
	if capacity <= 0 {
		capacity = 1
	}
	if len(levels) == 0 {
		levels = logrus.AllLevels
	}
	return &MemoryLogHook{
		records: make([]LogRecord, capacity),
		levels:  levels,
	}
}

func (h *MemoryLogHook) Levels() []logrus.Level {
	return h.levels
}

// Fire copies the entry into the ring, overwriting the oldest record when full
func (h *MemoryLogHook) Fire(entry *logrus.Entry) error {
	rec := LogRecord{
		Time:    entry.Time,
		Level:   entry.Level.String(),
		Message: entry.Message,
	}
	if len(entry.Data) > 0 {
		rec.Fields = make(map[string]any, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			rec.Fields[k] = v
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[h.writeIdx] = rec
	h.writeIdx = (h.writeIdx + 1) % len(h.records)
	if h.count < len(h.records) {
		h.count++
	}
	return nil
}

// Latest returns up to n newest records, oldest first. n <= 0 returns all.
func (h *MemoryLogHook) Latest(n int) []LogRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all := h.ordered()
	if n > 0 && n < len(all) {
		return all[len(all)-n:]
	}
	return all
}

// Since returns the records logged after t
func (h *MemoryLogHook) Since(t time.Time) []LogRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]LogRecord, 0)
	for _, r := range h.ordered() {
		if r.Time.After(t) {
			out = append(out, r)
		}
	}
	return out
}

// AtLeast returns the records at level or more severe
func (h *MemoryLogHook) AtLeast(level logrus.Level) []LogRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]LogRecord, 0)
	for _, r := range h.ordered() {
		l, err := logrus.ParseLevel(r.Level)
		if err == nil && l <= level {
			out = append(out, r)
		}
	}
	return out
}

func (h *MemoryLogHook) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *MemoryLogHook) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.records)
	h.writeIdx = 0
	h.count = 0
}

// ordered returns the stored records in chronological order. Callers hold mu.
func (h *MemoryLogHook) ordered() []LogRecord {
	out := make([]LogRecord, 0, h.count)
	start := 0
	if h.count == len(h.records) {
		start = h.writeIdx
	}
	for i := 0; i < h.count; i++ {
		out = append(out, h.records[(start+i)%len(h.records)])
	}
	return out
}

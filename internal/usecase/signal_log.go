package usecase

import (
	"fmt"
	"sync"
	"time"

	"CopyRelay/internal/domain/models"
)

// DefaultSignalRetention is the maximum number of signals kept in memory.
const DefaultSignalRetention = 1000

// SignalLog is the append-only bounded buffer of published signals. Append
// and trim are one atomic unit; queries copy a consistent snapshot. The log
// never references the registry — the master id on each signal is a copied
// snapshot taken at publish time.
type SignalLog struct {
	mu      sync.Mutex
	signals []models.Signal
	max     int
	seq     uint64
	now     func() time.Time
}

func NewSignalLog(max int) *SignalLog {
	if max <= 0 {
		max = DefaultSignalRetention
	}
	return &SignalLog{max: max, now: time.Now}
}

// Publish appends a new signal built from the caller's field bag and the
// master id snapshot, evicting the oldest entry once the cap is exceeded.
// The sequence counter is process-lifetime monotonic, so ids stay unique
// across concurrent publishers and FIFO eviction.
func (l *SignalLog) Publish(fields map[string]interface{}, master string) models.Signal {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.seq++
	sig := models.Signal{
		ID:        fmt.Sprintf("sig_%d_%d", now.Unix(), l.seq),
		Timestamp: now,
		Master:    master,
		Fields:    fields,
	}
	l.signals = append(l.signals, sig)
	if len(l.signals) > l.max {
		l.signals = l.signals[1:]
	}
	return sig
}

// Since returns every signal with timestamp >= cutoff, oldest first.
func (l *SignalLog) Since(cutoff time.Time) []models.Signal {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Signal, 0, len(l.signals))
	for _, s := range l.signals {
		if !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// Len reports the number of retained signals.
func (l *SignalLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.signals)
}

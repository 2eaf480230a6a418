// Package metrics keeps lightweight counters for one room session,
// surfaced in the UI status line.
package metrics

import (
	"sync"
	"time"
)

type Collector struct {
	mu               sync.Mutex
	start            time.Time
	sent             int
	received         int
	snapshotSize     int
	participantsPeak int
}

type Summary struct {
	Sent             int
	Received         int
	SnapshotSize     int
	ParticipantsPeak int
	Elapsed          time.Duration
}

func NewCollector() *Collector {
	return &Collector{start: time.Now()}
}

func (c *Collector) MessageSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
}

func (c *Collector) MessageReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received++
}

// SnapshotApplied records the size of the history snapshot that
// replaced the log.
func (c *Collector) SnapshotApplied(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshotSize = size
}

// ParticipantCount tracks the participant high-water mark.
func (c *Collector) ParticipantCount(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if count > c.participantsPeak {
		c.participantsPeak = count
	}
}

func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Summary{
		Sent:             c.sent,
		Received:         c.received,
		SnapshotSize:     c.snapshotSize,
		ParticipantsPeak: c.participantsPeak,
		Elapsed:          time.Since(c.start),
	}
}

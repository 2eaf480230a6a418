package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	c.MessageSent()
	c.MessageSent()
	c.MessageReceived()
	c.SnapshotApplied(25)
	c.ParticipantCount(3)
	c.ParticipantCount(7)
	c.ParticipantCount(5)

	s := c.Summary()
	assert.Equal(t, 2, s.Sent)
	assert.Equal(t, 1, s.Received)
	assert.Equal(t, 25, s.SnapshotSize)
	assert.Equal(t, 7, s.ParticipantsPeak, "peak is a high-water mark")
	assert.GreaterOrEqual(t, s.Elapsed.Nanoseconds(), int64(0))
}

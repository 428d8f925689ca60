package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	audit "vitalproof/pkg/platform/audit"
)

func TestTrackDropsWhenFull(t *testing.T) {
	tr := New(1)

	tr.Track(context.Background(), audit.Event{UserID: "u1", Action: "context_resolved"})
	tr.Track(context.Background(), audit.Event{UserID: "u1", Action: "context_resolved"})

	assert.Equal(t, int64(1), tr.Dropped())
	e := <-tr.Events()
	assert.Equal(t, audit.CategoryOperations, e.Category)
	assert.False(t, e.Timestamp.IsZero())
}

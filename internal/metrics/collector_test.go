package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorRecordStage(t *testing.T) {
	c := NewCollector()

	c.RecordStage("conversion", 5, 100*time.Millisecond)
	c.RecordStage("conversion", 3, 300*time.Millisecond)
	c.RecordStage("ingestion", 4, 50*time.Millisecond)

	snap := c.Snapshot()

	conv := snap.Stages["conversion"]
	assert.Equal(t, int64(2), conv.Count)
	assert.Equal(t, int64(8), conv.Items)
	assert.Equal(t, int64(400), conv.TotalTimeMs)
	assert.InDelta(t, 200.0, conv.AvgTimeMs, 0.001)
	assert.Equal(t, int64(100), conv.MinTimeMs)
	assert.Equal(t, int64(300), conv.MaxTimeMs)

	ing := snap.Stages["ingestion"]
	assert.Equal(t, int64(1), ing.Count)
	assert.Equal(t, int64(50), ing.MinTimeMs)
}

func TestCollectorEmptySnapshot(t *testing.T) {
	snap := NewCollector().Snapshot()
	assert.Empty(t, snap.Stages)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}

func TestCollectorConcurrentAccess(t *testing.T) {
	c := NewCollector()
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				c.RecordStage("embedding", 1, time.Millisecond)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	assert.Equal(t, int64(400), c.Snapshot().Stages["embedding"].Count)
}

package stats

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSnapshot(t *testing.T) {
	t.Parallel()
	c := &Counters{}
	c.FramesRendered.Add(100)
	c.FramesDropped.Add(3)
	c.CacheHits.Add(90)
	c.CacheMisses.Add(10)
	c.AudioUnderruns.Add(1)

	start := time.Now().Add(-2 * time.Second)
	s := c.Snapshot("p1", start, time.Now(), 12, 40)

	if s.FramesRendered != 100 || s.FramesDropped != 3 {
		t.Errorf("frame counters = %d/%d", s.FramesRendered, s.FramesDropped)
	}
	if s.CacheHitRate != 0.9 {
		t.Errorf("cache hit rate = %f, want 0.9", s.CacheHitRate)
	}
	if s.VideoQueueDepth != 12 || s.AudioQueueDepth != 40 {
		t.Errorf("queue depths = %d/%d", s.VideoQueueDepth, s.AudioQueueDepth)
	}
	if s.UptimeMs < 1900 {
		t.Errorf("uptime = %dms", s.UptimeMs)
	}
}

func TestSnapshotZeroCacheActivity(t *testing.T) {
	t.Parallel()
	c := &Counters{}
	s := c.Snapshot("p1", time.Now(), time.Now(), 0, 0)
	if s.CacheHitRate != 0 {
		t.Errorf("hit rate with no lookups = %f, want 0", s.CacheHitRate)
	}
}

func TestSnapshotSerializes(t *testing.T) {
	t.Parallel()
	c := &Counters{}
	b, err := json.Marshal(c.Snapshot("p1", time.Now(), time.Now(), 0, 0))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round Snapshot
	if err := json.Unmarshal(b, &round); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if round.PlayerID != "p1" {
		t.Errorf("player id = %q", round.PlayerID)
	}
}

// Package stats collects playback counters and exposes a point-in-time
// snapshot suitable for JSON serialization into a stats overlay or log line.
package stats

import (
	"sync/atomic"
	"time"
)

// Counters accumulates per-player metrics. All fields are updated from hot
// paths with atomics; reads are relaxed.
type Counters struct {
	PacketsDemuxed    atomic.Int64
	FramesDecoded     atomic.Int64
	FramesRendered    atomic.Int64
	FramesDropped     atomic.Int64 // late beyond the drop threshold
	FramesLate        atomic.Int64 // presented inside the repeat band
	DecodeErrors      atomic.Int64
	RenderErrors      atomic.Int64
	AudioUnderruns    atomic.Int64
	AudioFramesDrop   atomic.Int64 // evicted by the oldest-frame drop policy
	CacheHits         atomic.Int64
	CacheMisses       atomic.Int64
	PrefetchBytes     atomic.Int64 // current prefetch queue depth in bytes
	SeeksCompleted    atomic.Int64
	DecodePushBlocked atomic.Int64 // nanoseconds spent blocked on frame-queue push
}

// Snapshot is the JSON-serializable view of the counters plus live queue
// depths supplied by the caller.
type Snapshot struct {
	Timestamp       int64   `json:"ts"`
	PlayerID        string  `json:"playerId"`
	UptimeMs        int64   `json:"uptimeMs"`
	PacketsDemuxed  int64   `json:"packetsDemuxed"`
	FramesDecoded   int64   `json:"framesDecoded"`
	FramesRendered  int64   `json:"framesRendered"`
	FramesDropped   int64   `json:"framesDropped"`
	FramesLate      int64   `json:"framesLate"`
	DecodeErrors    int64   `json:"decodeErrors"`
	RenderErrors    int64   `json:"renderErrors"`
	AudioUnderruns  int64   `json:"audioUnderruns"`
	AudioFramesDrop int64   `json:"audioFramesDropped"`
	CacheHitRate    float64 `json:"cacheHitRate"`
	PrefetchBytes   int64   `json:"prefetchBytes"`
	SeeksCompleted  int64   `json:"seeksCompleted"`
	VideoQueueDepth int     `json:"videoQueueDepth"`
	AudioQueueDepth int     `json:"audioQueueDepth"`
}

// Snapshot captures the counters at now. Queue depths are passed in because
// the queues belong to other components.
func (c *Counters) Snapshot(playerID string, startedAt, now time.Time, videoDepth, audioDepth int) Snapshot {
	hits := c.CacheHits.Load()
	misses := c.CacheMisses.Load()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return Snapshot{
		Timestamp:       now.UnixMilli(),
		PlayerID:        playerID,
		UptimeMs:        now.Sub(startedAt).Milliseconds(),
		PacketsDemuxed:  c.PacketsDemuxed.Load(),
		FramesDecoded:   c.FramesDecoded.Load(),
		FramesRendered:  c.FramesRendered.Load(),
		FramesDropped:   c.FramesDropped.Load(),
		FramesLate:      c.FramesLate.Load(),
		DecodeErrors:    c.DecodeErrors.Load(),
		RenderErrors:    c.RenderErrors.Load(),
		AudioUnderruns:  c.AudioUnderruns.Load(),
		AudioFramesDrop: c.AudioFramesDrop.Load(),
		CacheHitRate:    rate,
		PrefetchBytes:   c.PrefetchBytes.Load(),
		SeeksCompleted:  c.SeeksCompleted.Load(),
		VideoQueueDepth: videoDepth,
		AudioQueueDepth: audioDepth,
	}
}

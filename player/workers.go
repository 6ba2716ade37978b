package player

import (
	"time"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/zenplay/errs"
	"github.com/zsiec/zenplay/media"
	"github.com/zsiec/zenplay/state"
)

// demuxLoop pops packets from the demuxer and dispatches them to the
// per-stream packet queues. It blocks inside ReadPacket and inside queue
// push; both return promptly on stop.
func (p *Player) demuxLoop() error {
	videoIdx, audioIdx := -1, -1
	if p.dm.HasVideo() {
		videoIdx = p.dm.VideoStream().Index
	}
	if p.dm.HasAudio() {
		audioIdx = p.dm.AudioStream().Index
	}

	for {
		if p.st.ShouldStop() {
			return nil
		}

		pkt, ok, err := p.dm.ReadPacket()
		if err != nil {
			if p.st.ShouldStop() {
				return nil
			}
			p.log.Error("demux read failed", "error", err)
			_ = p.st.Transition(state.Error)
			return err
		}
		if !ok {
			if stop := p.handleEOF(); stop {
				return nil
			}
			continue
		}

		p.stats.PacketsDemuxed.Add(1)
		p.stats.PrefetchBytes.Store(p.dm.BufferedBytes())

		switch pkt.StreamIndex() {
		case videoIdx:
			if !p.videoPktQ.Push(pkt) {
				pkt.Free()
				return nil
			}
		case audioIdx:
			if !p.audioPktQ.Push(pkt) {
				pkt.Free()
				return nil
			}
		default:
			pkt.Free()
		}
	}
}

// handleEOF pushes a flush sentinel to each decoder queue, then waits for
// either the pipeline to drain (end of stream), a seek to rewind the
// container, or stop. Returns true when the worker should exit.
func (p *Player) handleEOF() bool {
	if p.videoPktQ != nil {
		p.videoPktQ.Push(nil)
	}
	if p.audioPktQ != nil {
		p.audioPktQ.Push(nil)
	}
	p.log.Debug("demuxer reached end of stream")

	gen := p.seekGen.Load()
	for {
		select {
		case <-p.stopCh:
			return true
		case <-time.After(eosPollInterval):
		}
		if p.st.ShouldStop() {
			return true
		}
		if p.seekGen.Load() != gen {
			// A seek rewound the container; resume reading.
			return false
		}
		if p.drained() {
			p.log.Info("end of stream")
			_ = p.st.Transition(state.Stopped)
			return true
		}
	}
}

func (p *Player) drained() bool {
	if p.videoPktQ != nil && p.videoPktQ.Len() > 0 {
		return false
	}
	if p.audioPktQ != nil && p.audioPktQ.Len() > 0 {
		return false
	}
	if p.videoOut != nil && p.videoOut.QueueDepth() > 0 {
		return false
	}
	if p.audioOut != nil && p.audioOut.QueueDepth() > 0 {
		return false
	}
	return true
}

// videoDecodeLoop pops packets, decodes them, and pushes every produced
// frame to the video player with unbounded back-pressure.
func (p *Player) videoDecodeLoop() error {
	consecutive := 0
	for {
		pkt, ok := p.videoPktQ.Pop()
		if !ok {
			return nil
		}

		frames, err := p.decodeVideo(pkt)
		if err != nil {
			p.stats.DecodeErrors.Add(1)
			consecutive++
			p.log.Warn("video decode failed", "error", err, "consecutive", consecutive)
			if consecutive >= consecutiveDecodeLimit {
				_ = p.st.Transition(state.Error)
				return err
			}
			continue
		}
		consecutive = 0

		for i, f := range frames {
			p.stats.FramesDecoded.Add(1)
			if !p.videoOut.PushFrameBlocking(f, 0) {
				for _, rest := range frames[i+1:] {
					rest.Release()
				}
				return nil
			}
		}
	}
}

func (p *Player) decodeVideo(pkt *astiav.Packet) ([]*media.Frame, error) {
	if pkt == nil {
		return p.videoDec.Flush()
	}
	defer pkt.Free()
	return p.videoDec.Decode(pkt)
}

// audioDecodeLoop pops packets, decodes, resamples each frame to the output
// spec, and pushes the result into the audio player's frame queue.
func (p *Player) audioDecodeLoop() error {
	consecutive := 0
	for {
		pkt, ok := p.audioPktQ.Pop()
		if !ok {
			return nil
		}

		frames, err := p.decodeAudio(pkt)
		if err != nil {
			p.stats.DecodeErrors.Add(1)
			consecutive++
			p.log.Warn("audio decode failed", "error", err, "consecutive", consecutive)
			if consecutive >= consecutiveDecodeLimit {
				_ = p.st.Transition(state.Error)
				return err
			}
			continue
		}
		consecutive = 0

		for _, f := range frames {
			pcm, err := p.res.Convert(f.Pict, f.TS)
			f.Release()
			if err != nil {
				p.log.Warn("resample failed", "error", err)
				continue
			}
			if pcm == nil {
				continue
			}
			if !p.audioOut.PushFrame(pcm, 0) {
				return nil
			}
		}
	}
}

func (p *Player) decodeAudio(pkt *astiav.Packet) ([]*media.Frame, error) {
	if pkt == nil {
		return p.audioDec.Flush()
	}
	defer pkt.Free()
	return p.audioDec.Decode(pkt)
}

// seekLoop is the single-flight seek handler. At most one seek is in flight;
// while one runs, newer requests coalesce and the last-requested target wins.
func (p *Player) seekLoop() error {
	for {
		select {
		case <-p.stopCh:
			return nil
		case <-p.seekCh:
		}
		for {
			p.seekMu.Lock()
			target, pending := p.seekTarget, p.seekPending
			p.seekPending = false
			p.seekMu.Unlock()
			if !pending {
				break
			}
			if err := p.performSeek(target); err != nil {
				p.log.Error("seek failed", "target", target.String(), "error", err)
			}
		}
	}
}

// performSeek runs the seek protocol: park the producers, clear renderer
// caches before any post-seek frame can arrive, drain every queue, seek the
// container backward to the nearest keyframe, rebase the clocks, and flush
// the decoders. The paused/playing state observed before the seek is
// restored afterwards.
func (p *Player) performSeek(target time.Duration) error {
	if p.st.ShouldStop() {
		return nil
	}
	wasPaused := p.st.State() == state.Paused
	if err := p.st.Transition(state.Seeking); err != nil {
		return errs.E(errs.KindInvalidState, "player", "seek in state "+p.st.State().String(), err)
	}
	// Producers stop publishing clock updates before the clock freezes.
	if p.audioOut != nil {
		p.audioOut.Pause()
	}
	if !wasPaused {
		p.sync.Pause()
	}
	if p.videoOut != nil {
		p.videoOut.PreSeek()
	}
	p.clearAllQueues()

	if err := p.dm.Seek(target, true); err != nil {
		_ = p.st.Transition(state.Error)
		return err
	}
	if p.videoDec != nil {
		p.videoDec.Reset()
	}
	if p.audioDec != nil {
		p.audioDec.Reset()
	}
	p.sync.ResetForSeekAt(target.Milliseconds(), time.Now())
	p.seekGen.Add(1)
	p.stats.SeeksCompleted.Add(1)

	if wasPaused {
		p.sync.Pause()
		if err := p.st.Transition(state.Paused); err != nil {
			return err
		}
	} else {
		p.sync.Resume()
		if err := p.st.Transition(state.Playing); err != nil {
			return err
		}
		if p.audioOut != nil {
			p.audioOut.Resume()
		}
	}
	p.log.Info("seek completed", "target", target.String())
	return nil
}

package demux

import (
	"log/slog"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
)

// transientReadBackoff is the pause between retries when a network read
// fails without being fatal, matching the stall tolerance of live sources.
const transientReadBackoff = 10 * time.Millisecond

// stallCutoff bounds how long read failures are retried before the error is
// surfaced to the consumer.
const stallCutoff = 10 * time.Second

// Prefetcher pre-reads packets from a networked source into a byte-budgeted
// queue. Filling follows a hysteresis: read until the high watermark, then
// wait until consumption drains the queue below the low watermark.
type Prefetcher struct {
	log    *slog.Logger
	readFn func() (*astiav.Packet, bool, error)
	high   int64
	low    int64

	mu      sync.Mutex
	cond    *sync.Cond
	pkts    []*astiav.Packet
	bytes   int64
	filling bool
	eof     bool
	err     error
	stopped bool
	done    chan struct{}
}

func newPrefetcher(readFn func() (*astiav.Packet, bool, error), high, low int64, log *slog.Logger) *Prefetcher {
	if high <= 0 {
		high = 10 << 20
	}
	if low <= 0 || low >= high {
		low = high / 2
	}
	p := &Prefetcher{
		log:     log.With("component", "prefetch"),
		readFn:  readFn,
		high:    high,
		low:     low,
		filling: true,
		done:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.run()
	return p
}

func (p *Prefetcher) run() {
	defer close(p.done)
	var firstFailure time.Time
	for {
		p.mu.Lock()
		for !p.stopped && !p.shouldRead() {
			p.cond.Wait()
		}
		if p.stopped {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		pkt, ok, err := p.readFn()

		if err != nil {
			// Transient network hiccups drain the buffer gracefully instead
			// of faulting playback; the error surfaces only after a stall.
			if firstFailure.IsZero() {
				firstFailure = time.Now()
			}
			if time.Since(firstFailure) < stallCutoff {
				p.log.Debug("prefetch read failed, retrying", "error", err)
				time.Sleep(transientReadBackoff)
				continue
			}
		}

		p.mu.Lock()
		if p.stopped {
			p.mu.Unlock()
			if pkt != nil {
				pkt.Free()
			}
			return
		}
		switch {
		case err != nil:
			p.err = err
			p.log.Warn("prefetch stalled", "error", err, "stall", time.Since(firstFailure).String())
		case !ok:
			p.eof = true
		default:
			firstFailure = time.Time{}
			p.pkts = append(p.pkts, pkt)
			p.bytes += int64(pkt.Size())
			if p.bytes >= p.high {
				p.filling = false
			}
		}
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// shouldRead implements the watermark hysteresis. Callers hold p.mu.
func (p *Prefetcher) shouldRead() bool {
	if p.eof || p.err != nil {
		return false
	}
	if !p.filling && p.bytes < p.low {
		p.filling = true
	}
	return p.filling
}

// Pop blocks until a packet is buffered. EOF surfaces as (nil, false, nil);
// a stopped prefetcher reports EOF as well so consumers unwind cleanly.
func (p *Prefetcher) Pop() (*astiav.Packet, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.pkts) == 0 && !p.eof && p.err == nil && !p.stopped {
		p.cond.Wait()
	}
	if len(p.pkts) > 0 {
		pkt := p.pkts[0]
		p.pkts[0] = nil
		p.pkts = p.pkts[1:]
		p.bytes -= int64(pkt.Size())
		p.cond.Broadcast()
		return pkt, true, nil
	}
	if p.err != nil {
		err := p.err
		p.err = nil
		return nil, false, err
	}
	return nil, false, nil
}

// Flush drops every buffered packet and re-arms filling. Called on seek.
func (p *Prefetcher) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pkt := range p.pkts {
		pkt.Free()
	}
	p.pkts = nil
	p.bytes = 0
	p.eof = false
	p.err = nil
	p.filling = true
	p.cond.Broadcast()
}

// BufferedBytes returns the current queue depth in bytes.
func (p *Prefetcher) BufferedBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytes
}

// Stop terminates the worker and frees all buffered packets.
func (p *Prefetcher) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()
	<-p.done

	p.mu.Lock()
	for _, pkt := range p.pkts {
		pkt.Free()
	}
	p.pkts = nil
	p.bytes = 0
	p.mu.Unlock()
}

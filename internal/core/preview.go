package core

import (
	"context"
	"sync"
	"time"
)

// PreviewResult is delivered for the latest scheduled input only.
type PreviewResult struct {
	Input    string
	URL      string
	Metadata Metadata
	Err      error
}

// PreviewFunc computes a preview. It should honor ctx cancellation.
type PreviewFunc func(ctx context.Context, input string) (string, Metadata, error)

// PreviewDebouncer waits for input to settle before computing a preview.
// Scheduling new input cancels any pending or running computation, so a
// stale result is never delivered after a newer input was scheduled.
type PreviewDebouncer struct {
	delay   time.Duration
	compute PreviewFunc
	deliver func(PreviewResult)

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	stopped bool
}

// NewPreviewDebouncer returns a debouncer calling deliver with each
// settled result. A nil compute uses Normalize followed by Derive.
// deliver runs with the debouncer locked and must not call back into it.
func NewPreviewDebouncer(delay time.Duration, d Deriver, compute PreviewFunc, deliver func(PreviewResult)) *PreviewDebouncer {
	if delay <= 0 {
		delay = DefaultPreviewDelay
	}
	if compute == nil {
		compute = func(_ context.Context, input string) (string, Metadata, error) {
			u, err := Normalize(input)
			if err != nil {
				return "", Metadata{}, err
			}
			return u, d.Derive(u), nil
		}
	}
	return &PreviewDebouncer{delay: delay, compute: compute, deliver: deliver}
}

// Schedule replaces whatever is pending with input.
func (p *PreviewDebouncer) Schedule(input string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.cancelLocked()
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.timer = time.AfterFunc(p.delay, func() { p.run(ctx, gen, input) })
}

// Stop cancels pending work. Nothing is delivered after Stop returns.
func (p *PreviewDebouncer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.cancelLocked()
	p.gen++
}

func (p *PreviewDebouncer) cancelLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *PreviewDebouncer) run(ctx context.Context, gen uint64, input string) {
	u, md, err := p.compute(ctx, input)
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen || p.stopped {
		return
	}
	if p.deliver != nil {
		p.deliver(PreviewResult{Input: input, URL: u, Metadata: md, Err: err})
	}
}

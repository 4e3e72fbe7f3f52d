package motorbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is the latest decoded joint state published by a Poller. The
// Values map is owned by the poller and must be treated as read-only.
type Snapshot struct {
	Values map[string]float64
	Taken  time.Time
}

// Poller continuously reads the present position of every joint on a
// dedicated goroutine and publishes the latest decoded snapshot. Leader arms
// are read this way so the control loop never waits on the serial line.
//
// The poll shares the bus mutex with foreground operations, so the serial
// line is never accessed by two logical operations at once. Communication
// failures keep the last good snapshot and log at most one warning per
// second.
type Poller struct {
	bus       *Bus
	period    time.Duration
	normalize bool
	logger    *slog.Logger

	snap     atomic.Pointer[Snapshot]
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	lastWarn time.Time // poll goroutine only
}

// StartPolling starts a background poller for Present_Position at the given
// period. Only one poller may be active per bus; Disconnect stops it.
func (b *Bus) StartPolling(period time.Duration, normalize bool) (*Poller, error) {
	if period <= 0 {
		period = 10 * time.Millisecond
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil, &NotConnectedError{Op: "start polling"}
	}
	if b.poller != nil {
		return nil, fmt.Errorf("bus already has an active poller")
	}

	p := &Poller{
		bus:       b,
		period:    period,
		normalize: normalize,
		logger:    b.logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	b.poller = p
	go p.run()
	return p, nil
}

// Snapshot returns the latest published snapshot. ok is false until the
// first successful poll completes.
func (p *Poller) Snapshot() (Snapshot, bool) {
	s := p.snap.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// Wait blocks until a first snapshot is available or the context expires.
func (p *Poller) Wait(ctx context.Context) (Snapshot, error) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	for {
		if s, ok := p.Snapshot(); ok {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-p.stop:
			return Snapshot{}, fmt.Errorf("poller stopped before first snapshot")
		case <-ticker.C:
		}
	}
}

// Stop signals the polling goroutine and joins it. Safe to call more than
// once; returns only after the goroutine has exited.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	<-p.done

	p.bus.mu.Lock()
	if p.bus.poller == p {
		p.bus.poller = nil
	}
	p.bus.mu.Unlock()
}

func (p *Poller) run() {
	defer close(p.done)

	ctx := context.Background()
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		values, err := p.bus.SyncRead(ctx, RegPresentPosition, nil, p.normalize, 0)
		if err != nil {
			// Keep the last good snapshot; a polling leader must survive
			// transient bus noise without crashing the session.
			p.warn(err)
			continue
		}

		p.snap.Store(&Snapshot{Values: values, Taken: time.Now()})
	}
}

// warn logs at most once per second so a failure storm cannot flood output.
func (p *Poller) warn(err error) {
	now := time.Now()
	if now.Sub(p.lastWarn) < time.Second {
		return
	}
	p.lastWarn = now
	p.logger.Warn("position poll failed", slog.String("err", err.Error()))
}

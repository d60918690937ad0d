package strategy

import (
	"context"
	"time"

	"github.com/wakeguard/wakeguard/pkg/observability/logger"
	"github.com/wakeguard/wakeguard/pkg/platform"
)

// TimerName is the timer strategy's stable name.
const TimerName = "timer"

// Tick intervals. The interval tightens while the document is hidden,
// where throttling of foreground work is most aggressive, and relaxes
// when visible.
const (
	timerVisibleInterval = 30 * time.Second
	timerHiddenInterval  = 10 * time.Second
)

// Timer is the weakest strategy: a bounded, cheap recurring unit of work
// that keeps the host from idling. It prefers an out-of-main-loop ticking
// mechanism when the platform offers one and falls back to a main-loop
// interval otherwise.
type Timer struct {
	tickers platform.TickerFactory
	vis     platform.Visibility
	log     logger.Logger
	set     activeSet
	hook    func()
}

// NewTimer builds the timer strategy from the provider's ticker capability.
func NewTimer(provider *platform.Provider, log logger.Logger) *Timer {
	if log == nil {
		log = logger.NewNop()
	}
	t := &Timer{log: log}
	if provider != nil {
		t.tickers = provider.Tickers
		t.vis = provider.Visibility
	}
	return t
}

// WithDiagnosticHook sets the per-tick diagnostic hook. The default tick
// does nothing beyond keeping the ticker alive.
func (t *Timer) WithDiagnosticHook(fn func()) *Timer {
	t.hook = fn
	return t
}

// Name implements Strategy.
func (t *Timer) Name() string { return TimerName }

// Priority implements Strategy. The timer is the last resort.
func (t *Timer) Priority() int { return 40 }

// IsSupported implements Strategy.
func (t *Timer) IsSupported() bool { return t.tickers != nil }

// ActiveCount reports how many sentinels the strategy currently owns.
func (t *Timer) ActiveCount() int { return t.set.len() }

// Request starts the recurring tick. All ticking stops on release
// regardless of which mechanism was selected.
func (t *Timer) Request(ctx context.Context, kind Kind, opts Options) (*Sentinel, error) {
	if !t.IsSupported() {
		return nil, NewError(CodeNotSupported, TimerName, platform.ErrNotSupported)
	}
	if kind != KindScreen {
		return nil, NewError(CodeNotSupported, TimerName, nil)
	}

	ticker, background := t.pickTicker()

	interval := timerVisibleInterval
	if t.vis != nil && t.vis.Hidden() {
		interval = timerHiddenInterval
	}
	if err := ticker.Start(interval, t.tick); err != nil {
		return nil, translateErr(TimerName, err)
	}

	removeVis := func() {}
	if t.vis != nil {
		removeVis = t.vis.OnChange(func(hidden bool) {
			if hidden {
				ticker.SetInterval(timerHiddenInterval)
			} else {
				ticker.SetInterval(timerVisibleInterval)
			}
		})
	}

	s := newSentinel(kind, TimerName, func(context.Context) error {
		ticker.Stop()
		removeVis()
		return nil
	})
	t.set.add(s)

	t.log.Debug("timer hold acquired", "sentinel_id", s.ID(), "background", background)
	return s, nil
}

// pickTicker probes for the background mechanism and falls back to the
// main-loop interval.
func (t *Timer) pickTicker() (platform.Ticker, bool) {
	if ticker, err := t.tickers.NewBackgroundTicker(); err == nil {
		return ticker, true
	}
	return t.tickers.NewForegroundTicker(), false
}

func (t *Timer) tick() {
	if t.hook != nil {
		t.hook()
	}
}

// ReleaseAll implements Strategy.
func (t *Timer) ReleaseAll(ctx context.Context) error {
	return t.set.releaseAll(ctx, TimerName, t.log)
}

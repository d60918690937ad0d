package strategy

import (
	"context"

	"github.com/wakeguard/wakeguard/pkg/observability/logger"
	"github.com/wakeguard/wakeguard/pkg/platform"
)

// AudioName is the audio-graph strategy's stable name.
const AudioName = "audio"

// Audio keeps the device awake with an inaudible signal path: a tone
// outside the audible range at effectively zero gain. Acquisition resolves
// once the graph reports a running state within the bounded wait.
type Audio struct {
	graph platform.AudioGraph
	log   logger.Logger
	set   activeSet
}

// NewAudio builds the audio strategy from the provider's audio capability.
func NewAudio(provider *platform.Provider, log logger.Logger) *Audio {
	if log == nil {
		log = logger.NewNop()
	}
	var graph platform.AudioGraph
	if provider != nil {
		graph = provider.Audio
	}
	return &Audio{graph: graph, log: log}
}

// Name implements Strategy.
func (a *Audio) Name() string { return AudioName }

// Priority implements Strategy.
func (a *Audio) Priority() int { return 30 }

// IsSupported implements Strategy.
func (a *Audio) IsSupported() bool { return a.graph != nil }

// ActiveCount reports how many sentinels the strategy currently owns.
func (a *Audio) ActiveCount() int { return a.set.len() }

// Request starts the audio graph and verifies it reaches a running state.
// Audio holds only substitute for screen locks.
func (a *Audio) Request(ctx context.Context, kind Kind, opts Options) (*Sentinel, error) {
	if !a.IsSupported() {
		return nil, NewError(CodeNotSupported, AudioName, platform.ErrNotSupported)
	}
	if kind != KindScreen {
		return nil, NewError(CodeNotSupported, AudioName, nil)
	}

	var handle platform.AudioHandle
	err := runWithTimeout(ctx, opts.Timeout, func(c context.Context) error {
		started, err := a.graph.Start(c)
		if err != nil {
			return err
		}
		if err := started.WaitRunning(c); err != nil {
			_ = started.Teardown(context.Background())
			return err
		}
		if c.Err() != nil {
			_ = started.Teardown(context.Background())
			return c.Err()
		}
		handle = started
		return nil
	})
	if err != nil {
		return nil, translateErr(AudioName, err)
	}

	s := newSentinel(kind, AudioName, func(c context.Context) error {
		return handle.Teardown(c)
	})
	a.set.add(s)

	a.log.Debug("audio hold acquired", "sentinel_id", s.ID())
	return s, nil
}

// ReleaseAll implements Strategy.
func (a *Audio) ReleaseAll(ctx context.Context) error {
	return a.set.releaseAll(ctx, AudioName, a.log)
}

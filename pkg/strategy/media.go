package strategy

import (
	"context"

	"github.com/wakeguard/wakeguard/pkg/observability/logger"
	"github.com/wakeguard/wakeguard/pkg/platform"
)

// MediaName is the media-playback strategy's stable name.
const MediaName = "media"

// Media keeps the device awake by looping a hidden, muted, minimal media
// element. Acquisition resolves only once the element reports it is ready
// to play; an element that never reaches readiness fails with TIMEOUT.
type Media struct {
	media platform.MediaController
	log   logger.Logger
	set   activeSet
}

// NewMedia builds the media strategy from the provider's media capability.
func NewMedia(provider *platform.Provider, log logger.Logger) *Media {
	if log == nil {
		log = logger.NewNop()
	}
	var media platform.MediaController
	if provider != nil {
		media = provider.Media
	}
	return &Media{media: media, log: log}
}

// Name implements Strategy.
func (m *Media) Name() string { return MediaName }

// Priority implements Strategy.
func (m *Media) Priority() int { return 20 }

// IsSupported implements Strategy.
func (m *Media) IsSupported() bool { return m.media != nil }

// ActiveCount reports how many sentinels the strategy currently owns.
func (m *Media) ActiveCount() int { return m.set.len() }

// Request synthesizes the hidden element and waits for playback readiness.
// A media hold can only substitute for a screen lock; system requests are
// rejected as unsupported.
func (m *Media) Request(ctx context.Context, kind Kind, opts Options) (*Sentinel, error) {
	if !m.IsSupported() {
		return nil, NewError(CodeNotSupported, MediaName, platform.ErrNotSupported)
	}
	if kind != KindScreen {
		return nil, NewError(CodeNotSupported, MediaName, nil)
	}

	var handle platform.MediaHandle
	err := runWithTimeout(ctx, opts.Timeout, func(c context.Context) error {
		created, err := m.media.Create(c)
		if err != nil {
			return err
		}
		if err := created.Play(c); err != nil {
			// The element never reached readiness; tear it down eagerly.
			_ = created.Destroy(context.Background())
			return err
		}
		if c.Err() != nil {
			_ = created.Destroy(context.Background())
			return c.Err()
		}
		handle = created
		return nil
	})
	if err != nil {
		return nil, translateErr(MediaName, err)
	}

	s := newSentinel(kind, MediaName, func(c context.Context) error {
		return handle.Destroy(c)
	})
	m.set.add(s)

	m.log.Debug("media hold acquired", "sentinel_id", s.ID())
	return s, nil
}

// ReleaseAll implements Strategy.
func (m *Media) ReleaseAll(ctx context.Context) error {
	return m.set.releaseAll(ctx, MediaName, m.log)
}

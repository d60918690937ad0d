package strategy

import (
	"context"

	"github.com/wakeguard/wakeguard/pkg/observability/logger"
	"github.com/wakeguard/wakeguard/pkg/platform"
)

// NativeName is the native strategy's stable name.
const NativeName = "native"

// Native wraps the device's own sleep-inhibition capability. It is the
// preferred strategy: the thinnest wrapper with the strongest guarantee.
type Native struct {
	locker platform.NativeLocker
	log    logger.Logger
	set    activeSet
}

// NewNative builds the native strategy from the provider's lock capability.
func NewNative(provider *platform.Provider, log logger.Logger) *Native {
	if log == nil {
		log = logger.NewNop()
	}
	var locker platform.NativeLocker
	if provider != nil {
		locker = provider.Native
	}
	return &Native{locker: locker, log: log}
}

// Name implements Strategy.
func (n *Native) Name() string { return NativeName }

// Priority implements Strategy. The native lock is always tried first.
func (n *Native) Priority() int { return 10 }

// IsSupported implements Strategy.
func (n *Native) IsSupported() bool { return n.locker != nil }

// ActiveCount reports how many sentinels the strategy currently owns.
func (n *Native) ActiveCount() int { return n.set.len() }

// Request acquires a native hold. External revocations of the underlying
// lock flip the returned sentinel to released without a second platform
// call.
func (n *Native) Request(ctx context.Context, kind Kind, opts Options) (*Sentinel, error) {
	if !n.IsSupported() {
		return nil, NewError(CodeNotSupported, NativeName, platform.ErrNotSupported)
	}
	if !kind.Valid() {
		return nil, NewError(CodeNotSupported, NativeName, nil)
	}

	var lock platform.NativeLock
	err := runWithTimeout(ctx, opts.Timeout, func(c context.Context) error {
		acquired, err := n.locker.Acquire(c, string(kind))
		if err != nil {
			return err
		}
		if c.Err() != nil {
			// The race was already lost; do not leak the late acquisition.
			_ = acquired.Release(context.Background())
			return c.Err()
		}
		lock = acquired
		return nil
	})
	if err != nil {
		return nil, translateErr(NativeName, err)
	}

	s := newSentinel(kind, NativeName, func(c context.Context) error {
		return lock.Release(c)
	})
	n.set.add(s)

	removeRevocation := lock.OnRelease(func() {
		n.log.Debug("native lock revoked by platform", "sentinel_id", s.ID())
		s.revoke()
	})
	s.OnRelease(func(*Sentinel) { removeRevocation() })

	n.log.Debug("native lock acquired", "kind", kind, "sentinel_id", s.ID())
	return s, nil
}

// ReleaseAll implements Strategy.
func (n *Native) ReleaseAll(ctx context.Context) error {
	return n.set.releaseAll(ctx, NativeName, n.log)
}

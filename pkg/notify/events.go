package notify

import "time"

// EventType identifies one notification channel.
type EventType string

// Notification channels emitted by the library.
const (
	// EventEnabled fires after an acquisition fully resolves.
	EventEnabled EventType = "enabled"
	// EventDisabled fires after the active hold is released.
	EventDisabled EventType = "disabled"
	// EventError reports a recovered failure.
	EventError EventType = "error"
	// EventPerformance carries a periodic performance sample.
	EventPerformance EventType = "performance"
	// EventFallback fires between a failed strategy attempt and the next one.
	EventFallback EventType = "fallback"
	// EventBatteryChange reports a battery level or charging transition.
	EventBatteryChange EventType = "battery-change"
	// EventVisibilityChange reports a document visibility transition.
	EventVisibilityChange EventType = "visibility-change"
)

// Event is one published notification.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Release reasons used in DisabledPayload.
const (
	ReasonManualRelease    = "manual-release"
	ReasonAutomaticRelease = "automatic-release"
)

// EnabledPayload accompanies EventEnabled.
type EnabledPayload struct {
	Kind     string `json:"kind"`
	Strategy string `json:"strategy"`
}

// DisabledPayload accompanies EventDisabled.
type DisabledPayload struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// ErrorPayload accompanies EventError. Strategy is empty when the failure
// is not attributable to a single strategy.
type ErrorPayload struct {
	Err      error  `json:"-"`
	Message  string `json:"message"`
	Strategy string `json:"strategy,omitempty"`
}

// PerformancePayload accompanies EventPerformance.
type PerformancePayload struct {
	CPUPercent   float64   `json:"cpu_percent"`
	MemoryBytes  uint64    `json:"memory_bytes"`
	BatteryDrain float64   `json:"battery_drain"`
	SampledAt    time.Time `json:"sampled_at"`
}

// FallbackPayload accompanies EventFallback. To is empty when the failed
// strategy was the last in the chain.
type FallbackPayload struct {
	From   string `json:"from"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason"`
}

// BatteryChangePayload accompanies EventBatteryChange. Level is 0..1.
type BatteryChangePayload struct {
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
}

// VisibilityChangePayload accompanies EventVisibilityChange.
type VisibilityChangePayload struct {
	Hidden bool   `json:"hidden"`
	Action string `json:"action"`
}

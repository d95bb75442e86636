package command

import (
	"strings"

	"github.com/goliatone/go-appshell/core"
)

const (
	TypePublish     = "appshell.command.pubsub.publish"
	TypeMergeConfig = "appshell.command.config.merge"
	TypeTrackEvent  = "appshell.command.analytics.track"
	TypeLogError    = "appshell.command.logging.error"
)

// Event kinds accepted by TrackEventMessage.
const (
	EventKindTrack       = "track"
	EventKindPage        = "page"
	EventKindTrackingLog = "tracking_log"
)

type PublishMessage struct {
	Topic string
	Data  any
}

func (PublishMessage) Type() string { return TypePublish }

func (m PublishMessage) Validate() error {
	if strings.TrimSpace(m.Topic) == "" {
		return commandValidationError("topic", "topic is required")
	}
	return nil
}

type MergeConfigMessage struct {
	Values map[string]any
}

func (MergeConfigMessage) Type() string { return TypeMergeConfig }

func (m MergeConfigMessage) Validate() error {
	if len(m.Values) == 0 {
		return commandValidationError("values", "at least one config value is required")
	}
	return nil
}

type TrackEventMessage struct {
	// Kind defaults to EventKindTrack.
	Kind       string
	Name       string
	Category   string
	Properties map[string]any
}

func (TrackEventMessage) Type() string { return TypeTrackEvent }

func (m TrackEventMessage) Validate() error {
	switch m.kind() {
	case EventKindTrack, EventKindPage, EventKindTrackingLog:
	default:
		return commandValidationError("kind", "unsupported event kind "+m.Kind)
	}
	if strings.TrimSpace(m.Name) == "" {
		return commandValidationError("name", "event name is required")
	}
	return nil
}

func (m TrackEventMessage) kind() string {
	kind := strings.ToLower(strings.TrimSpace(m.Kind))
	if kind == "" {
		return EventKindTrack
	}
	return kind
}

type LogErrorMessage struct {
	Err        error
	Attributes map[string]any
}

func (LogErrorMessage) Type() string { return TypeLogError }

func (m LogErrorMessage) Validate() error {
	if m.Err == nil {
		return commandValidationError("err", "error is required")
	}
	return nil
}

func cloneAttributes(attrs map[string]any) map[string]any {
	return core.CloneFields(attrs)
}

package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
)

// Publisher, ConfigMerger, EventSender and ErrorLogger are satisfied by
// *core.Shell.
type Publisher interface {
	Publish(topic string, data any) (bool, error)
}

type ConfigMerger interface {
	MergeConfig(partial map[string]any) error
}

type EventSender interface {
	SendTrackingLogEvent(ctx context.Context, eventName string, properties map[string]any) error
	SendTrackEvent(ctx context.Context, eventName string, properties map[string]any) error
	SendPageEvent(ctx context.Context, category string, name string, properties map[string]any) error
}

type ErrorLogger interface {
	LogError(err error, attrs map[string]any) error
}

type PublishCommand struct {
	publisher Publisher
}

func NewPublishCommand(publisher Publisher) *PublishCommand {
	return &PublishCommand{publisher: publisher}
}

// Execute publishes the message and stores whether any subscriber received it.
func (c *PublishCommand) Execute(ctx context.Context, msg PublishMessage) error {
	if c == nil || c.publisher == nil {
		return commandDependencyError("command: pubsub publisher is required")
	}
	delivered, err := c.publisher.Publish(msg.Topic, msg.Data)
	if err != nil {
		return err
	}
	storeResult(ctx, delivered)
	return nil
}

type MergeConfigCommand struct {
	merger ConfigMerger
}

func NewMergeConfigCommand(merger ConfigMerger) *MergeConfigCommand {
	return &MergeConfigCommand{merger: merger}
}

func (c *MergeConfigCommand) Execute(_ context.Context, msg MergeConfigMessage) error {
	if c == nil || c.merger == nil {
		return commandDependencyError("command: config service is required")
	}
	return c.merger.MergeConfig(cloneAttributes(msg.Values))
}

type TrackEventCommand struct {
	sender EventSender
}

func NewTrackEventCommand(sender EventSender) *TrackEventCommand {
	return &TrackEventCommand{sender: sender}
}

func (c *TrackEventCommand) Execute(ctx context.Context, msg TrackEventMessage) error {
	if c == nil || c.sender == nil {
		return commandDependencyError("command: analytics service is required")
	}
	properties := cloneAttributes(msg.Properties)
	switch msg.kind() {
	case EventKindPage:
		return c.sender.SendPageEvent(ctx, msg.Category, msg.Name, properties)
	case EventKindTrackingLog:
		return c.sender.SendTrackingLogEvent(ctx, msg.Name, properties)
	default:
		return c.sender.SendTrackEvent(ctx, msg.Name, properties)
	}
}

type LogErrorCommand struct {
	logger ErrorLogger
}

func NewLogErrorCommand(logger ErrorLogger) *LogErrorCommand {
	return &LogErrorCommand{logger: logger}
}

func (c *LogErrorCommand) Execute(_ context.Context, msg LogErrorMessage) error {
	if c == nil || c.logger == nil {
		return commandDependencyError("command: logging service is required")
	}
	return c.logger.LogError(msg.Err, cloneAttributes(msg.Attributes))
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

package command

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-appshell/config"
	"github.com/goliatone/go-appshell/core"
	"github.com/goliatone/go-appshell/pubsub"
	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
)

type stubSender struct {
	calls []string
	last  map[string]any
}

func (s *stubSender) SendTrackingLogEvent(_ context.Context, name string, properties map[string]any) error {
	s.calls = append(s.calls, "tracking_log:"+name)
	s.last = properties
	return nil
}

func (s *stubSender) SendTrackEvent(_ context.Context, name string, properties map[string]any) error {
	s.calls = append(s.calls, "track:"+name)
	s.last = properties
	return nil
}

func (s *stubSender) SendPageEvent(_ context.Context, category string, name string, properties map[string]any) error {
	s.calls = append(s.calls, "page:"+category+":"+name)
	s.last = properties
	return nil
}

type stubErrorLogger struct {
	errs  []error
	attrs map[string]any
}

func (l *stubErrorLogger) LogError(err error, attrs map[string]any) error {
	l.errs = append(l.errs, err)
	l.attrs = attrs
	return nil
}

func TestPublishCommand_StoresDeliveryResult(t *testing.T) {
	shell := core.NewShell()
	if _, err := shell.ConfigurePubSub(pubsub.New, core.ServiceOptions{}); err != nil {
		t.Fatalf("configure pubsub: %v", err)
	}
	var received any
	if _, err := shell.Subscribe("APP_READY", func(_ string, data any) { received = data }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	collector := gocmd.NewResult[bool]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewPublishCommand(shell).Execute(ctx, PublishMessage{Topic: "APP_READY", Data: "payload"}); err != nil {
		t.Fatalf("execute publish: %v", err)
	}
	delivered, ok := collector.Load()
	if !ok || !delivered {
		t.Fatalf("expected delivered=true to be stored")
	}
	if received != "payload" {
		t.Fatalf("expected subscriber to receive payload, got %v", received)
	}
}

func TestPublishCommand_NotConfiguredBubbles(t *testing.T) {
	err := NewPublishCommand(core.NewShell()).Execute(context.Background(), PublishMessage{Topic: "x"})
	if !errors.Is(err, core.ErrNotConfigured) {
		t.Fatalf("expected not configured error, got %v", err)
	}
}

func TestMergeConfigCommand_MergesThroughShell(t *testing.T) {
	shell := core.NewShell()
	if _, err := shell.ConfigureConfig(config.New, core.ServiceOptions{}); err != nil {
		t.Fatalf("configure config: %v", err)
	}
	values := map[string]any{"app_id": "learning"}
	if err := NewMergeConfigCommand(shell).Execute(context.Background(), MergeConfigMessage{Values: values}); err != nil {
		t.Fatalf("execute merge: %v", err)
	}
	if got := shell.GetConfig().AppID; got != "learning" {
		t.Fatalf("expected merged app id, got %q", got)
	}
}

func TestTrackEventCommand_RoutesByKind(t *testing.T) {
	sender := &stubSender{}
	cmd := NewTrackEventCommand(sender)
	ctx := context.Background()

	messages := []TrackEventMessage{
		{Name: "edx.course.enrolled", Properties: map[string]any{"course": "c1"}},
		{Kind: "page", Category: "courses", Name: "home"},
		{Kind: "TRACKING_LOG", Name: "edx.ui.click"},
	}
	for _, msg := range messages {
		if err := msg.Validate(); err != nil {
			t.Fatalf("validate %+v: %v", msg, err)
		}
		if err := cmd.Execute(ctx, msg); err != nil {
			t.Fatalf("execute %+v: %v", msg, err)
		}
	}
	want := []string{"track:edx.course.enrolled", "page:courses:home", "tracking_log:edx.ui.click"}
	for index, call := range want {
		if sender.calls[index] != call {
			t.Fatalf("expected call %q at %d, got %v", call, index, sender.calls)
		}
	}
}

func TestTrackEventCommand_PropertiesAreCopied(t *testing.T) {
	sender := &stubSender{}
	properties := map[string]any{"course": "c1"}
	if err := NewTrackEventCommand(sender).Execute(context.Background(), TrackEventMessage{Name: "e", Properties: properties}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	sender.last["course"] = "mutated"
	if properties["course"] != "c1" {
		t.Fatalf("expected caller properties to stay untouched")
	}
}

func TestLogErrorCommand_Delegates(t *testing.T) {
	logger := &stubErrorLogger{}
	cause := errors.New("boom")
	if err := NewLogErrorCommand(logger).Execute(context.Background(), LogErrorMessage{
		Err:        cause,
		Attributes: map[string]any{"component": "header"},
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(logger.errs) != 1 || logger.errs[0] != cause {
		t.Fatalf("expected error to be forwarded")
	}
	if logger.attrs["component"] != "header" {
		t.Fatalf("expected attributes to be forwarded")
	}
}

func TestMessages_ValidateReturnsRichErrors(t *testing.T) {
	invalid := []interface{ Validate() error }{
		PublishMessage{},
		MergeConfigMessage{},
		TrackEventMessage{Kind: "identify", Name: "x"},
		TrackEventMessage{},
		LogErrorMessage{},
	}
	for _, msg := range invalid {
		err := msg.Validate()
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%T: expected go-errors envelope, got %v", msg, err)
		}
		if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.ShellErrorBadInput {
			t.Fatalf("%T: expected validation bad input, got %q %q", msg, rich.Category, rich.TextCode)
		}
	}
}

func TestCommands_NilDependencyReturnsInternalError(t *testing.T) {
	var publish *PublishCommand
	err := publish.Execute(context.Background(), PublishMessage{Topic: "x"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal dependency error, got %v", err)
	}
	if err := NewLogErrorCommand(nil).Execute(context.Background(), LogErrorMessage{}); err == nil {
		t.Fatalf("expected missing logger to fail")
	}
}

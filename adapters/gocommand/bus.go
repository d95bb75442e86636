package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	appcommand "github.com/goliatone/go-appshell/command"
	"github.com/goliatone/go-appshell/core"
	appquery "github.com/goliatone/go-appshell/query"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// Bus puts shell operations on the go-command dispatcher. Handlers are
// registered with the Bus registry so resolvers such as the go-job queue see
// them, and Close drops every dispatcher subscription made through the Bus.
type Bus struct {
	mu            sync.Mutex
	registry      *command.Registry
	subscriptions []commanddispatcher.Subscription
	started       bool
}

func NewBus(registry *command.Registry) *Bus {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Bus{registry: registry}
}

func (b *Bus) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

// UseQueue mirrors registered handlers into a go-job queue registry under key
// once Start runs.
func (b *Bus) UseQueue(key string, queue *jobqueuecommand.Registry) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	if queue == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("gocommand: resolver key is required")
	}
	if b.registry.HasResolver(key) {
		return fmt.Errorf("gocommand: resolver %q already registered", key)
	}
	return b.registry.AddResolver(key, jobqueuecommand.QueueResolver(queue))
}

// Start runs the registry resolvers. Later calls are no-ops.
func (b *Bus) Start() error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if err := b.registry.Initialize(); err != nil {
		return err
	}
	b.started = true
	return nil
}

func (b *Bus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	subscriptions := b.subscriptions
	b.subscriptions = nil
	b.mu.Unlock()
	for _, subscription := range subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

func (b *Bus) track(subscription commanddispatcher.Subscription) {
	b.mu.Lock()
	b.subscriptions = append(b.subscriptions, subscription)
	b.mu.Unlock()
}

// truncate unsubscribes everything added after the first n subscriptions.
func (b *Bus) truncate(n int) {
	b.mu.Lock()
	if n >= len(b.subscriptions) {
		b.mu.Unlock()
		return
	}
	dropped := append([]commanddispatcher.Subscription(nil), b.subscriptions[n:]...)
	b.subscriptions = b.subscriptions[:n]
	b.mu.Unlock()
	for _, subscription := range dropped {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

func HandleCommand[T any](b *Bus, cmd command.Commander[T], opts ...runner.Option) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	if cmd == nil {
		return fmt.Errorf("gocommand: command is required")
	}
	if err := b.registry.RegisterCommand(cmd); err != nil {
		return err
	}
	b.track(commanddispatcher.SubscribeCommand(cmd, opts...))
	return nil
}

func HandleQuery[T any, R any](b *Bus, qry command.Querier[T, R], opts ...runner.Option) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	if qry == nil {
		return fmt.Errorf("gocommand: query is required")
	}
	if err := b.registry.RegisterCommand(qry); err != nil {
		return err
	}
	b.track(commanddispatcher.SubscribeQuery(qry, opts...))
	return nil
}

// RegisterShell exposes shell operations on bus. tokens is optional; when nil
// the token query is not registered. When tokens also implements
// appquery.UserFetcher, user queries can refresh. On error nothing registered
// by this call stays subscribed.
func RegisterShell(b *Bus, shell *core.Shell, tokens appquery.TokenReader) (err error) {
	if shell == nil {
		return fmt.Errorf("gocommand: shell is required")
	}
	if b == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	mark := b.Len()
	defer func() {
		if err != nil {
			b.truncate(mark)
		}
	}()

	fetcher, _ := tokens.(appquery.UserFetcher)
	steps := []func() error{
		func() error { return HandleCommand[appcommand.PublishMessage](b, appcommand.NewPublishCommand(shell)) },
		func() error {
			return HandleCommand[appcommand.MergeConfigMessage](b, appcommand.NewMergeConfigCommand(shell))
		},
		func() error {
			return HandleCommand[appcommand.TrackEventMessage](b, appcommand.NewTrackEventCommand(shell))
		},
		func() error {
			return HandleCommand[appcommand.LogErrorMessage](b, appcommand.NewLogErrorCommand(shell))
		},
		func() error {
			return HandleQuery[appquery.GetConfigMessage, core.Config](b, appquery.NewGetConfigQuery(shell))
		},
		func() error {
			return HandleQuery[appquery.AuthenticatedUserMessage, *core.AuthenticatedUser](b, appquery.NewAuthenticatedUserQuery(shell, fetcher))
		},
	}
	if tokens != nil {
		steps = append(steps, func() error {
			return HandleQuery[appquery.GetTokenMessage, string](b, appquery.NewGetTokenQuery(tokens))
		})
	}
	for _, step := range steps {
		if err = step(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMessage requires a non-empty Type() and runs Validate() when the
// message has one.
func ValidateMessage(msg any) error {
	typed, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: %T does not implement Type() string", msg)
	}
	if strings.TrimSpace(typed.Type()) == "" {
		return fmt.Errorf("gocommand: %T has an empty message type", msg)
	}
	return command.ValidateMessage(msg)
}

// Dispatch validates msg before handing it to the dispatcher.
func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessage(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessage(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}

package pubsub

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-appshell/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// TopicSeparator splits hierarchical topics. Publishing "a.b" also reaches
// subscribers of "a".
const TopicSeparator = "."

type subscription struct {
	token    string
	topic    string
	callback core.Callback
}

// Bus is the in-memory PubSubService. Delivery is synchronous, in
// subscription order, most specific topic first.
type Bus struct {
	mu     sync.RWMutex
	topics map[string][]subscription
	tokens map[string]string
	logger core.Logger
	newID  func() string
}

type Option func(*Bus)

func WithLogger(logger core.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTokenGenerator replaces the uuid token source.
func WithTokenGenerator(next func() string) Option {
	return func(b *Bus) {
		if next != nil {
			b.newID = next
		}
	}
}

func NewBus(options ...Option) *Bus {
	bus := &Bus{
		topics: map[string][]subscription{},
		tokens: map[string]string{},
		logger: glog.Nop(),
		newID:  uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(bus)
		}
	}
	return bus
}

// New is a core.Constructor for the pub/sub slot.
func New(opts core.ServiceOptions) (core.PubSubService, error) {
	return NewBus(WithLogger(opts.Logger)), nil
}

// Subscribe registers callback for topic and returns its unsubscribe token.
// Empty topics and nil callbacks are ignored and yield an empty token.
func (b *Bus) Subscribe(topic string, callback core.Callback) string {
	topic = normalizeTopic(topic)
	if topic == "" || callback == nil {
		return ""
	}
	token := b.newID()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = append(b.topics[topic], subscription{token: token, topic: topic, callback: callback})
	b.tokens[token] = topic
	return token
}

func (b *Bus) Unsubscribe(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	topic, ok := b.tokens[token]
	if !ok {
		return false
	}
	delete(b.tokens, token)
	subs := b.topics[topic]
	for i, sub := range subs {
		if sub.token == token {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.topics, topic)
	} else {
		b.topics[topic] = subs
	}
	return true
}

// UnsubscribeTopic drops every subscriber registered exactly on topic.
func (b *Bus) UnsubscribeTopic(topic string) int {
	topic = normalizeTopic(topic)
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[topic]
	for _, sub := range subs {
		delete(b.tokens, sub.token)
	}
	delete(b.topics, topic)
	return len(subs)
}

func (b *Bus) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = map[string][]subscription{}
	b.tokens = map[string]string{}
}

// Publish delivers data and reports whether any subscriber received it.
func (b *Bus) Publish(topic string, data any) bool {
	topic = normalizeTopic(topic)
	if topic == "" {
		return false
	}
	targets := b.snapshot(topic)
	for _, sub := range targets {
		b.deliver(sub, topic, data)
	}
	return len(targets) > 0
}

// SubscriberCount counts subscribers registered exactly on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[normalizeTopic(topic)])
}

func (b *Bus) snapshot(topic string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]subscription, 0)
	for _, candidate := range topicChain(topic) {
		out = append(out, b.topics[candidate]...)
	}
	return out
}

func (b *Bus) deliver(sub subscription, topic string, data any) {
	defer func() {
		if recovered := recover(); recovered != nil {
			core.Log(context.Background(), b.logger, "error", "pubsub subscriber panicked", map[string]any{
				"topic":              topic,
				"subscription_topic": sub.topic,
				"token":              sub.token,
				"panic":              fmt.Sprint(recovered),
			})
		}
	}()
	sub.callback(topic, data)
}

// topicChain returns topic followed by each of its ancestors.
func topicChain(topic string) []string {
	chain := []string{topic}
	for {
		idx := strings.LastIndex(topic, TopicSeparator)
		if idx <= 0 {
			return chain
		}
		topic = topic[:idx]
		chain = append(chain, topic)
	}
}

func normalizeTopic(topic string) string {
	return strings.Trim(strings.TrimSpace(topic), TopicSeparator)
}

var (
	_ core.PubSubService = (*Bus)(nil)
	_ core.Publisher     = (*Bus)(nil)
)

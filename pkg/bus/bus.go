// Package bus is an in-process topic bus. Delivery is synchronous in the
// publisher's goroutine and a failing subscriber never affects the others.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/din-network/din-monitor/pkg/metrics"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, msg *Message) error

// Transport receives a copy of every delivered message, e.g. to forward it off-process.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// Verifier rejects a signed message by returning an error.
type Verifier func(msg *Message) error

type Option func(*Bus)

func WithTopics(topics ...Topic) Option {
	return func(b *Bus) {
		for _, topic := range topics {
			b.addTopic(topic)
		}
	}
}

func WithVerifier(verifier Verifier) Option {
	return func(b *Bus) {
		b.verifier = verifier
	}
}

// WithRequiredSignatures drops unsigned messages instead of delivering them.
func WithRequiredSignatures() Option {
	return func(b *Bus) {
		b.requireSigned = true
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		b.now = now
	}
}

type subscription struct {
	id      uint64
	handler Handler
}

type Bus struct {
	logger        *zap.Logger
	now           func() time.Time
	verifier      Verifier
	requireSigned bool

	lock       sync.RWMutex
	topics     map[Topic]*atomic.Uint64
	handlers   map[Topic][]subscription
	wildcard   []subscription
	transports []Transport
	nextID     uint64

	activeLock sync.Mutex
	active     map[string]*time.Timer

	published  atomic.Uint64
	dropped    atomic.Uint64
	byPriority [4]atomic.Uint64
}

func New(zapLogger *zap.Logger, opts ...Option) *Bus {
	b := &Bus{
		logger:   zapLogger,
		now:      time.Now,
		topics:   make(map[Topic]*atomic.Uint64),
		handlers: make(map[Topic][]subscription),
		active:   make(map[string]*time.Timer),
	}
	for _, topic := range DefaultTopics {
		b.addTopic(topic)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) addTopic(topic Topic) {
	if _, ok := b.topics[topic]; !ok {
		b.topics[topic] = atomic.NewUint64(0)
	}
}

func (b *Bus) KnownTopic(topic Topic) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	_, ok := b.topics[topic]
	return ok
}

func (b *Bus) drop(reason string) {
	b.dropped.Inc()
	metrics.BusDropped.WithLabelValues(reason).Inc()
}

// Publish delivers msg to every subscriber of its topic, then to the wildcard
// subscribers and the registered transports. Expired, unknown-topic and badly
// signed messages are dropped with a warning, as are unsigned ones when
// signatures are required.
func (b *Bus) Publish(ctx context.Context, msg *Message) {
	logger := b.logger.Sugar()
	now := b.now()

	if msg.Expired(now) {
		logger.Warnw("dropping expired message", "id", msg.ID, "topic", msg.Topic, "ts", msg.Timestamp, "ttl", msg.TTL)
		b.drop("expired")
		return
	}

	if b.requireSigned && msg.Signature == "" {
		logger.Warnw("dropping unsigned message", "id", msg.ID, "topic", msg.Topic, "role", msg.Role)
		b.drop("unsigned")
		return
	}

	if b.verifier != nil && msg.Signature != "" {
		if err := b.verifier(msg); err != nil {
			logger.Warnw("dropping message with invalid signature", "id", msg.ID, "topic", msg.Topic, "error", err)
			b.drop("signature")
			return
		}
	}

	b.lock.RLock()
	topicCount, ok := b.topics[msg.Topic]
	handlers := append([]subscription(nil), b.handlers[msg.Topic]...)
	handlers = append(handlers, b.wildcard...)
	transports := append([]Transport(nil), b.transports...)
	b.lock.RUnlock()

	if !ok {
		logger.Warnw("dropping message for unknown topic", "id", msg.ID, "topic", msg.Topic)
		b.drop("unknown_topic")
		return
	}

	b.published.Inc()
	topicCount.Inc()
	b.byPriority[priorityIndex(msg.Priority)].Inc()
	metrics.BusPublished.WithLabelValues(string(msg.Topic)).Inc()

	if msg.TTL > 0 {
		b.track(msg, now)
	}

	for _, sub := range handlers {
		b.deliver(ctx, sub, msg)
	}

	for _, transport := range transports {
		if err := transport.Send(ctx, msg); err != nil {
			logger.Warnw("transport failed to send message", "transport", transport.Name(), "id", msg.ID, "topic", msg.Topic, "error", err)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscription, msg *Message) {
	logger := b.logger.Sugar()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("subscriber panicked", "subscription", sub.id, "id", msg.ID, "topic", msg.Topic, "panic", r)
		}
	}()

	if err := sub.handler(ctx, msg); err != nil {
		logger.Warnw("subscriber failed", "subscription", sub.id, "id", msg.ID, "topic", msg.Topic, "error", err)
	}
}

func priorityIndex(p Priority) int {
	if p >= PriorityHigh && p <= PriorityLow {
		return int(p)
	}
	return 0
}

// track keeps msg in the active set until its TTL elapses.
func (b *Bus) track(msg *Message, now time.Time) {
	remaining := msg.Timestamp.Add(msg.TTL).Sub(now)
	id := msg.ID

	b.activeLock.Lock()
	defer b.activeLock.Unlock()

	if timer, ok := b.active[id]; ok {
		timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(remaining, func() {
		b.activeLock.Lock()
		defer b.activeLock.Unlock()
		if b.active[id] == timer {
			delete(b.active, id)
		}
	})
	b.active[id] = timer
}

func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, handler: handler})

	return func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		b.handlers[topic] = remove(b.handlers[topic], id)
		if len(b.handlers[topic]) == 0 {
			delete(b.handlers, topic)
		}
	}
}

// SubscribeAll registers a handler for every topic.
func (b *Bus) SubscribeAll(handler Handler) func() {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.nextID++
	id := b.nextID
	b.wildcard = append(b.wildcard, subscription{id: id, handler: handler})

	return func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		b.wildcard = remove(b.wildcard, id)
	}
}

func remove(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, sub := range subs {
		if sub.id != id {
			out = append(out, sub)
		}
	}
	return out
}

// SubscribeTyped decodes the payload into T before calling fn. Payloads that
// are not already a T are converted through JSON.
func SubscribeTyped[T any](b *Bus, topic Topic, fn func(ctx context.Context, msg *Message, payload T) error) func() {
	return b.Subscribe(topic, func(ctx context.Context, msg *Message) error {
		payload, err := DecodePayload[T](msg)
		if err != nil {
			return err
		}
		return fn(ctx, msg, payload)
	})
}

func DecodePayload[T any](msg *Message) (T, error) {
	var out T
	switch p := msg.Payload.(type) {
	case T:
		return p, nil
	case *T:
		if p != nil {
			return *p, nil
		}
	}

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return out, fmt.Errorf("could not encode payload of message %s: %v", msg.ID, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("could not decode payload of message %s as %T: %v", msg.ID, out, err)
	}
	return out, nil
}

func (b *Bus) RegisterTransport(transport Transport) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.transports = append(b.transports, transport)
	b.logger.Sugar().Infow("registered bus transport", "transport", transport.Name())
}

type Stats struct {
	PublishedCount     uint64            `json:"publishedCount"`
	DroppedCount       uint64            `json:"droppedCount"`
	SubscriberCount    int               `json:"subscriberCount"`
	Topics             []Topic           `json:"topics"`
	ActiveMessageCount int               `json:"activeMessageCount"`
	ByTopic            map[Topic]uint64  `json:"byTopic"`
	ByPriority         map[string]uint64 `json:"byPriority"`
}

func (b *Bus) GetStats() Stats {
	stats := Stats{
		PublishedCount: b.published.Load(),
		DroppedCount:   b.dropped.Load(),
		Topics:         []Topic{},
		ByTopic:        make(map[Topic]uint64),
		ByPriority:     make(map[string]uint64),
	}

	b.lock.RLock()
	for topic, subs := range b.handlers {
		if len(subs) == 0 {
			continue
		}
		stats.SubscriberCount += len(subs)
		stats.Topics = append(stats.Topics, topic)
	}
	stats.SubscriberCount += len(b.wildcard)
	for topic, count := range b.topics {
		if n := count.Load(); n > 0 {
			stats.ByTopic[topic] = n
		}
	}
	b.lock.RUnlock()

	sort.Slice(stats.Topics, func(i, j int) bool { return stats.Topics[i] < stats.Topics[j] })

	for i := range b.byPriority {
		if n := b.byPriority[i].Load(); n > 0 {
			stats.ByPriority[Priority(i).String()] = n
		}
	}

	b.activeLock.Lock()
	stats.ActiveMessageCount = len(b.active)
	b.activeLock.Unlock()

	return stats
}

// SubscriberCount returns the number of subscribers of topic, wildcard subscribers excluded.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.handlers[topic])
}

// Close cancels the pending TTL bookkeeping.
func (b *Bus) Close() {
	b.activeLock.Lock()
	defer b.activeLock.Unlock()
	for id, timer := range b.active {
		timer.Stop()
		delete(b.active, id)
	}
}

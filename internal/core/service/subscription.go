package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// Defaults of the notification pipeline.
const (
	DefaultNotifyWorkers   = 16
	DefaultNotifyQueueSize = 256

	// DefaultOutboundSize is the number of pushes buffered per subscriber.
	DefaultOutboundSize = 64
)

// PushFunc delivers one resource to a subscriber's connection.
type PushFunc func(r *domain.Resource) error

// Relay forwards subscriptions to peer nodes.
type Relay interface {
	// Subscribe registers template with every peer and returns the
	// correlation id used to cancel it.
	Subscribe(template *domain.Resource) string

	// Unsubscribe cancels the relayed subscription on every peer that
	// acknowledged it.
	Unsubscribe(correlationID string)
}

// SubscriptionHooks observe the subscription engine. Any field may be nil.
type SubscriptionHooks struct {
	SubscriberAdded   func()
	SubscriberRemoved func()
	Delivered         func()
}

// SubscriptionService keeps the subscribers of a node and delivers
// published resources to them.
//
// Notify hands a copy of the resource to one of a fixed set of workers,
// chosen by hashing the resource key, so updates of one resource are
// delivered in publish order. Workers never write to a connection: each
// subscriber drains its own bounded outbound queue.
type SubscriptionService struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}

	queues       []chan notification
	outboundSize int
	hooks        SubscriptionHooks
	logger       *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// SubscriptionOption configures the SubscriptionService.
type SubscriptionOption func(*SubscriptionService)

// WithNotifyWorkers sets the number of notification workers and the
// queue depth of each.
func WithNotifyWorkers(workers, queueSize int) SubscriptionOption {
	return func(s *SubscriptionService) {
		if workers <= 0 {
			workers = DefaultNotifyWorkers
		}
		if queueSize <= 0 {
			queueSize = DefaultNotifyQueueSize
		}
		s.queues = newQueues(workers, queueSize)
	}
}

// WithOutboundBuffer sets how many pushes a subscriber may have pending.
// A subscriber that falls further behind is dropped.
func WithOutboundBuffer(n int) SubscriptionOption {
	return func(s *SubscriptionService) {
		if n <= 0 {
			n = DefaultOutboundSize
		}
		s.outboundSize = n
	}
}

// WithSubscriptionHooks installs observation hooks.
func WithSubscriptionHooks(h SubscriptionHooks) SubscriptionOption {
	return func(s *SubscriptionService) {
		s.hooks = h
	}
}

// WithSubscriptionLogger sets the logger.
func WithSubscriptionLogger(l *slog.Logger) SubscriptionOption {
	return func(s *SubscriptionService) {
		if l != nil {
			s.logger = l
		}
	}
}

// notification is one queued resource. Relayed resources came from a peer
// and only reach subscriptions that asked for relaying.
type notification struct {
	res     *domain.Resource
	relayed bool
}

func newQueues(workers, size int) []chan notification {
	qs := make([]chan notification, workers)
	for i := range qs {
		qs[i] = make(chan notification, size)
	}
	return qs
}

// NewSubscriptionService creates a SubscriptionService. Run must be
// started for notifications to be delivered.
func NewSubscriptionService(opts ...SubscriptionOption) *SubscriptionService {
	s := &SubscriptionService{
		subscribers: make(map[*Subscriber]struct{}),
		queues:       newQueues(DefaultNotifyWorkers, DefaultNotifyQueueSize),
		outboundSize: DefaultOutboundSize,
		logger:       slog.Default(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run delivers queued notifications until ctx is cancelled.
func (s *SubscriptionService) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, q := range s.queues {
		wg.Add(1)
		go func(q <-chan notification) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case n := <-q:
					s.deliver(n)
				}
			}
		}(q)
	}
	<-ctx.Done()
	s.closeOnce.Do(func() { close(s.done) })
	wg.Wait()
	return nil
}

// Notify queues a resource published on this node for delivery to every
// matching subscriber. It blocks while the worker queue is full and returns
// immediately once the service has stopped.
func (s *SubscriptionService) Notify(r *domain.Resource) {
	s.enqueue(notification{res: r.Clone()})
}

// NotifyRelayed queues a resource pushed by a peer. It is delivered only to
// subscriptions made with relay set.
func (s *SubscriptionService) NotifyRelayed(r *domain.Resource) {
	s.enqueue(notification{res: r.Clone(), relayed: true})
}

func (s *SubscriptionService) enqueue(n notification) {
	q := s.queues[murmur3.Sum32([]byte(n.res.Key().String()))%uint32(len(s.queues))]
	select {
	case q <- n:
	case <-s.done:
	}
}

func (s *SubscriptionService) deliver(n notification) {
	s.mu.RLock()
	subs := make([]*Subscriber, 0, len(s.subscribers))
	for sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.tryDeliver(n)
	}
}

// AddSubscriber registers a subscriber that pushes through push and
// forwards relayed subscriptions through relay (nil disables relaying).
func (s *SubscriptionService) AddSubscriber(push PushFunc, relay Relay) *Subscriber {
	sub := &Subscriber{
		svc:        s,
		push:       push,
		relay:      relay,
		subs:       make(map[string]subscription),
		deliveries: make(map[string]int),
		out:        make(chan *domain.Resource, s.outboundSize),
		done:       make(chan struct{}),
	}
	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()
	if s.hooks.SubscriberAdded != nil {
		s.hooks.SubscriberAdded()
	}
	go sub.sendLoop()
	return sub
}

// RemoveSubscriber unregisters sub. It does not unwind relayed
// subscriptions; see Subscriber.Close.
func (s *SubscriptionService) RemoveSubscriber(sub *Subscriber) {
	s.mu.Lock()
	_, ok := s.subscribers[sub]
	delete(s.subscribers, sub)
	s.mu.Unlock()
	if ok && s.hooks.SubscriberRemoved != nil {
		s.hooks.SubscriberRemoved()
	}
}

// Len returns the number of registered subscribers.
func (s *SubscriptionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

type subscription struct {
	template *domain.Resource
	// peerTemplate matches resources pushed by peers. Their owner was
	// already checked by the peer and arrives anonymized.
	peerTemplate *domain.Resource
	relay        bool
	relayID      string
}

// Subscriber is the set of subscriptions of one connection.
type Subscriber struct {
	svc   *SubscriptionService
	push  PushFunc
	relay Relay

	mu         sync.Mutex
	subs       map[string]subscription
	deliveries map[string]int
	onStall    func()

	out       chan *domain.Resource
	done      chan struct{}
	closeOnce sync.Once
}

// OnStall registers fn to run once if the subscriber is dropped because
// its outbound queue is full. The owner of the connection closes it there.
func (sub *Subscriber) OnStall(fn func()) {
	sub.mu.Lock()
	sub.onStall = fn
	sub.mu.Unlock()
}

func (sub *Subscriber) sendLoop() {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.svc.done:
			return
		case r := <-sub.out:
			if err := sub.push(r); err != nil {
				sub.svc.logger.Debug("push to subscriber failed", "error", err)
				continue
			}
			if sub.svc.hooks.Delivered != nil {
				sub.svc.hooks.Delivered()
			}
		}
	}
}

// Subscribe adds template under id. With relay set, the template is also
// registered with the peers. An existing subscription with the same id is
// replaced.
func (sub *Subscriber) Subscribe(id string, template *domain.Resource, relay bool) error {
	t, err := PrepareTemplate(template)
	if err != nil {
		return err
	}

	var relayID string
	if relay && sub.relay != nil {
		relayID = sub.relay.Subscribe(t.Clone())
	}

	peerTemplate := t.Clone()
	peerTemplate.Owner = ""

	sub.mu.Lock()
	old, replaced := sub.subs[id]
	sub.subs[id] = subscription{template: t, peerTemplate: peerTemplate, relay: relay, relayID: relayID}
	sub.mu.Unlock()

	if replaced && old.relayID != "" && sub.relay != nil {
		sub.relay.Unsubscribe(old.relayID)
	}
	return nil
}

// Unsubscribe removes the subscription under id and returns how many
// resources it delivered. Unknown ids return 0.
func (sub *Subscriber) Unsubscribe(id string) int {
	sub.mu.Lock()
	s, ok := sub.subs[id]
	count := sub.deliveries[id]
	delete(sub.subs, id)
	delete(sub.deliveries, id)
	sub.mu.Unlock()

	if ok && s.relayID != "" && sub.relay != nil {
		sub.relay.Unsubscribe(s.relayID)
	}
	return count
}

// UnsubscribeAll removes every subscription and unwinds relayed ones.
func (sub *Subscriber) UnsubscribeAll() {
	sub.mu.Lock()
	var relayIDs []string
	for _, s := range sub.subs {
		if s.relayID != "" {
			relayIDs = append(relayIDs, s.relayID)
		}
	}
	sub.subs = make(map[string]subscription)
	sub.deliveries = make(map[string]int)
	sub.mu.Unlock()

	if sub.relay != nil {
		for _, id := range relayIDs {
			sub.relay.Unsubscribe(id)
		}
	}
}

// Close unwinds every subscription, unregisters the subscriber and stops
// its sender. Pending pushes are discarded.
func (sub *Subscriber) Close() {
	sub.svc.RemoveSubscriber(sub)
	sub.UnsubscribeAll()
	sub.closeOnce.Do(func() { close(sub.done) })
}

// Len returns the number of active subscriptions.
func (sub *Subscriber) Len() int {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return len(sub.subs)
}

// tryDeliver queues the resource once if any subscription matches and
// counts the delivery for every matching id. A full outbound queue drops
// the subscriber.
func (sub *Subscriber) tryDeliver(n notification) bool {
	r := n.res
	sub.mu.Lock()
	matched := false
	for id, s := range sub.subs {
		t := s.template
		if n.relayed {
			if !s.relay {
				continue
			}
			t = s.peerTemplate
		}
		if r.Matches(t) {
			sub.deliveries[id]++
			matched = true
		}
	}
	sub.mu.Unlock()

	if !matched {
		return false
	}
	select {
	case <-sub.done:
		return false
	case sub.out <- r.Clone():
		return true
	default:
		// Counts are discarded with the subscriber.
		sub.stall()
		return false
	}
}

func (sub *Subscriber) stall() {
	sub.svc.logger.Warn("subscriber outbound queue full, dropping subscriber")
	sub.mu.Lock()
	fn := sub.onStall
	sub.onStall = nil
	sub.mu.Unlock()

	sub.Close()
	if fn != nil {
		fn()
	}
}

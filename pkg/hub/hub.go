package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrSubscriberClosed = errors.New("subscriber closed")

type Option func(*options)

type options struct {
	maxQueue int
}

// WithMaxQueue bounds every subscriber queue; when full the oldest pending
// item is dropped. Zero keeps queues unbounded.
func WithMaxQueue(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxQueue = n
		}
	}
}

// Hub fans every broadcast value out to all registered subscribers. Registry
// membership changes and broadcasts are serialized by one mutex, so a
// subscriber either sees a broadcast exactly once or not at all.
type Hub[T any] struct {
	mu       sync.Mutex
	subs     map[uint64]*Subscriber[T]
	nextID   uint64
	maxQueue int
	closed   bool
	log      *logrus.Logger
}

func New[T any](log *logrus.Logger, opts ...Option) *Hub[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	return &Hub[T]{
		subs:     make(map[uint64]*Subscriber[T]),
		maxQueue: o.maxQueue,
		log:      log,
	}
}

// Subscribe registers a new subscriber and then queues snapshot() ahead of
// anything broadcast since registration.
func (h *Hub[T]) Subscribe(snapshot func() T) *Subscriber[T] {
	s := &Subscriber[T]{
		hub:      h,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		maxQueue: h.maxQueue,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.close()
		return s
	}
	h.nextID++
	s.id = h.nextID
	h.subs[s.id] = s
	total := len(h.subs)
	h.mu.Unlock()

	if h.log != nil {
		h.log.WithFields(logrus.Fields{
			"subscriber_id": s.id,
			"subscribers":   total,
		}).Info("Subscriber registered")
	}

	if snapshot != nil {
		s.pushFront(snapshot())
	}

	return s
}

// Broadcast enqueues v on every registered subscriber and returns how many
// received it. It never waits on a consumer.
func (h *Hub[T]) Broadcast(v T) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, s := range h.subs {
		if s.push(v) {
			delivered++
		}
	}

	if h.log != nil {
		h.log.WithField("subscribers", delivered).Debug("Broadcast delivered")
	}

	return delivered
}

func (h *Hub[T]) Unsubscribe(s *Subscriber[T]) {
	if s == nil {
		return
	}

	h.mu.Lock()
	_, registered := h.subs[s.id]
	delete(h.subs, s.id)
	total := len(h.subs)
	h.mu.Unlock()

	s.close()

	if registered && h.log != nil {
		h.log.WithFields(logrus.Fields{
			"subscriber_id": s.id,
			"subscribers":   total,
		}).Info("Subscriber removed")
	}
}

// Close ends every subscriber and turns later subscriptions into closed
// ones. Blocked Next calls return ErrSubscriberClosed.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscriber[T], 0, len(h.subs))
	for id, s := range h.subs {
		subs = append(subs, s)
		delete(h.subs, id)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}

	if h.log != nil {
		h.log.WithField("subscribers", len(subs)).Info("Hub closed")
	}
}

func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

type Subscriber[T any] struct {
	id       uint64
	hub      *Hub[T]
	mu       sync.Mutex
	queue    []T
	closed   bool
	dropped  int
	maxQueue int
	notify   chan struct{}
	done     chan struct{}
}

func (s *Subscriber[T]) ID() uint64 {
	return s.id
}

// Next blocks until an item is queued, the subscriber is closed or ctx ends.
// Items come out in FIFO order.
func (s *Subscriber[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return zero, ErrSubscriberClosed
		}
		if len(s.queue) > 0 {
			v := s.queue[0]
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.done:
		case <-s.notify:
		}
	}
}

func (s *Subscriber[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscriber[T]) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscriber[T]) Close() {
	s.hub.Unsubscribe(s)
}

func (s *Subscriber[T]) push(v T) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, v)
	s.trim()
	s.mu.Unlock()

	s.wake()
	return true
}

func (s *Subscriber[T]) pushFront(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append([]T{v}, s.queue...)
	s.trim()
	s.mu.Unlock()

	s.wake()
}

func (s *Subscriber[T]) trim() {
	if s.maxQueue <= 0 {
		return
	}
	for len(s.queue) > s.maxQueue {
		var zero T
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.dropped++
	}
}

func (s *Subscriber[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscriber[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	close(s.done)
}

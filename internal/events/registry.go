// Package events implements the client event stream: per-session event
// queues with long-poll delivery, registered per user and fanned out to
// single users, user sets, or whole realms.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBadEventQueue is returned when polling a queue that does not exist or
// was garbage collected.
var ErrBadEventQueue = errors.New("bad event queue id")

type queue struct {
	id      string
	userID  string
	realmID string

	mu         sync.Mutex
	events     []Event
	nextID     int64
	lastAccess time.Time
	// notify is closed and replaced on every push so all parked pollers
	// wake, not just one.
	notify chan struct{}
}

func (q *queue) push(p Payload) {
	q.mu.Lock()
	ev := Event{ID: q.nextID, Type: p.Type, Op: p.Op, Data: p.Data}
	q.nextID++
	q.events = append(q.events, ev)
	close(q.notify)
	q.notify = make(chan struct{})
	q.mu.Unlock()
}

// wakeup returns the channel the next push will close.
func (q *queue) wakeup() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.notify
}

// prune drops events the client has acknowledged and returns the rest.
func (q *queue) prune(lastEventID int64) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastAccess = time.Now()
	idx := 0
	for idx < len(q.events) && q.events[idx].ID <= lastEventID {
		idx++
	}
	q.events = q.events[idx:]
	out := make([]Event, len(q.events))
	copy(out, q.events)
	return out
}

// Registry tracks all live client event queues.
type Registry struct {
	mu      sync.RWMutex
	queues  map[string]*queue
	byUser  map[string]map[string]*queue
	byRealm map[string]map[string]*queue

	gcTimeout time.Duration
	logger    *slog.Logger
}

// NewRegistry creates an empty event queue registry. Queues idle longer than
// gcTimeout are dropped by GC.
func NewRegistry(log *slog.Logger, gcTimeout time.Duration) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if gcTimeout <= 0 {
		gcTimeout = 10 * time.Minute
	}
	return &Registry{
		queues:    map[string]*queue{},
		byUser:    map[string]map[string]*queue{},
		byRealm:   map[string]map[string]*queue{},
		gcTimeout: gcTimeout,
		logger:    log.With(slog.String("component", "events")),
	}
}

// Register creates a new event queue for a user session.
func (r *Registry) Register(userID, realmID string) QueueInfo {
	q := &queue{
		id:         uuid.NewString(),
		userID:     userID,
		realmID:    realmID,
		lastAccess: time.Now(),
		notify:     make(chan struct{}),
	}

	r.mu.Lock()
	r.queues[q.id] = q
	if r.byUser[userID] == nil {
		r.byUser[userID] = map[string]*queue{}
	}
	r.byUser[userID][q.id] = q
	if r.byRealm[realmID] == nil {
		r.byRealm[realmID] = map[string]*queue{}
	}
	r.byRealm[realmID][q.id] = q
	r.mu.Unlock()

	return QueueInfo{QueueID: q.id, LastEventID: -1}
}

// Delete removes a queue. Reports whether it existed.
func (r *Registry) Delete(queueID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[queueID]
	if !ok {
		return false
	}
	r.dropLocked(q)
	return true
}

func (r *Registry) dropLocked(q *queue) {
	delete(r.queues, q.id)
	if m := r.byUser[q.userID]; m != nil {
		delete(m, q.id)
		if len(m) == 0 {
			delete(r.byUser, q.userID)
		}
	}
	if m := r.byRealm[q.realmID]; m != nil {
		delete(m, q.id)
		if len(m) == 0 {
			delete(r.byRealm, q.realmID)
		}
	}
}

// SendToUser delivers an event to every queue registered by one user.
func (r *Registry) SendToUser(userID string, p Payload) {
	r.mu.RLock()
	targets := make([]*queue, 0, len(r.byUser[userID]))
	for _, q := range r.byUser[userID] {
		targets = append(targets, q)
	}
	r.mu.RUnlock()
	for _, q := range targets {
		q.push(p)
	}
}

// SendToUsers delivers an event to every queue of each listed user.
func (r *Registry) SendToUsers(userIDs []string, p Payload) {
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		r.SendToUser(id, p)
	}
}

// SendToRealm delivers an event to every queue registered in a realm.
func (r *Registry) SendToRealm(realmID string, p Payload) {
	r.mu.RLock()
	targets := make([]*queue, 0, len(r.byRealm[realmID]))
	for _, q := range r.byRealm[realmID] {
		targets = append(targets, q)
	}
	r.mu.RUnlock()
	for _, q := range targets {
		q.push(p)
	}
}

// Poll returns events newer than lastEventID, parking the caller until an
// event arrives, the timeout elapses (empty result), or ctx is done.
// Events stay on the queue until acknowledged by a later poll, so a dropped
// response is redelivered (at-least-once, in order).
func (r *Registry) Poll(ctx context.Context, queueID string, lastEventID int64, timeout time.Duration) ([]Event, error) {
	r.mu.RLock()
	q, ok := r.queues[queueID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrBadEventQueue
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		// Snapshot the wakeup channel before checking for pending
		// events, so a push between the check and the select still
		// wakes this poller.
		wake := q.wakeup()
		if pending := q.prune(lastEventID); len(pending) > 0 {
			return pending, nil
		}
		select {
		case <-wake:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GC drops queues that have not been polled within the GC timeout and
// returns how many were removed.
func (r *Registry) GC() int {
	cutoff := time.Now().Add(-r.gcTimeout)
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for _, q := range r.queues {
		q.mu.Lock()
		idle := q.lastAccess.Before(cutoff)
		q.mu.Unlock()
		if idle {
			r.dropLocked(q)
			dropped++
		}
	}
	if dropped > 0 {
		r.logger.Info("garbage collected idle event queues", slog.Int("count", dropped))
	}
	return dropped
}

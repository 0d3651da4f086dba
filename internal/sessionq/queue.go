// ABOUTME: Serialized retry queue applying session-handle updates to chat rooms
// ABOUTME: Bounded exponential backoff per item, last-write-wins per room

package sessionq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/power7414/chatstore/internal/config"
	"github.com/power7414/chatstore/internal/store"
)

// Defaults for the retry policy. An item gets maxAttempts tries with
// the delay doubling from baseDelay each time, then it is abandoned.
const (
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxAttempts = 10
)

// errAttemptFailed marks a retryable attempt failure internally. It is
// never returned to a caller; the queue is push-driven.
var errAttemptFailed = errors.New("queue attempt failed")

// RoomStore is what the queue needs from the storage service.
type RoomStore interface {
	GetChatRoom(ctx context.Context, id string) (*store.ChatRoom, error)
	SaveChatRoom(ctx context.Context, room *store.ChatRoom) error
}

// Update is a session-resumption event for one room. A non-resumable
// update clears the room's stored handle entirely.
type Update struct {
	Resumable bool
	NewHandle string
}

// Status is the diagnostics snapshot of the queue.
type Status struct {
	Pending   int      `json:"pending"`
	Applied   int      `json:"applied"`
	Abandoned int      `json:"abandoned"`
	RoomIDs   []string `json:"roomIds,omitempty"`
}

// item is one queued update. attempts counts tries so far; a
// replacement enqueue creates a fresh item with a zeroed counter.
type item struct {
	roomID  string
	update  Update
	attempt int
	due     time.Time
}

// Queue applies session updates through a single consumer goroutine.
type Queue struct {
	rooms       RoomStore
	logger      *slog.Logger
	baseDelay   time.Duration
	maxAttempts int

	mu        sync.Mutex
	pending   map[string]*item
	applied   int
	abandoned int

	wake chan struct{}
	done chan struct{}
	stop sync.Once
}

// Option configures a Queue.
type Option func(*Queue)

// WithBackoff overrides the retry tuning.
func WithBackoff(baseDelay time.Duration, maxAttempts int) Option {
	return func(q *Queue) {
		if baseDelay > 0 {
			q.baseDelay = baseDelay
		}
		if maxAttempts > 0 {
			q.maxAttempts = maxAttempts
		}
	}
}

// WithLogger overrides the default component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// New creates the queue and starts its consumer goroutine.
func New(rooms RoomStore, opts ...Option) *Queue {
	q := &Queue{
		rooms:       rooms,
		logger:      slog.Default().With("component", "sessionq"),
		baseDelay:   DefaultBaseDelay,
		maxAttempts: DefaultMaxAttempts,
		pending:     make(map[string]*item),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.run()
	return q
}

// NewFromConfig creates the queue with the backoff tuning from a
// loaded configuration. Extra options are applied after the tuning.
func NewFromConfig(rooms RoomStore, cfg *config.Config, opts ...Option) *Queue {
	tuned := append([]Option{WithBackoff(cfg.Queue.BaseDelay, cfg.Queue.MaxAttempts)}, opts...)
	return New(rooms, tuned...)
}

// Enqueue registers a session update for a room. Any update already
// pending for the same room is replaced, attempt counter included:
// only the newest event per room is ever applied.
func (q *Queue) Enqueue(chatRoomID string, update Update) {
	q.mu.Lock()
	q.pending[chatRoomID] = &item{
		roomID: chatRoomID,
		update: update,
		due:    time.Now(),
	}
	q.mu.Unlock()

	q.logger.Debug("queued session update",
		"chat_room_id", chatRoomID,
		"resumable", update.Resumable)
	q.signal()
}

// Status returns pending/applied/abandoned counters and the room ids
// still waiting.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Status{
		Pending:   len(q.pending),
		Applied:   q.applied,
		Abandoned: q.abandoned,
	}
	for id := range q.pending {
		st.RoomIDs = append(st.RoomIDs, id)
	}
	return st
}

// Clear drops every pending item without applying it.
func (q *Queue) Clear() {
	q.mu.Lock()
	n := len(q.pending)
	q.pending = make(map[string]*item)
	q.mu.Unlock()
	if n > 0 {
		q.logger.Info("cleared session queue", "dropped", n)
	}
}

// Stop shuts down the consumer goroutine. Pending items are not
// applied; a restarted process gets fresh events from the protocol.
func (q *Queue) Stop() {
	q.stop.Do(func() { close(q.done) })
}

// signal nudges the consumer without blocking.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run is the single consumer loop. It picks the earliest-due pending
// item, processes it, and sleeps until the next item is due. Strictly
// one item at a time.
func (q *Queue) run() {
	for {
		it, wait := q.next()
		if it == nil {
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			}
		}
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-q.wake:
				// A new enqueue may have become due earlier.
				continue
			case <-q.done:
				return
			}
			continue
		}

		select {
		case <-q.done:
			return
		default:
		}
		q.process(it)
	}
}

// next returns the earliest-due item if it is due now, or nil and the
// time to wait until it is. Both nil and zero means the queue is empty.
func (q *Queue) next() (*item, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var earliest *item
	for _, it := range q.pending {
		if earliest == nil || it.due.Before(earliest.due) {
			earliest = it
		}
	}
	if earliest == nil {
		return nil, 0
	}
	if wait := time.Until(earliest.due); wait > 0 {
		return earliest, wait
	}
	return earliest, 0
}

// process performs one attempt: read the room, rewrite its session
// sub-record, persist. A missing room or failed persist re-queues the
// item with doubled delay until the attempt cap.
func (q *Queue) process(it *item) {
	err := q.apply(it)
	if err == nil {
		q.markApplied(it)
		q.logger.Debug("applied session update",
			"chat_room_id", it.roomID,
			"attempt", it.attempt+1)
		return
	}

	q.mu.Lock()
	current, ok := q.pending[it.roomID]
	if !ok || current != it {
		// Superseded or cleared while processing; the newer item owns
		// this room now.
		q.mu.Unlock()
		return
	}
	it.attempt++
	if it.attempt >= q.maxAttempts {
		delete(q.pending, it.roomID)
		q.abandoned++
		q.mu.Unlock()
		q.logger.Warn("abandoned session update",
			"chat_room_id", it.roomID,
			"attempts", it.attempt,
			"error", err)
		return
	}
	it.due = time.Now().Add(q.backoff(it.attempt))
	q.mu.Unlock()

	q.logger.Debug("re-queued session update",
		"chat_room_id", it.roomID,
		"attempt", it.attempt,
		"error", err)
}

// apply does the read-modify-write of the room's session sub-record.
func (q *Queue) apply(it *item) error {
	ctx := context.Background()

	room, err := q.rooms.GetChatRoom(ctx, it.roomID)
	if err != nil {
		// Includes the room not existing yet; not a hard error.
		return errors.Join(errAttemptFailed, err)
	}

	if it.update.Resumable && it.update.NewHandle != "" {
		handle := it.update.NewHandle
		now := time.Now().UTC()
		room.Session = store.Session{
			Handle:        &handle,
			LastConnected: &now,
			Resumable:     true,
		}
	} else {
		room.Session = store.Session{}
	}

	if err := q.rooms.SaveChatRoom(ctx, room); err != nil {
		return errors.Join(errAttemptFailed, err)
	}
	return nil
}

// markApplied removes the item and bumps the applied counter, unless a
// replacement took over the room slot mid-flight. A superseded apply
// counts for nothing: the replacement owns the room now.
func (q *Queue) markApplied(it *item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if current, ok := q.pending[it.roomID]; ok && current == it {
		delete(q.pending, it.roomID)
		q.applied++
	}
}

// backoff returns the delay before the given attempt number: baseDelay
// doubled per completed attempt.
func (q *Queue) backoff(attempt int) time.Duration {
	d := q.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

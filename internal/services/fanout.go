package services

import (
	"context"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

// intent is one deferred side effect of a state change.
type intent func(ctx context.Context)

// Fanout delivers notifications, timeline entries, and emails off the
// request path. Side effects are enqueued after the state change
// commits and processed by a single dispatcher goroutine; delivery
// failures are logged and never propagated to the caller.
type Fanout struct {
	store  store.Store
	mailer Mailer
	ch     chan intent
	wg     sync.WaitGroup
	once   sync.Once
}

// NewFanout starts the dispatcher goroutine.
func NewFanout(st store.Store, mailer Mailer) *Fanout {
	f := &Fanout{
		store:  st,
		mailer: mailer,
		ch:     make(chan intent, 256),
	}
	go f.run()
	return f
}

func (f *Fanout) run() {
	for in := range f.ch {
		func() {
			defer f.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			in(ctx)
		}()
	}
}

func (f *Fanout) enqueue(in intent) {
	f.wg.Add(1)
	select {
	case f.ch <- in:
	default:
		// Queue full. Run inline rather than drop the side effect.
		go func() {
			defer f.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			in(ctx)
		}()
	}
}

// Drain blocks until every enqueued side effect has been processed.
// Used on shutdown and by tests.
func (f *Fanout) Drain() {
	f.wg.Wait()
}

// Close drains the queue and stops the dispatcher.
func (f *Fanout) Close() {
	f.Drain()
	f.once.Do(func() { close(f.ch) })
}

// Event groups the side effects of one state change. Each recipient
// receives at most one notification per event, regardless of how many
// audience computations include them.
type Event struct {
	f    *Fanout
	seen map[primitive.ObjectID]bool
}

// NewEvent starts an empty side-effect group.
func (f *Fanout) NewEvent() *Event {
	return &Event{f: f, seen: make(map[primitive.ObjectID]bool)}
}

// Notify enqueues an in-app notification unless this event already
// notified the recipient. It reports whether the recipient was new to
// the event, so callers can gate per-recipient emails on the same
// dedup set.
func (e *Event) Notify(n *models.Notification) bool {
	if e.seen[n.UserID] {
		return false
	}
	e.seen[n.UserID] = true
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	cp := *n
	e.f.enqueue(func(ctx context.Context) {
		if err := e.f.store.CreateNotification(ctx, &cp); err != nil {
			log.Printf("WARNING: failed to create notification for user %s: %v", cp.UserID.Hex(), err)
		}
	})
	return true
}

// Record enqueues a timeline entry.
func (e *Event) Record(entry *models.TimelineEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	cp := *entry
	e.f.enqueue(func(ctx context.Context) {
		if err := e.f.store.CreateTimelineEntry(ctx, &cp); err != nil {
			log.Printf("WARNING: failed to record timeline entry %q: %v", cp.ActionType, err)
		}
	})
}

// Email enqueues an email delivery. A nil or disabled mailer makes
// this a no-op.
func (e *Event) Email(to, subject, plainText, htmlContent string) {
	if e.f.mailer == nil {
		return
	}
	e.f.enqueue(func(ctx context.Context) {
		if err := e.f.mailer.Send(ctx, to, subject, plainText, htmlContent); err != nil {
			log.Printf("WARNING: failed to send email to %s: %v", to, err)
		}
	})
}

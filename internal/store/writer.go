package store

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// StatusMirror receives a compact view of every snapshot written.
type StatusMirror interface {
	Publish(ctx context.Context, status RoomStatus) error
	Remove(ctx context.Context, name string) error
}

const writerBuffer = 256

// Writer serialises room snapshots onto a RoomStore from a single goroutine
// so the game loop never blocks on I/O. It remembers the store id assigned
// to each live room and recreates the row if it went missing.
type Writer struct {
	store   RoomStore
	mirror  StatusMirror
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	queue chan RoomRecord
	ids   map[string]string
	done  chan struct{}
}

func NewWriter(store RoomStore, mirror StatusMirror, logger *slog.Logger, timeout time.Duration) *Writer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Writer{
		store:   store,
		mirror:  mirror,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
		queue:   make(chan RoomRecord, writerBuffer),
		ids:     make(map[string]string),
		done:    make(chan struct{}),
	}
}

// Save queues a snapshot. Progress snapshots never block; when the buffer is
// full they are dropped and a later one for the same room supersedes it. A
// Closed snapshot has no successor, so Save waits up to the store timeout
// for buffer space before giving up on it.
func (w *Writer) Save(rec RoomRecord) {
	select {
	case w.queue <- rec:
		return
	default:
	}
	if !rec.Closed {
		w.logger.Warn("snapshot dropped, writer buffer full", "room", rec.Name)
		return
	}

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	select {
	case w.queue <- rec:
	case <-timer.C:
		w.logger.Error("final snapshot dropped, writer stalled", "room", rec.Name, "waited", w.timeout)
	}
}

// Run writes queued snapshots until ctx is cancelled, then drains what is
// left with a fresh deadline per write.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case rec := <-w.queue:
			w.write(ctx, rec)
		case <-ctx.Done():
			w.drain()
			return
		}
	}
}

// Done is closed once Run has returned.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

func (w *Writer) drain() {
	for {
		select {
		case rec := <-w.queue:
			w.write(context.Background(), rec)
		default:
			return
		}
	}
}

func (w *Writer) write(parent context.Context, rec RoomRecord) {
	ctx, cancel := context.WithTimeout(parent, w.timeout)
	defer cancel()

	if err := w.persist(ctx, &rec); err != nil {
		w.logger.Error("persist room", "room", rec.Name, "err", err)
	}
	if rec.Closed {
		delete(w.ids, rec.Name)
	}

	if w.mirror == nil {
		return
	}
	var err error
	if rec.Closed {
		err = w.mirror.Remove(ctx, rec.Name)
	} else {
		err = w.mirror.Publish(ctx, rec.Status(w.now()))
	}
	if err != nil {
		w.logger.Warn("mirror room status", "room", rec.Name, "err", err)
	}
}

func (w *Writer) persist(ctx context.Context, rec *RoomRecord) error {
	if id, ok := w.ids[rec.Name]; ok {
		err := w.store.Update(ctx, id, rec)
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		w.logger.Warn("room row missing, recreating", "room", rec.Name, "id", id)
	}
	id, err := w.store.Create(ctx, rec)
	if err != nil {
		return err
	}
	w.ids[rec.Name] = id
	return nil
}

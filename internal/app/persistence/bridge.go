package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/PabloGalante/engigen-agent/internal/app/conversation"
	"github.com/PabloGalante/engigen-agent/internal/domain"
	"github.com/PabloGalante/engigen-agent/internal/metrics"
	"github.com/PabloGalante/engigen-agent/internal/observability"
)

// Bridge mirrors the SessionStore to a BlobStore and rehydrates it at startup.
// Persistence failures are logged and counted, never returned to users.
type Bridge struct {
	blobs   domain.BlobStore
	key     string
	timeout time.Duration
	log     *slog.Logger

	saveMu sync.Mutex
}

func NewBridge(blobs domain.BlobStore) *Bridge {
	return &Bridge{
		blobs:   blobs,
		key:     StateKey,
		timeout: 5 * time.Second,
		log:     observability.WithFields("component", "persistence", "key", StateKey),
	}
}

// Load returns the stored sessions. A missing, unreadable or corrupt blob
// yields an empty list.
func (b *Bridge) Load(ctx context.Context) []domain.ChatSession {
	log := b.log

	data, err := b.blobs.Get(ctx, b.key)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			log.Info("no stored sessions, starting empty")
			return []domain.ChatSession{}
		}
		metrics.PersistenceFailures.WithLabelValues("load").Inc()
		log.Error("failed to read stored sessions", "error", &domain.PersistenceError{Op: "load", Err: err})
		return []domain.ChatSession{}
	}

	sessions, err := Decode(data)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("decode").Inc()
		log.Error("stored sessions are corrupt, starting empty", "error", &domain.PersistenceError{Op: "decode", Err: err})
		return []domain.ChatSession{}
	}

	log.Info("sessions restored", "count", len(sessions))
	return sessions
}

// Save writes sessions. It reports failure but callers are free to ignore it.
func (b *Bridge) Save(ctx context.Context, sessions []domain.ChatSession) error {
	data, err := Encode(sessions)
	if err != nil {
		return b.saveFailed(&domain.PersistenceError{Op: "encode", Err: err})
	}

	start := time.Now()
	if err := b.blobs.Put(ctx, b.key, data); err != nil {
		return b.saveFailed(&domain.PersistenceError{Op: "save", Err: err})
	}
	metrics.PersistenceLatency.Observe(time.Since(start).Seconds())
	return nil
}

func (b *Bridge) saveFailed(err error) error {
	metrics.PersistenceFailures.WithLabelValues("save").Inc()
	b.log.Error("failed to persist sessions", "error", err)
	return err
}

// Attach saves the store after every mutation, before the mutating call
// returns. Saves are serialized and always write the newest snapshot.
func (b *Bridge) Attach(store *conversation.SessionStore) (detach func()) {
	return store.Subscribe(func(c conversation.Change) {
		// The active pointer is not part of the durable layout.
		if c.Kind == conversation.ChangeSessionSelected {
			return
		}

		b.saveMu.Lock()
		defer b.saveMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		_ = b.Save(ctx, store.Sessions())
	})
}

// Rehydrate loads the stored sessions into store and attaches to it.
func (b *Bridge) Rehydrate(ctx context.Context, store *conversation.SessionStore) (detach func()) {
	store.Restore(b.Load(ctx))
	return b.Attach(store)
}

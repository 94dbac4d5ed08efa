package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makeasinger/motionvault/internal/gateway"
	"github.com/makeasinger/motionvault/internal/logger"
)

const defaultReloadTimeout = 30 * time.Second

// JobCanceller requests cancellation of an external job without blocking
// the caller on the outcome.
type JobCanceller interface {
	CancelJob(ctx context.Context, jobID string)
}

// Engine is the only writer of a Store. Every mutation is applied locally
// first, then committed remotely; a failed commit reloads everything.
type Engine struct {
	store         *Store
	gw            *gateway.Gateway
	userID        string
	canceller     JobCanceller
	log           *logger.Logger
	reloadTimeout time.Duration

	// categoryMu serializes check-then-insert on category names.
	categoryMu sync.Mutex
}

func NewEngine(store *Store, gw *gateway.Gateway, userID string, canceller JobCanceller, log *logger.Logger) *Engine {
	return &Engine{
		store:         store,
		gw:            gw,
		userID:        userID,
		canceller:     canceller,
		log:           log.With("user_id", userID),
		reloadTimeout: defaultReloadTimeout,
	}
}

func (e *Engine) Store() *Store {
	return e.store
}

func (e *Engine) Gateway() *gateway.Gateway {
	return e.gw
}

func (e *Engine) UserID() string {
	return e.userID
}

// CancelJob asks the configured canceller to stop jobID. It does not wait.
func (e *Engine) CancelJob(ctx context.Context, jobID string) {
	if e.canceller == nil || jobID == "" {
		return
	}
	e.canceller.CancelJob(ctx, jobID)
}

// Mutate applies optimistic to the local collections, then runs remote. When
// remote fails, all three collections are reloaded from the row store on a
// context that survives the caller's cancellation, and the remote error is
// returned.
func (e *Engine) Mutate(ctx context.Context, op string, optimistic func(c *Collections), remote func(ctx context.Context) error) error {
	if optimistic != nil {
		e.store.apply(optimistic)
	}
	if remote == nil {
		return nil
	}

	err := remote(ctx)
	if err == nil {
		return nil
	}

	e.log.Warn("Mutation failed, reloading", "op", op, "error", err)
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.reloadTimeout)
	defer cancel()
	if rerr := e.Reload(rctx); rerr != nil {
		e.log.Error("Reload after failed mutation failed", "op", op, "error", rerr)
		return fmt.Errorf("%s: %w", op, errors.Join(err, rerr))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Reload replaces the local collections with the row store's current state.
func (e *Engine) Reload(ctx context.Context) error {
	snap, err := e.gw.LoadAll(ctx, e.userID)
	if err != nil {
		return err
	}
	e.store.replace(snap)
	return nil
}

// provisionalID marks rows applied locally before the row store assigned an id.
func provisionalID() string {
	return "local-" + uuid.NewString()
}

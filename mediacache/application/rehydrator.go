package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AzielCF/az-mediacache/mediacache/domain"
)

var tracer = otel.Tracer("github.com/AzielCF/az-mediacache/mediacache/application")

type State string

const (
	StateIdle     State = "idle"
	StateDraining State = "draining"
)

const (
	DefaultBatchSize  = 3
	DefaultBatchDelay = time.Second
	DefaultRearmDelay = 500 * time.Millisecond
)

type RehydratorConfig struct {
	BatchSize int
	// BatchDelay is observed between batches while the queue still holds
	// tasks from the previous take.
	BatchDelay time.Duration
	// RearmDelay is observed when the only remaining work arrived mid-batch.
	RearmDelay time.Duration
	Sleep      domain.SleepFunc
}

func DefaultRehydratorConfig() RehydratorConfig {
	return RehydratorConfig{
		BatchSize:  DefaultBatchSize,
		BatchDelay: DefaultBatchDelay,
		RearmDelay: DefaultRearmDelay,
	}
}

type RehydratorStats struct {
	State     State `json:"state"`
	Pending   int   `json:"pending"`
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
}

// Rehydrator backfills the cache from remote references in small, spaced
// batches. A task id is unique while it is queued or in flight.
type Rehydrator struct {
	cache   *CacheService
	fetcher domain.Fetcher
	cfg     RehydratorConfig

	// gate serialises result writes against ClearQueue so a cleared run
	// can never store after the clear returns.
	gate sync.RWMutex

	mu         sync.Mutex
	queue      []domain.Task
	pending    map[string]struct{}
	state      State
	generation uint64
	cancel     context.CancelFunc
	idle       chan struct{}
	closed     bool
	wg         sync.WaitGroup

	flight singleflight.Group

	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

func NewRehydrator(cache *CacheService, fetcher domain.Fetcher, cfg RehydratorConfig) *Rehydrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if cfg.RearmDelay < 0 {
		cfg.RearmDelay = 0
	}
	if cfg.Sleep == nil {
		cfg.Sleep = domain.Sleep
	}
	idle := make(chan struct{})
	close(idle)
	return &Rehydrator{
		cache:   cache,
		fetcher: fetcher,
		cfg:     cfg,
		pending: make(map[string]struct{}),
		state:   StateIdle,
		idle:    idle,
	}
}

// RefID derives a stable entry id from a remote reference.
func RefID(remoteRef string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(remoteRef)).String()
}

func validateTask(t domain.Task) error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ID, validation.Required),
		validation.Field(&t.RemoteRef, validation.Required),
		validation.Field(&t.OwnerID, validation.Required),
		validation.Field(&t.GroupID, validation.Required),
	)
}

// Enqueue queues a rehydration and starts a drain when idle. It returns false
// for invalid tasks, ids already queued or in flight, and after Close.
func (r *Rehydrator) Enqueue(id, remoteRef, ownerID, groupID string) bool {
	task := domain.Task{ID: id, RemoteRef: remoteRef, OwnerID: ownerID, GroupID: groupID}
	if err := validateTask(task); err != nil {
		logrus.WithError(err).Debug("[REHYDRATE] Rejected task")
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if _, dup := r.pending[id]; dup {
		return false
	}
	r.queue = append(r.queue, task)
	r.pending[id] = struct{}{}

	if r.state == StateIdle {
		r.state = StateDraining
		r.idle = make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.wg.Add(1)
		go r.drain(ctx, r.generation)
	}
	return true
}

func (r *Rehydrator) drain(ctx context.Context, gen uint64) {
	defer r.wg.Done()

	for {
		r.mu.Lock()
		if gen != r.generation {
			r.mu.Unlock()
			return
		}
		n := min(len(r.queue), r.cfg.BatchSize)
		batch := append([]domain.Task(nil), r.queue[:n]...)
		r.queue = r.queue[n:]
		leftover := len(r.queue)
		r.mu.Unlock()

		// The group only caps concurrency; process logs its own failures.
		var g errgroup.Group
		g.SetLimit(r.cfg.BatchSize)
		for _, task := range batch {
			g.Go(func() error {
				r.process(ctx, gen, task)
				return nil
			})
		}
		g.Wait()

		r.mu.Lock()
		if gen != r.generation {
			r.mu.Unlock()
			return
		}
		if len(r.queue) == 0 {
			r.setIdleLocked()
			r.mu.Unlock()
			return
		}
		delay := r.cfg.BatchDelay
		if leftover == 0 {
			delay = r.cfg.RearmDelay
			logrus.WithField("queued", len(r.queue)).Debug("[REHYDRATE] Work arrived mid-drain, re-arming")
		}
		r.mu.Unlock()

		if err := r.cfg.Sleep(ctx, delay); err != nil {
			return
		}
	}
}

func (r *Rehydrator) process(ctx context.Context, gen uint64, task domain.Task) {
	ctx, span := tracer.Start(ctx, "rehydrate.task")
	span.SetAttributes(attribute.String("media.id", task.ID))
	defer span.End()
	defer r.release(gen, task.ID)

	log := logrus.WithFields(logrus.Fields{"id": task.ID, "owner_id": task.OwnerID})

	exists, err := r.cache.Exists(ctx, task.ID)
	if err != nil {
		r.failed.Add(1)
		log.WithError(err).Warn("[REHYDRATE] Cache lookup failed, dropping task")
		return
	}
	if exists {
		r.skipped.Add(1)
		return
	}

	payload, err := r.fetcher.Fetch(ctx, task.RemoteRef)
	if err != nil {
		r.failed.Add(1)
		log.WithError(err).Warn("[REHYDRATE] Fetch failed, dropping task")
		return
	}

	stored, err := r.storeIfCurrent(ctx, gen, StoreRequest{
		ID:        task.ID,
		OwnerID:   task.OwnerID,
		GroupID:   task.GroupID,
		Payload:   payload,
		RemoteRef: task.RemoteRef,
	})
	switch {
	case err != nil:
		r.failed.Add(1)
		log.WithError(err).Error("[REHYDRATE] Failed to store rehydrated payload")
	case stored:
		r.processed.Add(1)
		log.WithField("size", len(payload)).Debug("[REHYDRATE] Rehydrated")
	}
}

// release frees the id for future enqueues unless the run was cleared.
func (r *Rehydrator) release(gen uint64, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen == r.generation {
		delete(r.pending, id)
	}
}

func (r *Rehydrator) currentGeneration() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

func (r *Rehydrator) storeIfCurrent(ctx context.Context, gen uint64, req StoreRequest) (bool, error) {
	r.gate.RLock()
	defer r.gate.RUnlock()
	if gen != r.currentGeneration() {
		return false, nil
	}
	if _, err := r.cache.Store(ctx, req); err != nil {
		return false, err
	}
	return true, nil
}

// RehydrateNow returns a renderable payload for the reference immediately:
// the cached payload on a hit, the freshly fetched one on a miss, or
// remoteRef itself when the fetch fails. Concurrent calls for the same id
// share one fetch. An empty id is derived from remoteRef.
func (r *Rehydrator) RehydrateNow(ctx context.Context, id, remoteRef, ownerID, groupID string) string {
	if id == "" {
		if remoteRef == "" {
			return ""
		}
		id = RefID(remoteRef)
	}

	v, _, _ := r.flight.Do(id, func() (any, error) {
		ctx, span := tracer.Start(ctx, "rehydrate.now")
		span.SetAttributes(attribute.String("media.id", id))
		defer span.End()

		gen := r.currentGeneration()
		log := logrus.WithField("id", id)

		entry, ok, err := r.cache.Get(ctx, id)
		if err != nil {
			log.WithError(err).Warn("[REHYDRATE] Cache lookup failed")
		} else if ok {
			return entry.Payload, nil
		}
		if remoteRef == "" {
			return "", nil
		}

		payload, err := r.fetcher.Fetch(ctx, remoteRef)
		if err != nil {
			log.WithError(err).Warn("[REHYDRATE] Immediate fetch failed, falling back to remote reference")
			return remoteRef, nil
		}

		if ownerID != "" && groupID != "" {
			if _, err := r.storeIfCurrent(ctx, gen, StoreRequest{
				ID:        id,
				OwnerID:   ownerID,
				GroupID:   groupID,
				Payload:   payload,
				RemoteRef: remoteRef,
			}); err != nil {
				log.WithError(err).Error("[REHYDRATE] Failed to store immediate payload")
			}
		}
		return payload, nil
	})
	return v.(string)
}

// ClearQueue drops every pending task, abandons in-flight work without
// storing its results and returns to idle.
func (r *Rehydrator) ClearQueue() int {
	r.gate.Lock()
	defer r.gate.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetLocked()
}

func (r *Rehydrator) resetLocked() int {
	dropped := len(r.pending)
	r.generation++
	r.queue = nil
	r.pending = make(map[string]struct{})
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.setIdleLocked()
	if dropped > 0 {
		logrus.WithField("dropped", dropped).Info("[REHYDRATE] Queue cleared")
	}
	return dropped
}

func (r *Rehydrator) setIdleLocked() {
	if r.state == StateIdle {
		return
	}
	r.state = StateIdle
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	close(r.idle)
}

func (r *Rehydrator) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Pending counts tasks queued or in flight.
func (r *Rehydrator) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// WaitIdle blocks until the current drain finishes or ctx is done.
func (r *Rehydrator) WaitIdle(ctx context.Context) error {
	r.mu.Lock()
	idle := r.idle
	r.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Rehydrator) Stats() RehydratorStats {
	r.mu.Lock()
	state, pending := r.state, len(r.pending)
	r.mu.Unlock()
	return RehydratorStats{
		State:     state,
		Pending:   pending,
		Processed: r.processed.Load(),
		Skipped:   r.skipped.Load(),
		Failed:    r.failed.Load(),
	}
}

// Close stops background work and waits for drain goroutines to exit.
// Enqueue is refused afterwards.
func (r *Rehydrator) Close() {
	r.gate.Lock()
	r.mu.Lock()
	r.closed = true
	r.resetLocked()
	r.mu.Unlock()
	r.gate.Unlock()
	r.wg.Wait()
}

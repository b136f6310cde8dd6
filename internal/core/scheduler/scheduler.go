// Package scheduler debounces resolution requests and guarantees at
// most one pass runs at a time. Bursts of ingest collapse into a
// single pass at the end of the quiet window.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/amalgam/internal/core/model"
)

// ErrAlreadyRunning rejects RunNow while a pass is in flight. The
// scheduler never queues a duplicate behind an active run.
var ErrAlreadyRunning = errors.New("resolution pass already running")

var errClosed = errors.New("scheduler closed")

// Runner is the resolver seam; tests stub it.
type Runner interface {
	RunPass(ctx context.Context, kind model.RunKind) (model.PassStats, error)
}

type Scheduler struct {
	runner   Runner
	debounce time.Duration
	log      *zap.Logger

	mu          sync.Mutex
	timer       *time.Timer
	pendingKind model.RunKind
	pendingAt   time.Time
	running     bool
	closed      bool
	history     *ring
	lastDone    map[model.RunKind]time.Time
	wg          sync.WaitGroup
}

func New(runner Runner, debounce time.Duration, historyLimit int, log *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		debounce: debounce,
		log:      log.Named("scheduler"),
		history:  newRing(historyLimit),
		lastDone: make(map[model.RunKind]time.Time),
	}
}

// Schedule arms (or re-arms) the debounce window and returns the fire
// time. Every call during the window pushes the fire time out again; a
// pending full pass absorbs incremental requests, and a full request
// upgrades a pending incremental.
func (s *Scheduler) Schedule(kind model.RunKind) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return time.Time{}
	}
	if s.timer != nil {
		s.timer.Stop()
		if s.pendingKind == model.RunFull {
			kind = model.RunFull
		}
	}
	s.pendingKind = kind
	s.pendingAt = time.Now().Add(s.debounce)
	s.timer = time.AfterFunc(s.debounce, s.fire)
	s.log.Debug("scheduled resolution pass",
		zap.String("kind", string(kind)),
		zap.Time("fire_at", s.pendingAt))
	return s.pendingAt
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.closed || s.pendingKind == "" {
		s.mu.Unlock()
		return
	}
	if s.running {
		// Coalesce behind the active run: wait one more window.
		s.pendingAt = time.Now().Add(s.debounce)
		s.timer = time.AfterFunc(s.debounce, s.fire)
		s.mu.Unlock()
		return
	}
	kind := s.pendingKind
	s.pendingKind = ""
	s.pendingAt = time.Time{}
	s.timer = nil
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.execute(context.Background(), kind)
	}()
}

// RunNow runs a pass synchronously. An active pass is an explicit
// ErrAlreadyRunning, never a queued duplicate.
func (s *Scheduler) RunNow(ctx context.Context, kind model.RunKind) (model.PassStats, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.PassStats{}, errClosed
	}
	if s.running {
		s.mu.Unlock()
		return model.PassStats{}, ErrAlreadyRunning
	}
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	return s.execute(ctx, kind)
}

func (s *Scheduler) execute(ctx context.Context, kind model.RunKind) (model.PassStats, error) {
	started := time.Now().UTC()
	s.log.Info("resolution pass starting", zap.String("kind", string(kind)))

	stats, err := s.runner.RunPass(ctx, kind)
	completed := time.Now().UTC()

	rec := model.ExecutionRecord{
		UUID:        uuid.New().String(),
		Kind:        kind,
		StartedAt:   started,
		CompletedAt: &completed,
		Stats:       &stats,
	}
	if err != nil {
		rec.Status = model.StatusFailed
		rec.Error = err.Error()
		s.log.Error("resolution pass failed", zap.String("kind", string(kind)), zap.Error(err))
	} else {
		rec.Status = model.StatusCompleted
		s.log.Info("resolution pass completed",
			zap.String("kind", string(kind)),
			zap.Int("entities", stats.Entities),
			zap.Int("pairs", stats.Pairs),
			zap.Int("merged", stats.Merged),
			zap.Int("flagged", stats.Flagged),
			zap.Duration("duration", stats.Duration))
	}

	s.mu.Lock()
	s.running = false
	if err == nil {
		s.lastDone[kind] = completed
	}
	s.history.add(rec)
	s.mu.Unlock()

	return stats, err
}

// CancelPending stops a scheduled-but-unfired pass. In-flight runs are
// not cancellable.
func (s *Scheduler) CancelPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	s.pendingKind = ""
	s.pendingAt = time.Time{}
	return true
}

type Status struct {
	Running         bool          `json:"running"`
	PendingKind     model.RunKind `json:"pending_kind,omitempty"`
	PendingAt       *time.Time    `json:"pending_at,omitempty"`
	LastIncremental *time.Time    `json:"last_incremental,omitempty"`
	LastFull        *time.Time    `json:"last_full,omitempty"`
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.running, PendingKind: s.pendingKind}
	if !s.pendingAt.IsZero() {
		at := s.pendingAt
		st.PendingAt = &at
	}
	if t, ok := s.lastDone[model.RunIncremental]; ok {
		last := t
		st.LastIncremental = &last
	}
	if t, ok := s.lastDone[model.RunFull]; ok {
		last := t
		st.LastFull = &last
	}
	return st
}

// Executions returns the retained run log newest first. Empty kind or
// status matches everything; limit <= 0 returns all retained records.
func (s *Scheduler) Executions(kind model.RunKind, status model.RunStatus, limit int) []model.ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ExecutionRecord
	for _, rec := range s.history.newestFirst() {
		if kind != "" && rec.Kind != kind {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

type Stats struct {
	Total         int        `json:"total"`
	Completed     int        `json:"completed"`
	Failed        int        `json:"failed"`
	Incremental   int        `json:"incremental"`
	Full          int        `json:"full"`
	AvgDurationMS int64      `json:"avg_duration_ms"`
	LastCompleted *time.Time `json:"last_completed,omitempty"`
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	var total time.Duration
	var counted int
	for _, rec := range s.history.newestFirst() {
		st.Total++
		switch rec.Status {
		case model.StatusCompleted:
			st.Completed++
		case model.StatusFailed:
			st.Failed++
		}
		switch rec.Kind {
		case model.RunIncremental:
			st.Incremental++
		case model.RunFull:
			st.Full++
		}
		if rec.Status != model.StatusCompleted {
			continue
		}
		if rec.Stats != nil {
			total += rec.Stats.Duration
			counted++
		}
		if rec.CompletedAt != nil && (st.LastCompleted == nil || rec.CompletedAt.After(*st.LastCompleted)) {
			st.LastCompleted = rec.CompletedAt
		}
	}
	if counted > 0 {
		st.AvgDurationMS = (total / time.Duration(counted)).Milliseconds()
	}
	return st
}

// Close cancels pending work and waits for an in-flight pass to
// drain. The scheduler is unusable afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pendingKind = ""
	s.pendingAt = time.Time{}
	s.mu.Unlock()
	s.wg.Wait()
}

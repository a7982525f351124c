// Refresh Scheduler
// Keeps the actor-less views of watched chains warm, one ticker per (chain, query)
package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bridge-backend/internal/config"

	"github.com/sirupsen/logrus"
)

// RefreshTask one periodically recomputed query
type RefreshTask struct {
	Query    string
	Interval time.Duration
	Run      func(ctx context.Context, chainID uint64) error
}

// RefreshListener is told after a task stored a fresh result
type RefreshListener func(chainID uint64, query string)

// ViewRefreshTasks the schedule for the deposit, withdraw and registry views,
// plus the faster-moving reads they are assembled from
func ViewRefreshTasks(views *BridgeViewService, refresh config.RefreshConfig) []RefreshTask {
	return []RefreshTask{
		{Query: QueryDepositView, Interval: refresh.Deposits.Duration, Run: views.RefreshDepositView},
		{Query: QueryWithdrawView, Interval: refresh.Withdraws.Duration, Run: views.RefreshWithdrawView},
		{Query: QueryRegistry, Interval: refresh.Registry.Duration, Run: views.RefreshRegistryView},
		{Query: QueryBlockTime, Interval: refresh.BlockTime.Duration, Run: views.RefreshBlockTime},
		{Query: QueryXChainApprovals, Interval: refresh.XChainApprovals.Duration, Run: views.RefreshCrossChainState},
	}
}

// RefreshScheduler runs RefreshTasks for every watched chain
type RefreshScheduler struct {
	tasks   []RefreshTask
	timeout time.Duration
	logger  *logrus.Entry

	mu        sync.Mutex
	watched   map[uint64]chan struct{}
	listeners []RefreshListener
	stopped   bool
	wg        sync.WaitGroup
}

// NewRefreshScheduler creates a scheduler; nothing runs until Watch
func NewRefreshScheduler(tasks []RefreshTask, logger *logrus.Logger) *RefreshScheduler {
	return &RefreshScheduler{
		tasks:   tasks,
		timeout: 2 * time.Minute,
		logger:  logger.WithField("component", "refresh_scheduler"),
		watched: make(map[uint64]chan struct{}),
	}
}

// OnRefresh registers a listener
func (s *RefreshScheduler) OnRefresh(l RefreshListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Watch starts the tasks for chainID. Watching twice is a no-op.
func (s *RefreshScheduler) Watch(chainID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, ok := s.watched[chainID]; ok {
		return
	}
	stop := make(chan struct{})
	s.watched[chainID] = stop

	for _, task := range s.tasks {
		if task.Interval <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.loop(chainID, task, stop)
	}
	s.logger.WithFields(logrus.Fields{"chain_id": chainID, "tasks": len(s.tasks)}).Info("📅 Watching chain")
}

// Unwatch stops the tasks for chainID
func (s *RefreshScheduler) Unwatch(chainID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.watched[chainID]; ok {
		close(stop)
		delete(s.watched, chainID)
	}
}

// Watched chain ids currently scheduled, ascending
func (s *RefreshScheduler) Watched() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.watched))
	for id := range s.watched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stop ends every task and waits for running ones to return
func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, stop := range s.watched {
		close(stop)
		delete(s.watched, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("🛑 Refresh scheduler stopped")
}

// RunOnce runs the task for query on chainID and notifies listeners on success
func (s *RefreshScheduler) RunOnce(ctx context.Context, chainID uint64, query string) error {
	for _, task := range s.tasks {
		if task.Query == query {
			return s.run(ctx, chainID, task)
		}
	}
	return fmt.Errorf("%q: %w", query, ErrUnknownQuery)
}

func (s *RefreshScheduler) loop(chainID uint64, task RefreshTask, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.runWithTimeout(ctx, chainID, task)

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runWithTimeout(ctx, chainID, task)
		case <-stop:
			return
		}
	}
}

func (s *RefreshScheduler) runWithTimeout(ctx context.Context, chainID uint64, task RefreshTask) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.run(ctx, chainID, task); err != nil && ctx.Err() == nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"chain_id": chainID, "query": task.Query}).Warn("refresh failed")
	}
}

func (s *RefreshScheduler) run(ctx context.Context, chainID uint64, task RefreshTask) error {
	if err := task.Run(ctx, chainID); err != nil {
		return err
	}
	s.mu.Lock()
	listeners := append([]RefreshListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l(chainID, task.Query)
	}
	return nil
}

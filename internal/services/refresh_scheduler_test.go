package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bridge-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refreshLog struct {
	mu     sync.Mutex
	events []string
}

func (l *refreshLog) listener(chainID uint64, query string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, query)
}

func (l *refreshLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func TestRunOnceNotifiesListeners(t *testing.T) {
	var runs int32
	s := NewRefreshScheduler([]RefreshTask{{
		Query:    QueryDepositView,
		Interval: time.Hour,
		Run: func(ctx context.Context, chainID uint64) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	}}, testLogger())
	log := &refreshLog{}
	s.OnRefresh(log.listener)

	require.NoError(t, s.RunOnce(context.Background(), 97, QueryDepositView))
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	assert.Equal(t, []string{QueryDepositView}, log.events)

	err := s.RunOnce(context.Background(), 97, "nope")
	assert.ErrorIs(t, err, ErrUnknownQuery)
}

func TestFailedRunSkipsListeners(t *testing.T) {
	s := NewRefreshScheduler([]RefreshTask{{
		Query: QueryRegistry,
		Run: func(ctx context.Context, chainID uint64) error {
			return errors.New("rpc down")
		},
	}}, testLogger())
	log := &refreshLog{}
	s.OnRefresh(log.listener)

	assert.Error(t, s.RunOnce(context.Background(), 97, QueryRegistry))
	assert.Zero(t, log.count())
}

func TestWatchTicksUntilStopped(t *testing.T) {
	var runs int32
	s := NewRefreshScheduler([]RefreshTask{
		{
			Query:    QueryWithdrawView,
			Interval: 10 * time.Millisecond,
			Run: func(ctx context.Context, chainID uint64) error {
				atomic.AddInt32(&runs, 1)
				return nil
			},
		},
		{Query: QueryRegistry, Interval: 0, Run: func(ctx context.Context, chainID uint64) error {
			t.Error("disabled task must not run")
			return nil
		}},
	}, testLogger())

	s.Watch(97)
	s.Watch(97)
	assert.Equal(t, []uint64{97}, s.Watched())

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	stoppedAt := atomic.LoadInt32(&runs)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stoppedAt, atomic.LoadInt32(&runs))
	assert.Empty(t, s.Watched())

	s.Watch(56)
	assert.Empty(t, s.Watched(), "a stopped scheduler accepts no new chains")
}

func TestUnwatchStopsOneChain(t *testing.T) {
	var mu sync.Mutex
	seen := map[uint64]int{}
	s := NewRefreshScheduler([]RefreshTask{{
		Query:    QueryDepositView,
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context, chainID uint64) error {
			mu.Lock()
			seen[chainID]++
			mu.Unlock()
			return nil
		},
	}}, testLogger())
	defer s.Stop()

	s.Watch(97)
	s.Watch(5611)
	s.Unwatch(97)
	assert.Equal(t, []uint64{5611}, s.Watched())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[5611] >= 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.LessOrEqual(t, seen[97], 1)
	mu.Unlock()
}

func TestViewRefreshTasksFollowConfig(t *testing.T) {
	cfg, err := config.Parse([]byte("refresh:\n  deposits: 7s\n"))
	require.NoError(t, err)
	e := newTestEngine(t, nil, newFakeChain(97, true))

	tasks := ViewRefreshTasks(e.views, cfg.Refresh)
	require.Len(t, tasks, 5)
	assert.Equal(t, QueryDepositView, tasks[0].Query)
	assert.Equal(t, 7*time.Second, tasks[0].Interval)
	assert.Equal(t, QueryWithdrawView, tasks[1].Query)
	assert.Equal(t, QueryRegistry, tasks[2].Query)
	assert.Equal(t, QueryBlockTime, tasks[3].Query)
	assert.Equal(t, 10*time.Second, tasks[3].Interval)
	assert.Equal(t, QueryXChainApprovals, tasks[4].Query)
	assert.Equal(t, 15*time.Second, tasks[4].Interval)
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	cutoff time.Time
	n      int64
	err    error
}

func (p *fakePruner) Prune(cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.n, p.err
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	log, _ := test.NewNullLogger()
	s, err := New("UTC", log)
	require.NoError(t, err)
	return s
}

func TestNew_BadTimezone(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := New("Mars/Olympus_Mons", log)
	assert.Error(t, err)
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler(t)

	require.NoError(t, s.AddJob("a", "0 3 * * *", func(ctx context.Context) error { return nil }))
	require.NoError(t, s.AddJob("a", "0 4 * * *", func(ctx context.Context) error { return nil }))
	assert.Error(t, s.AddJob("bad", "not a schedule", func(ctx context.Context) error { return nil }))

	jobs := s.ListJobs()
	require.Len(t, jobs, 1, "re-adding a name replaces the job")
	assert.Equal(t, "a", jobs[0].Name)

	s.RemoveJob("a")
	assert.Empty(t, s.ListJobs())
}

func TestPruneJob(t *testing.T) {
	s := newTestScheduler(t)
	now := time.Date(2024, 3, 31, 3, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	p := &fakePruner{n: 4}
	require.NoError(t, s.RunNow("prune", s.pruneJob(30*24*time.Hour, p)))
	assert.Equal(t, time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC), p.cutoff)

	p.err = errors.New("database is locked")
	assert.ErrorContains(t, s.RunNow("prune", s.pruneJob(time.Hour, p)), "database is locked")
}

func TestAddPruneJob(t *testing.T) {
	s := newTestScheduler(t)

	assert.Error(t, s.AddPruneJob("0 3 * * *", 0, &fakePruner{}))
	require.NoError(t, s.AddPruneJob("0 3 * * *", time.Hour, &fakePruner{}))

	s.Start()
	defer s.Stop()

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "prune", jobs[0].Name)
}

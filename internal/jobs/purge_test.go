package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cleancity/internal/logger"
)

type fakePurger struct {
	mu     sync.Mutex
	before []time.Time
	err    error
}

func (f *fakePurger) PurgeTokens(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.before = append(f.before, before)
	return 3, f.err
}

func TestPurgeJobUsesClock(t *testing.T) {
	now := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	p := &fakePurger{}
	job := &PurgeJob{Store: p, Now: func() time.Time { return now }, Log: logger.Discard()}

	job.Run()
	p.err = errors.New("db down")
	job.Run()

	require.Len(t, p.before, 2)
	assert.Equal(t, now, p.before[0])
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	_, err := Schedule("every hour", &PurgeJob{Store: &fakePurger{}, Log: logger.Discard()}, logger.Discard())
	assert.Error(t, err)
}

func TestScheduleRegistersJob(t *testing.T) {
	c, err := Schedule("@every 1h", &PurgeJob{Store: &fakePurger{}, Log: logger.Discard()}, logger.Discard())
	require.NoError(t, err)
	defer c.Stop()
	assert.Len(t, c.Entries(), 1)
}

package clock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 60s")
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(time.Minute), s.Next(base))

	_, err = ParseSchedule("not a schedule")
	assert.Error(t, err)
}

func TestFakeAdvanceFiresDueWaiters(t *testing.T) {
	f := NewFake(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	early := f.After(time.Second)
	late := f.After(time.Minute)

	f.Advance(2 * time.Second)
	select {
	case <-early:
	default:
		t.Fatal("early waiter did not fire")
	}
	select {
	case <-late:
		t.Fatal("late waiter fired too soon")
	default:
	}

	f.Advance(time.Minute)
	<-late
}

func TestLoopRunsUntilCancelled(t *testing.T) {
	f := NewFake(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	sched, err := ParseSchedule("@every 10s")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu    sync.Mutex
		ticks int
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		Loop(ctx, f, sched, func(time.Time) {
			mu.Lock()
			ticks++
			mu.Unlock()
		})
	}()

	for i := 0; i < 3; i++ {
		f.BlockUntil(1)
		f.Advance(10 * time.Second)
	}
	f.BlockUntil(1)
	cancel()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, ticks)
}

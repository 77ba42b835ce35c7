package steps

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Update) []InstallStep {
	t.Helper()
	var got []InstallStep
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, u.Step)
		case <-timeout:
			t.Fatalf("updates channel not closed, got so far: %v", got)
		}
	}
}

func TestNewTracker_GeneratesID(t *testing.T) {
	tr := NewTracker("")
	assert.NotEmpty(t, tr.ID())
	assert.Equal(t, StepPending, tr.Step())
	assert.False(t, tr.IsCompleted())

	assert.Equal(t, "ext-1", NewTracker("ext-1").ID())
}

func TestTracker_HappyPath(t *testing.T) {
	tr := NewTracker("ext-1")

	require.NoError(t, tr.Advance(StepDownloading))
	require.NoError(t, tr.Advance(StepInstalling))
	require.NoError(t, tr.Advance(StepInstalled))

	assert.True(t, tr.IsCompleted())
	assert.NoError(t, tr.Err())
}

func TestTracker_RejectsSkipsAndRevisits(t *testing.T) {
	tr := NewTracker("ext-1")

	err := tr.Advance(StepInstalling)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StepPending, te.From)
	assert.Equal(t, StepInstalling, te.To)
	assert.Equal(t, StepPending, tr.Step(), "rejected transition must not change state")

	require.NoError(t, tr.Advance(StepDownloading))
	assert.Error(t, tr.Advance(StepPending))
	assert.Error(t, tr.Advance(StepDownloading))
}

func TestTracker_TerminalIsFinal(t *testing.T) {
	cause := errors.New("checksum mismatch")
	tr := NewTracker("ext-1")
	require.NoError(t, tr.Advance(StepDownloading))
	require.NoError(t, tr.Fail(cause))

	assert.Equal(t, StepError, tr.Step())
	assert.ErrorIs(t, tr.Err(), cause)

	for _, next := range []InstallStep{StepPending, StepDownloading, StepInstalling, StepInstalled, StepError} {
		err := tr.Advance(next)
		assert.ErrorIs(t, err, ErrTerminal, "transition to %s", next)
	}
	assert.Equal(t, StepError, tr.Step())
}

func TestTracker_Updates_ReplayThenLive(t *testing.T) {
	tr := NewTracker("ext-1")
	require.NoError(t, tr.Advance(StepDownloading))

	ch := tr.Updates(context.Background())

	require.NoError(t, tr.Advance(StepInstalling))
	require.NoError(t, tr.Advance(StepInstalled))

	assert.Equal(t, []InstallStep{StepDownloading, StepInstalling, StepInstalled}, collect(t, ch))
}

func TestTracker_Updates_AfterTerminal(t *testing.T) {
	tr := NewTracker("ext-1")
	require.NoError(t, tr.Fail(errors.New("boom")))

	assert.Equal(t, []InstallStep{StepError}, collect(t, tr.Updates(context.Background())))
}

func TestTracker_Updates_CancelClosesChannel(t *testing.T) {
	tr := NewTracker("ext-1")
	ctx, cancel := context.WithCancel(context.Background())
	ch := tr.Updates(ctx)

	first := <-ch
	assert.Equal(t, StepPending, first.Step)

	cancel()
	collect(t, ch)

	// Advancing after the watcher went away must not block or panic.
	require.NoError(t, tr.Advance(StepDownloading))
}

func TestTracker_ConcurrentDrivers(t *testing.T) {
	tr := NewTracker("ext-1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Advance(StepDownloading) == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted, "only one forward move from pending can be accepted")
	assert.Equal(t, StepDownloading, tr.Step())
}

package rules

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/installkit/logging"
)

func TestWatcherReportsFlips(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	require.NoError(t, engine.AnalyzeDocument(doc(cond(TypeVariable, "C", "name", "X", "value", "1"))))

	w := NewWatcher(engine, WatcherOptions{Conditions: []string{"C", "!C"}}, logging.Nop())
	assert.Equal(t, map[string]bool{"C": false, "!C": true}, w.Values())

	var flips []string
	w.OnFlip(func(id string, value bool) {
		if value {
			flips = append(flips, id+"=true")
		} else {
			flips = append(flips, id+"=false")
		}
	})

	assert.Equal(t, 0, w.Check())

	vars.Set("X", "1")
	assert.Equal(t, 2, w.Check())
	assert.Equal(t, []string{"C=true", "!C=false"}, flips)
	assert.Equal(t, 0, w.Check())
}

func TestWatcherRunsOnSchedule(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	require.NoError(t, engine.AnalyzeDocument(doc(cond(TypeVariable, "C", "name", "X", "value", "1"))))

	w := NewWatcher(engine, WatcherOptions{Schedule: "@every 1s", Conditions: []string{"C"}}, nil)

	var mu sync.Mutex
	flipped := false
	w.OnFlip(func(string, bool) {
		mu.Lock()
		flipped = true
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	vars.Set("X", "1")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return flipped
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.NoError(t, w.Stop(context.Background()))
}

func TestWatcherRejectsBadSchedule(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	w := NewWatcher(engine, WatcherOptions{Schedule: "not a schedule"}, nil)
	assert.Error(t, w.Start(context.Background()))
}

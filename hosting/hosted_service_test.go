package hosting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type recordingService struct {
	name    string
	mu      *sync.Mutex
	events  *[]string
	stopErr error
}

func (s *recordingService) ServiceName() string { return s.name }

func (s *recordingService) record(e string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.events = append(*s.events, e)
}

func (s *recordingService) Start(ctx context.Context) error {
	s.record("start:" + s.name)
	<-ctx.Done()
	return ctx.Err()
}

func (s *recordingService) Stop(context.Context) error {
	s.record("stop:" + s.name)
	return s.stopErr
}

func TestStartAndStopAll(t *testing.T) {
	var mu sync.Mutex
	var events []string
	m := NewHostedServiceManager(nil)
	m.Add(&recordingService{name: "a", mu: &mu, events: &events})
	m.Add(&recordingService{name: "b", mu: &mu, events: &events, stopErr: errors.New("b failed")})
	assert.Equal(t, 2, m.Len())

	errCh := m.StartAll(context.Background())
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := m.StopAll(ctx)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), "b failed")

	// 被取消不算失败
	select {
	case err := <-errCh:
		t.Fatalf("unexpected service error: %v", err)
	default:
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"start:a", "start:b", "stop:a", "stop:b"}, events)
}

func TestServiceFailureIsReported(t *testing.T) {
	m := NewHostedServiceManager(nil)
	m.Add(ServiceFunc(func(context.Context) error { return errors.New("crashed") }))

	errCh := m.StartAll(context.Background())
	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "crashed")
	case <-time.After(time.Second):
		t.Fatal("expected service error")
	}
	m.Wait()
	assert.NoError(t, m.StopAll(context.Background()))
}

func TestStopAllTimesOut(t *testing.T) {
	m := NewHostedServiceManager(nil)
	release := make(chan struct{})
	m.Add(ServiceFunc(func(context.Context) error {
		<-release
		return nil
	}))
	m.StartAll(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := m.StopAll(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	m.Wait()
}

package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugbridge/internal/bridge/models"
)

type capturePublisher struct {
	mu      sync.Mutex
	reports []Report
	err     error
	seen    chan struct{}
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{seen: make(chan struct{}, 16)}
}

func (p *capturePublisher) Publish(_ context.Context, r Report) error {
	p.mu.Lock()
	p.reports = append(p.reports, r)
	p.mu.Unlock()
	p.seen <- struct{}{}
	return p.err
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reports)
}

func sampleReport(sourceID string) Report {
	return FromResult(sourceID, models.Applied("firefox-crash", "FX-101", 1))
}

func TestWorkerDeliversEnqueuedReports(t *testing.T) {
	pub := newCapturePublisher()
	w := NewWorker(pub, 8, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	require.True(t, w.Enqueue(sampleReport("BUG-1")))
	require.True(t, w.Enqueue(sampleReport("BUG-2")))

	for i := 0; i < 2; i++ {
		select {
		case <-pub.seen:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for report delivery")
		}
	}
	assert.Equal(t, 2, pub.count())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestWorkerDropsWhenBufferFull(t *testing.T) {
	pub := newCapturePublisher()
	w := NewWorker(pub, 1, nil, nil)

	// No consumer is running, so only the buffer slot is available.
	assert.True(t, w.Enqueue(sampleReport("BUG-1")))
	assert.False(t, w.Enqueue(sampleReport("BUG-2")))
}

func TestWorkerSurvivesPublishFailure(t *testing.T) {
	pub := newCapturePublisher()
	pub.err = errors.New("broker unreachable")
	w := NewWorker(pub, 8, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.True(t, w.Enqueue(sampleReport("BUG-1")))
	require.True(t, w.Enqueue(sampleReport("BUG-2")))

	for i := 0; i < 2; i++ {
		select {
		case <-pub.seen:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for report delivery")
		}
	}
	assert.Equal(t, 2, pub.count())
}

func TestFromResultCarriesFailureDetail(t *testing.T) {
	res := models.Failed("firefox-crash", models.FailureRetryExhausted, errors.New("gave up after 4 attempts"))
	r := FromResult("BUG-42", res)

	assert.Equal(t, "BUG-42", r.SourceID)
	assert.Equal(t, models.ResultFailed, r.Result)
	assert.Equal(t, models.FailureRetryExhausted, r.Failure)
	assert.Equal(t, "gave up after 4 attempts", r.Error)
	assert.NotEqual(t, [16]byte{}, [16]byte(r.ID))
	assert.False(t, r.ProcessedAt.IsZero())
}

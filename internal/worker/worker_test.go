package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonkozlov/imgmatch/constants"
	"github.com/antonkozlov/imgmatch/internal/common"
	"github.com/antonkozlov/imgmatch/internal/core"
	"github.com/antonkozlov/imgmatch/internal/entity"
)

type fakeAck struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeued bool
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAck) Nack(tag uint64, multiple bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeued = requeue
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakePublisher struct {
	mu             sync.Mutex
	published      map[string][][]byte
	deadLetters    []string
	failDeadLetter bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string][][]byte)}
}

func (p *fakePublisher) Publish(ctx context.Context, queue string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[queue] = append(p.published[queue], body)
	return nil
}

func (p *fakePublisher) DeadLetter(ctx context.Context, body []byte, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failDeadLetter {
		return errors.New("broker unavailable")
	}
	p.deadLetters = append(p.deadLetters, reason)
	return nil
}

// fakeProcessor fails the first failures calls, then succeeds with result.
type fakeProcessor struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	result   *core.Result
}

func (f *fakeProcessor) Handle(ctx context.Context, job *entity.Job) (*core.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeProcessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testWorkerConfig() common.WorkerConfig {
	return common.WorkerConfig{
		Workers:        1,
		ProcessTimeout: time.Second,
		RetryLimit:     5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func compareDelivery(ack *fakeAck) queuedDelivery {
	return queuedDelivery{
		queue: constants.CompareImagesQueue,
		delivery: amqp.Delivery{
			Acknowledger: ack,
			Body:         []byte(`{"job_id":"j-1","image_id":"img-1","image_path":"/data/a.png"}`),
		},
	}
}

func TestHandleSuccessAcksAndPublishesResponse(t *testing.T) {
	ack := &fakeAck{}
	pub := newFakePublisher()
	sim := 87.5
	proc := &fakeProcessor{result: &core.Result{
		Record: &entity.ComparisonRecord{
			ImagePath: "/data/a.png",
			Text:      &entity.ExtractedText{RawText: "invoice 42", Length: 10},
		},
		Matches: []core.Match{{
			Record:  &entity.ComparisonRecord{ImageID: "img-0", ImagePath: "/data/old.png"},
			Verdict: &entity.SimilarityVerdict{TextSimilarity: &sim, TextSimilar: true, IsDuplicate: true},
		}},
	}}
	w := New(nil, nil, pub, proc, testWorkerConfig(), false)

	w.handle(context.Background(), compareDelivery(ack))

	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
	assert.Equal(t, 1, proc.callCount())
	assert.Empty(t, pub.deadLetters)

	responses := pub.published[constants.ResponseQueue]
	require.Len(t, responses, 1)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(responses[0], &msg))
	assert.Equal(t, "j-1", msg["job_id"])
	similar, ok := msg["similar_images"].([]any)
	require.True(t, ok)
	require.Len(t, similar, 1)
	first := similar[0].(map[string]any)
	assert.Equal(t, "/data/old.png", first["image_path"])
	assert.InDelta(t, 87.5, first["similarity"], 1e-9)
}

func TestHandleOCRJobPublishesNoResponse(t *testing.T) {
	ack := &fakeAck{}
	pub := newFakePublisher()
	proc := &fakeProcessor{result: &core.Result{Record: &entity.ComparisonRecord{}}}
	w := New(nil, nil, pub, proc, testWorkerConfig(), false)

	w.handle(context.Background(), queuedDelivery{
		queue: constants.OCRImageQueue,
		delivery: amqp.Delivery{
			Acknowledger: ack,
			Body:         []byte(`{"job_id":"j-2","image_path":"/data/b.png"}`),
		},
	})

	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, pub.published[constants.ResponseQueue])
}

func TestHandleAlreadyKnownSkipsResponse(t *testing.T) {
	ack := &fakeAck{}
	pub := newFakePublisher()
	proc := &fakeProcessor{result: &core.Result{
		Record:       &entity.ComparisonRecord{ImagePath: "/data/a.png"},
		AlreadyKnown: true,
	}}
	w := New(nil, nil, pub, proc, testWorkerConfig(), false)

	w.handle(context.Background(), compareDelivery(ack))

	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, pub.published[constants.ResponseQueue])
}

func TestHandleRetriesTransientThenSucceeds(t *testing.T) {
	ack := &fakeAck{}
	pub := newFakePublisher()
	proc := &fakeProcessor{
		failures: 2,
		err:      common.StoreError("insert failed", errors.New("connection reset")),
		result:   &core.Result{Record: &entity.ComparisonRecord{}},
	}
	w := New(nil, nil, pub, proc, testWorkerConfig(), false)

	w.handle(context.Background(), compareDelivery(ack))

	assert.Equal(t, 3, proc.callCount(), "two transient failures then success")
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
	assert.Empty(t, pub.deadLetters)
}

func TestHandleExhaustedRetriesDeadLetters(t *testing.T) {
	ack := &fakeAck{}
	pub := newFakePublisher()
	proc := &fakeProcessor{
		failures: 100,
		err:      common.StoreError("insert failed", errors.New("connection reset")),
	}
	cfg := testWorkerConfig()
	cfg.RetryLimit = 2
	w := New(nil, nil, pub, proc, cfg, false)

	w.handle(context.Background(), compareDelivery(ack))

	assert.Equal(t, 3, proc.callCount(), "initial attempt plus two retries")
	require.Len(t, pub.deadLetters, 1)
	assert.Equal(t, 1, ack.acks, "dead-lettered delivery is removed from the queue")
}

func TestHandlePermanentFailureDeadLettersWithoutRetry(t *testing.T) {
	ack := &fakeAck{}
	pub := newFakePublisher()
	proc := &fakeProcessor{
		failures: 100,
		err:      common.ExtractionError("no usable signal", nil),
	}
	w := New(nil, nil, pub, proc, testWorkerConfig(), false)

	w.handle(context.Background(), compareDelivery(ack))

	assert.Equal(t, 1, proc.callCount())
	require.Len(t, pub.deadLetters, 1)
	assert.Contains(t, pub.deadLetters[0], "no usable signal")
	assert.Equal(t, 1, ack.acks)
}

func TestHandleMalformedBodyDeadLettersWithoutProcessing(t *testing.T) {
	ack := &fakeAck{}
	pub := newFakePublisher()
	proc := &fakeProcessor{}
	w := New(nil, nil, pub, proc, testWorkerConfig(), false)

	w.handle(context.Background(), queuedDelivery{
		queue:    constants.CompareImagesQueue,
		delivery: amqp.Delivery{Acknowledger: ack, Body: []byte(`{"nope":`)},
	})

	assert.Zero(t, proc.callCount())
	require.Len(t, pub.deadLetters, 1)
	assert.Equal(t, 1, ack.acks)
}

func TestHandleRequeuesWhenDeadLetterPublishFails(t *testing.T) {
	ack := &fakeAck{}
	pub := newFakePublisher()
	pub.failDeadLetter = true
	proc := &fakeProcessor{
		failures: 100,
		err:      common.ExtractionError("no usable signal", nil),
	}
	w := New(nil, nil, pub, proc, testWorkerConfig(), false)

	w.handle(context.Background(), compareDelivery(ack))

	assert.Zero(t, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeued, "message must go back to the broker when the failure record cannot be written")
}

func TestHandleSerializesSameResource(t *testing.T) {
	ack := &fakeAck{}
	pub := newFakePublisher()

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	proc := &blockingProcessor{enter: func() {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}}
	w := New(nil, nil, pub, proc, testWorkerConfig(), false)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.handle(context.Background(), compareDelivery(ack))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxInFlight, "jobs for one resource must run one at a time")
	assert.Equal(t, 4, ack.acks)
}

type blockingProcessor struct {
	enter func()
}

func (b *blockingProcessor) Handle(ctx context.Context, job *entity.Job) (*core.Result, error) {
	b.enter()
	return &core.Result{Record: &entity.ComparisonRecord{}, AlreadyKnown: true}, nil
}

func TestHandleRequeuesWhenLockWaitCanceled(t *testing.T) {
	ack := &fakeAck{}
	pub := newFakePublisher()
	proc := &fakeProcessor{result: &core.Result{Record: &entity.ComparisonRecord{}}}
	w := New(nil, nil, pub, proc, testWorkerConfig(), false)

	release, err := w.locks.Acquire(context.Background(), "/data/a.png")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.handle(ctx, compareDelivery(ack))

	assert.Zero(t, proc.callCount())
	assert.Zero(t, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeued, "a delivery stuck behind a busy lock at shutdown goes back to the broker")
}

type fakeSource struct {
	chans  map[string]chan amqp.Delivery
	failOn map[string]error
}

func newFakeSource(queues ...string) *fakeSource {
	s := &fakeSource{
		chans:  make(map[string]chan amqp.Delivery),
		failOn: make(map[string]error),
	}
	for _, q := range queues {
		s.chans[q] = make(chan amqp.Delivery, 8)
	}
	return s
}

func (s *fakeSource) Consume(queue string) (<-chan amqp.Delivery, error) {
	if err := s.failOn[queue]; err != nil {
		return nil, err
	}
	return s.chans[queue], nil
}

func TestRunFailsFastWhenConsumeFails(t *testing.T) {
	src := newFakeSource(constants.OCRImageQueue, constants.CompareImagesQueue)
	boom := errors.New("channel closed")
	src.failOn[constants.CompareImagesQueue] = boom
	w := New(nil, src, newFakePublisher(), &fakeProcessor{}, testWorkerConfig(), false)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := w.Run(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestRunProcessesAndDrains(t *testing.T) {
	src := newFakeSource(constants.OCRImageQueue, constants.CompareImagesQueue)
	ack := &fakeAck{}
	pub := newFakePublisher()
	proc := &fakeProcessor{result: &core.Result{Record: &entity.ComparisonRecord{}}}
	w := New(nil, src, pub, proc, testWorkerConfig(), false)

	src.chans[constants.OCRImageQueue] <- amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"job_id":"j-1","image_path":"/data/a.png"}`),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		ack.mu.Lock()
		defer ack.mu.Unlock()
		return ack.acks == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker pool did not drain after shutdown")
	}
	assert.Equal(t, 1, proc.callCount())
}

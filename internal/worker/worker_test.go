package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"alcyxob/notes-app/internal/config"
	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/logger"
	"alcyxob/notes-app/internal/queue"
	"alcyxob/notes-app/internal/repository"
	"alcyxob/notes-app/internal/storage"
	"alcyxob/notes-app/internal/testutil"
	"alcyxob/notes-app/internal/watermark"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const stampText = "Uploaded by ana on Learnify"

type fakeRecorder struct {
	mu      sync.Mutex
	state   map[uuid.UUID]domain.StampState
	live    map[uuid.UUID]bool
	files   map[uuid.UUID]domain.FileRef
	stamped map[uuid.UUID]int
	failed  map[uuid.UUID]int

	// afterNeeds runs when NeedsStamp has said yes, before the worker goes on.
	afterNeeds func(id uuid.UUID)
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		state:   map[uuid.UUID]domain.StampState{},
		live:    map[uuid.UUID]bool{},
		files:   map[uuid.UUID]domain.FileRef{},
		stamped: map[uuid.UUID]int{},
		failed:  map[uuid.UUID]int{},
	}
}

// pending reports whether the version takes stamp writes. Caller holds mu.
func (r *fakeRecorder) pending(id uuid.UUID) bool {
	s, ok := r.state[id]
	return !r.live[id] && (!ok || s == domain.StampPending)
}

func (r *fakeRecorder) NeedsStamp(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	need, hook := r.pending(id), r.afterNeeds
	r.mu.Unlock()
	if need && hook != nil {
		hook(id)
	}
	return need, nil
}

func (r *fakeRecorder) PublishStamp(_ context.Context, id uuid.UUID, file domain.FileRef) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pending(id) {
		return "", repository.ErrUpdateFailed
	}
	previous := r.files[id].Handle
	r.files[id] = file
	r.state[id] = domain.StampApplied
	r.stamped[id]++
	return previous, nil
}

func (r *fakeRecorder) MarkFailed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pending(id) {
		return repository.ErrUpdateFailed
	}
	r.state[id] = domain.StampFailed
	r.failed[id]++
	return nil
}

func (r *fakeRecorder) track(id uuid.UUID, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[id] = domain.FileRef{Handle: handle}
}

func (r *fakeRecorder) set(id uuid.UUID, state domain.StampState, live bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[id] = state
	r.live[id] = live
}

func (r *fakeRecorder) file(id uuid.UUID) domain.FileRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files[id]
}

func (r *fakeRecorder) stateOf(id uuid.UUID) domain.StampState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.state[id]; ok {
		return s
	}
	return domain.StampPending
}

type fakeDeadLetters struct {
	mu        sync.Mutex
	letters   []domain.DeadLetter
	failSaves int
	saveCalls int
}

func (f *fakeDeadLetters) Save(_ context.Context, dl *domain.DeadLetter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveCalls <= f.failSaves {
		return errors.New("mongo unavailable")
	}
	dl.ID = primitive.NewObjectID()
	f.letters = append(f.letters, *dl)
	return nil
}

func (f *fakeDeadLetters) List(context.Context, int64) ([]domain.DeadLetter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.DeadLetter(nil), f.letters...), nil
}

func (f *fakeDeadLetters) GetByID(context.Context, string) (*domain.DeadLetter, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeDeadLetters) ClaimReplay(context.Context, string, time.Time) error { return nil }
func (f *fakeDeadLetters) ReleaseReplay(context.Context, string) error          { return nil }
func (f *fakeDeadLetters) SetReplayJobID(context.Context, string, string) error { return nil }

// flakyProducer fails the first failures calls, then forwards to Producer.
type flakyProducer struct {
	queue.Producer
	mu       sync.Mutex
	failures int
	calls    int
}

func (p *flakyProducer) Enqueue(ctx context.Context, job domain.WatermarkJob) (string, error) {
	p.mu.Lock()
	p.calls++
	fail := p.calls <= p.failures
	p.mu.Unlock()
	if fail {
		return "", errors.New("broker unavailable")
	}
	return p.Producer.Enqueue(ctx, job)
}

func (p *flakyProducer) attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// partition hands out its jobs in order, one offset each, and logs every
// receive and acknowledgement.
type partition struct {
	mu     sync.Mutex
	jobs   []domain.WatermarkJob
	next   int
	events []string
}

func (c *partition) Receive(ctx context.Context) (*queue.Delivery, error) {
	c.mu.Lock()
	if c.next >= len(c.jobs) {
		c.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	offset := c.next
	job := c.jobs[offset]
	c.next++
	c.events = append(c.events, fmt.Sprintf("receive %d", offset))
	c.mu.Unlock()

	return queue.NewDelivery(job, 1, func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, fmt.Sprintf("ack %d", offset))
		return nil
	}), nil
}

func (c *partition) log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

type fixture struct {
	queue    *queue.MemoryQueue
	store    *storage.MemoryStorage
	recorder *fakeRecorder
	dead     *fakeDeadLetters
	worker   *Worker
}

func newFixture(t *testing.T, cfg config.WorkerConfig) *fixture {
	t.Helper()
	f := &fixture{
		queue:    queue.NewMemoryQueue(time.Minute),
		store:    storage.NewMemoryStorage(""),
		recorder: newFakeRecorder(),
		dead:     &fakeDeadLetters{},
	}
	f.worker = New(Deps{
		Consumers:   []queue.Consumer{f.queue, f.queue},
		Producer:    f.queue,
		Store:       f.store,
		Engine:      watermark.NewEngine(),
		Recorder:    f.recorder,
		DeadLetters: f.dead,
		Log:         logger.Discard(),
	}, cfg, config.WatermarkConfig{Brand: "Learnify", ProvenancePoint: 10})
	t.Cleanup(func() { _ = f.queue.Close() })
	return f
}

func (f *fixture) put(t *testing.T, handle string, data []byte) {
	t.Helper()
	_, err := f.store.Put(context.Background(), handle, data, storage.ContentTypePDF)
	require.NoError(t, err)
}

func (f *fixture) enqueue(t *testing.T, job domain.WatermarkJob) {
	t.Helper()
	_, err := f.queue.Enqueue(context.Background(), job)
	require.NoError(t, err)
}

// handleNext receives one delivery and runs it through the worker.
func (f *fixture) handleNext(t *testing.T) *queue.Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := f.queue.Receive(ctx)
	require.NoError(t, err)
	f.worker.Handle(context.Background(), d)
	return d
}

func provenanceJob(handle string, version uuid.UUID) domain.WatermarkJob {
	return domain.WatermarkJob{
		Kind:          domain.JobProvenanceStamp,
		StorageHandle: handle,
		StampText:     stampText,
		DocumentID:    uuid.NewString(),
		VersionID:     version.String(),
		EnqueuedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func fastRetry() config.WorkerConfig {
	return config.WorkerConfig{Attempts: 3, MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestHandle_PublishesStampedCopy(t *testing.T) {
	f := newFixture(t, fastRetry())
	version := uuid.New()
	f.put(t, "notes/a.pdf", testutil.PDF("lecture"))
	f.recorder.track(version, "notes/a.pdf")
	f.enqueue(t, provenanceJob("notes/a.pdf", version))

	f.handleNext(t)

	published := f.recorder.file(version)
	require.NotEqual(t, "notes/a.pdf", published.Handle)
	stored, err := f.store.Get(context.Background(), published.Handle)
	require.NoError(t, err)
	assert.Positive(t, testutil.CountText(stored, stampText))
	assert.False(t, f.store.Has("notes/a.pdf"), "the unstamped source is released")
	assert.Equal(t, 1, f.recorder.stamped[version])
	assert.Equal(t, domain.StampApplied, f.recorder.stateOf(version))
	assert.Equal(t, 0, f.queue.Len())
	assert.Empty(t, f.dead.letters)
}

func TestHandle_RedeliveryAfterPublishIsSkipped(t *testing.T) {
	f := newFixture(t, fastRetry())
	version := uuid.New()
	f.put(t, "notes/b.pdf", testutil.PDF("chapter"))
	f.recorder.track(version, "notes/b.pdf")
	job := provenanceJob("notes/b.pdf", version)

	f.enqueue(t, job)
	f.handleNext(t)
	published := f.recorder.file(version)
	once, err := f.store.Get(context.Background(), published.Handle)
	require.NoError(t, err)

	// Redelivery of the very same job.
	f.enqueue(t, job)
	f.handleNext(t)

	twice, err := f.store.Get(context.Background(), published.Handle)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Equal(t, published, f.recorder.file(version))
	assert.Equal(t, 1, f.recorder.stamped[version])
	assert.Equal(t, 1, f.store.Len())
	assert.Empty(t, f.dead.letters)
}

func TestHandle_SkipsVersionThatIsAlreadyLive(t *testing.T) {
	f := newFixture(t, fastRetry())
	version := uuid.New()
	src := testutil.PDF("live")
	f.put(t, "notes/live.pdf", src)
	f.recorder.set(version, domain.StampApplied, true)
	f.enqueue(t, provenanceJob("notes/live.pdf", version))

	f.handleNext(t)

	stored, err := f.store.Get(context.Background(), "notes/live.pdf")
	require.NoError(t, err)
	assert.Equal(t, src, stored, "live file must not be rewritten")
	assert.Zero(t, f.recorder.stamped[version])
	assert.Equal(t, 0, f.queue.Len())
}

func TestHandle_PromotionDuringStampKeepsLiveFile(t *testing.T) {
	f := newFixture(t, fastRetry())
	version := uuid.New()
	src := testutil.PDF("approved")
	f.put(t, "notes/h.pdf", src)
	f.recorder.track(version, "notes/h.pdf")
	f.recorder.afterNeeds = func(id uuid.UUID) {
		f.recorder.set(id, domain.StampApplied, true)
	}
	f.enqueue(t, provenanceJob("notes/h.pdf", version))

	f.handleNext(t)

	stored, err := f.store.Get(context.Background(), "notes/h.pdf")
	require.NoError(t, err)
	assert.Equal(t, src, stored, "live file must not be rewritten")
	assert.Equal(t, domain.FileRef{Handle: "notes/h.pdf"}, f.recorder.file(version))
	assert.Equal(t, 1, f.store.Len(), "the refused stamped copy is removed")
	assert.Zero(t, f.recorder.stamped[version])
	assert.Empty(t, f.dead.letters)
	assert.Equal(t, 0, f.queue.Len())
}

func TestHandle_FailingDuplicateKeepsStampedState(t *testing.T) {
	cfg := fastRetry()
	cfg.Attempts = 1
	f := newFixture(t, cfg)
	version := uuid.New()
	f.put(t, "notes/i.pdf", testutil.PDF("dup"))
	// The other delivery of this job lands while this one is still working.
	f.recorder.afterNeeds = func(id uuid.UUID) {
		f.recorder.set(id, domain.StampApplied, false)
	}
	job := provenanceJob("notes/i.pdf", version)
	job.RetryCount = cfg.MaxRetries
	f.enqueue(t, job)

	f.store.FailNext(1)
	f.handleNext(t)

	require.Len(t, f.dead.letters, 1)
	assert.Equal(t, domain.StampApplied, f.recorder.stateOf(version))
	assert.Zero(t, f.recorder.failed[version])
}

func TestHandle_TransientFailureIsRetriedInProcess(t *testing.T) {
	f := newFixture(t, fastRetry())
	version := uuid.New()
	f.put(t, "notes/c.pdf", testutil.PDF("retry"))
	f.enqueue(t, provenanceJob("notes/c.pdf", version))

	f.store.FailNext(2)
	f.handleNext(t)

	assert.Equal(t, 1, f.recorder.stamped[version])
	assert.Equal(t, 0, f.queue.Len())
	assert.Empty(t, f.dead.letters)
}

func TestHandle_MalformedIsDeadLetteredWithoutRetry(t *testing.T) {
	f := newFixture(t, fastRetry())
	version := uuid.New()
	f.put(t, "notes/d.pdf", []byte("%PDF-1.4\nthis is not really a pdf"))
	f.enqueue(t, provenanceJob("notes/d.pdf", version))

	f.handleNext(t)

	require.Len(t, f.dead.letters, 1)
	assert.True(t, f.dead.letters[0].Permanent)
	assert.Contains(t, f.dead.letters[0].Reason, "malformed")
	assert.Equal(t, 1, f.recorder.failed[version])
	assert.Equal(t, 0, f.queue.Len(), "no requeue for permanent failures")
}

func TestHandle_MissingObjectAndBadJobAreDeadLettered(t *testing.T) {
	f := newFixture(t, fastRetry())
	f.enqueue(t, provenanceJob("notes/missing.pdf", uuid.New()))
	f.enqueue(t, domain.WatermarkJob{Kind: "resize", StorageHandle: "x", StampText: "y"})

	f.handleNext(t)
	f.handleNext(t)

	require.Len(t, f.dead.letters, 2)
	for _, dl := range f.dead.letters {
		assert.True(t, dl.Permanent)
	}
	assert.Equal(t, 0, f.queue.Len())
}

func TestHandle_ExhaustedRetriesRequeueThenDeadLetter(t *testing.T) {
	cfg := fastRetry()
	cfg.Attempts = 1
	f := newFixture(t, cfg)
	f.put(t, "notes/e.pdf", testutil.PDF("flaky"))
	f.enqueue(t, provenanceJob("notes/e.pdf", uuid.New()))

	f.store.FailNext(1)
	first := f.handleNext(t)
	assert.Equal(t, 0, first.Job.RetryCount)
	assert.Equal(t, 1, f.queue.Len(), "requeued once")
	assert.Empty(t, f.dead.letters)

	f.store.FailNext(1)
	second := f.handleNext(t)
	assert.Equal(t, 1, second.Job.RetryCount)
	assert.Equal(t, first.Job.ID, second.Job.ID)

	require.Len(t, f.dead.letters, 1)
	assert.False(t, f.dead.letters[0].Permanent)
	assert.Equal(t, 0, f.queue.Len())
}

func TestHandle_ProducerStampSetsProperties(t *testing.T) {
	f := newFixture(t, fastRetry())
	src := testutil.PDF("admin")
	f.put(t, "notes/f.pdf", src)
	version := uuid.New()
	job := provenanceJob("notes/f.pdf", version)
	job.Kind = domain.JobProducerStamp
	job.StampText = "Learnify Admin"
	f.enqueue(t, job)

	f.handleNext(t)

	stored, err := f.store.Get(context.Background(), f.recorder.file(version).Handle)
	require.NoError(t, err)
	assert.NotEqual(t, src, stored)
	assert.Zero(t, testutil.CountText(stored, stampText))
	assert.Contains(t, string(stored), "/Producer (Learnify)")
	assert.Contains(t, string(stored), "/Creator (Learnify Admin)")
	assert.Empty(t, f.dead.letters)
}

func TestRun_DrainsQueueAndStopsOnCancel(t *testing.T) {
	f := newFixture(t, fastRetry())
	versions := make([]uuid.UUID, 4)
	for i := range versions {
		versions[i] = uuid.New()
		handle := "notes/run-" + versions[i].String() + ".pdf"
		f.put(t, handle, testutil.PDF("page"))
		f.enqueue(t, provenanceJob(handle, versions[i]))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	require.Eventually(t, func() bool { return f.queue.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	for _, v := range versions {
		assert.Equal(t, 1, f.recorder.stamped[v])
	}
}

func TestHandle_RetriesDeadLetterSaveUntilStored(t *testing.T) {
	f := newFixture(t, fastRetry())
	f.dead.failSaves = 2
	version := uuid.New()
	f.put(t, "notes/g.pdf", []byte("%PDF-1.4\nthis is not really a pdf"))
	f.enqueue(t, provenanceJob("notes/g.pdf", version))

	f.handleNext(t)

	require.Len(t, f.dead.letters, 1)
	assert.Equal(t, 3, f.dead.saveCalls)
	assert.Equal(t, 1, f.recorder.failed[version])
	assert.Equal(t, 0, f.queue.Len(), "acknowledged once the dead letter was stored")
}

func TestHandle_ShutdownLeavesUnsettledDeliveryUnacked(t *testing.T) {
	cfg := fastRetry()
	cfg.Attempts = 1
	f := newFixture(t, cfg)
	f.worker.Producer = &flakyProducer{Producer: f.queue, failures: 1 << 30}
	f.put(t, "notes/j.pdf", testutil.PDF("stuck"))
	p := &partition{jobs: []domain.WatermarkJob{provenanceJob("notes/j.pdf", uuid.New())}}

	d, err := p.Receive(context.Background())
	require.NoError(t, err)
	f.store.FailNext(1)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	f.worker.Handle(ctx, d)

	assert.Equal(t, []string{"receive 0"}, p.log())
	assert.Empty(t, f.dead.letters)
	assert.Equal(t, 0, f.queue.Len())
}

func TestRun_UnsettledDeliveryHoldsTheSlot(t *testing.T) {
	cfg := fastRetry()
	cfg.Attempts = 1
	f := newFixture(t, cfg)
	producer := &flakyProducer{Producer: f.queue, failures: 3}
	first, second := uuid.New(), uuid.New()
	f.put(t, "notes/k0.pdf", testutil.PDF("k0"))
	f.put(t, "notes/k1.pdf", testutil.PDF("k1"))
	p := &partition{jobs: []domain.WatermarkJob{
		provenanceJob("notes/k0.pdf", first),
		provenanceJob("notes/k1.pdf", second),
	}}
	w := New(Deps{
		Consumers:   []queue.Consumer{p},
		Producer:    producer,
		Store:       f.store,
		Engine:      watermark.NewEngine(),
		Recorder:    f.recorder,
		DeadLetters: f.dead,
		Log:         logger.Discard(),
	}, cfg, config.WatermarkConfig{Brand: "Learnify", ProvenancePoint: 10})

	// The first job fails once and its requeue meets a broker outage.
	f.store.FailNext(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(p.log()) == 4 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"receive 0", "ack 0", "receive 1", "ack 1"}, p.log(),
		"the next offset is not taken before the earlier one is settled")
	assert.Equal(t, 4, producer.attempts())
	assert.Equal(t, 1, f.queue.Len(), "the failed job was requeued once")

	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	assert.Equal(t, 1, f.recorder.stamped[second])
	assert.Zero(t, f.recorder.stamped[first])
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"alcyxob/notes-app/internal/config"
	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/logger"
	"alcyxob/notes-app/internal/queue"
	"alcyxob/notes-app/internal/repository"
	"alcyxob/notes-app/internal/repository/postgres"
	"alcyxob/notes-app/internal/storage"
	"alcyxob/notes-app/internal/testutil"
	"alcyxob/notes-app/internal/watermark"
	"alcyxob/notes-app/internal/worker"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memoryInbox struct {
	mu            sync.Mutex
	notifications []domain.Notification
}

func (m *memoryInbox) CreateMany(_ context.Context, n []domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n...)
	return nil
}

func (m *memoryInbox) ListByUser(_ context.Context, userID uuid.UUID, _ int64) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.notifications {
		if n.UserID == userID.String() {
			out = append(out, n)
		}
	}
	return out, nil
}

type memoryViewLog struct {
	mu      sync.Mutex
	records map[string]int64
}

func (m *memoryViewLog) Record(_ context.Context, viewerID, documentID uuid.UUID, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[viewerID.String()+"/"+documentID.String()]++
	return nil
}

func (m *memoryViewLog) Get(_ context.Context, viewerID, documentID uuid.UUID) (*domain.ViewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.records[viewerID.String()+"/"+documentID.String()]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &domain.ViewRecord{ViewerID: viewerID.String(), DocumentID: documentID.String(), Views: n}, nil
}

type memoryDeadLetters struct {
	mu      sync.Mutex
	letters map[string]*domain.DeadLetter
}

func (m *memoryDeadLetters) Save(_ context.Context, dl *domain.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl.ID = primitive.NewObjectID()
	cp := *dl
	m.letters[dl.ID.Hex()] = &cp
	return nil
}

func (m *memoryDeadLetters) List(context.Context, int64) ([]domain.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.DeadLetter{}
	for _, dl := range m.letters {
		if dl.ReplayedAt == nil {
			out = append(out, *dl)
		}
	}
	return out, nil
}

func (m *memoryDeadLetters) GetByID(_ context.Context, id string) (*domain.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl, ok := m.letters[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *dl
	return &cp, nil
}

func (m *memoryDeadLetters) ClaimReplay(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl, ok := m.letters[id]
	if !ok {
		return repository.ErrNotFound
	}
	if dl.ReplayedAt != nil {
		return repository.ErrUpdateFailed
	}
	dl.ReplayedAt = &at
	return nil
}

func (m *memoryDeadLetters) ReleaseReplay(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl, ok := m.letters[id]
	if !ok {
		return repository.ErrNotFound
	}
	dl.ReplayedAt, dl.ReplayJob = nil, ""
	return nil
}

func (m *memoryDeadLetters) SetReplayJobID(_ context.Context, id, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl, ok := m.letters[id]
	if !ok {
		return repository.ErrNotFound
	}
	dl.ReplayJob = jobID
	return nil
}

type failingProducer struct{}

func (failingProducer) Enqueue(context.Context, domain.WatermarkJob) (string, error) {
	return "", errors.New("broker down")
}

type harness struct {
	t        *testing.T
	store    *postgres.Store
	objects  *storage.MemoryStorage
	queue    *queue.MemoryQueue
	inbox    *memoryInbox
	viewLogs *memoryViewLog
	dead     *memoryDeadLetters
	notifier *FavoriteNotifier
	worker   *worker.Worker

	docs     DocumentService
	versions VersionService
	views    ViewService
	letters  DeadLetterService
}

var testWatermark = config.WatermarkConfig{
	Brand:           "Learnify",
	PublisherLabel:  "Learnify Admin",
	ViewTextPoints:  42,
	ProvenancePoint: 10,
}

func newHarness(t *testing.T, access config.AccessConfig) *harness {
	t.Helper()
	db, err := postgres.Open(testutil.SQLiteConfig(t))
	require.NoError(t, err)
	require.NoError(t, postgres.AutoMigrate(db))
	t.Cleanup(func() { _ = postgres.Close(db) })

	log := logger.Discard()
	h := &harness{
		t:        t,
		store:    postgres.NewStore(db),
		objects:  storage.NewMemoryStorage(""),
		queue:    queue.NewMemoryQueue(time.Minute),
		inbox:    &memoryInbox{},
		viewLogs: &memoryViewLog{records: map[string]int64{}},
		dead:     &memoryDeadLetters{letters: map[string]*domain.DeadLetter{}},
	}
	engine := watermark.NewEngine()
	h.notifier = NewFavoriteNotifier(h.store.Favorites(), h.inbox, log)

	p := NewPipeline(h.store, h.objects, engine, h.queue, config.UploadConfig{MaxBytes: 1 << 20}, testWatermark, log)
	h.docs = NewDocumentService(p, h.notifier)
	h.versions = NewVersionService(p, h.notifier)
	h.views = NewViewService(h.store, h.objects, engine, NewAccessPolicy(h.store.Users(), access), h.viewLogs,
		testWatermark, config.ViewConfig{MaxConcurrentStamps: 2, StampWait: time.Second}, nil, log)
	h.letters = NewDeadLetterService(h.dead, h.store.Versions(), h.queue, log)

	h.worker = worker.New(worker.Deps{
		Consumers:   []queue.Consumer{h.queue},
		Producer:    h.queue,
		Store:       h.objects,
		Engine:      engine,
		Recorder:    NewStampRecorder(h.store),
		DeadLetters: h.dead,
		Log:         log,
	}, config.WorkerConfig{Attempts: 2, MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, testWatermark)
	return h
}

func (h *harness) user(name string, role domain.Role) domain.Identity {
	h.t.Helper()
	u := &domain.User{Username: name, Email: name + "@example.com", PasswordHash: "x", Role: role}
	require.NoError(h.t, h.store.Users().Create(context.Background(), u))
	return domain.Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
}

// drain runs queued jobs through the worker until the queue is empty.
func (h *harness) drain() {
	h.t.Helper()
	for h.queue.Len() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		d, err := h.queue.Receive(ctx)
		cancel()
		require.NoError(h.t, err)
		h.worker.Handle(context.Background(), d)
	}
}

func (h *harness) upload(owner domain.Identity, title string, pages ...string) *domain.Document {
	h.t.Helper()
	doc, err := h.docs.Upload(context.Background(), UploadInput{
		Uploader:     owner,
		Title:        title,
		MaterialType: domain.MaterialUniversity,
		ContentType:  "application/pdf",
		File:         testutil.PDF(pages...),
	})
	require.NoError(h.t, err)
	return doc
}

// approved uploads, stamps and approves a document.
func (h *harness) approved(owner domain.Identity, title string) *domain.Document {
	h.t.Helper()
	doc := h.upload(owner, title, title)
	h.drain()
	doc, err := h.docs.Review(context.Background(), doc.ID, ReviewApprove, "")
	require.NoError(h.t, err)
	return doc
}

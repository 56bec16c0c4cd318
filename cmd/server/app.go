package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"alcyxob/notes-app/internal/config"
	"alcyxob/notes-app/internal/logger"
	"alcyxob/notes-app/internal/queue"
	"alcyxob/notes-app/internal/repository"
	"alcyxob/notes-app/internal/repository/mongo"
	"alcyxob/notes-app/internal/repository/postgres"
	"alcyxob/notes-app/internal/service"
	"alcyxob/notes-app/internal/storage"
	"alcyxob/notes-app/internal/watermark"
	"alcyxob/notes-app/internal/worker"

	"github.com/sirupsen/logrus"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// app owns every connection the process opens. close releases them in
// reverse order of opening.
type app struct {
	cfg config.Config
	log *logrus.Logger

	db      *gorm.DB
	store   *postgres.Store
	mongo   *mongodriver.Client
	docDB   *mongodriver.Database
	objects storage.ObjectStore

	producer queue.Producer
	memQueue *queue.MemoryQueue
	closers  []func() error
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &app{cfg: cfg, log: logger.New(cfg.Log)}, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("error during shutdown")
		}
	}
	a.closers = nil
}

// openDatabases connects the relational store and the document database.
func (a *app) openDatabases() error {
	db, err := postgres.Open(a.cfg.Database)
	if err != nil {
		return fmt.Errorf("open %s database: %w", a.cfg.Database.Driver, err)
	}
	a.db = db
	a.store = postgres.NewStore(db)
	a.onClose(func() error { return postgres.Close(db) })
	a.log.WithField("driver", a.cfg.Database.Driver).Info("relational database connected")

	client, err := mongo.ConnectDB(a.cfg.Mongo.URI)
	if err != nil {
		return fmt.Errorf("connect MongoDB: %w", err)
	}
	a.mongo = client
	a.docDB = client.Database(a.cfg.Mongo.Name)
	a.onClose(func() error { return mongo.DisconnectDB(client) })
	a.log.WithField("database", a.cfg.Mongo.Name).Info("MongoDB connected")
	return nil
}

func (a *app) openStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Driver {
	case "s3":
		a.objects, err = storage.NewS3Storage(a.cfg.S3, a.cfg.Storage, a.log)
	case "minio":
		a.objects, err = storage.NewMinioStorage(ctx, a.cfg.Minio, a.cfg.Storage, a.log)
	case "memory":
		a.objects = storage.NewMemoryStorage(a.cfg.Storage.PublicBaseURL)
	default:
		err = fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
	if err != nil {
		return err
	}
	a.log.WithField("driver", a.cfg.Storage.Driver).Info("object storage ready")
	return nil
}

// openProducer opens the queue side used to schedule stamp jobs. The memory
// queue is shared with an embedded worker in the same process.
func (a *app) openProducer() error {
	switch a.cfg.Queue.Driver {
	case "kafka":
		p := queue.NewKafkaProducer(a.cfg.Kafka)
		a.producer = p
		a.onClose(p.Close)
	case "memory":
		a.memQueue = queue.NewMemoryQueue(a.cfg.Queue.VisibilityTimeout)
		a.producer = a.memQueue
		a.onClose(a.memQueue.Close)
	default:
		return fmt.Errorf("unknown queue driver %q", a.cfg.Queue.Driver)
	}
	return nil
}

// consumers opens one consumer per worker slot. Kafka spreads partitions
// across the members of the group.
func (a *app) consumers(n int) ([]queue.Consumer, error) {
	if n < 1 {
		n = 1
	}
	out := make([]queue.Consumer, 0, n)
	for i := 0; i < n; i++ {
		switch a.cfg.Queue.Driver {
		case "kafka":
			c := queue.NewKafkaConsumer(a.cfg.Kafka)
			a.onClose(c.Close)
			out = append(out, c)
		case "memory":
			if a.memQueue == nil {
				return nil, fmt.Errorf("memory queue requires the worker to run inside serve (--with-worker)")
			}
			out = append(out, a.memQueue)
		default:
			return nil, fmt.Errorf("unknown queue driver %q", a.cfg.Queue.Driver)
		}
	}
	return out, nil
}

func (a *app) deadLetters() repository.DeadLetterRepository {
	return mongo.NewMongoDeadLetterRepository(a.docDB)
}

func (a *app) newWorker(engine *watermark.Engine) (*worker.Worker, error) {
	consumers, err := a.consumers(a.cfg.Worker.Concurrency)
	if err != nil {
		return nil, err
	}
	return worker.New(worker.Deps{
		Consumers:   consumers,
		Producer:    a.producer,
		Store:       a.objects,
		Engine:      engine,
		Recorder:    service.NewStampRecorder(a.store),
		DeadLetters: a.deadLetters(),
		Log:         a.log.WithField("component", "worker"),
	}, a.cfg.Worker, a.cfg.Watermark), nil
}

// loadLogo reads the optional overlay logo. A missing file disables the logo.
func (a *app) loadLogo() []byte {
	if a.cfg.Watermark.LogoPath == "" {
		return nil
	}
	logo, err := os.ReadFile(a.cfg.Watermark.LogoPath)
	if err != nil {
		a.log.WithError(err).WithField("path", a.cfg.Watermark.LogoPath).Warn("watermark logo not loaded")
		return nil
	}
	return logo
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

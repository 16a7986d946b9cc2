package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/archive"
	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	"github.com/Phucdanghoc/File-store-sub000/internal/repository"
)

var errInjected = errors.New("injected failure")

// MockLogger records messages; safe for use from background tasks.
type MockLogger struct {
	mu       sync.Mutex
	messages []string
}

func NewMockLogger() *MockLogger {
	return &MockLogger{
		messages: []string{},
	}
}

func (m *MockLogger) add(s string) {
	m.mu.Lock()
	m.messages = append(m.messages, s)
	m.mu.Unlock()
}

func (m *MockLogger) Info(msg string, args ...interface{}) {
	m.add("INFO: " + msg)
}

func (m *MockLogger) Error(msg string, err error, args ...interface{}) {
	m.add("ERROR: " + msg + " - " + err.Error())
}

func (m *MockLogger) Debug(msg string, args ...interface{}) {
	m.add("DEBUG: " + msg)
}

func (m *MockLogger) Warn(msg string, args ...interface{}) {
	m.add("WARN: " + msg)
}

// Contains reports whether any message contains substr.
func (m *MockLogger) Contains(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// faultyObjects wraps the memory store with switchable failures.
type faultyObjects struct {
	*repository.MemoryObjectStore
	mu         sync.Mutex
	failPut    bool
	failGet    bool
	failDelete bool
}

func (f *faultyObjects) set(fn func(f *faultyObjects)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *faultyObjects) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	f.mu.Lock()
	fail := f.failPut
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.MemoryObjectStore.Put(ctx, bucket, key, data, contentType)
}

func (f *faultyObjects) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.MemoryObjectStore.Get(ctx, bucket, key)
}

func (f *faultyObjects) Delete(ctx context.Context, bucket, key string) error {
	f.mu.Lock()
	fail := f.failDelete
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.MemoryObjectStore.Delete(ctx, bucket, key)
}

// faultyCatalog wraps the memory catalog with switchable failures.
type faultyCatalog struct {
	*repository.MemoryCatalog
	mu         sync.Mutex
	failInsert bool
	failList   bool
}

func (f *faultyCatalog) Insert(ctx context.Context, rec *domain.DocumentRecord) error {
	f.mu.Lock()
	fail := f.failInsert
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.MemoryCatalog.Insert(ctx, rec)
}

func (f *faultyCatalog) List(ctx context.Context, ownerID string, filter domain.ListFilter) (*domain.ListResult, error) {
	f.mu.Lock()
	fail := f.failList
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.MemoryCatalog.List(ctx, ownerID, filter)
}

// faultyQueue fails Publish when failPublish is set and records messages.
type faultyQueue struct {
	*repository.MemoryJobQueue
	failPublish bool
}

func (f *faultyQueue) Publish(ctx context.Context, msg domain.JobMessage) error {
	if f.failPublish {
		return errInjected
	}
	return f.MemoryJobQueue.Publish(ctx, msg)
}

// faultyLedger fails Record when failRecord is set.
type faultyLedger struct {
	*repository.MemoryOrphanLedger
	failRecord bool
}

func (f *faultyLedger) Record(ctx context.Context, o domain.Orphan) error {
	if f.failRecord {
		return errInjected
	}
	return f.MemoryOrphanLedger.Record(ctx, o)
}

const (
	testBucket = "documents"
	ownerA     = "owner-a"
	ownerB     = "owner-b"
)

// fixture wires a coordinator and worker over in-memory stores.
type fixture struct {
	objects *faultyObjects
	catalog *faultyCatalog
	jobs    *repository.MemoryJobStore
	queue   *faultyQueue
	ledger  *faultyLedger
	tasks   *TaskRunner
	engine  *archive.Engine
	logger  *MockLogger
	coord   *PersistenceCoordinator
	worker  *Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := NewMockLogger()
	metrics := InitMetrics(nil)
	f := &fixture{
		objects: &faultyObjects{MemoryObjectStore: repository.NewMemoryObjectStore()},
		catalog: &faultyCatalog{MemoryCatalog: repository.NewMemoryCatalog()},
		jobs:    repository.NewMemoryJobStore(),
		queue:   &faultyQueue{MemoryJobQueue: repository.NewMemoryJobQueue()},
		ledger:  &faultyLedger{MemoryOrphanLedger: repository.NewMemoryOrphanLedger()},
		engine:  archive.NewEngine(archive.WithCrackCeiling(4)),
		logger:  logger,
	}
	f.tasks = NewTaskRunner(logger, metrics, time.Second)
	f.coord = NewPersistenceCoordinator(CoordinatorDeps{
		Objects: f.objects,
		Catalog: f.catalog,
		Jobs:    f.jobs,
		Queue:   f.queue,
		Ledger:  f.ledger,
		Tasks:   f.tasks,
		Engine:  f.engine,
		Metrics: metrics,
		Logger:  logger,
	}, CoordinatorConfig{
		Buckets:     map[domain.Category]string{DefaultBucketKey: testBucket},
		MaxFileSize: 1 << 20,
	})
	executors := NewExecutors(f.coord, f.engine, NewPDFProcessor(logger), logger)
	f.worker = NewWorker(f.coord, f.jobs, executors, 5, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.tasks.Close(ctx)
		_ = f.queue.Close()
	})
	return f
}

// settle waits for background blob deletes.
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.tasks.Wait(ctx); err != nil {
		t.Fatalf("background tasks did not finish: %v", err)
	}
}

func (f *fixture) save(t *testing.T, owner, filename string, data []byte) *domain.DocumentRecord {
	t.Helper()
	rec, err := f.coord.Save(context.Background(), SaveInput{OwnerID: owner, Filename: filename, Data: data})
	if err != nil {
		t.Fatalf("Save(%s) failed: %v", filename, err)
	}
	return rec
}

// runNext delivers the next queued message of the job's type to the worker.
func (f *fixture) runNext(t *testing.T, jobType domain.JobType) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := f.queue.Consume(ctx, []domain.JobType{jobType}, func(hctx context.Context, msg domain.JobMessage) error {
		defer cancel()
		return f.worker.Handle(hctx, msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("consume failed: %v", err)
	}
	f.settle(t)
}

package domain

import (
	"context"
	"time"
)

// ObjectStore holds opaque blobs addressed by bucket and key.
// Get and Delete report ErrBlobNotFound for a missing key.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// MetadataCatalog stores DocumentRecords. Every lookup is a single
// (id, owner) predicate: a foreign record and a missing one both yield ErrNotFound.
type MetadataCatalog interface {
	Insert(ctx context.Context, record *DocumentRecord) error
	Get(ctx context.Context, id, ownerID string) (*DocumentRecord, error)
	Update(ctx context.Context, id, ownerID string, patch MetadataPatch, now time.Time) (*DocumentRecord, error)
	Delete(ctx context.Context, id, ownerID string) (*DocumentRecord, error)
	// SetTrashed moves a live record to the trash (trashedAt non-nil) or a
	// trashed one back (nil). A record not in the opposite state is ErrNotFound.
	SetTrashed(ctx context.Context, id, ownerID string, trashedAt *time.Time, now time.Time) (*DocumentRecord, error)
	List(ctx context.Context, ownerID string, filter ListFilter) (*ListResult, error)
}

// JobHandler processes one delivered message. A nil return acknowledges the
// message; an error requeues it.
type JobHandler func(ctx context.Context, msg JobMessage) error

// JobQueue is a durable, at-least-once queue routed by job type.
type JobQueue interface {
	Publish(ctx context.Context, msg JobMessage) error
	// Consume delivers one message at a time to handler until ctx is done.
	Consume(ctx context.Context, types []JobType, handler JobHandler) error
	Close() error
}

// JobStatusStore persists jobs and enforces monotone status transitions.
type JobStatusStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID, ownerID string) (*Job, error)
	// UpdateStatus writes job only if the stored status still equals from;
	// otherwise it returns ErrInvalidTransition.
	UpdateStatus(ctx context.Context, job *Job, from JobStatus) error
}

// Orphan is a blob left without a catalog record.
type Orphan struct {
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	Reason     string    `json:"reason"`
	Attempts   int       `json:"attempts"`
	RecordedAt time.Time `json:"recorded_at"`
}

// OrphanLedger remembers blobs whose cleanup failed so they can be swept later.
type OrphanLedger interface {
	Record(ctx context.Context, orphan Orphan) error
	List(ctx context.Context, limit int) ([]Orphan, error)
	Resolve(ctx context.Context, bucket, key string) error
	Contains(ctx context.Context, bucket, key string) (bool, error)
}

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, err error, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
}

// Config defines the interface for configuration management
type Config interface {
	GetServerPort() string
	GetMaxFileSize() int64
	GetLogLevel() string
	GetSupabaseURL() string
	GetSupabaseKey() string
}

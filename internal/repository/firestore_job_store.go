package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const jobsCollection = "jobs"

// FirestoreJobStore keeps one document per job in the jobs collection.
type FirestoreJobStore struct {
	client *firestore.Client
}

// NewFirestoreClient creates a Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// NewFirestoreJobStore wraps an existing client.
func NewFirestoreJobStore(client *firestore.Client) *FirestoreJobStore {
	return &FirestoreJobStore{client: client}
}

type jobDoc struct {
	Type            string                 `firestore:"type"`
	OwnerID         string                 `firestore:"ownerId"`
	TargetRecordIDs []string               `firestore:"targetRecordIds"`
	Parameters      map[string]interface{} `firestore:"parameters"`
	Status          string                 `firestore:"status"`
	ResultRecordID  string                 `firestore:"resultRecordId,omitempty"`
	ResultRecordIDs []string               `firestore:"resultRecordIds,omitempty"`
	Result          map[string]interface{} `firestore:"result,omitempty"`
	ErrorMessage    string                 `firestore:"errorMessage,omitempty"`
	Attempts        int                    `firestore:"attempts"`
	CreatedAt       time.Time              `firestore:"createdAt"`
	StartedAt       *time.Time             `firestore:"startedAt,omitempty"`
	UpdatedAt       time.Time              `firestore:"updatedAt"`
	CompletedAt     *time.Time             `firestore:"completedAt,omitempty"`
	LeaseExpiresAt  *time.Time             `firestore:"leaseExpiresAt,omitempty"`
}

func toJobDoc(j *domain.Job) *jobDoc {
	return &jobDoc{
		Type:            string(j.Type),
		OwnerID:         j.OwnerID,
		TargetRecordIDs: j.TargetRecordIDs,
		Parameters:      j.Parameters,
		Status:          string(j.Status),
		ResultRecordID:  j.ResultRecordID,
		ResultRecordIDs: j.ResultRecordIDs,
		Result:          j.Result,
		ErrorMessage:    j.ErrorMessage,
		Attempts:        j.Attempts,
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		UpdatedAt:       j.UpdatedAt,
		CompletedAt:     j.CompletedAt,
		LeaseExpiresAt:  j.LeaseExpiresAt,
	}
}

func (d *jobDoc) toJob(id string) *domain.Job {
	return &domain.Job{
		ID:              id,
		Type:            domain.JobType(d.Type),
		OwnerID:         d.OwnerID,
		TargetRecordIDs: d.TargetRecordIDs,
		Parameters:      d.Parameters,
		Status:          domain.JobStatus(d.Status),
		ResultRecordID:  d.ResultRecordID,
		ResultRecordIDs: d.ResultRecordIDs,
		Result:          d.Result,
		ErrorMessage:    d.ErrorMessage,
		Attempts:        d.Attempts,
		CreatedAt:       d.CreatedAt,
		StartedAt:       d.StartedAt,
		UpdatedAt:       d.UpdatedAt,
		CompletedAt:     d.CompletedAt,
		LeaseExpiresAt:  d.LeaseExpiresAt,
	}
}

func (s *FirestoreJobStore) Create(ctx context.Context, job *domain.Job) error {
	_, err := s.client.Collection(jobsCollection).Doc(job.ID).Create(ctx, toJobDoc(job))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("firestore: create job: %w", err)
	}
	return nil
}

func (s *FirestoreJobStore) Get(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	snap, err := s.client.Collection(jobsCollection).Doc(jobID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("firestore: get job: %w", err)
	}
	var doc jobDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore: decode job: %w", err)
	}
	if doc.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return doc.toJob(snap.Ref.ID), nil
}

// UpdateStatus reads and writes inside one transaction so the status check
// and the write are atomic.
func (s *FirestoreJobStore) UpdateStatus(ctx context.Context, job *domain.Job, from domain.JobStatus) error {
	if job.Status != from && !from.CanTransition(job.Status) {
		return domain.ErrInvalidTransition
	}
	ref := s.client.Collection(jobsCollection).Doc(job.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return domain.ErrNotFound
			}
			return err
		}
		current, err := snap.DataAt("status")
		if err != nil {
			return err
		}
		if current != string(from) {
			return domain.ErrInvalidTransition
		}
		return tx.Set(ref, toJobDoc(job))
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidTransition) {
			return err
		}
		return fmt.Errorf("firestore: update job status: %w", err)
	}
	return nil
}

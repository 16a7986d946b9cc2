package domain

import (
	"fmt"
	"strconv"
	"time"
)

// JobType names a long-running operation.
type JobType string

const (
	JobTypeMerge         JobType = "merge"
	JobTypeConvert       JobType = "convert"
	JobTypeCompress      JobType = "compress"
	JobTypeExtract       JobType = "extract"
	JobTypeCrackPassword JobType = "crackPassword"
	JobTypeCleanup       JobType = "cleanup"
)

// JobTypes lists every job type in a stable order.
var JobTypes = []JobType{
	JobTypeMerge,
	JobTypeConvert,
	JobTypeCompress,
	JobTypeExtract,
	JobTypeCrackPassword,
	JobTypeCleanup,
}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	for _, known := range JobTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Heavy reports whether t belongs to the CPU-bound scheduling class.
func (t JobType) Heavy() bool {
	return t == JobTypeCrackPassword || t == JobTypeCompress
}

// HeavyJobTypes and QuickJobTypes partition JobTypes by scheduling class.
var (
	HeavyJobTypes = []JobType{JobTypeCrackPassword, JobTypeCompress}
	QuickJobTypes = []JobType{JobTypeMerge, JobTypeConvert, JobTypeExtract, JobTypeCleanup}
)

// JobStatus is a job's lifecycle state.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether s -> next is a legal forward move.
// queued may fail directly when dispatch itself fails.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// Job tracks one asynchronous operation from submission to a terminal state.
type Job struct {
	ID              string                 `json:"job_id"`
	Type            JobType                `json:"type"`
	OwnerID         string                 `json:"owner_id"`
	TargetRecordIDs []string               `json:"target_record_ids"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
	Status          JobStatus              `json:"status"`
	ResultRecordID  string                 `json:"result_record_id,omitempty"`
	ResultRecordIDs []string               `json:"result_record_ids,omitempty"`
	Result          map[string]interface{} `json:"result,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	Attempts        int                    `json:"attempts"`
	CreatedAt       time.Time              `json:"created_at"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	UpdatedAt       time.Time              `json:"updated_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	// LeaseExpiresAt is set while a worker runs the job and renewed as it
	// makes progress.
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

// Clone returns a deep-enough copy for store implementations.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.TargetRecordIDs = append([]string(nil), j.TargetRecordIDs...)
	cp.ResultRecordIDs = append([]string(nil), j.ResultRecordIDs...)
	cp.Parameters = cloneMap(j.Parameters)
	cp.Result = cloneMap(j.Result)
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.LeaseExpiresAt != nil {
		t := *j.LeaseExpiresAt
		cp.LeaseExpiresAt = &t
	}
	return &cp
}

// MarkProcessing moves a queued job into processing.
func (j *Job) MarkProcessing(now time.Time) {
	j.Status = JobStatusProcessing
	j.Attempts++
	j.StartedAt = &now
	j.UpdatedAt = now
}

// ExtendLease keeps the job claimed until the given time.
func (j *Job) ExtendLease(until, now time.Time) {
	j.LeaseExpiresAt = &until
	j.UpdatedAt = now
}

// HoldsLease reports whether a processing job is still claimed at now.
func (j *Job) HoldsLease(now time.Time) bool {
	return j.Status == JobStatusProcessing && j.LeaseExpiresAt != nil && now.Before(*j.LeaseExpiresAt)
}

// MarkCompleted records the produced records and finishes the job.
func (j *Job) MarkCompleted(resultIDs []string, result map[string]interface{}, now time.Time) {
	j.Status = JobStatusCompleted
	j.ResultRecordIDs = append([]string(nil), resultIDs...)
	j.ResultRecordID = ""
	if len(resultIDs) > 0 {
		j.ResultRecordID = resultIDs[0]
	}
	j.Result = result
	j.ErrorMessage = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.LeaseExpiresAt = nil
}

// MarkFailed finishes the job with a human-readable reason.
func (j *Job) MarkFailed(message string, now time.Time) {
	j.Status = JobStatusFailed
	j.ErrorMessage = message
	j.ResultRecordID = ""
	j.ResultRecordIDs = nil
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.LeaseExpiresAt = nil
}

// JobRequest is what a caller submits.
type JobRequest struct {
	OwnerID         string                 `json:"-"`
	Type            JobType                `json:"type"`
	TargetRecordIDs []string               `json:"target_record_ids"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
}

// JobMessage is the payload carried on the queue.
type JobMessage struct {
	JobID           string                 `json:"job_id"`
	Type            JobType                `json:"type"`
	OwnerID         string                 `json:"owner_id"`
	TargetRecordIDs []string               `json:"target_record_ids"`
	Parameters      map[string]interface{} `json:"parameters"`
	SubmittedAt     time.Time              `json:"submitted_at"`
}

// NewJobMessage builds the queue payload for job.
func NewJobMessage(job *Job) JobMessage {
	params := job.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	targets := job.TargetRecordIDs
	if targets == nil {
		targets = []string{}
	}
	return JobMessage{
		JobID:           job.ID,
		Type:            job.Type,
		OwnerID:         job.OwnerID,
		TargetRecordIDs: targets,
		Parameters:      params,
		SubmittedAt:     job.CreatedAt,
	}
}

// JobStatusResponse is what polling returns.
type JobStatusResponse struct {
	JobID           string                 `json:"job_id"`
	Type            JobType                `json:"type"`
	Status          JobStatus              `json:"status"`
	ResultRecordID  string                 `json:"result_record_id,omitempty"`
	ResultRecordIDs []string               `json:"result_record_ids,omitempty"`
	Result          map[string]interface{} `json:"result,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
}

// StatusResponse projects a job onto the polling response.
func (j *Job) StatusResponse() *JobStatusResponse {
	return &JobStatusResponse{
		JobID:           j.ID,
		Type:            j.Type,
		Status:          j.Status,
		ResultRecordID:  j.ResultRecordID,
		ResultRecordIDs: j.ResultRecordIDs,
		Result:          j.Result,
		ErrorMessage:    j.ErrorMessage,
		CreatedAt:       j.CreatedAt,
		CompletedAt:     j.CompletedAt,
	}
}

// Params wraps job parameters with typed accessors.
// Values arrive through JSON so numbers are float64 on the consumer side.
type Params map[string]interface{}

// String returns the string at key or def when absent or empty.
func (p Params) String(key, def string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return def
		}
		return s
	default:
		return fmt.Sprint(s)
	}
}

// Int returns the integer at key, def when absent. Non-numeric values are an error.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, &ValidationError{Field: key, Message: "must be an integer"}
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, &ValidationError{Field: key, Message: "must be an integer"}
		}
		return i, nil
	default:
		return 0, &ValidationError{Field: key, Message: "must be an integer"}
	}
}

// Strings returns the string list at key.
func (p Params) Strings(key string) []string {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Ints returns the integer list at key. Any non-integer item is an error.
func (p Params) Ints(key string) ([]int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	var items []interface{}
	switch list := v.(type) {
	case []int:
		return list, nil
	case []interface{}:
		items = list
	default:
		return nil, &ValidationError{Field: key, Message: "must be a list of integers"}
	}
	out := make([]int, 0, len(items))
	for i := range items {
		n, err := Params{key: items[i]}.Int(key, 0)
		if err != nil {
			return nil, &ValidationError{Field: key, Message: "must be a list of integers"}
		}
		out = append(out, n)
	}
	return out, nil
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	cp := make(map[string]interface{}, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

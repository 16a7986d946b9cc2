package domain

import (
	"testing"
	"time"
)

func TestJobStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobStatusQueued, JobStatusProcessing, true},
		{JobStatusQueued, JobStatusFailed, true},
		{JobStatusQueued, JobStatusCompleted, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusQueued, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusFailed, JobStatusCompleted, false},
		{JobStatusFailed, JobStatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	if JobStatusQueued.IsTerminal() || JobStatusProcessing.IsTerminal() {
		t.Error("Expected queued and processing to be non-terminal")
	}
	if !JobStatusCompleted.IsTerminal() || !JobStatusFailed.IsTerminal() {
		t.Error("Expected completed and failed to be terminal")
	}
}

func TestJobType_Classes(t *testing.T) {
	for _, jt := range HeavyJobTypes {
		if !jt.Heavy() {
			t.Errorf("Expected %s to be heavy", jt)
		}
	}
	for _, jt := range QuickJobTypes {
		if jt.Heavy() {
			t.Errorf("Expected %s to be quick", jt)
		}
	}
	if len(HeavyJobTypes)+len(QuickJobTypes) != len(JobTypes) {
		t.Error("Expected scheduling classes to partition all job types")
	}
	if JobType("transcode").Valid() {
		t.Error("Expected unknown job type to be invalid")
	}
}

func TestJob_MarkCompletedAndFailed(t *testing.T) {
	now := time.Now()
	job := &Job{ID: "j", Status: JobStatusQueued}

	job.MarkProcessing(now)
	if job.Status != JobStatusProcessing || job.Attempts != 1 || job.StartedAt == nil {
		t.Fatalf("unexpected processing state: %+v", job)
	}

	done := job.Clone()
	done.MarkCompleted([]string{"r1", "r2"}, nil, now)
	if done.ResultRecordID != "r1" {
		t.Errorf("Expected first result id r1, got %s", done.ResultRecordID)
	}
	if done.ErrorMessage != "" {
		t.Error("Expected no error message on completed job")
	}

	failed := job.Clone()
	failed.MarkFailed("validation: boom", now)
	if failed.ResultRecordID != "" || len(failed.ResultRecordIDs) != 0 {
		t.Error("Expected no result on failed job")
	}
	if failed.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}
}

func TestParams_Ints(t *testing.T) {
	p := Params{
		"pages":  []interface{}{float64(1), "3", 2},
		"bad":    []interface{}{1.5},
		"scalar": float64(4),
	}
	got, err := p.Ints("pages")
	if err != nil || len(got) != 3 || got[0] != 1 || got[1] != 3 || got[2] != 2 {
		t.Errorf("Expected [1 3 2], got %v (%v)", got, err)
	}
	if got, err := p.Ints("missing"); err != nil || got != nil {
		t.Errorf("Expected nil for missing key, got %v (%v)", got, err)
	}
	if _, err := p.Ints("bad"); err == nil {
		t.Error("Expected fractional item to be rejected")
	}
	if _, err := p.Ints("scalar"); err == nil {
		t.Error("Expected scalar to be rejected")
	}
}

func TestJob_Lease(t *testing.T) {
	now := time.Now()
	job := &Job{ID: "j", Status: JobStatusQueued}
	job.MarkProcessing(now)
	if job.HoldsLease(now) {
		t.Fatal("Expected a job without a lease to be reclaimable")
	}

	job.ExtendLease(now.Add(time.Minute), now)
	if !job.HoldsLease(now.Add(30 * time.Second)) {
		t.Error("Expected lease to hold before it expires")
	}
	if job.HoldsLease(now.Add(2 * time.Minute)) {
		t.Error("Expected lease to lapse after it expires")
	}

	cp := job.Clone()
	cp.LeaseExpiresAt = nil
	if job.LeaseExpiresAt == nil {
		t.Error("Expected Clone to copy the lease")
	}

	job.MarkCompleted(nil, nil, now)
	if job.LeaseExpiresAt != nil || job.HoldsLease(now) {
		t.Error("Expected a finished job to release its lease")
	}
}

func TestNewJobMessage_NeverNil(t *testing.T) {
	msg := NewJobMessage(&Job{ID: "j", Type: JobTypeCleanup, OwnerID: "o"})
	if msg.Parameters == nil || msg.TargetRecordIDs == nil {
		t.Error("Expected parameters and targets to be non-nil")
	}
}

func TestParams(t *testing.T) {
	p := Params{
		"max_length": float64(4),
		"fraction":   1.5,
		"level":      "7",
		"charset":    "abc",
		"files":      []interface{}{"a.txt", "b.txt", 3},
	}

	if n, err := p.Int("max_length", 6); err != nil || n != 4 {
		t.Errorf("Expected 4, got %d (%v)", n, err)
	}
	if n, err := p.Int("missing", 6); err != nil || n != 6 {
		t.Errorf("Expected default 6, got %d (%v)", n, err)
	}
	if n, err := p.Int("level", 0); err != nil || n != 7 {
		t.Errorf("Expected 7, got %d (%v)", n, err)
	}
	if _, err := p.Int("fraction", 0); err == nil {
		t.Error("Expected error for non-integer number")
	}
	if s := p.String("charset", "x"); s != "abc" {
		t.Errorf("Expected abc, got %s", s)
	}
	if s := p.String("missing", "x"); s != "x" {
		t.Errorf("Expected default x, got %s", s)
	}
	if files := p.Strings("files"); len(files) != 2 {
		t.Errorf("Expected 2 string entries, got %v", files)
	}
}

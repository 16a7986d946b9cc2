package repository

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamKey(t *testing.T) {
	assert.Equal(t, "docflow:jobs:crackPassword", streamKey(domain.JobTypeCrackPassword))
	assert.Equal(t, "docflow:jobs:merge", streamKey(domain.JobTypeMerge))
}

func TestEnvelope_RoundTrip(t *testing.T) {
	msg := domain.JobMessage{
		JobID:           "job-1",
		Type:            domain.JobTypeCompress,
		OwnerID:         "u1",
		TargetRecordIDs: []string{"a", "b"},
		Parameters:      map[string]interface{}{"format": "zip", "level": float64(9)},
		SubmittedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	raw, err := encodeEnvelope(msg)
	require.NoError(t, err)

	var evt cloudevents.Event
	require.NoError(t, json.Unmarshal(raw, &evt))
	assert.Equal(t, "job-1", evt.ID())
	assert.Equal(t, "docflow.job.compress", evt.Type())
	assert.Equal(t, "docflow/coordinator", evt.Source())

	got, err := decodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, msg.JobID, got.JobID)
	assert.Equal(t, msg.Type, got.Type)
	assert.Equal(t, msg.TargetRecordIDs, got.TargetRecordIDs)
	assert.Equal(t, msg.Parameters, got.Parameters)
	assert.True(t, msg.SubmittedAt.Equal(got.SubmittedAt))
}

func TestDecodeEnvelope_Rejects(t *testing.T) {
	_, err := decodeEnvelope([]byte("not json"))
	assert.Error(t, err)

	foreign := cloudevents.NewEvent()
	foreign.SetID("x")
	foreign.SetType("com.example.other")
	foreign.SetSource("elsewhere")
	raw, _ := json.Marshal(foreign)
	_, err = decodeEnvelope(raw)
	assert.Error(t, err)

	bad, err := encodeEnvelope(domain.JobMessage{JobID: "j", Type: domain.JobType("bogus")})
	require.NoError(t, err)
	_, err = decodeEnvelope(bad)
	assert.Error(t, err)
}

func TestIsBusyGroup(t *testing.T) {
	assert.True(t, isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isBusyGroup(errors.New("ERR no such key")))
	assert.False(t, isBusyGroup(nil))
}

func TestSortOrphans(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	orphans := []domain.Orphan{
		{Bucket: "b", Key: "z", RecordedAt: t0},
		{Bucket: "b", Key: "late", RecordedAt: t0.Add(time.Hour)},
		{Bucket: "a", Key: "z", RecordedAt: t0},
	}
	sortOrphans(orphans)
	assert.Equal(t, "a", orphans[0].Bucket)
	assert.Equal(t, "b", orphans[1].Bucket)
	assert.Equal(t, "late", orphans[2].Key)
}

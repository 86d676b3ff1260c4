package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobMarshalRoundTrip(t *testing.T) {
	j := Job{AnalysisID: "01abc", Attempt: 2, EnqueuedAt: time.Now().UTC().Truncate(time.Second)}
	raw, err := j.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalJob(raw)
	require.NoError(t, err)
	assert.Equal(t, j.AnalysisID, got.AnalysisID)
	assert.Equal(t, j.Attempt, got.Attempt)
	assert.True(t, j.EnqueuedAt.Equal(got.EnqueuedAt))
}

func TestUnmarshalJobRejectsGarbage(t *testing.T) {
	_, err := UnmarshalJob("not json")
	assert.Error(t, err)
}

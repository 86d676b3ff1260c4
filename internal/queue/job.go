// Package queue implements the durable job queue (C1): a Redis-backed FIFO
// with a processing list, heartbeats, retry/backoff, and a progress channel,
// grounded on flyingrobots-go-redis-work-queue's internal/queue and
// internal/worker packages.
package queue

import (
	"encoding/json"
	"time"
)

// Job is the payload enqueued for one AnalysisRecord, mirroring the shape of
// flyingrobots' queue.Job (JSON-marshaled string stored in a Redis list).
type Job struct {
	AnalysisID string    `json:"analysisId"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Marshal renders the job as the string stored in Redis lists.
func (j Job) Marshal() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalJob parses a job previously rendered by Marshal.
func UnmarshalJob(s string) (Job, error) {
	var j Job
	err := json.Unmarshal([]byte(s), &j)
	return j, err
}

// Package jobs runs sessions asynchronously and records their progress
// and artifacts.
package jobs

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusRunning   Status = "running"
	StatusUploading Status = "uploading"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further updates follow.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// ErrNotFound is returned by stores for unknown job IDs.
var ErrNotFound = errors.New("job not found")

// Job is the stored record of one session run.
type Job struct {
	ID          string    `json:"id" dynamodbav:"jobId"`
	Status      Status    `json:"status" dynamodbav:"status"`
	Percent     float64   `json:"percent" dynamodbav:"progressPercent"`
	Message     string    `json:"message,omitempty" dynamodbav:"stageMessage,omitempty"`
	Turns       int       `json:"turns" dynamodbav:"turns"`
	Model       string    `json:"model,omitempty" dynamodbav:"model,omitempty"`
	TTSProvider string    `json:"tts_provider,omitempty" dynamodbav:"ttsProvider,omitempty"`
	Owner       string    `json:"owner,omitempty" dynamodbav:"owner,omitempty"`
	Error       string    `json:"error,omitempty" dynamodbav:"errorMessage,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty" dynamodbav:"errorKind,omitempty"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"createdAt"`
	UpdatedAt   time.Time `json:"updated_at" dynamodbav:"updatedAt"`

	Result *Result `json:"result,omitempty" dynamodbav:"result,omitempty"`
}

// Result describes the artifacts of a completed job.
type Result struct {
	SessionID     string  `json:"session_id" dynamodbav:"sessionId"`
	AudioKey      string  `json:"audio_key" dynamodbav:"audioKey"`
	AudioURL      string  `json:"audio_url" dynamodbav:"audioUrl"`
	TranscriptKey string  `json:"transcript_key" dynamodbav:"transcriptKey"`
	TranscriptURL string  `json:"transcript_url" dynamodbav:"transcriptUrl"`
	Duration      float64 `json:"duration_seconds" dynamodbav:"durationSeconds"`
	SizeMB        float64 `json:"size_mb" dynamodbav:"fileSizeMB"`
	Lines         int     `json:"lines" dynamodbav:"lines"`
	Transcript    string  `json:"transcript,omitempty" dynamodbav:"transcript,omitempty"`
}

// NewJobID generates a ULID for a new job.
func NewJobID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}

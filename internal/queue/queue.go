// Package queue is a Redis list of pending restructure jobs.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list holding restructure jobs.
const DefaultKey = "mathres:restructure"

// ErrEmpty is returned by Pop when no job arrived before the timeout.
var ErrEmpty = errors.New("queue empty")

// Job asks a worker to run the pipeline for one script.
type Job struct {
	JobID      string    `json:"job_id"`
	SubjectID  string    `json:"subject_id"`
	ScriptID   string    `json:"script_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob returns a job with a fresh id.
func NewJob(subjectID, scriptID string) Job {
	return Job{
		JobID:      uuid.NewString(),
		SubjectID:  subjectID,
		ScriptID:   scriptID,
		EnqueuedAt: time.Now().UTC(),
	}
}

type Queue struct {
	client *redis.Client
	key    string
}

// New connects to the Redis instance at url. An empty key uses DefaultKey.
func New(url, key string) (*Queue, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if key == "" {
		key = DefaultKey
	}
	return &Queue{client: redis.NewClient(opt), key: key}, nil
}

// Key returns the list name.
func (q *Queue) Key() string {
	return q.key
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Push appends a job.
func (q *Queue) Push(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Pop blocks up to timeout for the oldest job.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Job, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrEmpty
	}
	if err != nil {
		return Job{}, err
	}
	if len(res) < 2 {
		return Job{}, ErrEmpty
	}
	return decodeJob(res[1])
}

func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func decodeJob(s string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(s), &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.ScriptID == "" || job.SubjectID == "" {
		return Job{}, fmt.Errorf("decode job: missing subject_id or script_id")
	}
	return job, nil
}

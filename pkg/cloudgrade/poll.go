package cloudgrade

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultPollInitial = 2 * time.Second
	defaultPollCap     = 15 * time.Second
	defaultPollTimeout = 5 * time.Minute
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
	timeout time.Duration
}

func defaultPollConfig() pollConfig {
	return pollConfig{
		initial: defaultPollInitial,
		cap:     defaultPollCap,
		timeout: defaultPollTimeout,
	}
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.initial = d
	}
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.cap = d
	}
}

// WithPollTimeout overrides the default overall timeout (applied only if the
// parent context has no deadline).
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.timeout = d
	}
}

// PollTask polls TaskResult until the task produces artifacts, reaches a
// terminal state, or the overall timeout expires. Uses exponential backoff:
// 2s -> 4s -> 8s -> 15s (capped). The overall timeout is independent of the
// per-request timeout so a task that keeps answering "running" still stops.
func PollTask(ctx context.Context, client Client, taskID, instanceNid string, opts ...PollOption) (*TaskResult, error) {
	cfg := defaultPollConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	interval := cfg.initial
	for {
		result, err := client.TaskResult(ctx, taskID, instanceNid)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("cloudgrade: poll task %s", taskID))
		}

		if result.Done() {
			return result, nil
		}
		if result.Terminal() {
			return nil, eris.Errorf("cloudgrade: task %s %s", taskID, result.State())
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), fmt.Sprintf("cloudgrade: poll task %s timed out", taskID))
		case <-time.After(interval):
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
	}
}

// Grade submits one extracted answer set and waits for the graded result.
// Immediate (non-task) responses return as is; task handles are polled to
// completion. The returned payload is the service's result data, left raw
// for the caller's extraction logic.
func Grade(ctx context.Context, client Client, textInput string, ictx *InstanceContext, opts ...PollOption) (json.RawMessage, error) {
	sub, err := client.SubmitGrade(ctx, textInput, ictx)
	if err != nil {
		return nil, err
	}

	if !sub.IsTask() {
		return sub.Raw, nil
	}

	result, err := PollTask(ctx, client, sub.ID, ictx.InstanceNid, opts...)
	if err != nil {
		return nil, err
	}
	return result.Raw, nil
}

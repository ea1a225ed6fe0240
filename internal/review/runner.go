package review

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edforge/eval-cli/internal/model"
	"github.com/edforge/eval-cli/internal/resilience"
	"github.com/edforge/eval-cli/pkg/cloudgrade"
)

const defaultConcurrency = 5

// PreparedFile is one uploaded and analyzed artifact, ready for grading.
type PreparedFile struct {
	Path      string
	Label     string
	File      cloudgrade.FileInfo
	TextInput string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency bounds the number of in-flight service calls.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithGradeRetry overrides the retry profile around each grading call.
func WithGradeRetry(cfg resilience.RetryConfig) RunnerOption {
	return func(r *Runner) {
		r.gradeRetry = cfg
	}
}

// WithPollOptions forwards polling options to each grading call.
func WithPollOptions(opts ...cloudgrade.PollOption) RunnerOption {
	return func(r *Runner) {
		r.pollOpts = opts
	}
}

// Runner schedules files x attempts grading tasks against the cloud service
// with bounded concurrency, capturing per-task outcomes as Attempts.
type Runner struct {
	client      cloudgrade.Client
	concurrency int
	gradeRetry  resilience.RetryConfig
	parseRetry  resilience.RetryConfig
	pollOpts    []cloudgrade.PollOption
	breaker     *resilience.CircuitBreaker
}

// NewRunner creates a batch runner over the given grading client.
func NewRunner(client cloudgrade.Client, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:      client,
		concurrency: defaultConcurrency,
		gradeRetry:  resilience.GradeRetryConfig(),
		// Analysis failures are retried unconditionally a couple of times
		// with a short fixed delay; the endpoint is flaky rather than
		// systematically broken.
		parseRetry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			Multiplier:     1,
			ShouldRetry:    func(error) bool { return true },
		},
		// One breaker shared by all grading tasks: when the service fails
		// systematically the remaining tasks fail fast instead of each
		// burning a full retry cycle.
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("grading circuit state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SubjectLabels derives a display label per path from its base name without
// extension. Duplicate stems get a numeric suffix so every subject groups
// its own attempts.
func SubjectLabels(paths []string) []string {
	labels := make([]string, len(paths))
	counts := make(map[string]int)
	for i, p := range paths {
		base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		counts[base]++
		if counts[base] == 1 {
			labels[i] = base
		} else {
			labels[i] = fmt.Sprintf("%s(%d)", base, counts[base])
		}
	}
	return labels
}

// Prepare uploads and analyzes each file concurrently. Files that fail
// either step are dropped with a logged reason; siblings are unaffected.
func (r *Runner) Prepare(ctx context.Context, ictx *cloudgrade.InstanceContext, paths []string) ([]PreparedFile, error) {
	labels := SubjectLabels(paths)
	prepared := make([]*PreparedFile, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			log := zap.L().With(zap.String("file", filepath.Base(path)))

			info, err := r.client.Upload(gctx, path)
			if err != nil {
				log.Error("upload failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			textInput, err := resilience.DoVal(gctx, r.parseRetry, func(ctx context.Context) (string, error) {
				return r.client.AnalyzeHomework(ctx, *info, ictx)
			})
			if err != nil {
				log.Error("analysis failed", zap.Error(err))
				return nil
			}

			prepared[i] = &PreparedFile{Path: path, Label: labels[i], File: *info, TextInput: textInput}
			log.Info("file prepared for grading")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "review: prepare files")
	}

	out := make([]PreparedFile, 0, len(prepared))
	for _, p := range prepared {
		if p != nil {
			out = append(out, *p)
		}
	}
	if len(out) == 0 {
		return nil, eris.New("review: no files survived upload and analysis")
	}
	return out, nil
}

// Run grades every prepared file attemptTotal times and returns one Attempt
// per (file, attempt) pair in stable task order. Grade failures become
// failed Attempts; they never abort sibling tasks.
func (r *Runner) Run(ctx context.Context, ictx *cloudgrade.InstanceContext, files []PreparedFile, attemptTotal int) ([]model.Attempt, error) {
	if attemptTotal <= 0 {
		return nil, eris.Errorf("review: attempt total must be positive, got %d", attemptTotal)
	}

	zap.L().Info("starting batch grading",
		zap.Int("files", len(files)),
		zap.Int("attempts", attemptTotal),
		zap.Int("concurrency", r.concurrency),
	)

	attempts := make([]model.Attempt, len(files)*attemptTotal)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var succeeded, failed atomic.Int64

	for i, file := range files {
		i, file := i, file
		for attemptIndex := 1; attemptIndex <= attemptTotal; attemptIndex++ {
			attemptIndex := attemptIndex
			slot := i*attemptTotal + (attemptIndex - 1)
			g.Go(func() error {
				attempts[slot] = r.gradeOnce(gctx, ictx, file, attemptIndex, attemptTotal)
				if attempts[slot].Success {
					succeeded.Add(1)
				} else {
					failed.Add(1)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "review: run batch")
	}

	zap.L().Info("batch grading finished",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return attempts, nil
}

// gradeOnce performs a single graded attempt with retry around the service
// call. All failure modes collapse into a failed Attempt.
func (r *Runner) gradeOnce(ctx context.Context, ictx *cloudgrade.InstanceContext, file PreparedFile, attemptIndex, attemptTotal int) model.Attempt {
	log := zap.L().With(
		zap.String("subject", file.Label),
		zap.Int("attempt", attemptIndex),
		zap.Int("attempt_total", attemptTotal),
	)

	cfg := r.gradeRetry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("cloudgrade", "grade")
	}

	attempt := model.Attempt{
		SubjectLabel: file.Label,
		AttemptIndex: attemptIndex,
		AttemptTotal: attemptTotal,
	}

	raw, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) ([]byte, error) {
			return cloudgrade.Grade(ctx, r.client, file.TextInput, ictx, r.pollOpts...)
		})
	})
	if err != nil {
		log.Error("grading failed", zap.Error(err))
		attempt.Error = err.Error()
		return attempt
	}

	data, err := ExtractCoreData(raw)
	if err != nil {
		log.Error("score extraction failed", zap.Error(err))
		attempt.Error = err.Error()
		return attempt
	}

	attempt.Success = true
	attempt.Data = data
	log.Info("attempt graded")
	return attempt
}

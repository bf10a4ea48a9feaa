// SPDX-License-Identifier: MPL-2.0

// Package bulk orchestrates batched, parallel extension installs.
//
// Tasks are split into batches to bound peak temp-directory and open-file
// usage; within a batch up to Parallelism tasks run concurrently. Archive
// extraction and staging are parallel-safe, and registry mutation is
// serialized by the registry lock regardless of the requested parallelism,
// so independent installs never corrupt shared state.
//
// Each failed attempt is retried with exponential backoff plus jitter,
// except for security and format errors — retrying a malicious or corrupt
// archive cannot succeed. One task's failure never aborts the rest of the
// batch; every task produces exactly one TaskResult.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gabros20/vsix-extension-manager-sub001/pkg/archive"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/installer"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/registry"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/vsix"
)

const (
	// DefaultParallelism bounds concurrent tasks within a batch.
	DefaultParallelism = 3
	// DefaultMaxRetries is the per-task retry bound.
	DefaultMaxRetries = 2
	// DefaultRetryDelay is the base backoff between retries.
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultBatchSize bounds how many tasks are in flight per batch.
	DefaultBatchSize = 10
	// DefaultInterBatchDelay spaces batches apart to avoid saturating the
	// filesystem with burst I/O.
	DefaultInterBatchDelay = 50 * time.Millisecond
	// defaultJitterMax is the upper bound of the random jitter added to
	// each backoff delay.
	defaultJitterMax = time.Second
)

// Task is one install request submitted to the orchestrator.
type Task struct {
	// ArchivePath is the absolute path of the downloaded archive.
	ArchivePath string
	// ExpectedID is the extension id the archive should contain (optional).
	ExpectedID string
	// ExpectedVersion is the version the archive should contain (optional).
	ExpectedVersion string
}

// TaskResult is the single result produced for a Task.
type TaskResult struct {
	// Task is the originating task.
	Task Task
	// Success is true when the extension ended up installed (including the
	// already-present case).
	Success bool
	// Skipped is true when no filesystem change was made because the
	// extension was already present.
	Skipped bool
	// Err is the terminal error for failed tasks.
	Err error
	// Elapsed is the wall-clock duration of the task including retries.
	Elapsed time.Duration
	// Retries is the number of retry attempts performed.
	Retries int
}

// Summary aggregates one InstallMany run.
type Summary struct {
	Total      int
	Successful int
	Skipped    int
	Failed     int
	Results    []TaskResult
	Elapsed    time.Duration
	Retries    int
}

// Options configures an InstallMany run. Zero fields fall back to the
// package defaults.
type Options struct {
	// Parallelism is the max number of concurrently running tasks.
	Parallelism int
	// MaxRetries bounds retries per task. Zero selects the default;
	// a negative value disables retries.
	MaxRetries int
	// RetryDelay is the base backoff; the n-th retry waits
	// RetryDelay * 2^(n-1) plus jitter.
	RetryDelay time.Duration
	// BatchSize splits the task list into batches.
	BatchSize int
	// InterBatchDelay is the pause inserted between batches. Zero selects
	// the default; a negative value disables the pause.
	InterBatchDelay time.Duration
	// SkipIfInstalled skips tasks whose id is already registered at the
	// same version, without touching the filesystem.
	SkipIfInstalled bool
	// Force, Pinned, Source and TaskTimeout are forwarded to each install.
	Force       bool
	Pinned      bool
	Source      string
	TaskTimeout time.Duration
	// OnProgress, when set, is invoked once per completed task. Invocations
	// are serialized.
	OnProgress func(done, total int, result TaskResult)
}

// SingleInstaller is the per-package install contract the orchestrator
// drives. *installer.Installer satisfies it.
type SingleInstaller interface {
	Install(ctx context.Context, archivePath string, opts installer.Options) (*installer.Result, error)
	PurgeStaging(tag string) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used for per-task events.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithJitterMax overrides the retry jitter upper bound. Intended for tests
// that assert on timing.
func WithJitterMax(d time.Duration) Option {
	return func(o *Orchestrator) { o.jitterMax = d }
}

// Orchestrator runs bulk installs against one install target.
type Orchestrator struct {
	inst      SingleInstaller
	reg       *registry.Manager
	logger    *log.Logger
	jitterMax time.Duration
}

// NewOrchestrator returns an Orchestrator driving inst, consulting reg for
// skip decisions.
func NewOrchestrator(inst SingleInstaller, reg *registry.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		inst:      inst,
		reg:       reg,
		logger:    log.Default(),
		jitterMax: defaultJitterMax,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// InstallMany installs every task and returns the aggregated summary. The
// context cancels waiting between retries and batches; a task whose
// extraction has begun runs to completion or failure before observing the
// cancellation.
func (o *Orchestrator) InstallMany(ctx context.Context, tasks []Task, opts Options) (*Summary, error) {
	opts = withDefaults(opts)
	start := time.Now()

	results := make([]TaskResult, len(tasks))
	var progressMu sync.Mutex
	done := 0
	report := func(r TaskResult) {
		if opts.OnProgress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		done++
		opts.OnProgress(done, len(tasks), r)
	}

	for batchStart := 0; batchStart < len(tasks); batchStart += opts.BatchSize {
		batchEnd := min(batchStart+opts.BatchSize, len(tasks))

		var g errgroup.Group
		g.SetLimit(opts.Parallelism)
		for idx := batchStart; idx < batchEnd; idx++ {
			g.Go(func() error {
				results[idx] = o.runTask(ctx, tasks[idx], opts)
				report(results[idx])
				return nil
			})
		}
		// Task errors land in results; Wait only joins the goroutines.
		_ = g.Wait()

		if batchEnd < len(tasks) && opts.InterBatchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.InterBatchDelay):
			}
		}
	}

	summary := &Summary{
		Total:   len(tasks),
		Results: results,
		Elapsed: time.Since(start),
	}
	for _, r := range results {
		summary.Retries += r.Retries
		switch {
		case r.Skipped:
			summary.Skipped++
		case r.Success:
			summary.Successful++
		default:
			summary.Failed++
		}
	}
	return summary, nil
}

// runTask executes one task with retry. Security/format violations and
// identity mismatches settle the task immediately; I/O and lock-timeout
// errors are retried with backoff, purging the task's leftover staging
// directories before each retry.
func (o *Orchestrator) runTask(ctx context.Context, task Task, opts Options) TaskResult {
	start := time.Now()
	result := TaskResult{Task: task}

	if opts.SkipIfInstalled {
		skipped, err := o.alreadyInstalled(task)
		if err != nil {
			result.Err = err
			result.Elapsed = time.Since(start)
			return result
		}
		if skipped {
			o.logger.Debug("skipping task, already installed at same version",
				"archive", task.ArchivePath, "id", task.ExpectedID)
			result.Success = true
			result.Skipped = true
			result.Elapsed = time.Since(start)
			return result
		}
	}

	tag := uuid.New().String()[:8]
	installOpts := installer.Options{
		Force:      opts.Force,
		Pinned:     opts.Pinned,
		Source:     opts.Source,
		Timeout:    opts.TaskTimeout,
		StagingTag: tag,
	}

	retries, err := retryWithBackoff(ctx, opts.MaxRetries, opts.RetryDelay, o.jitterMax,
		func(attempt int) (bool, error) {
			if attempt > 0 {
				if err := o.inst.PurgeStaging(tag); err != nil {
					o.logger.Warn("failed to purge staging before retry",
						"archive", task.ArchivePath, "error", err)
				}
			}
			res, err := o.inst.Install(ctx, task.ArchivePath, installOpts)
			if err != nil {
				return retryable(err), err
			}
			if task.ExpectedID != "" && !strings.EqualFold(res.Identity.ID(), task.ExpectedID) {
				return false, fmt.Errorf("archive %s contains %s, expected %s",
					task.ArchivePath, res.Identity.ID(), task.ExpectedID)
			}
			if res.Outcome == installer.OutcomeAlreadyExists {
				result.Skipped = true
			}
			return false, nil
		})

	result.Retries = retries
	result.Elapsed = time.Since(start)
	if err != nil {
		o.logger.Error("task failed", "archive", task.ArchivePath, "retries", retries, "error", err)
		result.Err = err
		return result
	}
	result.Success = true
	return result
}

// alreadyInstalled reports whether the task's target id is registered at
// the same version. When the task carries no expected identity, the archive
// manifest supplies it.
func (o *Orchestrator) alreadyInstalled(task Task) (bool, error) {
	id, version := task.ExpectedID, task.ExpectedVersion
	if id == "" || version == "" {
		manifest, err := archive.ReadManifest(task.ArchivePath)
		if err != nil {
			return false, err
		}
		identity := manifest.Identity()
		id, version = identity.ID(), identity.Version
	}
	entry, found, err := o.reg.Find(id)
	if err != nil {
		return false, err
	}
	return found && entry.Version == version, nil
}

// retryable classifies an install error. Security and format errors are
// terminal: retrying a corrupt or malicious archive cannot succeed. Context
// cancellation is terminal for the same reason.
func retryable(err error) bool {
	switch {
	case errors.Is(err, archive.ErrSecurity),
		errors.Is(err, archive.ErrFormat),
		errors.Is(err, vsix.ErrInvalidManifest),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// withDefaults fills zero option fields with the package defaults.
func withDefaults(opts Options) Options {
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.InterBatchDelay < 0 {
		opts.InterBatchDelay = 0
	} else if opts.InterBatchDelay == 0 {
		opts.InterBatchDelay = DefaultInterBatchDelay
	}
	return opts
}

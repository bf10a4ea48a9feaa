// SPDX-License-Identifier: MPL-2.0

package bulk

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gabros20/vsix-extension-manager-sub001/internal/testutil"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/archive"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/installer"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/registry"
	"github.com/gabros20/vsix-extension-manager-sub001/pkg/vsix"
)

// fakeInstaller scripts per-archive outcomes so retry and classification
// behavior can be exercised without real extraction.
type fakeInstaller struct {
	mu       sync.Mutex
	calls    map[string]int
	purged   []string
	failures map[string][]error // consumed in order; nil entry means success
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFakeInstaller() *fakeInstaller {
	return &fakeInstaller{
		calls:    map[string]int{},
		failures: map[string][]error{},
	}
}

func (f *fakeInstaller) failWith(archivePath string, errs ...error) {
	f.failures[archivePath] = errs
}

func (f *fakeInstaller) Install(ctx context.Context, archivePath string, opts installer.Options) (*installer.Result, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		maxSeen := f.maxSeen.Load()
		if cur <= maxSeen || f.maxSeen.CompareAndSwap(maxSeen, cur) {
			break
		}
	}

	f.mu.Lock()
	attempt := f.calls[archivePath]
	f.calls[archivePath]++
	scripted := f.failures[archivePath]
	f.mu.Unlock()

	if attempt < len(scripted) && scripted[attempt] != nil {
		return nil, scripted[attempt]
	}
	return &installer.Result{
		Outcome:  installer.OutcomeInstalled,
		Identity: vsix.Identity{Publisher: "acme", Name: filepath.Base(archivePath), Version: "1.0.0"},
	}, nil
}

func (f *fakeInstaller) PurgeStaging(tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, tag)
	return nil
}

func (f *fakeInstaller) installCalls(archivePath string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[archivePath]
}

func newTestOrchestrator(t *testing.T, inst SingleInstaller) *Orchestrator {
	t.Helper()
	reg := registry.NewManager(t.TempDir())
	return NewOrchestrator(inst, reg, WithJitterMax(0))
}

func fastOpts() Options {
	return Options{
		RetryDelay:      time.Millisecond,
		InterBatchDelay: -1,
	}
}

func TestInstallManySummaryCounts(t *testing.T) {
	inst := newFakeInstaller()
	inst.failWith("bad.vsix", errors.New("disk full"), errors.New("disk full"), errors.New("disk full"))
	orch := newTestOrchestrator(t, inst)

	tasks := []Task{
		{ArchivePath: "a.vsix"},
		{ArchivePath: "b.vsix"},
		{ArchivePath: "bad.vsix"},
	}
	summary, err := orch.InstallMany(context.Background(), tasks, fastOpts())
	if err != nil {
		t.Fatalf("InstallMany() failed: %v", err)
	}

	if summary.Total != 3 || summary.Successful != 2 || summary.Failed != 1 || summary.Skipped != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(summary.Results))
	}
	// Results keep task order regardless of completion order.
	for i, task := range tasks {
		if summary.Results[i].Task.ArchivePath != task.ArchivePath {
			t.Errorf("result[%d] is for %s, want %s", i, summary.Results[i].Task.ArchivePath, task.ArchivePath)
		}
	}
	bad := summary.Results[2]
	if bad.Success || bad.Err == nil {
		t.Errorf("failed task result = %+v", bad)
	}
	// Default MaxRetries is 2: three attempts, three failures.
	if bad.Retries != 2 || summary.Retries != 2 {
		t.Errorf("retries = %d (summary %d), want 2", bad.Retries, summary.Retries)
	}
}

func TestInstallManyRetriesTransientFailures(t *testing.T) {
	inst := newFakeInstaller()
	inst.failWith("flaky.vsix", errors.New("io error"), errors.New("io error"), nil)
	orch := newTestOrchestrator(t, inst)

	const base = 20 * time.Millisecond
	opts := fastOpts()
	opts.RetryDelay = base
	opts.MaxRetries = 3

	start := time.Now()
	summary, err := orch.InstallMany(context.Background(), []Task{{ArchivePath: "flaky.vsix"}}, opts)
	if err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)

	result := summary.Results[0]
	if !result.Success || result.Err != nil {
		t.Fatalf("task did not recover: %+v", result)
	}
	if result.Retries != 2 {
		t.Errorf("retries = %d, want 2", result.Retries)
	}
	if got := inst.installCalls("flaky.vsix"); got != 3 {
		t.Errorf("install attempts = %d, want 3", got)
	}
	// Backoff is base then 2*base; with jitter zeroed the run takes at
	// least 3*base.
	if elapsed < 3*base {
		t.Errorf("elapsed = %v, want >= %v (backoff not applied)", elapsed, 3*base)
	}
	// Staging leftovers are purged before each retry.
	if len(inst.purged) != 2 {
		t.Errorf("purge calls = %d, want 2", len(inst.purged))
	}
}

func TestInstallManyDoesNotRetryTerminalErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"security", &archive.SecurityError{Entry: "../evil", Reason: "path escapes destination"}},
		{"format", &archive.FormatError{Path: "x.vsix", Reason: "not a zip archive"}},
		{"manifest", &vsix.InvalidManifestError{Field: "publisher", Reason: "missing"}},
		{"canceled", context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := newFakeInstaller()
			inst.failWith("x.vsix", tt.err, tt.err, tt.err)
			orch := newTestOrchestrator(t, inst)

			opts := fastOpts()
			opts.MaxRetries = 3
			summary, err := orch.InstallMany(context.Background(), []Task{{ArchivePath: "x.vsix"}}, opts)
			if err != nil {
				t.Fatal(err)
			}

			result := summary.Results[0]
			if result.Success || !errors.Is(result.Err, tt.err) {
				t.Fatalf("result = %+v", result)
			}
			if got := inst.installCalls("x.vsix"); got != 1 {
				t.Errorf("install attempts = %d, want 1 (terminal error was retried)", got)
			}
		})
	}
}

func TestInstallManyIdentityMismatchIsTerminal(t *testing.T) {
	inst := newFakeInstaller()
	orch := newTestOrchestrator(t, inst)

	opts := fastOpts()
	opts.MaxRetries = 3
	task := Task{ArchivePath: "x.vsix", ExpectedID: "other.extension"}
	summary, err := orch.InstallMany(context.Background(), []Task{task}, opts)
	if err != nil {
		t.Fatal(err)
	}

	result := summary.Results[0]
	if result.Success || result.Err == nil {
		t.Fatalf("result = %+v", result)
	}
	if got := inst.installCalls("x.vsix"); got != 1 {
		t.Errorf("install attempts = %d, want 1", got)
	}
}

func TestInstallManyHonorsParallelismLimit(t *testing.T) {
	inst := newFakeInstaller()
	orch := newTestOrchestrator(t, inst)

	tasks := make([]Task, 12)
	for i := range tasks {
		tasks[i] = Task{ArchivePath: fmt.Sprintf("ext-%d.vsix", i)}
	}
	opts := fastOpts()
	opts.Parallelism = 2
	if _, err := orch.InstallMany(context.Background(), tasks, opts); err != nil {
		t.Fatal(err)
	}
	if seen := inst.maxSeen.Load(); seen > 2 {
		t.Errorf("observed %d concurrent installs, limit is 2", seen)
	}
}

func TestInstallManySkipIfInstalled(t *testing.T) {
	installDir := t.TempDir()
	reg := registry.NewManager(installDir)
	if err := reg.AddOrReplace(registry.Entry{
		Identifier: registry.Identifier{ID: "acme.tool"},
		Version:    "1.2.3",
	}); err != nil {
		t.Fatal(err)
	}

	inst := newFakeInstaller()
	orch := NewOrchestrator(inst, reg, WithJitterMax(0))

	archivePath := testutil.BuildExtensionVSIX(t, t.TempDir(), "tool.vsix", "acme", "tool", "1.2.3")
	tasks := []Task{
		// Same version, explicit identity: skipped without touching disk.
		{ArchivePath: "explicit.vsix", ExpectedID: "acme.tool", ExpectedVersion: "1.2.3"},
		// Same version, identity read from the archive manifest.
		{ArchivePath: archivePath},
		// Different version: installed.
		{ArchivePath: "newer.vsix", ExpectedID: "acme.tool", ExpectedVersion: "2.0.0"},
	}

	opts := fastOpts()
	opts.SkipIfInstalled = true
	summary, err := orch.InstallMany(context.Background(), tasks, opts)
	if err != nil {
		t.Fatal(err)
	}

	if summary.Skipped != 2 || summary.Successful != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if got := inst.installCalls("explicit.vsix"); got != 0 {
		t.Errorf("skipped task hit the installer %d times", got)
	}
	if got := inst.installCalls("newer.vsix"); got != 1 {
		t.Errorf("new-version task install attempts = %d, want 1", got)
	}
}

func TestInstallManyAlreadyExistsCountsAsSkipped(t *testing.T) {
	installDir := t.TempDir()
	reg := registry.NewManager(installDir)
	inst := installer.New(installDir, reg)
	orch := NewOrchestrator(inst, reg, WithJitterMax(0))

	archivePath := testutil.BuildExtensionVSIX(t, t.TempDir(), "tool.vsix", "acme", "tool", "1.2.3")
	tasks := []Task{{ArchivePath: archivePath}}

	first, err := orch.InstallMany(context.Background(), tasks, fastOpts())
	if err != nil {
		t.Fatal(err)
	}
	if first.Successful != 1 || first.Skipped != 0 {
		t.Fatalf("first run summary = %+v", first)
	}

	second, err := orch.InstallMany(context.Background(), tasks, fastOpts())
	if err != nil {
		t.Fatal(err)
	}
	if second.Skipped != 1 || second.Failed != 0 {
		t.Errorf("second run summary = %+v", second)
	}
	if !second.Results[0].Success {
		t.Error("already-present task not reported as success")
	}
}

func TestInstallManyProgressCallback(t *testing.T) {
	inst := newFakeInstaller()
	orch := newTestOrchestrator(t, inst)

	tasks := []Task{
		{ArchivePath: "a.vsix"},
		{ArchivePath: "b.vsix"},
		{ArchivePath: "c.vsix"},
	}

	var mu sync.Mutex
	var dones []int
	opts := fastOpts()
	opts.OnProgress = func(done, total int, result TaskResult) {
		mu.Lock()
		defer mu.Unlock()
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
		dones = append(dones, done)
	}

	if _, err := orch.InstallMany(context.Background(), tasks, opts); err != nil {
		t.Fatal(err)
	}

	if len(dones) != 3 {
		t.Fatalf("progress called %d times, want 3", len(dones))
	}
	// done counts monotonically even with concurrent completion.
	for i, d := range dones {
		if d != i+1 {
			t.Errorf("progress done sequence = %v", dones)
			break
		}
	}
}

func TestInstallManyCancelledContextStopsRetrying(t *testing.T) {
	inst := newFakeInstaller()
	inst.failWith("x.vsix", errors.New("io error"), errors.New("io error"), errors.New("io error"))
	orch := newTestOrchestrator(t, inst)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := fastOpts()
	opts.MaxRetries = 3
	opts.RetryDelay = time.Hour // would hang if the cancel were ignored
	summary, err := orch.InstallMany(ctx, []Task{{ArchivePath: "x.vsix"}}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if got := inst.installCalls("x.vsix"); got != 1 {
		t.Errorf("install attempts = %d, want 1 after cancellation", got)
	}
}

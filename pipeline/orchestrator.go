package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/ortelius/vuln2rev-mapper/gitrepo"
	"github.com/ortelius/vuln2rev-mapper/model"
	"github.com/ortelius/vuln2rev-mapper/util"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// SnapshotStore is the slice of the persistence layer the orchestrator
// depends on.
type SnapshotStore interface {
	FilterExistingSnapshots(ctx context.Context, keys []string) (map[string]bool, error)
	UpsertRevision(ctx context.Context, pkgName string, snap *model.RevisionSnapshot, vulnIDs []string) error
}

// SnapshotPublisher emits a notification after a snapshot is persisted.
// A nil publisher disables events.
type SnapshotPublisher interface {
	PublishRevisionSnapshotCreated(ctx context.Context, snap *model.RevisionSnapshot) error
}

// Summary is the completion report for one orchestrator run.
type Summary struct {
	Total    int            `json:"total"`
	Done     int            `json:"done"`
	Skipped  map[string]int `json:"skipped"`
	Failed   map[string]int `json:"failed"`
	Duration time.Duration  `json:"-"`
}

func newSummary() *Summary {
	return &Summary{
		Skipped: make(map[string]int),
		Failed:  make(map[string]int),
	}
}

func (s *Summary) record(t *model.RepoTask) {
	switch t.Status {
	case model.TaskDone:
		s.Done++
	case model.TaskSkipped:
		s.Skipped[t.Reason]++
	case model.TaskFailed:
		s.Failed[t.Reason]++
	}
}

// Orchestrator drives RepoTasks through resolve, clone, checkout, analyze,
// persist. Tasks for the same repository run sequentially; distinct
// repositories run concurrently up to Workers.
type Orchestrator struct {
	Locator     Locator
	Repos       gitrepo.RepoSource
	Analyzer    gitrepo.Analyzer
	Store       SnapshotStore
	Events      SnapshotPublisher
	Logger      *zap.Logger
	Workers     int
	TaskTimeout time.Duration
}

// BuildTasks expands the minimal-version records into one pending task per
// (package, version). Purl-shaped version strings are dropped here too, so
// the orchestrator stays safe against unscreened input files.
func (o *Orchestrator) BuildTasks(ctx context.Context, records map[string]*model.MinimalVersionRecord) []*model.RepoTask {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	var tasks []*model.RepoTask
	for _, name := range names {
		rec := records[name]

		loc, err := o.Locator.Locate(ctx, name, rec.Ecosystem, rec.Purl)
		if err != nil {
			o.Logger.Sugar().Warnf("locate %s: %v", name, err)
		}

		for _, version := range rec.MinimalVersions {
			if util.IsPurlShaped(version) {
				continue
			}
			task := model.NewRepoTask(name, "", "", version)
			if loc == nil {
				task.Skip(model.ReasonNoLocation)
			} else {
				task.RepoName = loc.RepoName
				task.URL = loc.URL
			}
			tasks = append(tasks, task)
		}
	}

	return tasks
}

// filterAnalyzed skips tasks whose revision snapshot already exists, in one
// batched store round trip.
func (o *Orchestrator) filterAnalyzed(ctx context.Context, tasks []*model.RepoTask) error {
	var keys []string
	for _, t := range tasks {
		if t.Terminal() {
			continue
		}
		keys = append(keys, util.RevisionKey(t.RepoName, t.Version))
	}

	existing, err := o.Store.FilterExistingSnapshots(ctx, keys)
	if err != nil {
		return err
	}

	for _, t := range tasks {
		if t.Terminal() {
			continue
		}
		if existing[util.RevisionKey(t.RepoName, t.Version)] {
			t.Skip(model.ReasonAlreadyAnalyzed)
		}
	}
	return nil
}

// Run executes the tasks and returns the completion summary. Individual task
// failures are recorded, not fatal; the returned error aggregates
// infrastructure failures only.
func (o *Orchestrator) Run(ctx context.Context, tasks []*model.RepoTask) (*Summary, error) {
	start := time.Now()
	summary := newSummary()
	summary.Total = len(tasks)

	if err := o.filterAnalyzed(ctx, tasks); err != nil {
		return nil, err
	}

	// Group by repository so one clone serves every version of it and
	// checkouts of the same working tree never interleave.
	groups := make(map[string][]*model.RepoTask)
	var order []string
	for _, t := range tasks {
		if t.Terminal() {
			summary.record(t)
			continue
		}
		if _, ok := groups[t.RepoName]; !ok {
			order = append(order, t.RepoName)
		}
		groups[t.RepoName] = append(groups[t.RepoName], t)
	}
	sort.Strings(order)

	workers := o.Workers
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs error

	for _, repoName := range order {
		group := groups[repoName]

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = multierror.Append(errs, err)
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(group []*model.RepoTask) {
			defer wg.Done()
			defer sem.Release(1)

			for _, task := range group {
				o.runTask(ctx, task)
				mu.Lock()
				summary.record(task)
				mu.Unlock()
			}
		}(group)
	}

	wg.Wait()
	summary.Duration = time.Since(start)

	o.Logger.Sugar().Infof("revision build complete: %d done, %d skipped, %d failed of %d in %s",
		summary.Done, total(summary.Skipped), total(summary.Failed), summary.Total, summary.Duration.Round(time.Second))

	return summary, errs
}

func total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// runTask walks one task through the state machine. Every failure lands in a
// terminal status with a reason; nothing here panics the worker.
func (o *Orchestrator) runTask(ctx context.Context, task *model.RepoTask) {
	taskCtx := ctx
	if o.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, o.TaskTimeout)
		defer cancel()
	}

	log := o.Logger.Sugar().With("package", task.Package, "repo", task.RepoName, "version", task.Version)

	task.Status = model.TaskCloning
	dir, err := o.Repos.EnsureLocalCopy(taskCtx, task.RepoName, task.URL)
	if err != nil {
		log.Warnf("clone failed: %v", err)
		task.Fail(model.ReasonCloneFailed)
		return
	}

	task.Status = model.TaskCheckingOut
	sha, err := o.Repos.Checkout(taskCtx, dir, task.Version)
	if err != nil {
		if errors.Is(err, gitrepo.ErrRevisionNotFound) {
			log.Infof("version not present in repository")
			task.Skip(model.ReasonRevisionNotFound)
		} else {
			log.Warnf("checkout failed: %v", err)
			task.Fail(model.ReasonRevisionNotFound)
		}
		return
	}

	task.Status = model.TaskAnalyzing
	stats, totalBytes, err := o.Analyzer.Analyze(taskCtx, dir)
	if err != nil {
		log.Warnf("analysis failed: %v", err)
		task.Fail(model.ReasonAnalysisFailed)
		return
	}

	task.Status = model.TaskPersisting
	snap := model.NewRevisionSnapshot(task.RepoName, task.URL, task.Version)
	snap.CommitSha = sha
	snap.TotalBytes = totalBytes
	snap.Languages = stats
	snap.AnalyzedAt = time.Now().UTC()

	// One retry covers transient coordinator hiccups without masking a
	// persistent schema or connectivity problem.
	err = backoff.Retry(func() error {
		return o.Store.UpsertRevision(taskCtx, task.Package, snap, nil)
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 1))
	if err != nil {
		log.Errorf("persist failed: %v", err)
		task.Fail(model.ReasonPersistFailed)
		return
	}

	task.Status = model.TaskDone
	shortSha := sha
	if len(shortSha) > 12 {
		shortSha = shortSha[:12]
	}
	log.Infof("revision analyzed: %s (%d languages, %d bytes)", shortSha, len(stats), totalBytes)

	if o.Events != nil {
		if err := o.Events.PublishRevisionSnapshotCreated(taskCtx, snap); err != nil {
			log.Warnf("event publish failed: %v", err)
		}
	}
}

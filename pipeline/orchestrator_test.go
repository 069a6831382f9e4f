package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ortelius/vuln2rev-mapper/gitrepo"
	"github.com/ortelius/vuln2rev-mapper/model"
	"github.com/ortelius/vuln2rev-mapper/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLocator struct {
	locations map[string]*Location
}

func (f *fakeLocator) Locate(_ context.Context, pkgName, _, _ string) (*Location, error) {
	return f.locations[pkgName], nil
}

type fakeRepos struct {
	mu        sync.Mutex
	cloned    []string
	checkouts []string

	cloneErr    map[string]error
	checkoutErr map[string]error
	sha         string
}

func (f *fakeRepos) EnsureLocalCopy(_ context.Context, repoName, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.cloneErr[repoName]; err != nil {
		return "", err
	}
	f.cloned = append(f.cloned, repoName)
	return "/tmp/fake/" + repoName, nil
}

func (f *fakeRepos) Checkout(_ context.Context, dir, version string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkoutErr[version]; err != nil {
		return "", err
	}
	f.checkouts = append(f.checkouts, dir+"@"+version)
	if f.sha != "" {
		return f.sha, nil
	}
	return "aaaabbbbccccddddaaaabbbbccccddddaaaabbbb", nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(_ context.Context, _ string) ([]model.LanguageStat, int64, error) {
	return []model.LanguageStat{{Language: "Go", Bytes: 100, Percent: 100}}, 100, nil
}

type fakeStore struct {
	mu       sync.Mutex
	existing map[string]bool
	upserts  []string
	failKeys map[string]int
}

func (f *fakeStore) FilterExistingSnapshots(_ context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, k := range keys {
		if f.existing[k] {
			out[k] = true
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertRevision(_ context.Context, _ string, snap *model.RevisionSnapshot, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := util.RevisionKey(snap.RepoName, snap.Version)
	if f.failKeys[key] > 0 {
		f.failKeys[key]--
		return errors.New("transient write failure")
	}
	f.upserts = append(f.upserts, key)
	return nil
}

func newTestOrchestrator(loc *fakeLocator, repos *fakeRepos, st *fakeStore) *Orchestrator {
	return &Orchestrator{
		Locator:  loc,
		Repos:    repos,
		Analyzer: fakeAnalyzer{},
		Store:    st,
		Logger:   zap.NewNop(),
		Workers:  4,
	}
}

func TestBuildTasksSkipsUnresolvedPackages(t *testing.T) {
	loc := &fakeLocator{locations: map[string]*Location{
		"flask": {RepoName: "pallets/flask", URL: "https://github.com/pallets/flask.git"},
	}}
	orch := newTestOrchestrator(loc, &fakeRepos{}, &fakeStore{})

	records := map[string]*model.MinimalVersionRecord{
		"flask":   {Ecosystem: "PyPI", MinimalVersions: []string{"2.0.1"}},
		"unknown": {Ecosystem: "npm", MinimalVersions: []string{"1.0.0", "2.0.0"}},
	}

	tasks := orch.BuildTasks(context.Background(), records)
	require.Len(t, tasks, 3)

	byPkg := make(map[string][]*model.RepoTask)
	for _, task := range tasks {
		byPkg[task.Package] = append(byPkg[task.Package], task)
	}

	require.Len(t, byPkg["flask"], 1)
	assert.Equal(t, model.TaskPending, byPkg["flask"][0].Status)
	assert.Equal(t, "pallets/flask", byPkg["flask"][0].RepoName)

	for _, task := range byPkg["unknown"] {
		assert.Equal(t, model.TaskSkipped, task.Status)
		assert.Equal(t, model.ReasonNoLocation, task.Reason)
	}
}

func TestBuildTasksDropsPurlShapedVersions(t *testing.T) {
	loc := &fakeLocator{locations: map[string]*Location{
		"lodash": {RepoName: "lodash/lodash", URL: "https://github.com/lodash/lodash.git"},
	}}
	orch := newTestOrchestrator(loc, &fakeRepos{}, &fakeStore{})

	records := map[string]*model.MinimalVersionRecord{
		"lodash": {Ecosystem: "npm", MinimalVersions: []string{"4.17.21", "pkg:npm/lodash@4.17.21"}},
	}

	tasks := orch.BuildTasks(context.Background(), records)
	require.Len(t, tasks, 1)
	assert.Equal(t, "4.17.21", tasks[0].Version)
}

func TestRunIsIdempotent(t *testing.T) {
	repos := &fakeRepos{}
	st := &fakeStore{existing: map[string]bool{
		util.RevisionKey("pallets/flask", "2.0.1"): true,
		util.RevisionKey("pallets/flask", "2.1.0"): true,
	}}
	orch := newTestOrchestrator(&fakeLocator{}, repos, st)

	tasks := []*model.RepoTask{
		model.NewRepoTask("flask", "pallets/flask", "https://github.com/pallets/flask.git", "2.0.1"),
		model.NewRepoTask("flask", "pallets/flask", "https://github.com/pallets/flask.git", "2.1.0"),
	}

	summary, err := orch.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Zero(t, summary.Done)
	assert.Equal(t, 2, summary.Skipped[model.ReasonAlreadyAnalyzed])
	assert.Empty(t, repos.cloned, "nothing should be cloned on a re-run")
	assert.Empty(t, st.upserts)
}

func TestRunOneFailureDoesNotStopSiblings(t *testing.T) {
	repos := &fakeRepos{
		checkoutErr: map[string]error{"9.9.9": gitrepo.ErrRevisionNotFound},
	}
	st := &fakeStore{}
	orch := newTestOrchestrator(&fakeLocator{}, repos, st)

	tasks := []*model.RepoTask{
		model.NewRepoTask("mux", "gorilla/mux", "https://github.com/gorilla/mux.git", "9.9.9"),
		model.NewRepoTask("mux", "gorilla/mux", "https://github.com/gorilla/mux.git", "1.8.0"),
		model.NewRepoTask("chi", "go-chi/chi", "https://github.com/go-chi/chi.git", "5.0.0"),
	}

	summary, err := orch.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Done)
	assert.Equal(t, 1, summary.Skipped[model.ReasonRevisionNotFound])
	assert.Len(t, st.upserts, 2)
}

func TestRunCloneFailureFailsWholeGroup(t *testing.T) {
	repos := &fakeRepos{
		cloneErr: map[string]error{"gone/repo": errors.New("remote unreachable")},
	}
	st := &fakeStore{}
	orch := newTestOrchestrator(&fakeLocator{}, repos, st)

	tasks := []*model.RepoTask{
		model.NewRepoTask("gone", "gone/repo", "https://github.com/gone/repo.git", "1.0.0"),
		model.NewRepoTask("gone", "gone/repo", "https://github.com/gone/repo.git", "2.0.0"),
	}

	summary, err := orch.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Zero(t, summary.Done)
	assert.Equal(t, 2, summary.Failed[model.ReasonCloneFailed])
}

func TestRunHandlesAbbreviatedCommitSha(t *testing.T) {
	// Some checkout paths hand back an abbreviated sha; the task must still
	// complete instead of panicking on the log line.
	repos := &fakeRepos{sha: "abc123"}
	st := &fakeStore{}
	orch := newTestOrchestrator(&fakeLocator{}, repos, st)

	tasks := []*model.RepoTask{
		model.NewRepoTask("mux", "gorilla/mux", "https://github.com/gorilla/mux.git", "1.8.0"),
	}

	summary, err := orch.Run(context.Background(), tasks)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Done)
}

func TestRunRetriesPersistOnce(t *testing.T) {
	repos := &fakeRepos{}
	key := util.RevisionKey("gorilla/mux", "1.8.0")
	st := &fakeStore{failKeys: map[string]int{key: 1}}
	orch := newTestOrchestrator(&fakeLocator{}, repos, st)

	tasks := []*model.RepoTask{
		model.NewRepoTask("mux", "gorilla/mux", "https://github.com/gorilla/mux.git", "1.8.0"),
	}

	summary, err := orch.Run(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Done)
	assert.Equal(t, []string{key}, st.upserts)
}

// Package model - RevisionSnapshot and RepoTask define the revision metadata
// pipeline's working records.
package model

import (
	"time"

	"github.com/ortelius/vuln2rev-mapper/util"
)

// TaskStatus tracks a RepoTask through the pipeline state machine.
type TaskStatus string

// Task states, in pipeline order. Failed and Skipped are terminal.
const (
	TaskPending     TaskStatus = "pending"
	TaskResolving   TaskStatus = "resolving"
	TaskCloning     TaskStatus = "cloning"
	TaskCheckingOut TaskStatus = "checking-out"
	TaskAnalyzing   TaskStatus = "analyzing"
	TaskPersisting  TaskStatus = "persisting"
	TaskDone        TaskStatus = "done"
	TaskSkipped     TaskStatus = "skipped"
	TaskFailed      TaskStatus = "failed"
)

// Skip and failure reasons reported in the completion summary.
const (
	ReasonNoLocation       = "no-location"
	ReasonAlreadyAnalyzed  = "already-analyzed"
	ReasonCloneFailed      = "clone-failed"
	ReasonRevisionNotFound = "revision-not-found"
	ReasonAnalysisFailed   = "analysis-failed"
	ReasonPersistFailed    = "persist-failed"
)

// RepoTask is one unit of revision-analysis work: a single version of a
// single package, located at a single repository URL.
type RepoTask struct {
	Package  string     `json:"package"`
	RepoName string     `json:"repo_name"`
	URL      string     `json:"url"`
	Version  string     `json:"version"`
	Status   TaskStatus `json:"status"`
	Reason   string     `json:"reason,omitempty"`
}

// NewRepoTask creates a pending task.
func NewRepoTask(pkg, repoName, url, version string) *RepoTask {
	return &RepoTask{
		Package:  pkg,
		RepoName: repoName,
		URL:      url,
		Version:  version,
		Status:   TaskPending,
	}
}

// Skip marks the task terminally skipped with a reason.
func (t *RepoTask) Skip(reason string) {
	t.Status = TaskSkipped
	t.Reason = reason
}

// Fail marks the task terminally failed with a reason.
func (t *RepoTask) Fail(reason string) {
	t.Status = TaskFailed
	t.Reason = reason
}

// Terminal reports whether the task has reached a final state.
func (t *RepoTask) Terminal() bool {
	return t.Status == TaskDone || t.Status == TaskSkipped || t.Status == TaskFailed
}

// LanguageStat is one language's share of a revision's working tree.
type LanguageStat struct {
	Key      string  `json:"_key,omitempty"`
	ObjType  string  `json:"objtype,omitempty"`
	Language string  `json:"language"`
	Bytes    int64   `json:"bytes"`
	Percent  float64 `json:"percent"`
}

// RevisionSnapshot is the persisted analysis of one checked-out version of a
// repository.
type RevisionSnapshot struct {
	Key          string         `json:"_key,omitempty"`
	ObjType      string         `json:"objtype,omitempty"`
	RepoName     string         `json:"repo_name"`
	RepoURL      string         `json:"repo_url"`
	Version      string         `json:"version"`
	VersionMajor *int           `json:"version_major,omitempty"`
	VersionMinor *int           `json:"version_minor,omitempty"`
	VersionPatch *int           `json:"version_patch,omitempty"`
	CommitSha    string         `json:"commit_sha"`
	TotalBytes   int64          `json:"total_bytes"`
	Languages    []LanguageStat `json:"languages,omitempty"`
	AnalyzedAt   time.Time      `json:"analyzed_at"`
}

// NewRevisionSnapshot creates a snapshot with defaults set.
func NewRevisionSnapshot(repoName, repoURL, version string) *RevisionSnapshot {
	return &RevisionSnapshot{
		ObjType:  "RevisionSnapshot",
		RepoName: repoName,
		RepoURL:  repoURL,
		Version:  version,
	}
}

// ParseAndSetVersion parses the version string into numeric components.
func (r *RevisionSnapshot) ParseAndSetVersion() {
	if r.Version == "" {
		return
	}

	parsed := util.ParseSemanticVersion(r.Version)
	if parsed != nil {
		r.VersionMajor = parsed.Major
		r.VersionMinor = parsed.Minor
		r.VersionPatch = parsed.Patch
	}
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoTaskStateMachine(t *testing.T) {
	task := NewRepoTask("flask", "pallets/flask", "https://github.com/pallets/flask.git", "2.0.1")
	assert.Equal(t, TaskPending, task.Status)
	assert.False(t, task.Terminal())

	task.Status = TaskAnalyzing
	assert.False(t, task.Terminal())

	task.Fail(ReasonAnalysisFailed)
	assert.True(t, task.Terminal())
	assert.Equal(t, TaskFailed, task.Status)
	assert.Equal(t, ReasonAnalysisFailed, task.Reason)
}

func TestRepoTaskSkip(t *testing.T) {
	task := NewRepoTask("x", "", "", "1.0")
	task.Skip(ReasonNoLocation)

	assert.True(t, task.Terminal())
	assert.Equal(t, TaskSkipped, task.Status)
	assert.Equal(t, ReasonNoLocation, task.Reason)
}

func TestRevisionSnapshotParseAndSetVersion(t *testing.T) {
	snap := NewRevisionSnapshot("gorilla/mux", "https://github.com/gorilla/mux.git", "1.8.0")
	snap.ParseAndSetVersion()

	require.NotNil(t, snap.VersionMajor)
	assert.Equal(t, 1, *snap.VersionMajor)
	require.NotNil(t, snap.VersionMinor)
	assert.Equal(t, 8, *snap.VersionMinor)
	require.NotNil(t, snap.VersionPatch)
	assert.Equal(t, 0, *snap.VersionPatch)
}

func TestRevisionSnapshotNonSemverVersion(t *testing.T) {
	snap := NewRevisionSnapshot("some/repo", "", "release-candidate")
	snap.ParseAndSetVersion()

	assert.Nil(t, snap.VersionMajor)
	assert.Nil(t, snap.VersionMinor)
	assert.Nil(t, snap.VersionPatch)
}

package gitrepo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubLinguist(t *testing.T, stdout, stderr string, err error) {
	t.Helper()
	orig := runLinguistCommand
	runLinguistCommand = func(ctx context.Context, cmd, dir string) ([]byte, []byte, error) {
		return []byte(stdout), []byte(stderr), err
	}
	t.Cleanup(func() { runLinguistCommand = orig })
}

func TestAnalyzeParsesBreakdown(t *testing.T) {
	stubLinguist(t, `{"languages":{"Go":7500,"Shell":2500},"size":10000}`, "", nil)

	l := &Linguist{Cmd: "github-linguist"}
	stats, total, err := l.Analyze(context.Background(), "/tmp/checkout")
	require.NoError(t, err)

	assert.Equal(t, int64(10000), total)
	require.Len(t, stats, 2)
	assert.Equal(t, "Go", stats[0].Language)
	assert.Equal(t, int64(7500), stats[0].Bytes)
	assert.InDelta(t, 75.0, stats[0].Percent, 0.001)
	assert.Equal(t, "Shell", stats[1].Language)
	assert.InDelta(t, 25.0, stats[1].Percent, 0.001)
}

func TestAnalyzeOrdersByBytesThenName(t *testing.T) {
	stubLinguist(t, `{"languages":{"Ruby":50,"Python":50,"Go":100},"size":200}`, "", nil)

	l := &Linguist{Cmd: "github-linguist"}
	stats, _, err := l.Analyze(context.Background(), "/tmp/checkout")
	require.NoError(t, err)

	require.Len(t, stats, 3)
	assert.Equal(t, "Go", stats[0].Language)
	assert.Equal(t, "Python", stats[1].Language)
	assert.Equal(t, "Ruby", stats[2].Language)
}

func TestAnalyzeMissingSizeSumsLanguages(t *testing.T) {
	stubLinguist(t, `{"languages":{"Go":30,"Shell":70}}`, "", nil)

	l := &Linguist{Cmd: "github-linguist"}
	stats, total, err := l.Analyze(context.Background(), "/tmp/checkout")
	require.NoError(t, err)

	assert.Equal(t, int64(100), total)
	assert.Equal(t, "Shell", stats[0].Language)
	assert.InDelta(t, 70.0, stats[0].Percent, 0.001)
}

func TestAnalyzeCommandFailure(t *testing.T) {
	stubLinguist(t, "", "linguist: not a git repository\n", errors.New("exit status 1"))

	l := &Linguist{Cmd: "github-linguist"}
	_, _, err := l.Analyze(context.Background(), "/tmp/checkout")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisFailed)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestAnalyzeBadJSON(t *testing.T) {
	stubLinguist(t, "97.5% Go\n2.5% Shell\n", "", nil)

	l := &Linguist{Cmd: "github-linguist"}
	_, _, err := l.Analyze(context.Background(), "/tmp/checkout")
	assert.ErrorIs(t, err, ErrAnalysisFailed)
}

func TestAnalyzeEmptyRepo(t *testing.T) {
	stubLinguist(t, `{"languages":{},"size":0}`, "", nil)

	l := &Linguist{Cmd: "github-linguist"}
	stats, total, err := l.Analyze(context.Background(), "/tmp/checkout")
	require.NoError(t, err)
	assert.Empty(t, stats)
	assert.Zero(t, total)
}

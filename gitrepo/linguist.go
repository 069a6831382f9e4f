package gitrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"sort"

	"github.com/ortelius/vuln2rev-mapper/model"
)

// ErrAnalysisFailed marks a linguist run that exited nonzero or produced
// unparseable output.
var ErrAnalysisFailed = errors.New("language analysis failed")

// Analyzer is the slice of the linguist runner the orchestrator depends on.
type Analyzer interface {
	Analyze(ctx context.Context, dir string) ([]model.LanguageStat, int64, error)
}

// runLinguistCommand executes the linguist binary against a checked-out
// working tree. Swapped out in tests.
var runLinguistCommand = func(ctx context.Context, cmd, dir string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd, "--breakdown", "--json") // #nosec G204
	c.Dir = dir
	c.Stdout = &stdout
	c.Stderr = &stderr
	err := c.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Linguist runs github-linguist over a working tree and parses its JSON
// breakdown into ordered language stats.
type Linguist struct {
	Cmd string
}

// linguistOutput matches the --json breakdown shape: a byte count per
// language plus the repository total.
type linguistOutput struct {
	Languages map[string]int64 `json:"languages"`
	Size      int64            `json:"size"`
}

// Analyze returns per-language byte counts and percentages for the tree at
// dir, ordered by descending byte count then language name. The second
// return is the total analyzed size in bytes.
func (l *Linguist) Analyze(ctx context.Context, dir string) ([]model.LanguageStat, int64, error) {
	stdout, stderr, err := runLinguistCommand(ctx, l.Cmd, dir)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrAnalysisFailed, bytes.TrimSpace(stderr), err)
	}

	var out linguistOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, 0, fmt.Errorf("%w: parse output: %v", ErrAnalysisFailed, err)
	}

	total := out.Size
	if total == 0 {
		for _, b := range out.Languages {
			total += b
		}
	}

	stats := make([]model.LanguageStat, 0, len(out.Languages))
	for lang, bytesCount := range out.Languages {
		percent := 0.0
		if total > 0 {
			percent = math.Round(float64(bytesCount)/float64(total)*100*100) / 100
		}
		stats = append(stats, model.LanguageStat{
			Language: lang,
			Bytes:    bytesCount,
			Percent:  percent,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Bytes != stats[j].Bytes {
			return stats[i].Bytes > stats[j].Bytes
		}
		return stats[i].Language < stats[j].Language
	})

	return stats, total, nil
}

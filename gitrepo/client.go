// Package gitrepo manages the local repository cache: cloning, tag refresh,
// detached checkouts, and linguist analysis of the working tree.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/ortelius/vuln2rev-mapper/util"
	"go.uber.org/zap"
)

// ErrRevisionNotFound marks a version string that resolves to no commit in
// the repository, after trying the tag-name variants.
var ErrRevisionNotFound = errors.New("revision not found in repository")

// cloneMarker is written after a clone finishes. A cache directory without it
// is a torn clone from a killed run and gets wiped and recloned.
const cloneMarker = ".clone-complete"

// RepoSource is the slice of the client the orchestrator depends on.
type RepoSource interface {
	EnsureLocalCopy(ctx context.Context, repoName, url string) (string, error)
	Checkout(ctx context.Context, dir, version string) (string, error)
}

// Client caches one working copy per repository under CacheDir. Calls for the
// same repository serialize on a per-path mutex; distinct repositories
// proceed concurrently.
type Client struct {
	CacheDir string
	Logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewClient(cacheDir string, logger *zap.Logger) *Client {
	return &Client{
		CacheDir: cacheDir,
		Logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (c *Client) pathLock(dir string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[dir] == nil {
		c.locks[dir] = &sync.Mutex{}
	}
	return c.locks[dir]
}

// EnsureLocalCopy returns a working copy of the repository, cloning on first
// use and refreshing tags on later ones. The returned path is stable for a
// given repoName.
func (c *Client) EnsureLocalCopy(ctx context.Context, repoName, url string) (string, error) {
	dir := filepath.Join(c.CacheDir, util.SanitizeKey(repoName))

	lock := c.pathLock(dir)
	lock.Lock()
	defer lock.Unlock()

	marker := filepath.Join(dir, cloneMarker)

	if _, err := os.Stat(dir); err == nil {
		if _, err := os.Stat(marker); err != nil {
			// Torn clone from an interrupted run.
			c.Logger.Sugar().Warnf("incomplete clone at %s, recloning", dir)
			if err := os.RemoveAll(dir); err != nil {
				return "", fmt.Errorf("remove torn clone %s: %w", dir, err)
			}
		} else {
			if err := c.fetchTags(ctx, dir); err != nil {
				c.Logger.Sugar().Warnf("tag refresh for %s failed: %v", repoName, err)
			}
			return dir, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o750); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	c.Logger.Sugar().Infof("cloning %s into %s", url, dir)
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:  url,
		Tags: git.AllTags,
	})
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("clone %s: %w", url, err)
	}

	if err := os.WriteFile(marker, []byte{}, 0o600); err != nil {
		return "", fmt.Errorf("write clone marker: %w", err)
	}

	return dir, nil
}

func (c *Client) fetchTags(ctx context.Context, dir string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return err
	}
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []config.RefSpec{"+refs/tags/*:refs/tags/*"},
		Tags:     git.AllTags,
		Force:    true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// Checkout resolves the version to a commit and checks it out detached,
// discarding any local modifications left by a previous analysis. It returns
// the commit sha. Resolution tries the version verbatim, then "v" prefixed,
// then as an explicit tag ref.
func (c *Client) Checkout(ctx context.Context, dir, version string) (string, error) {
	lock := c.pathLock(dir)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", dir, err)
	}

	hash, err := resolveVersion(repo, version)
	if err != nil {
		return "", err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree %s: %w", dir, err)
	}

	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return "", fmt.Errorf("checkout %s at %s: %w", dir, version, err)
	}

	return hash.String(), nil
}

func resolveVersion(repo *git.Repository, version string) (*plumbing.Hash, error) {
	for _, rev := range []string{version, "v" + version, "refs/tags/" + version} {
		if hash, err := repo.ResolveRevision(plumbing.Revision(rev)); err == nil {
			return hash, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRevisionNotFound, version)
}

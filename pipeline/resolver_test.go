package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ortelius/vuln2rev-mapper/util"
)

func TestNormalizeGitURL(t *testing.T) {
	cases := map[string]string{
		"https://github.com/pallets/flask":            "https://github.com/pallets/flask.git",
		"https://github.com/pallets/flask.git":        "https://github.com/pallets/flask.git",
		"git+https://github.com/lodash/lodash.git":    "https://github.com/lodash/lodash.git",
		"git@github.com:expressjs/express.git":        "https://github.com/expressjs/express.git",
		"ssh://git@github.com/gorilla/mux":            "https://github.com/gorilla/mux.git",
		"git+ssh://git@github.com:chalk/chalk.git":    "https://github.com/chalk/chalk.git",
		"git://github.com/isaacs/minimatch":           "https://github.com/isaacs/minimatch.git",
		"http://gitlab.com/group/project":             "https://gitlab.com/group/project.git",
		"https://github.com/pallets/flask/":           "https://github.com/pallets/flask.git",
		"https://github.com/sindresorhus/got#readme":  "https://github.com/sindresorhus/got.git",
		"bitbucket.org/atlassian/jwt":                 "https://bitbucket.org/atlassian/jwt.git",
	}

	for input, want := range cases {
		assert.Equal(t, want, NormalizeGitURL(input), "input %q", input)
	}
}

func TestLocateVCSPurl(t *testing.T) {
	r := NewRepoLocator(zap.NewNop())

	loc, err := r.Locate(context.Background(), "mux", "Go", "pkg:github/gorilla/mux")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "gorilla/mux", loc.RepoName)
	assert.Equal(t, "https://github.com/gorilla/mux.git", loc.URL)
}

func TestLocateGoModulePath(t *testing.T) {
	r := NewRepoLocator(zap.NewNop())

	loc, err := r.Locate(context.Background(), "github.com/gin-gonic/gin", "Go", "")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "gin-gonic/gin", loc.RepoName)
	assert.Equal(t, "https://github.com/gin-gonic/gin.git", loc.URL)

	// Deep module paths resolve to the repository root.
	loc, err = r.Locate(context.Background(), "golang.org/x/crypto/ssh", "Go", "")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "x/crypto", loc.RepoName)
}

func TestLocatePackagistVendorName(t *testing.T) {
	r := NewRepoLocator(zap.NewNop())

	loc, err := r.Locate(context.Background(), "symfony/http-kernel", "Packagist", "")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "symfony/http-kernel", loc.RepoName)
	assert.Equal(t, "https://github.com/symfony/http-kernel.git", loc.URL)
}

func TestRegistryLocationKeepsOwnerSegment(t *testing.T) {
	a := locationFromGitURL("git+https://github.com/expressjs/express.git")
	b := locationFromGitURL("https://github.com/someone-else/express")

	assert.Equal(t, "expressjs/express", a.RepoName)
	assert.Equal(t, "someone-else/express", b.RepoName)

	// Two repositories with the same basename must never share a revision
	// key, or the second one's versions get skipped as already analyzed.
	assert.NotEqual(t,
		util.RevisionKey(a.RepoName, "4.17.1"),
		util.RevisionKey(b.RepoName, "4.17.1"))
}

func TestLocateUnresolvableReturnsNil(t *testing.T) {
	r := NewRepoLocator(zap.NewNop())
	// Strip the registry strategies so the test never touches the network.
	r.strategies = []strategy{fromVCSPurl, fromPackagist, fromNamingConvention}

	loc, err := r.Locate(context.Background(), "leftpad", "npm", "")
	require.NoError(t, err)
	assert.Nil(t, loc)
}

func TestLocateMemoizesPerPackage(t *testing.T) {
	r := NewRepoLocator(zap.NewNop())
	calls := 0
	r.strategies = []strategy{
		func(_ context.Context, _ *RepoLocator, pkgName, _, _ string) (*Location, error) {
			calls++
			return &Location{RepoName: pkgName, URL: "https://github.com/x/" + pkgName + ".git"}, nil
		},
	}

	for i := 0; i < 3; i++ {
		loc, err := r.Locate(context.Background(), "repeat", "npm", "")
		require.NoError(t, err)
		require.NotNil(t, loc)
	}
	assert.Equal(t, 1, calls)
}

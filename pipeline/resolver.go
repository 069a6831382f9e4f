// Package pipeline turns minimal-version records into analyzed revision
// snapshots: locate the repository, clone, check out, run linguist, persist.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ortelius/vuln2rev-mapper/util"
	"github.com/package-url/packageurl-go"
	"go.uber.org/zap"
)

// Location is a resolved repository for a package.
type Location struct {
	RepoName string
	URL      string
}

// Locator resolves a package to its source repository.
type Locator interface {
	Locate(ctx context.Context, pkgName, ecosystem, purl string) (*Location, error)
}

// strategy attempts one resolution approach. A nil Location with a nil error
// means "not found here, try the next one".
type strategy func(ctx context.Context, r *RepoLocator, pkgName, ecosystem, purl string) (*Location, error)

// RepoLocator tries an ordered list of strategies: direct VCS purl types,
// registry metadata lookups, then naming-convention guesses. Results are
// memoized per package so a package with many versions resolves once.
type RepoLocator struct {
	HTTP   *http.Client
	Logger *zap.Logger

	strategies []strategy
	cache      map[string]*Location
}

func NewRepoLocator(logger *zap.Logger) *RepoLocator {
	r := &RepoLocator{
		HTTP:   &http.Client{Timeout: 20 * time.Second},
		Logger: logger,
		cache:  make(map[string]*Location),
	}
	r.strategies = []strategy{
		fromVCSPurl,
		fromNpmRegistry,
		fromPyPIRegistry,
		fromPackagist,
		fromNamingConvention,
	}
	return r
}

// Locate runs the strategies in order and returns the first hit, or nil when
// every strategy comes up empty. Registry errors are logged and treated as a
// miss for that strategy, not a terminal failure.
func (r *RepoLocator) Locate(ctx context.Context, pkgName, ecosystem, purl string) (*Location, error) {
	cacheKey := ecosystem + "|" + pkgName
	if loc, ok := r.cache[cacheKey]; ok {
		return loc, nil
	}

	for _, try := range r.strategies {
		loc, err := try(ctx, r, pkgName, ecosystem, purl)
		if err != nil {
			r.Logger.Sugar().Debugf("locate %s (%s): %v", pkgName, ecosystem, err)
			continue
		}
		if loc != nil {
			r.cache[cacheKey] = loc
			return loc, nil
		}
	}

	r.cache[cacheKey] = nil
	return nil, nil
}

// fromVCSPurl handles purl types that name a repository directly.
func fromVCSPurl(_ context.Context, _ *RepoLocator, _, _, purl string) (*Location, error) {
	if purl == "" {
		return nil, nil
	}
	cleaned, err := util.CleanPURL(purl)
	if err != nil {
		return nil, nil
	}
	p, err := packageurl.FromString(cleaned)
	if err != nil {
		return nil, nil
	}

	var host string
	switch p.Type {
	case "github":
		host = "github.com"
	case "gitlab":
		host = "gitlab.com"
	case "bitbucket":
		host = "bitbucket.org"
	default:
		return nil, nil
	}

	if p.Namespace == "" || p.Name == "" {
		return nil, nil
	}

	name := fmt.Sprintf("%s/%s", p.Namespace, p.Name)
	return &Location{
		RepoName: name,
		URL:      NormalizeGitURL(fmt.Sprintf("https://%s/%s", host, name)),
	}, nil
}

// fromNpmRegistry asks the npm registry for the package's repository field.
func fromNpmRegistry(ctx context.Context, r *RepoLocator, pkgName, ecosystem, _ string) (*Location, error) {
	if !strings.EqualFold(ecosystem, "npm") {
		return nil, nil
	}

	var meta struct {
		Repository struct {
			URL string `json:"url"`
		} `json:"repository"`
	}
	endpoint := "https://registry.npmjs.org/" + url.PathEscape(pkgName)
	if err := r.getJSON(ctx, endpoint, &meta); err != nil {
		return nil, err
	}
	if meta.Repository.URL == "" {
		return nil, nil
	}

	return locationFromGitURL(meta.Repository.URL), nil
}

// fromPyPIRegistry asks PyPI, preferring project_urls Source over Homepage.
func fromPyPIRegistry(ctx context.Context, r *RepoLocator, pkgName, ecosystem, _ string) (*Location, error) {
	if !strings.EqualFold(ecosystem, "pypi") {
		return nil, nil
	}

	var meta struct {
		Info struct {
			ProjectURLs map[string]string `json:"project_urls"`
			HomePage    string            `json:"home_page"`
		} `json:"info"`
	}
	endpoint := "https://pypi.org/pypi/" + url.PathEscape(pkgName) + "/json"
	if err := r.getJSON(ctx, endpoint, &meta); err != nil {
		return nil, err
	}

	candidates := []string{
		meta.Info.ProjectURLs["Source"],
		meta.Info.ProjectURLs["Source Code"],
		meta.Info.ProjectURLs["Repository"],
		meta.Info.ProjectURLs["Homepage"],
		meta.Info.HomePage,
	}
	for _, c := range candidates {
		if c != "" && looksLikeGitHost(c) {
			return locationFromGitURL(c), nil
		}
	}
	return nil, nil
}

// fromPackagist maps composer vendor/package names straight onto GitHub,
// which is where the overwhelming majority of Packagist packages live.
func fromPackagist(_ context.Context, _ *RepoLocator, pkgName, ecosystem, _ string) (*Location, error) {
	if !strings.EqualFold(ecosystem, "packagist") {
		return nil, nil
	}
	if !strings.Contains(pkgName, "/") {
		return nil, nil
	}
	return &Location{
		RepoName: pkgName,
		URL:      NormalizeGitURL("https://github.com/" + pkgName),
	}, nil
}

// fromNamingConvention is the last resort: Go module paths embed their host,
// and scoped/plain names get a best-effort GitHub guess.
func fromNamingConvention(_ context.Context, _ *RepoLocator, pkgName, ecosystem, _ string) (*Location, error) {
	if strings.EqualFold(ecosystem, "go") {
		parts := strings.Split(pkgName, "/")
		if len(parts) >= 3 && strings.Contains(parts[0], ".") {
			name := strings.Join(parts[1:3], "/")
			return &Location{
				RepoName: name,
				URL:      NormalizeGitURL("https://" + strings.Join(parts[:3], "/")),
			}, nil
		}
		return nil, nil
	}

	// "owner/repo" shaped names map onto GitHub directly.
	if strings.Count(pkgName, "/") == 1 && !strings.HasPrefix(pkgName, "@") {
		return &Location{
			RepoName: pkgName,
			URL:      NormalizeGitURL("https://github.com/" + pkgName),
		}, nil
	}

	return nil, nil
}

func (r *RepoLocator) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry %s returned %d", endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// locationFromGitURL builds a Location from a registry-reported repository
// URL. The repo name keeps the owner segment, so distinct repositories that
// share a basename never collide on a cache path or revision key.
func locationFromGitURL(raw string) *Location {
	gitURL := NormalizeGitURL(raw)
	return &Location{RepoName: util.ParseRepoSlug(gitURL).FullName(), URL: gitURL}
}

func looksLikeGitHost(u string) bool {
	for _, host := range []string{"github.com", "gitlab.com", "bitbucket.org"} {
		if strings.Contains(u, host) {
			return true
		}
	}
	return false
}

// NormalizeGitURL rewrites the registry's many repository URL spellings into
// a plain https clone URL ending in .git:
//
//	git+https://github.com/x/y.git -> https://github.com/x/y.git
//	git@github.com:x/y.git         -> https://github.com/x/y.git
//	ssh://git@github.com/x/y       -> https://github.com/x/y.git
//	git://github.com/x/y           -> https://github.com/x/y.git
func NormalizeGitURL(raw string) string {
	u := strings.TrimSpace(raw)

	u = strings.TrimPrefix(u, "git+")

	if strings.HasPrefix(u, "git@") {
		rest := strings.TrimPrefix(u, "git@")
		rest = strings.Replace(rest, ":", "/", 1)
		u = "https://" + rest
	}

	if strings.HasPrefix(u, "ssh://git@") {
		u = strings.TrimPrefix(u, "ssh://git@")
		// git+ssh URLs can carry the scp-style host:path separator
		u = strings.Replace(u, ":", "/", 1)
	}
	if !strings.HasPrefix(u, "http") {
		u = strings.TrimPrefix(u, "git://")
	}
	if !strings.HasPrefix(u, "http") {
		u = "https://" + u
	}
	u = strings.Replace(u, "http://", "https://", 1)

	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, "#readme")

	if !strings.HasSuffix(u, ".git") {
		u += ".git"
	}

	return u
}

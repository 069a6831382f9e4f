// Package util provides utility functions for the backend.
//
//revive:disable-next-line:var-naming
package util

import "strings"

// RepoSlug holds the parsed components of a repository location.
type RepoSlug struct {
	Host  string
	Owner string
	Name  string
}

// FullName returns "owner/name", or just the name when no owner is known.
func (s RepoSlug) FullName() string {
	if s.Owner == "" {
		return s.Name
	}
	return s.Owner + "/" + s.Name
}

// RepoNameFromURL extracts the bare repository name from a clone URL.
// Example: https://github.com/pallets/flask.git -> "flask"
func RepoNameFromURL(url string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(url), "/"), ".git")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// ParseRepoSlug parses a https clone URL into host/owner/name components.
// Owner is empty for URLs without a namespace segment.
func ParseRepoSlug(url string) RepoSlug {
	trimmed := strings.TrimSpace(url)
	trimmed = strings.TrimPrefix(trimmed, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")
	trimmed = strings.TrimSuffix(strings.TrimRight(trimmed, "/"), ".git")

	parts := strings.Split(trimmed, "/")
	switch len(parts) {
	case 0:
		return RepoSlug{}
	case 1:
		return RepoSlug{Host: parts[0]}
	case 2:
		return RepoSlug{Host: parts[0], Name: parts[1]}
	default:
		// Deep paths (e.g. GitLab subgroups) keep the last segment as the
		// name and everything between host and name as the owner.
		return RepoSlug{
			Host:  parts[0],
			Owner: strings.Join(parts[1:len(parts)-1], "/"),
			Name:  parts[len(parts)-1],
		}
	}
}

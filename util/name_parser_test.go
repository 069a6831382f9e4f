package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepoNameFromURL(t *testing.T) {
	assert.Equal(t, "flask", RepoNameFromURL("https://github.com/pallets/flask.git"))
	assert.Equal(t, "flask", RepoNameFromURL("https://github.com/pallets/flask/"))
	assert.Equal(t, "mux", RepoNameFromURL("https://github.com/gorilla/mux"))
}

func TestParseRepoSlug(t *testing.T) {
	slug := ParseRepoSlug("https://github.com/pallets/flask.git")
	assert.Equal(t, "github.com", slug.Host)
	assert.Equal(t, "pallets", slug.Owner)
	assert.Equal(t, "flask", slug.Name)
	assert.Equal(t, "pallets/flask", slug.FullName())

	// GitLab subgroups keep the full namespace as the owner.
	slug = ParseRepoSlug("https://gitlab.com/group/subgroup/project")
	assert.Equal(t, "group/subgroup", slug.Owner)
	assert.Equal(t, "project", slug.Name)
}

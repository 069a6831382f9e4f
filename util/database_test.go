package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "pallets-flask", SanitizeKey("pallets/flask"))
	assert.Equal(t, "name-with-spaces", SanitizeKey(" name with spaces "))
	assert.Equal(t, "bracketed", SanitizeKey("[bracket](ed)"))
}

func TestRevisionKeyStableForSameIdentity(t *testing.T) {
	a := RevisionKey("pallets/flask", "2.0.1")
	b := RevisionKey("pallets/flask", "2.0.1")
	assert.Equal(t, a, b)
	assert.Equal(t, "pallets-flask:2.0.1", a)

	assert.NotEqual(t, a, RevisionKey("pallets/flask", "2.1.0"))
	assert.NotEqual(t, a, RevisionKey("pallets/click", "2.0.1"))
}

func TestLangStatKeyIsContentKeyed(t *testing.T) {
	assert.Equal(t, "Go:1024", LangStatKey("Go", 1024))
	assert.Equal(t, LangStatKey("Go", 1024), LangStatKey("Go", 1024))
	assert.NotEqual(t, LangStatKey("Go", 1024), LangStatKey("Go", 2048))
}

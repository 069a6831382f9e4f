// Package util provides utility functions for the backend.
package util

import (
	"strings"

	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"
	gocvss40 "github.com/pandatix/go-cvss/40"
)

// CalculateCVSSScore parses a CVSS v3.x or v4.0 vector string and returns
// its base score. Empty, malformed, or unsupported vectors score 0.
func CalculateCVSSScore(vector string) float64 {
	switch {
	case strings.HasPrefix(vector, "CVSS:3.0"):
		if parsed, err := gocvss30.ParseVector(vector); err == nil {
			return parsed.BaseScore()
		}
	case strings.HasPrefix(vector, "CVSS:3."):
		if parsed, err := gocvss31.ParseVector(vector); err == nil {
			return parsed.BaseScore()
		}
	case strings.HasPrefix(vector, "CVSS:4.0"):
		if parsed, err := gocvss40.ParseVector(vector); err == nil {
			return parsed.Score()
		}
	}
	return 0
}

// AddCVSSScoresToContent scores an advisory's severity vectors and records
// the results under database_specific: every base score, the highest one,
// and its rating band. Advisories with no usable vector get a 0.1 floor so
// score-ordered queries never drop them.
func AddCVSSScoresToContent(content map[string]interface{}) {
	scores := severityBaseScores(content)
	if len(scores) == 0 {
		scores = []float64{0.1}
	}

	highest := scores[0]
	for _, s := range scores[1:] {
		if s > highest {
			highest = s
		}
	}

	dbSpecific, _ := content["database_specific"].(map[string]interface{})
	if dbSpecific == nil {
		dbSpecific = make(map[string]interface{})
	}
	dbSpecific["cvss_base_scores"] = scores
	dbSpecific["cvss_base_score"] = highest
	dbSpecific["severity_rating"] = GetSeverityRating(highest)
	content["database_specific"] = dbSpecific
}

// severityBaseScores walks the advisory's severity entries and returns the
// base score of each CVSS_V3/CVSS_V4 vector that parses.
func severityBaseScores(content map[string]interface{}) []float64 {
	entries, _ := content["severity"].([]interface{})

	var scores []float64
	for _, entry := range entries {
		sev, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		sevType, _ := sev["type"].(string)
		if sevType != "CVSS_V3" && sevType != "CVSS_V4" {
			continue
		}
		vector, _ := sev["score"].(string)
		if score := CalculateCVSSScore(vector); score > 0 {
			scores = append(scores, score)
		}
	}
	return scores
}

// GetSeverityRating maps a CVSS base score onto its qualitative rating band.
func GetSeverityRating(score float64) string {
	switch {
	case score == 0:
		return "NONE"
	case score < 4.0:
		return "LOW"
	case score < 7.0:
		return "MEDIUM"
	case score < 9.0:
		return "HIGH"
	default:
		return "CRITICAL"
	}
}

package utils

import (
	"time"

	"github.com/gosimple/slug"
)

// NormalizeSlug creates a URL-friendly slug using the gosimple/slug library
// This handles all Unicode characters including Turkish, European, and other languages
func NormalizeSlug(text string) string {
	if text == "" {
		return ""
	}

	return slug.Make(text)
}

// GenerateMatchSlug creates a slug for a fixture from team names and the
// kickoff date, e.g. "arsenal-vs-chelsea-2026-08-25".
func GenerateMatchSlug(homeTeam, awayTeam string, kickoffAt time.Time) string {
	if homeTeam == "" {
		homeTeam = "home"
	}
	if awayTeam == "" {
		awayTeam = "away"
	}

	text := homeTeam + " vs " + awayTeam + " " + kickoffAt.UTC().Format("2006-01-02")
	return NormalizeSlug(text)
}

// GenerateTeamSlug creates a slug for a team name
func GenerateTeamSlug(teamName string) string {
	if teamName == "" {
		return "team"
	}
	return NormalizeSlug(teamName)
}

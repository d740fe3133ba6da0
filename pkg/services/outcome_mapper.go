package services

import "github.com/tenmatch/core/pkg/models"

// totalsLineGoals is the threshold implied by the contract's fixed 2.5-goal
// line: a combined score of three or more settles over.
const totalsLineGoals = 3

// MapOutcome derives both contract encodings from a final score. It is pure
// and total; score validation happens before results are stored.
func MapOutcome(homeScore, awayScore int32) (models.WinnerOutcome, models.TotalsOutcome) {
	var winner models.WinnerOutcome
	switch {
	case homeScore > awayScore:
		winner = models.WinnerHome
	case homeScore < awayScore:
		winner = models.WinnerAway
	default:
		winner = models.WinnerDraw
	}

	totals := models.TotalsUnder
	if homeScore+awayScore >= totalsLineGoals {
		totals = models.TotalsOver
	}

	return winner, totals
}

// MapMatchOutcome builds the payload pair for one match. A nil match or a
// missing score yields the not-set pair so callers detect the gap instead of
// submitting a defaulted result.
func MapMatchOutcome(m *models.Match) models.OutcomePair {
	var pair models.OutcomePair
	if m == nil {
		return pair
	}
	pair.MatchID = m.ID
	if m.Status != models.MatchFinished || m.HomeScore == nil || m.AwayScore == nil {
		return pair
	}
	pair.Winner, pair.Totals = MapOutcome(*m.HomeScore, *m.AwayScore)
	return pair
}

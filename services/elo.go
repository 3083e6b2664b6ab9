package services

import (
	"math"

	"github.com/rallyrank/rallyrank-api/models"
)

// The rating engine is a pure computation: given two rosters and a final
// score it returns one delta per player. All persistence happens in the
// match completion transaction, never here.

// EloConfig carries the tuning constants. MarginDamping (2.2) is a carried
// heuristic with no derivation; keep it a knob.
type EloConfig struct {
	KFactorNew         float64
	KFactorMid         float64
	KFactorEstablished float64
	NewGamesThreshold  int
	MidGamesThreshold  int
	MarginDamping      float64
}

func DefaultEloConfig() EloConfig {
	return EloConfig{
		KFactorNew:         40,
		KFactorMid:         32,
		KFactorEstablished: 24,
		NewGamesThreshold:  10,
		MidGamesThreshold:  30,
		MarginDamping:      2.2,
	}
}

// PlayerRating is the per-player input snapshot.
type PlayerRating struct {
	UserID      int
	Rating      float64
	GamesPlayed int
}

// EloDelta is one player's computed rating movement.
type EloDelta struct {
	UserID int
	Before float64
	Change float64
	After  float64
}

// KFactor returns the per-player K: new players move faster.
func (c EloConfig) KFactor(gamesPlayed int) float64 {
	switch {
	case gamesPlayed < c.NewGamesThreshold:
		return c.KFactorNew
	case gamesPlayed < c.MidGamesThreshold:
		return c.KFactorMid
	default:
		return c.KFactorEstablished
	}
}

// ExpectedScore is the classic logistic expectation for teamElo against
// oppElo on the 400-point scale.
func ExpectedScore(teamElo, oppElo float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (oppElo-teamElo)/400.0))
}

// MarginMultiplier rewards decisive wins while damping inflation from
// blowouts against much weaker opposition. Clamped to [0.5, 1.5].
func (c EloConfig) MarginMultiplier(winnerScore, loserScore int, eloDiff float64) float64 {
	pointDiff := winnerScore - loserScore
	if pointDiff < 1 {
		pointDiff = 1
	}
	margin := math.Log10(float64(pointDiff) + 1)
	autocorrect := c.MarginDamping / (math.Abs(eloDiff)*0.001 + c.MarginDamping)
	multiplier := margin*autocorrect + 0.5
	if multiplier < 0.5 {
		multiplier = 0.5
	}
	if multiplier > 1.5 {
		multiplier = 1.5
	}
	return multiplier
}

// CalculateEloChanges computes every player's delta for a finished match.
// Expectation and margin are shared per team from average ratings; the
// K-factor is individual. Deltas are rounded to one decimal and each
// player's After is exactly Before + Change.
func (c EloConfig) CalculateEloChanges(team1, team2 []PlayerRating, score1, score2 int) []EloDelta {
	team1Avg := averageRating(team1)
	team2Avg := averageRating(team2)

	expected1 := ExpectedScore(team1Avg, team2Avg)
	expected2 := 1.0 - expected1

	var actual1, actual2 float64
	var winnerScore, loserScore int
	if score1 > score2 {
		actual1, actual2 = 1, 0
		winnerScore, loserScore = score1, score2
	} else {
		actual1, actual2 = 0, 1
		winnerScore, loserScore = score2, score1
	}

	margin := c.MarginMultiplier(winnerScore, loserScore, team1Avg-team2Avg)

	deltas := make([]EloDelta, 0, len(team1)+len(team2))
	for _, p := range team1 {
		deltas = append(deltas, c.playerDelta(p, margin, actual1, expected1))
	}
	for _, p := range team2 {
		deltas = append(deltas, c.playerDelta(p, margin, actual2, expected2))
	}
	return deltas
}

// ZeroChangeDeltas records baseline-held deltas for matches that do not
// affect ratings (affects_elo=false tournaments).
func ZeroChangeDeltas(players []models.MatchPlayer, ratings map[int]float64) []EloDelta {
	deltas := make([]EloDelta, 0, len(players))
	for _, p := range players {
		r := ratings[p.UserID]
		deltas = append(deltas, EloDelta{UserID: p.UserID, Before: r, Change: 0, After: r})
	}
	return deltas
}

func (c EloConfig) playerDelta(p PlayerRating, margin, actual, expected float64) EloDelta {
	change := roundTenth(c.KFactor(p.GamesPlayed) * margin * (actual - expected))
	return EloDelta{
		UserID: p.UserID,
		Before: p.Rating,
		Change: change,
		After:  p.Rating + change,
	}
}

func averageRating(team []PlayerRating) float64 {
	var sum float64
	for _, p := range team {
		sum += p.Rating
	}
	return sum / float64(len(team))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

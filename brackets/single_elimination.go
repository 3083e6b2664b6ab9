package brackets

import (
	"math"
	"sort"

	"github.com/rallyrank/rallyrank-api/models"
)

// IsPowerOfTwo reports whether n is an exact power of two. Single
// elimination admits no byes in v1, so the eligible count must pass this.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// RoundsFor returns log2(bracketSize); bracketSize must be a power of two.
func RoundsFor(bracketSize int) int {
	return int(math.Round(math.Log2(float64(bracketSize))))
}

// SiblingSlot returns the other slot of the consecutive pair feeding the
// same next-round match: (1,2) -> slot 1, (3,4) -> slot 2, and so on.
func SiblingSlot(slot int) int {
	if slot%2 == 1 {
		return slot + 1
	}
	return slot - 1
}

// NextRoundSlot returns ceil(slot/2), the slot the pair's winners meet in.
func NextRoundSlot(slot int) int {
	return (slot + 1) / 2
}

// SeedParticipants orders eligible participants deterministically:
// checked-in players first, then by registration time, then by user id.
// The returned order is the seed order 1..N.
func SeedParticipants(participants []*models.TournamentParticipant) []*models.TournamentParticipant {
	seeded := make([]*models.TournamentParticipant, len(participants))
	copy(seeded, participants)
	sort.SliceStable(seeded, func(i, j int) bool {
		a, b := seeded[i], seeded[j]
		aChecked := a.Status == models.ParticipantCheckedIn
		bChecked := b.Status == models.ParticipantCheckedIn
		if aChecked != bChecked {
			return aChecked
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.UserID < b.UserID
	})
	return seeded
}

// Pairing is one round-1 match: seed[2i-1] vs seed[2i] at slot i.
type Pairing struct {
	Slot  int
	User1 int
	User2 int
}

// Round1Pairings pairs consecutive seeds into slots 1..N/2. The input must
// already be in seed order and of even length.
func Round1Pairings(seeded []*models.TournamentParticipant) []Pairing {
	pairings := make([]Pairing, 0, len(seeded)/2)
	for i := 0; i+1 < len(seeded); i += 2 {
		pairings = append(pairings, Pairing{
			Slot:  i/2 + 1,
			User1: seeded[i].UserID,
			User2: seeded[i+1].UserID,
		})
	}
	return pairings
}

// PointsConfig holds the placement point awards. The deep-placement slope
// and win bonus are tuning values carried over as-is; treat them as knobs,
// not derived quantities.
type PointsConfig struct {
	First    int
	Second   int
	Third    int
	Base     int
	Slope    int
	Floor    int
	WinBonus int
}

func DefaultPointsConfig() PointsConfig {
	return PointsConfig{
		First:    100,
		Second:   70,
		Third:    50,
		Base:     30,
		Slope:    2,
		Floor:    10,
		WinBonus: 8,
	}
}

// PlacementPoints awards points for a final placement. Placements 4 and
// deeper earn a decaying base plus a per-win bonus.
func (c PointsConfig) PlacementPoints(placement, wins int) int {
	switch placement {
	case 1:
		return c.First
	case 2:
		return c.Second
	case 3:
		return c.Third
	}
	base := c.Base - c.Slope*placement
	if base < c.Floor {
		base = c.Floor
	}
	return base + c.WinBonus*wins
}

// Standing is one eliminated participant's bracket record used to rank
// placements 4 and deeper.
type Standing struct {
	UserID   int
	Wins     int
	Losses   int
	MaxRound int
}

// RankStandings orders eliminated participants by wins desc, furthest
// round reached desc, losses asc, then user id as the stable tiebreak.
func RankStandings(standings []Standing) []Standing {
	ranked := make([]Standing, len(standings))
	copy(ranked, standings)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.MaxRound != b.MaxRound {
			return a.MaxRound > b.MaxRound
		}
		if a.Losses != b.Losses {
			return a.Losses < b.Losses
		}
		return a.UserID < b.UserID
	})
	return ranked
}

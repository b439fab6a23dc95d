package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Rank tiers are thresholds over career wins.
const (
	RankBronze       = "Bronze"
	RankSilver       = "Silver"
	RankGold         = "Gold"
	RankDiamond      = "Diamond"
	RankProfessional = "Professional"
)

type User struct {
	ID             string    `json:"id"`
	Handle         string    `json:"handle"`
	HashedPassword string    `json:"-"` // Not exposed
	Role           string    `json:"role"`
	Wins           int       `json:"wins"`
	Losses         int       `json:"losses"`
	Draws          int       `json:"draws"`
	TotalCombats   int       `json:"total_combats"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Score is the leaderboard ordering key: 3 points per win, 1 per draw.
func (u *User) Score() int {
	return 3*u.Wins + u.Draws
}

func (u *User) Rank() string {
	switch {
	case u.Wins >= 100:
		return RankProfessional
	case u.Wins >= 50:
		return RankDiamond
	case u.Wins >= 25:
		return RankGold
	case u.Wins >= 10:
		return RankSilver
	default:
		return RankBronze
	}
}

// StatDelta is applied to a participant's counters exactly once per combat,
// by the outcome resolver.
type StatDelta struct {
	Wins         int
	Losses       int
	Draws        int
	TotalCombats int
}

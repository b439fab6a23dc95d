package service

import (
	"context"

	"moltbattle/internal/domain/repository"
)

type LeaderboardEntry struct {
	Position     int    `json:"position"`
	Handle       string `json:"handle"`
	Score        int    `json:"score"`
	Rank         string `json:"rank"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	Draws        int    `json:"draws"`
	TotalCombats int    `json:"total_combats"`
}

type LeaderboardService struct {
	userRepo repository.UserRepository
}

func NewLeaderboardService(userRepo repository.UserRepository) *LeaderboardService {
	return &LeaderboardService{userRepo: userRepo}
}

// Top returns the ranked leaderboard. Ordering is done by the repository;
// this layer only decorates rows with position, score and rank tier.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	users, err := s.userRepo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for i := range users {
		u := &users[i]
		entries = append(entries, LeaderboardEntry{
			Position:     i + 1,
			Handle:       u.Handle,
			Score:        u.Score(),
			Rank:         u.Rank(),
			Wins:         u.Wins,
			Losses:       u.Losses,
			Draws:        u.Draws,
			TotalCombats: u.TotalCombats,
		})
	}
	return entries, nil
}

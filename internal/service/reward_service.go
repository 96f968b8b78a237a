package service

import (
	"context"
	"fmt"

	"distribution-service/internal/models"
	"distribution-service/internal/store"
)

// RewardProgress compares what an account received against one target
type RewardProgress struct {
	Target    models.RewardTarget `json:"target"`
	Achieved  int64               `json:"achieved"`
	Remaining int64               `json:"remaining"`
	Met       bool                `json:"met"`
}

// RewardService answers reward progress queries. It only reads.
type RewardService struct {
	repo store.Repository
}

func NewRewardService(repo store.Repository) *RewardService {
	return &RewardService{repo: repo}
}

// Progress returns the account's standing against every active target of
// its role for the year. With month set, only that month's targets and the
// yearly ones are included. Achieved counts units received through approved
// transfers inside each target's own period.
func (s *RewardService) Progress(ctx context.Context, accountID string, year int, month *int) ([]RewardProgress, error) {
	if month != nil && (*month < 1 || *month > 12) {
		return nil, fmt.Errorf("month must be 1..12: %w", models.ErrInvalidInput)
	}

	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	targets, err := s.repo.ListRewardTargets(ctx, account.Role, year)
	if err != nil {
		return nil, err
	}

	out := []RewardProgress{}
	for _, target := range targets {
		if !target.IsActive {
			continue
		}
		if target.SubRole != nil && *target.SubRole != string(account.SubRole) {
			continue
		}
		if month != nil && target.Month != nil && *target.Month != *month {
			continue
		}

		from, to := target.Period()
		achieved, err := s.repo.SumReceived(ctx, account.ID, models.MovementTransfer, from, to)
		if err != nil {
			return nil, err
		}

		remaining := target.MinQuantity - achieved
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, RewardProgress{
			Target:    target,
			Achieved:  achieved,
			Remaining: remaining,
			Met:       achieved >= target.MinQuantity,
		})
	}
	return out, nil
}

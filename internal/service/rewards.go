package service

import (
	"github.com/shopspring/decimal"

	"github.com/iliyamo/cleancity/internal/model"
)

// RewardTier is one entry of the cash reward catalogue.
type RewardTier struct {
	Points int             `json:"points"`
	Value  decimal.Decimal `json:"value"` // USD
	Label  string          `json:"label"`
}

// RewardTiers returns the catalogue, cheapest first.
func RewardTiers() []RewardTier {
	return []RewardTier{
		{Points: 500, Value: decimal.NewFromInt(5), Label: "$5 voucher"},
		{Points: 1000, Value: decimal.NewFromInt(12), Label: "$12 voucher"},
		{Points: 2500, Value: decimal.NewFromInt(35), Label: "$35 voucher"},
	}
}

// TierProgress is a tier together with the user's distance to it.
type TierProgress struct {
	RewardTier
	Eligible     bool `json:"eligible"`
	PointsNeeded int  `json:"points_needed"`
}

// RewardSummary is what a reporter sees on the rewards page.
type RewardSummary struct {
	TotalPoints       int            `json:"total_points"`
	CompletedReports  int            `json:"completed_reports"`
	PointsFromReports int            `json:"points_from_reports"`
	Tiers             []TierProgress `json:"tiers"`
	NextTier          *RewardTier    `json:"next_tier"`
}

// Rewards summarises u's points against the catalogue. reports are the
// user's own reports; only those that carry points count as completed.
func Rewards(u model.User, reports []model.Report) RewardSummary {
	sum := RewardSummary{TotalPoints: u.RewardPoints}
	for _, r := range reports {
		if r.RewardPoints != nil {
			sum.CompletedReports++
			sum.PointsFromReports += *r.RewardPoints
		}
	}
	for _, t := range RewardTiers() {
		p := TierProgress{RewardTier: t, Eligible: u.RewardPoints >= t.Points}
		if !p.Eligible {
			p.PointsNeeded = t.Points - u.RewardPoints
			if sum.NextTier == nil {
				next := t
				sum.NextTier = &next
			}
		}
		sum.Tiers = append(sum.Tiers, p)
	}
	return sum
}

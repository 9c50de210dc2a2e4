package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
)

var oneHundred = decimal.NewFromInt(100)

// Breakdown splits a charged total into platform fee, community fee, and the
// seller remainder. All amounts are integer minor units and always sum
// exactly to Total.
type Breakdown struct {
	TotalCents        int64 `json:"totalCents"`
	PlatformFeeCents  int64 `json:"platformFeeCents"`
	CommunityFeeCents int64 `json:"communityFeeCents"`
	SellerCents       int64 `json:"sellerCents"`
}

// ValidatePercents rejects out-of-range fee percentages. Out-of-range values
// are a caller contract violation, never silently clamped.
func ValidatePercents(platformPct, communityPct decimal.Decimal) error {
	if err := validatePercent("platform", platformPct); err != nil {
		return err
	}
	if err := validatePercent("community", communityPct); err != nil {
		return err
	}
	if platformPct.Add(communityPct).GreaterThan(oneHundred) {
		return pkgerrors.New(pkgerrors.CodeValidation,
			"platform and community percentages exceed 100 combined")
	}
	return nil
}

// Calculate computes the fee breakdown for a charged total. Each fee is
// floored independently; the seller amount absorbs the rounding remainder.
func Calculate(totalCents int64, platformPct, communityPct decimal.Decimal) (Breakdown, error) {
	if totalCents < 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("total must be non-negative, got %d", totalCents))
	}
	if err := ValidatePercents(platformPct, communityPct); err != nil {
		return Breakdown{}, err
	}

	total := decimal.NewFromInt(totalCents)
	platformFee := total.Mul(platformPct).Div(oneHundred).Floor().IntPart()
	communityFee := total.Mul(communityPct).Div(oneHundred).Floor().IntPart()

	return Breakdown{
		TotalCents:        totalCents,
		PlatformFeeCents:  platformFee,
		CommunityFeeCents: communityFee,
		SellerCents:       totalCents - platformFee - communityFee,
	}, nil
}

func validatePercent(name string, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(oneHundred) {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("%s fee percent must be within [0, 100], got %s", name, pct.String()))
	}
	return nil
}

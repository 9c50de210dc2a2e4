package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// Record is the normalized view of one external payment. The collaborator's
// own filters are unreliable, so reconciliation always works against the
// full set and narrows it locally.
type Record struct {
	ChargeRef   string
	PlanRef     string
	BuyerID     uuid.UUID
	AmountCents int64
	Status      enums.ChargeStatus
	PaidAt      *time.Time
	RefundedAt  *time.Time
}

// MatchSettled scans records for a settled payment belonging to the buyer,
// carrying the plan reference, and matching the expected total exactly. The
// amount check is mandatory: the reference alone has proven insufficiently
// selective. The first match wins.
func MatchSettled(records []Record, buyerID uuid.UUID, planRef string, amountCents int64) (Record, bool) {
	if planRef == "" {
		return Record{}, false
	}
	for _, record := range records {
		if record.BuyerID != buyerID || record.PlanRef != planRef {
			continue
		}
		if record.AmountCents != amountCents {
			continue
		}
		if record.RefundedAt != nil || record.Status != enums.ChargeStatusCompleted {
			continue
		}
		return record, true
	}
	return Record{}, false
}

// MatchTerminalFailure scans records for a charge that ended in failure,
// cancelation, or refund for the given buyer and plan reference.
func MatchTerminalFailure(records []Record, buyerID uuid.UUID, planRef string) (Record, bool) {
	if planRef == "" {
		return Record{}, false
	}
	for _, record := range records {
		if record.BuyerID != buyerID || record.PlanRef != planRef {
			continue
		}
		if record.RefundedAt != nil || record.Status.IsTerminalFailure() {
			return record, true
		}
	}
	return Record{}, false
}

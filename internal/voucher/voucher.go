package voucher

import (
	"fmt"
	"time"

	"github.com/credexam/certification-api/internal/types"
)

// Reason codes surfaced to candidates when an attempt is rejected.
type Reason string

const (
	ReasonExpired         Reason = "expired"
	ReasonNoOpportunities Reason = "no_opportunities"
	ReasonAlreadyUsed     Reason = "already_used"
)

// InvalidError is the user-visible rejection of an attempt. Fatal for the
// current attempt only.
type InvalidError struct {
	Reason Reason
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("voucher is not valid for an attempt: %s", e.Reason)
}

// Voucher grants a candidate a bounded number of attempt opportunities
// within a validity window. Vouchers transition, never delete.
type Voucher struct {
	Status            types.VoucherStatus
	Opportunities     int
	OpportunitiesUsed int
	ExpirationDate    time.Time
}

// Validate checks whether an attempt may start right now. Checks run in
// order: expiry wins over remaining opportunities, so an expired voucher is
// invalid even with opportunities left. Expiry observed here also transitions
// the status; callers persist the mutation.
func (v *Voucher) Validate(now time.Time) error {
	if v.Status == types.VoucherStatusExpired || now.After(v.ExpirationDate) {
		v.Status = types.VoucherStatusExpired
		return &InvalidError{Reason: ReasonExpired}
	}

	if v.OpportunitiesUsed >= v.Opportunities {
		v.Status = types.VoucherStatusUsed
		return &InvalidError{Reason: ReasonNoOpportunities}
	}

	// Marked used out of band, e.g. administratively revoked, with
	// opportunities still on the books
	if v.Status == types.VoucherStatusUsed {
		return &InvalidError{Reason: ReasonAlreadyUsed}
	}

	return nil
}

// Consume spends one opportunity after a successful Validate. Exhausting the
// final opportunity transitions the voucher to used; otherwise the voucher
// sits in_process until the attempt it funded concludes. Validate-then-Consume
// must run under the owning row's lock; this type carries no locking itself.
func (v *Voucher) Consume(now time.Time) error {
	if err := v.Validate(now); err != nil {
		return err
	}

	v.OpportunitiesUsed++
	if v.OpportunitiesUsed >= v.Opportunities {
		v.Status = types.VoucherStatusUsed
	} else {
		v.Status = types.VoucherStatusInProcess
	}

	return nil
}

// Release returns an in_process voucher to active once no attempt it funded
// remains open. Terminal states stay put.
func (v *Voucher) Release() {
	if v.Status == types.VoucherStatusInProcess {
		v.Status = types.VoucherStatusActive
	}
}

// Remaining opportunities at this moment, never negative.
func (v *Voucher) Remaining() int {
	remaining := v.Opportunities - v.OpportunitiesUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

package model

import "time"

// CreditBalance is the spendable allowance for one user. Credits never go
// negative; concurrent debits are serialized by the store.
type CreditBalance struct {
	UserID    string             `json:"userId"`
	Credits   int                `json:"credits"`
	Tier      SubscriptionTier   `json:"tier"`
	Status    SubscriptionStatus `json:"status"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Metered reports whether consumption deducts from the balance. Unlimited
// subscribers bypass metering while their subscription is active.
func (b *CreditBalance) Metered() bool {
	return !(b.Tier == TierUnlimited && b.Status == SubscriptionActive)
}

// Reservation is a provisional credit deduction pending commit or refund.
// The record is persisted so commit/refund stay exactly-once even when the
// settling side runs in a different process than the one that authorized.
type Reservation struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Amount    int              `json:"amount"`
	Bypass    bool             `json:"bypass"`
	State     ReservationState `json:"state"`
	CreatedAt time.Time        `json:"createdAt"`
}

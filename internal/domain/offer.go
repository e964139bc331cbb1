package domain

import "time"

// OfferStatus tracks a lender's offer on an approved application.
type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "pending"
	OfferStatusAccepted OfferStatus = "accepted"
	OfferStatusExpired  OfferStatus = "expired"
	OfferStatusRejected OfferStatus = "rejected"
)

// LoanOffer is a lender's funding proposal against an approved application.
type LoanOffer struct {
	ID            string
	ApplicationID string
	LenderID      string
	Amount        float64
	InterestRate  float64
	Terms         string
	Status        OfferStatus
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Expired reports whether the offer's expiry has passed at the given time.
func (o LoanOffer) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

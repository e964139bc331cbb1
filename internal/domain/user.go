package domain

// User is the borrower/lender profile the risk engine reads.
type User struct {
	ID                 string
	Role               string
	CreditScore        float64
	TotalBorrowed      float64
	TotalLent          float64
	DefaultCount       int
	AvgPaymentTimeDays float64
	IncomeStability    float64
	Age                int
}

// History converts the profile fields into the shape the scorer consumes.
func (u User) History() BorrowerHistory {
	return BorrowerHistory{
		TotalBorrowed:      u.TotalBorrowed,
		TotalLent:          u.TotalLent,
		DefaultCount:       u.DefaultCount,
		AvgPaymentTimeDays: u.AvgPaymentTimeDays,
	}
}

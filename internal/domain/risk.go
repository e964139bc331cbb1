package domain

// RiskLevel buckets a composite risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// BorrowerHistory summarizes a borrower's prior platform activity.
type BorrowerHistory struct {
	TotalBorrowed      float64
	TotalLent          float64
	DefaultCount       int
	AvgPaymentTimeDays float64
}

// MarketConditions is the market snapshot fed into an assessment.
type MarketConditions struct {
	AssetPrice  float64
	Volatility  float64 // [0,1]
	LendingRate float64
}

// RiskFactors is the full input to a risk assessment.
type RiskFactors struct {
	CreditScore     float64
	LoanAmount      float64
	InterestRate    float64
	DurationDays    int
	CollateralRatio float64
	History         BorrowerHistory
	Market          MarketConditions
	LoanPurpose     string
	BorrowerAge     int
	IncomeStability float64 // [0,1]
}

// RiskBreakdown holds the four sub-scores that make up the composite.
type RiskBreakdown struct {
	CreditRisk      float64
	MarketRisk      float64
	LiquidityRisk   float64
	OperationalRisk float64
}

// RiskAssessment is the immutable result of one scoring pass.
type RiskAssessment struct {
	RiskScore               float64 // 0-100 composite, higher is riskier
	RiskLevel               RiskLevel
	Approved                bool
	MaxAmount               float64
	RecommendedInterestRate float64
	RequiredCollateralRatio float64
	Confidence              float64
	Breakdown               RiskBreakdown
	Recommendations         []string
}

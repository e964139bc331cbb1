// Package risk implements the deterministic risk-scoring engine that turns
// borrower, loan, and market attributes into an approval decision, pricing,
// and a collateral requirement. Scoring is pure and performs no I/O, so a
// single Scorer is safe for concurrent use.
package risk

import (
	"math"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

// Composite weights for the four sub-scores.
const (
	weightCredit      = 0.35
	weightMarket      = 0.25
	weightLiquidity   = 0.25
	weightOperational = 0.15
)

// Approval gates. Every condition is required; a single failure rejects the
// application regardless of the composite score.
const (
	maxApprovableScore    = 70.0
	minCreditScore        = 300.0
	maxDefaultCount       = 2
	minCollateralRatio    = 1.1
	absoluteMaxLoanAmount = 2_000_000.0
	maxRecommendedRate    = 0.50
	maxRequiredCollateral = 5.0
	baselineAssetPrice    = 100.0
)

// deniedPurposes are loan purposes that carry a flat operational penalty.
var deniedPurposes = map[string]bool{
	"speculation":    true,
	"gambling":       true,
	"crypto_trading": true,
}

// Scorer computes risk assessments. The zero value is ready to use.
type Scorer struct{}

// NewScorer returns a Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Assess produces the full risk assessment for the given factors. All
// numeric inputs may be zero or negative; every denominator is floored so
// no input combination can divide by zero.
func (s *Scorer) Assess(f domain.RiskFactors) domain.RiskAssessment {
	breakdown := domain.RiskBreakdown{
		CreditRisk:      s.creditRisk(f),
		MarketRisk:      s.marketRisk(f),
		LiquidityRisk:   s.liquidityRisk(f),
		OperationalRisk: s.operationalRisk(f),
	}

	score := weightCredit*breakdown.CreditRisk +
		weightMarket*breakdown.MarketRisk +
		weightLiquidity*breakdown.LiquidityRisk +
		weightOperational*breakdown.OperationalRisk

	approved := score <= maxApprovableScore &&
		f.CreditScore >= minCreditScore &&
		f.History.DefaultCount <= maxDefaultCount &&
		f.CollateralRatio >= minCollateralRatio

	return domain.RiskAssessment{
		RiskScore:               score,
		RiskLevel:               LevelForScore(score),
		Approved:                approved,
		MaxAmount:               s.maxAmount(f, score),
		RecommendedInterestRate: math.Min(f.Market.LendingRate+(score/100)*0.10, maxRecommendedRate),
		RequiredCollateralRatio: math.Min(1.5+(score/100)*1.0, maxRequiredCollateral),
		Confidence:              s.confidence(f),
		Breakdown:               breakdown,
		Recommendations:         s.recommendations(f, score),
	}
}

// LevelForScore maps a composite score onto a risk level.
func LevelForScore(score float64) domain.RiskLevel {
	switch {
	case score < 25:
		return domain.RiskLevelLow
	case score < 50:
		return domain.RiskLevelMedium
	case score < 75:
		return domain.RiskLevelHigh
	default:
		return domain.RiskLevelCritical
	}
}

// creditRisk penalizes weak credit scores, prior defaults, slow payment
// history, and unstable income.
func (s *Scorer) creditRisk(f domain.RiskFactors) float64 {
	var score float64

	switch {
	case f.CreditScore < 300:
		score += 40
	case f.CreditScore < 500:
		score += 30
	case f.CreditScore < 650:
		score += 20
	case f.CreditScore < 750:
		score += 10
	case f.CreditScore < 850:
		score += 5
	}

	switch {
	case f.History.DefaultCount > 3:
		score += 30
	case f.History.DefaultCount > 1:
		score += 20
	case f.History.DefaultCount == 1:
		score += 10
	}

	switch {
	case f.History.AvgPaymentTimeDays > 30:
		score += 15
	case f.History.AvgPaymentTimeDays > 15:
		score += 10
	case f.History.AvgPaymentTimeDays > 7:
		score += 5
	}

	switch {
	case f.IncomeStability < 0.5:
		score += 20
	case f.IncomeStability < 0.7:
		score += 10
	case f.IncomeStability < 0.9:
		score += 5
	}

	return clamp(score)
}

// marketRisk penalizes volatile markets, prices far from the reference
// baseline, and rates that diverge from the prevailing lending rate.
func (s *Scorer) marketRisk(f domain.RiskFactors) float64 {
	var score float64

	switch {
	case f.Market.Volatility > 0.8:
		score += 30
	case f.Market.Volatility > 0.6:
		score += 20
	case f.Market.Volatility > 0.4:
		score += 10
	}

	deviation := math.Abs(f.Market.AssetPrice-baselineAssetPrice) / baselineAssetPrice
	switch {
	case deviation > 0.5:
		score += 20
	case deviation > 0.3:
		score += 10
	case deviation > 0.1:
		score += 5
	}

	spread := f.InterestRate - f.Market.LendingRate
	switch {
	case spread > 0.05:
		score += 15
	case spread > 0.02:
		score += 10
	case spread < -0.02:
		score += 5
	}

	return clamp(score)
}

// liquidityRisk penalizes loans large relative to the borrower's history,
// thin collateral, and long durations.
func (s *Scorer) liquidityRisk(f domain.RiskFactors) float64 {
	var score float64

	amountRatio := f.LoanAmount / math.Max(f.History.TotalBorrowed, 1)
	switch {
	case amountRatio > 2:
		score += 25
	case amountRatio > 1.5:
		score += 15
	case amountRatio > 1:
		score += 10
	}

	switch {
	case f.CollateralRatio < 1.2:
		score += 30
	case f.CollateralRatio < 1.5:
		score += 20
	case f.CollateralRatio < 2:
		score += 10
	case f.CollateralRatio < 2.5:
		score += 5
	}

	switch {
	case f.DurationDays > 365:
		score += 20
	case f.DurationDays > 180:
		score += 10
	case f.DurationDays > 90:
		score += 5
	}

	return clamp(score)
}

// operationalRisk penalizes borrower age outside the preferred ranges,
// denylisted purposes, and very large amounts. When the age falls outside
// both ranges only the tighter band's penalty applies.
func (s *Scorer) operationalRisk(f domain.RiskFactors) float64 {
	var score float64

	if f.BorrowerAge < 21 || f.BorrowerAge > 60 {
		score += 10
	} else if f.BorrowerAge < 25 || f.BorrowerAge > 55 {
		score += 5
	}

	if deniedPurposes[f.LoanPurpose] {
		score += 20
	}

	switch {
	case f.LoanAmount > 1_000_000:
		score += 15
	case f.LoanAmount > 500_000:
		score += 10
	case f.LoanAmount > 100_000:
		score += 5
	}

	return clamp(score)
}

// maxAmount caps the approvable amount by the risk multiplier, twice the
// borrower's history, the collateral coverage, and the platform ceiling.
func (s *Scorer) maxAmount(f domain.RiskFactors, score float64) float64 {
	riskMultiplier := math.Max(0.1, 1-score/100)

	byRisk := f.LoanAmount * riskMultiplier
	byHistory := f.History.TotalBorrowed * 2
	byCollateral := f.LoanAmount
	if f.CollateralRatio > 0 {
		byCollateral = (f.LoanAmount * f.CollateralRatio) / 1.5
	}

	return math.Min(math.Min(byRisk, byHistory), math.Min(byCollateral, absoluteMaxLoanAmount))
}

// confidence grows with the amount of signal available about the borrower.
func (s *Scorer) confidence(f domain.RiskFactors) float64 {
	confidence := 0.5
	if f.History.TotalBorrowed > 0 {
		confidence += 0.2
	}
	if f.CreditScore > 0 {
		confidence += 0.1
	}
	if f.IncomeStability > 0 {
		confidence += 0.1
	}
	if f.BorrowerAge > 0 {
		confidence += 0.1
	}
	return math.Min(confidence, 1.0)
}

// recommendations emits ordered textual hints, one per threshold breach.
// The order matches the evaluation order of the sub-scores and no hint is
// ever emitted twice.
func (s *Scorer) recommendations(f domain.RiskFactors, score float64) []string {
	var recs []string

	if f.CreditScore < 650 {
		recs = append(recs, "improve credit score before requesting larger amounts")
	}
	if f.CollateralRatio < 1.5 {
		recs = append(recs, "increase collateral ratio to at least 1.5 for better terms")
	}
	if f.History.DefaultCount > 0 {
		recs = append(recs, "prior defaults on record; expect stricter collateral requirements")
	}
	if f.DurationDays > 365 {
		recs = append(recs, "shorten loan duration to reduce duration risk")
	}
	if f.LoanAmount > 500_000 {
		recs = append(recs, "consider splitting the request into smaller loans")
	}
	if score > 50 {
		recs = append(recs, "overall risk is elevated; a co-signer or more collateral would help")
	}

	return recs
}

// clamp bounds a sub-score to [0,100].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

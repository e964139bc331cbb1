package risk

import (
	"math"
	"testing"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

func strongFactors() domain.RiskFactors {
	return domain.RiskFactors{
		CreditScore:     800,
		LoanAmount:      10_000,
		InterestRate:    0.08,
		DurationDays:    180,
		CollateralRatio: 2.0,
		History: domain.BorrowerHistory{
			TotalBorrowed:      50_000,
			DefaultCount:       0,
			AvgPaymentTimeDays: 5,
		},
		Market: domain.MarketConditions{
			AssetPrice:  100,
			Volatility:  0.2,
			LendingRate: 0.06,
		},
		LoanPurpose:     "home_improvement",
		BorrowerAge:     35,
		IncomeStability: 0.9,
	}
}

func TestAssessStrongBorrowerApproved(t *testing.T) {
	a := NewScorer().Assess(strongFactors())

	if !a.Approved {
		t.Fatalf("expected approval, got rejection with score %.2f", a.RiskScore)
	}
	if a.RiskScore >= 50 {
		t.Fatalf("expected score below 50, got %.2f", a.RiskScore)
	}
	if a.RiskLevel != domain.RiskLevelLow && a.RiskLevel != domain.RiskLevelMedium {
		t.Fatalf("expected LOW or MEDIUM risk level, got %s", a.RiskLevel)
	}
	if a.MaxAmount <= 0 {
		t.Fatalf("expected positive max amount, got %.2f", a.MaxAmount)
	}
}

func TestAssessScoreBounds(t *testing.T) {
	worst := domain.RiskFactors{
		CreditScore:     100,
		LoanAmount:      1_500_000,
		InterestRate:    0.30,
		DurationDays:    720,
		CollateralRatio: 1.0,
		History: domain.BorrowerHistory{
			DefaultCount:       5,
			AvgPaymentTimeDays: 45,
		},
		Market: domain.MarketConditions{
			AssetPrice:  40,
			Volatility:  0.95,
			LendingRate: 0.06,
		},
		LoanPurpose: "gambling",
		BorrowerAge: 19,
	}

	for _, f := range []domain.RiskFactors{strongFactors(), worst, {}} {
		a := NewScorer().Assess(f)
		if a.RiskScore < 0 || a.RiskScore > 100 {
			t.Fatalf("score out of range: %.2f", a.RiskScore)
		}
		for name, sub := range map[string]float64{
			"credit":      a.Breakdown.CreditRisk,
			"market":      a.Breakdown.MarketRisk,
			"liquidity":   a.Breakdown.LiquidityRisk,
			"operational": a.Breakdown.OperationalRisk,
		} {
			if sub < 0 || sub > 100 {
				t.Fatalf("%s sub-score out of range: %.2f", name, sub)
			}
		}
	}
}

func TestAssessRejectionGates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.RiskFactors)
	}{
		{"low credit score", func(f *domain.RiskFactors) { f.CreditScore = 250 }},
		{"too many defaults", func(f *domain.RiskFactors) { f.History.DefaultCount = 3 }},
		{"thin collateral", func(f *domain.RiskFactors) { f.CollateralRatio = 1.0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := strongFactors()
			tc.mutate(&f)
			if a := NewScorer().Assess(f); a.Approved {
				t.Fatalf("expected rejection, got approval with score %.2f", a.RiskScore)
			}
		})
	}
}

func TestMaxAmountNeverExceedsCeiling(t *testing.T) {
	f := strongFactors()
	f.LoanAmount = 10_000_000
	f.History.TotalBorrowed = 100_000_000
	f.CollateralRatio = 3.0

	if a := NewScorer().Assess(f); a.MaxAmount > 2_000_000 {
		t.Fatalf("max amount exceeds platform ceiling: %.2f", a.MaxAmount)
	}
}

func TestMaxAmountZeroCollateralFallsBackToLoanAmount(t *testing.T) {
	f := strongFactors()
	f.CollateralRatio = 0
	f.History.TotalBorrowed = 1_000_000

	a := NewScorer().Assess(f)
	// With no collateral coverage cap, the binding limit is the risk
	// multiplier applied to the requested amount.
	want := f.LoanAmount * math.Max(0.1, 1-a.RiskScore/100)
	if math.Abs(a.MaxAmount-want) > 1e-9 {
		t.Fatalf("max amount = %.4f, want %.4f", a.MaxAmount, want)
	}
}

func TestRecommendedRateCapped(t *testing.T) {
	f := strongFactors()
	f.Market.LendingRate = 0.60

	if a := NewScorer().Assess(f); a.RecommendedInterestRate > 0.50 {
		t.Fatalf("recommended rate above cap: %.4f", a.RecommendedInterestRate)
	}
}

func TestRequiredCollateralRatioRange(t *testing.T) {
	for _, f := range []domain.RiskFactors{strongFactors(), {}} {
		a := NewScorer().Assess(f)
		if a.RequiredCollateralRatio < 1.5 || a.RequiredCollateralRatio > 5.0 {
			t.Fatalf("required collateral ratio out of range: %.2f", a.RequiredCollateralRatio)
		}
	}
}

func TestZeroHistoryDoesNotDivideByZero(t *testing.T) {
	f := strongFactors()
	f.History.TotalBorrowed = 0

	a := NewScorer().Assess(f)
	if math.IsNaN(a.RiskScore) || math.IsInf(a.RiskScore, 0) {
		t.Fatalf("score not finite: %v", a.RiskScore)
	}
	// A first-time borrower has an amount ratio of loanAmount/1, which
	// trips the largest liquidity penalty.
	if a.Breakdown.LiquidityRisk < 25 {
		t.Fatalf("expected first-time borrower liquidity penalty, got %.2f", a.Breakdown.LiquidityRisk)
	}
}

func TestAgeBandPenaltiesDoNotStack(t *testing.T) {
	base := strongFactors()

	outer := base
	outer.BorrowerAge = 19
	inner := base
	inner.BorrowerAge = 23
	mid := base
	mid.BorrowerAge = 35

	s := NewScorer()
	outerOp := s.Assess(outer).Breakdown.OperationalRisk
	innerOp := s.Assess(inner).Breakdown.OperationalRisk
	midOp := s.Assess(mid).Breakdown.OperationalRisk

	if got := outerOp - midOp; got != 10 {
		t.Fatalf("outside both bands: penalty = %.2f, want 10", got)
	}
	if got := innerOp - midOp; got != 5 {
		t.Fatalf("outside inner band only: penalty = %.2f, want 5", got)
	}
}

func TestDeniedPurposePenalty(t *testing.T) {
	s := NewScorer()
	base := strongFactors()
	denied := base
	denied.LoanPurpose = "speculation"

	diff := s.Assess(denied).Breakdown.OperationalRisk - s.Assess(base).Breakdown.OperationalRisk
	if diff != 20 {
		t.Fatalf("denied purpose penalty = %.2f, want 20", diff)
	}
}

func TestRecommendationsOrderedAndUnique(t *testing.T) {
	f := domain.RiskFactors{
		CreditScore:     400,
		LoanAmount:      600_000,
		InterestRate:    0.25,
		DurationDays:    400,
		CollateralRatio: 1.1,
		History: domain.BorrowerHistory{
			DefaultCount:       2,
			AvgPaymentTimeDays: 40,
		},
		Market: domain.MarketConditions{
			AssetPrice:  50,
			Volatility:  0.9,
			LendingRate: 0.06,
		},
		LoanPurpose:     "gambling",
		BorrowerAge:     70,
		IncomeStability: 0.3,
	}

	recs := NewScorer().Assess(f).Recommendations
	if len(recs) == 0 {
		t.Fatal("expected recommendations for a high-risk application")
	}

	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		if seen[r] {
			t.Fatalf("duplicate recommendation: %q", r)
		}
		seen[r] = true
	}

	// Credit comes before collateral, which comes before everything else.
	if recs[0] != "improve credit score before requesting larger amounts" {
		t.Fatalf("unexpected first recommendation: %q", recs[0])
	}
	if recs[1] != "increase collateral ratio to at least 1.5 for better terms" {
		t.Fatalf("unexpected second recommendation: %q", recs[1])
	}
}

func TestLevelForScoreBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.RiskLevel
	}{
		{0, domain.RiskLevelLow},
		{24.99, domain.RiskLevelLow},
		{25, domain.RiskLevelMedium},
		{49.99, domain.RiskLevelMedium},
		{50, domain.RiskLevelHigh},
		{74.99, domain.RiskLevelHigh},
		{75, domain.RiskLevelCritical},
		{100, domain.RiskLevelCritical},
	}
	for _, tc := range tests {
		if got := LevelForScore(tc.score); got != tc.want {
			t.Fatalf("LevelForScore(%.2f) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestConfidenceGrowsWithSignal(t *testing.T) {
	s := NewScorer()

	if c := s.Assess(domain.RiskFactors{}).Confidence; c != 0.5 {
		t.Fatalf("no-signal confidence = %.2f, want 0.5", c)
	}
	if c := s.Assess(strongFactors()).Confidence; math.Abs(c-1.0) > 1e-9 {
		t.Fatalf("full-signal confidence = %.4f, want 1.0", c)
	}
}

package underwriting

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/durinhq/durin/internal/idgen"
	"github.com/durinhq/durin/internal/liveness"
)

// thresholds are the per-jurisdiction policy cutoffs.
type thresholds struct {
	minBufferDays    float64
	maxPaymentBurden float64
	minOnTimeRatio   float64
	maxNSFCount      int
	maxIncomeCV      float64
	starterMaxPD     float64
	primeMaxPD       float64
}

var jurisdictionThresholds = map[string]thresholds{
	"US": {
		minBufferDays:    15,
		maxPaymentBurden: 0.40,
		minOnTimeRatio:   0.85,
		maxNSFCount:      2,
		maxIncomeCV:      0.5,
		starterMaxPD:     0.12,
		primeMaxPD:       0.06,
	},
	"UK": {
		minBufferDays:    20,
		maxPaymentBurden: 0.35,
		minOnTimeRatio:   0.90,
		maxNSFCount:      1,
		maxIncomeCV:      0.4,
		starterMaxPD:     0.10,
		primeMaxPD:       0.05,
	},
}

// limitTier maps a PD band to a credit limit.
type limitTier struct {
	minPD, maxPD float64
	limit        float64
}

var limitTiers = []limitTier{
	{0.00, 0.03, 3000}, // prime
	{0.03, 0.06, 2000}, // near-prime
	{0.06, 0.09, 1200}, // starter
	{0.09, 0.12, 800},  // high-risk starter
}

// lossGivenDefault for unsecured credit.
const lossGivenDefault = 0.45

const (
	baseAPR = 12.0
	maxAPR  = 35.99
)

// Score produces an underwriting decision. The PD model is monotone: better
// cashflow never raises the probability of default. A failed liveness check
// declines before any scoring.
func Score(userID string, applicant *Applicant, metrics *CashflowMetrics, check *liveness.CheckResult, jurisdiction string) *Decision {
	th, ok := jurisdictionThresholds[jurisdiction]
	if !ok {
		jurisdiction = "US"
		th = jurisdictionThresholds["US"]
	}

	if !check.Pass {
		return declineFraudGate(userID, jurisdiction, check)
	}

	pd, impacts := calculatePD(metrics, applicant)

	approved := pd <= th.starterMaxPD
	var creditLimit float64
	var apr *float64
	if approved {
		creditLimit = determineCreditLimit(pd)
		a := determineAPR(pd)
		apr = &a
	}

	return &Decision{
		ID:              idgen.WithPrefix("dec_"),
		UserID:          userID,
		Jurisdiction:    jurisdiction,
		FraudGatePassed: true,
		Cashflow:        metrics,
		PD12M:           round4(pd),
		LGD:             lossGivenDefault,
		ExpectedLoss:    round2(pd * lossGivenDefault * creditLimit),
		Approved:        approved,
		CreditLimit:     creditLimit,
		APR:             apr,
		Reasons:         generateReasons(metrics, impacts, th),
		Counterfactuals: generateCounterfactuals(metrics, impacts),
		CreatedAt:       time.Now().UTC(),
	}
}

// featureImpacts records each feature's signed PD contribution.
type featureImpacts map[string]float64

// calculatePD applies stepwise monotone adjustments to a baseline PD and
// clamps the result to [0.01, 0.30].
func calculatePD(m *CashflowMetrics, a *Applicant) (float64, featureImpacts) {
	pd := 0.08
	impacts := featureImpacts{}

	step := func(name string, delta float64) {
		pd += delta
		impacts[name] = delta
	}

	switch {
	case m.BufferDays >= 30:
		step("buffer_days", -0.025)
	case m.BufferDays >= 20:
		step("buffer_days", -0.015)
	case m.BufferDays >= 15:
		step("buffer_days", -0.005)
	case m.BufferDays >= 10:
		step("buffer_days", 0.010)
	default:
		step("buffer_days", 0.025)
	}

	switch {
	case m.PaymentBurden <= 0.25:
		step("payment_burden", -0.020)
	case m.PaymentBurden <= 0.35:
		step("payment_burden", -0.010)
	case m.PaymentBurden <= 0.45:
		step("payment_burden", 0.015)
	default:
		step("payment_burden", 0.030)
	}

	switch {
	case m.OnTimeRatio >= 0.95:
		step("on_time_ratio", -0.015)
	case m.OnTimeRatio >= 0.85:
		step("on_time_ratio", -0.005)
	case m.OnTimeRatio >= 0.75:
		step("on_time_ratio", 0.010)
	default:
		step("on_time_ratio", 0.025)
	}

	switch {
	case m.NSFCount90d == 0:
		step("nsf_count", -0.010)
	case m.NSFCount90d == 1:
		step("nsf_count", 0.015)
	default:
		step("nsf_count", 0.030)
	}

	switch {
	case m.IncomeCV <= 0.2:
		step("income_cv", -0.010)
	case m.IncomeCV <= 0.4:
		step("income_cv", 0.000)
	case m.IncomeCV <= 0.6:
		step("income_cv", 0.015)
	default:
		step("income_cv", 0.025)
	}

	switch {
	case m.NetIncomeMedian >= 4000:
		step("income_level", -0.010)
	case m.NetIncomeMedian >= 2500:
		step("income_level", -0.005)
	case m.NetIncomeMedian >= 1500:
		step("income_level", 0.000)
	default:
		step("income_level", 0.015)
	}

	switch {
	case a.TenureMonths >= 24:
		step("tenure", -0.010)
	case a.TenureMonths >= 12:
		step("tenure", -0.005)
	case a.TenureMonths >= 6:
		step("tenure", 0.005)
	default:
		step("tenure", 0.015)
	}

	return math.Max(0.01, math.Min(0.30, pd)), impacts
}

// generateReasons returns the top 5 risk reasons sorted by absolute impact.
func generateReasons(m *CashflowMetrics, impacts featureImpacts, th thresholds) []RiskReason {
	var reasons []RiskReason

	if m.BufferDays < th.minBufferDays {
		severity := "medium"
		if m.BufferDays < 10 {
			severity = "high"
		}
		reasons = append(reasons, RiskReason{
			Code:        "INSUFFICIENT_BUFFER_DAYS",
			Description: fmt.Sprintf("Cash buffer of %.1f days is below recommended %.0f days", m.BufferDays, th.minBufferDays),
			Impact:      impacts["buffer_days"],
			Severity:    severity,
		})
	} else if m.BufferDays >= 30 {
		reasons = append(reasons, RiskReason{
			Code:        "STRONG_CASH_BUFFER",
			Description: fmt.Sprintf("Healthy cash buffer of %.1f days", m.BufferDays),
			Impact:      impacts["buffer_days"],
			Severity:    "low",
		})
	}

	if m.PaymentBurden > th.maxPaymentBurden {
		reasons = append(reasons, RiskReason{
			Code:        "HIGH_PAYMENT_BURDEN",
			Description: fmt.Sprintf("Recurring payments at %.1f%% of income exceeds %.0f%% threshold", m.PaymentBurden*100, th.maxPaymentBurden*100),
			Impact:      impacts["payment_burden"],
			Severity:    "high",
		})
	} else if m.PaymentBurden <= 0.25 {
		reasons = append(reasons, RiskReason{
			Code:        "LOW_PAYMENT_BURDEN",
			Description: fmt.Sprintf("Manageable payment burden at %.1f%% of income", m.PaymentBurden*100),
			Impact:      impacts["payment_burden"],
			Severity:    "low",
		})
	}

	if m.OnTimeRatio < th.minOnTimeRatio {
		severity := "medium"
		if m.OnTimeRatio < 0.75 {
			severity = "high"
		}
		reasons = append(reasons, RiskReason{
			Code:        "LATE_PAYMENT_HISTORY",
			Description: fmt.Sprintf("On-time payment ratio of %.1f%% below %.0f%% standard", m.OnTimeRatio*100, th.minOnTimeRatio*100),
			Impact:      impacts["on_time_ratio"],
			Severity:    severity,
		})
	}

	if m.NSFCount90d > th.maxNSFCount {
		reasons = append(reasons, RiskReason{
			Code:        "NSF_EVENTS_DETECTED",
			Description: fmt.Sprintf("%d NSF/overdraft events in last 90 days", m.NSFCount90d),
			Impact:      impacts["nsf_count"],
			Severity:    "high",
		})
	}

	if m.IncomeCV > th.maxIncomeCV {
		reasons = append(reasons, RiskReason{
			Code:        "IRREGULAR_INCOME",
			Description: fmt.Sprintf("Income variability (CV=%.2f) above %.2f threshold", m.IncomeCV, th.maxIncomeCV),
			Impact:      impacts["income_cv"],
			Severity:    "medium",
		})
	} else if m.IncomeCV <= 0.2 {
		reasons = append(reasons, RiskReason{
			Code:        "STABLE_INCOME",
			Description: "Consistent and stable income pattern detected",
			Impact:      impacts["income_cv"],
			Severity:    "low",
		})
	}

	sort.SliceStable(reasons, func(i, j int) bool {
		return math.Abs(reasons[i].Impact) > math.Abs(reasons[j].Impact)
	})
	if len(reasons) > 5 {
		reasons = reasons[:5]
	}
	return reasons
}

// generateCounterfactuals returns up to 3 improvement suggestions.
func generateCounterfactuals(m *CashflowMetrics, impacts featureImpacts) []Counterfactual {
	var out []Counterfactual

	if m.BufferDays < 20 && impacts["buffer_days"] > 0 {
		out = append(out, Counterfactual{
			Action:       "Increase cash buffer to 20 days",
			CurrentValue: m.BufferDays,
			TargetValue:  20.0,
			PDDelta:      -0.015,
			Feasibility:  "moderate",
		})
	}

	if m.PaymentBurden > 0.35 && impacts["payment_burden"] > 0 {
		out = append(out, Counterfactual{
			Action:       "Reduce payment burden to 30% of income",
			CurrentValue: m.PaymentBurden,
			TargetValue:  0.30,
			PDDelta:      (0.30 - m.PaymentBurden) * 0.05,
			Feasibility:  "hard",
		})
	}

	if m.OnTimeRatio < 0.90 {
		out = append(out, Counterfactual{
			Action:       "Achieve 100% on-time payment rate for 3 months",
			CurrentValue: m.OnTimeRatio,
			TargetValue:  1.0,
			PDDelta:      -0.020,
			Feasibility:  "easy",
		})
	}

	if m.NSFCount90d > 0 {
		out = append(out, Counterfactual{
			Action:       "Eliminate NSF/overdraft events",
			CurrentValue: float64(m.NSFCount90d),
			TargetValue:  0.0,
			PDDelta:      -0.015 * float64(m.NSFCount90d),
			Feasibility:  "moderate",
		})
	}

	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

func determineCreditLimit(pd float64) float64 {
	for _, tier := range limitTiers {
		if pd >= tier.minPD && pd < tier.maxPD {
			return tier.limit
		}
	}
	return 0
}

func determineAPR(pd float64) float64 {
	return math.Min(baseAPR+pd*100, maxAPR)
}

func declineFraudGate(userID, jurisdiction string, check *liveness.CheckResult) *Decision {
	var reasons []RiskReason
	reasons = append(reasons, RiskReason{
		Code:        "LIVENESS_CHECK_FAILED",
		Description: "Identity verification did not meet security standards",
		Impact:      1.0,
		Severity:    "high",
	})
	if check.ReplayDetected {
		reasons = append(reasons, RiskReason{
			Code:        "REPLAY_DETECTED",
			Description: "Potential screen replay or spoofing detected",
			Impact:      1.0,
			Severity:    "high",
		})
	}
	if !check.SanctionsPass {
		reasons = append(reasons, RiskReason{
			Code:        "SANCTIONS_SCREENING_FAILED",
			Description: "Sanctions screening requirements not met",
			Impact:      1.0,
			Severity:    "high",
		})
	}

	declineReason := "FRAUD_GATE_FAILED"
	if len(check.Flags) > 0 {
		declineReason = strings.Join(check.Flags, ",")
	}

	return &Decision{
		ID:                 idgen.WithPrefix("dec_"),
		UserID:             userID,
		Jurisdiction:       jurisdiction,
		FraudGatePassed:    false,
		FraudDeclineReason: declineReason,
		PD12M:              1.0,
		LGD:                lossGivenDefault,
		Approved:           false,
		Reasons:            reasons,
		Counterfactuals:    []Counterfactual{},
		CreatedAt:          time.Now().UTC(),
	}
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

package underwriting

import (
	"testing"

	"github.com/durinhq/durin/internal/liveness"
)

func passingCheck() *liveness.CheckResult {
	return &liveness.CheckResult{
		UserID:        "alice",
		Pass:          true,
		Score:         0.9,
		SanctionsPass: true,
		DeviceRisk:    0.1,
	}
}

func strongMetrics() *CashflowMetrics {
	return &CashflowMetrics{
		NetIncomeMedian:          4000,
		IncomeCV:                 0.1,
		EssentialSpendMedian:     1500,
		DiscretionarySpendMedian: 200,
		BufferDays:               35,
		PaymentBurden:            0.20,
		OnTimeRatio:              1.0,
		NSFCount90d:              0,
	}
}

func weakMetrics() *CashflowMetrics {
	return &CashflowMetrics{
		NetIncomeMedian:          1200,
		IncomeCV:                 0.8,
		EssentialSpendMedian:     900,
		DiscretionarySpendMedian: 400,
		BufferDays:               3,
		PaymentBurden:            0.60,
		OnTimeRatio:              0.60,
		NSFCount90d:              4,
	}
}

func steadyApplicant() *Applicant {
	return &Applicant{
		UserID:           "alice",
		FullName:         "Alice Example",
		Address:          "1 Main Street, Springfield",
		Country:          "US",
		EmploymentStatus: EmploymentFullTime,
		MonthlyIncome:    4000,
		TenureMonths:     36,
	}
}

func TestScoreApprovesStrongProfile(t *testing.T) {
	d := Score("alice", steadyApplicant(), strongMetrics(), passingCheck(), "US")

	if !d.Approved {
		t.Fatalf("expected approval, got %+v", d)
	}
	// All seven features at their best: 0.08 - 0.10, clamped to 0.01.
	if !approx(d.PD12M, 0.01, 0.0001) {
		t.Errorf("pd = %f, want 0.01", d.PD12M)
	}
	if d.CreditLimit != 3000 {
		t.Errorf("credit limit = %f, want prime tier 3000", d.CreditLimit)
	}
	if d.APR == nil || !approx(*d.APR, 13.0, 0.001) {
		t.Errorf("apr = %v, want 13.0", d.APR)
	}
	if !approx(d.ExpectedLoss, 0.01*0.45*3000, 0.01) {
		t.Errorf("expected loss = %f", d.ExpectedLoss)
	}
	if !d.FraudGatePassed {
		t.Error("fraud gate should pass")
	}

	if !hasReason(d.Reasons, "STRONG_CASH_BUFFER") || !hasReason(d.Reasons, "STABLE_INCOME") {
		t.Errorf("reasons = %+v", d.Reasons)
	}
}

func TestScoreDeclinesWeakProfile(t *testing.T) {
	applicant := steadyApplicant()
	applicant.TenureMonths = 2

	d := Score("alice", applicant, weakMetrics(), passingCheck(), "US")

	if d.Approved {
		t.Fatalf("expected decline, got %+v", d)
	}
	if d.CreditLimit != 0 {
		t.Errorf("credit limit = %f, want 0", d.CreditLimit)
	}
	if d.APR != nil {
		t.Errorf("apr = %v, want nil on decline", *d.APR)
	}
	// Every feature at its worst: 0.08 plus 0.165 of penalties.
	if !approx(d.PD12M, 0.245, 0.0001) {
		t.Errorf("pd = %f, want 0.245", d.PD12M)
	}
	if len(d.Reasons) == 0 || len(d.Reasons) > 5 {
		t.Errorf("got %d reasons, want 1-5", len(d.Reasons))
	}
	if !hasReason(d.Reasons, "INSUFFICIENT_BUFFER_DAYS") {
		t.Errorf("reasons = %+v", d.Reasons)
	}
	if len(d.Counterfactuals) == 0 || len(d.Counterfactuals) > 3 {
		t.Errorf("got %d counterfactuals, want 1-3", len(d.Counterfactuals))
	}
}

func TestScoreMonotoneInBufferDays(t *testing.T) {
	worse := strongMetrics()
	worse.BufferDays = 5

	better := Score("alice", steadyApplicant(), strongMetrics(), passingCheck(), "US")
	worseD := Score("alice", steadyApplicant(), worse, passingCheck(), "US")

	if worseD.PD12M < better.PD12M {
		t.Errorf("pd with worse buffer %f < pd with better buffer %f", worseD.PD12M, better.PD12M)
	}
}

func TestScoreFraudGateDecline(t *testing.T) {
	check := &liveness.CheckResult{
		UserID:         "mallory",
		Pass:           false,
		ReplayDetected: true,
		SanctionsPass:  false,
		Flags:          []string{liveness.FlagReplay, liveness.FlagSanctionsMatch},
	}

	d := Score("mallory", steadyApplicant(), nil, check, "US")

	if d.Approved || d.FraudGatePassed {
		t.Fatalf("fraud gate failure must decline: %+v", d)
	}
	if d.PD12M != 1.0 {
		t.Errorf("pd = %f, want 1.0", d.PD12M)
	}
	if d.Cashflow != nil {
		t.Error("declined application should not expose cashflow metrics")
	}
	if d.FraudDeclineReason != "REPLAY_DETECTED,SANCTIONS_MATCH" {
		t.Errorf("decline reason = %q", d.FraudDeclineReason)
	}
	for _, code := range []string{"LIVENESS_CHECK_FAILED", "REPLAY_DETECTED", "SANCTIONS_SCREENING_FAILED"} {
		if !hasReason(d.Reasons, code) {
			t.Errorf("missing reason %s in %+v", code, d.Reasons)
		}
	}
}

func TestScoreUnknownJurisdictionFallsBackToUS(t *testing.T) {
	d := Score("alice", steadyApplicant(), strongMetrics(), passingCheck(), "DE")
	if d.Jurisdiction != "US" {
		t.Errorf("jurisdiction = %s, want US fallback", d.Jurisdiction)
	}
}

func TestScoreUKStricterThanUS(t *testing.T) {
	// A profile just past the UK payment-burden cutoff but inside the US one.
	m := strongMetrics()
	m.PaymentBurden = 0.38

	us := Score("alice", steadyApplicant(), m, passingCheck(), "US")
	uk := Score("alice", steadyApplicant(), m, passingCheck(), "UK")

	if hasReason(us.Reasons, "HIGH_PAYMENT_BURDEN") {
		t.Errorf("US should tolerate 38%% burden: %+v", us.Reasons)
	}
	if !hasReason(uk.Reasons, "HIGH_PAYMENT_BURDEN") {
		t.Errorf("UK should flag 38%% burden: %+v", uk.Reasons)
	}
}

func TestDetermineCreditLimitTiers(t *testing.T) {
	tests := []struct {
		pd   float64
		want float64
	}{
		{0.01, 3000},
		{0.04, 2000},
		{0.07, 1200},
		{0.10, 800},
		{0.13, 0},
	}
	for _, tc := range tests {
		if got := determineCreditLimit(tc.pd); got != tc.want {
			t.Errorf("determineCreditLimit(%f) = %f, want %f", tc.pd, got, tc.want)
		}
	}
}

func TestDetermineAPRCapped(t *testing.T) {
	if got := determineAPR(0.30); got != 35.99 {
		t.Errorf("apr = %f, want 35.99 cap", got)
	}
	if got := determineAPR(0.02); !approx(got, 14.0, 0.001) {
		t.Errorf("apr = %f, want 14.0", got)
	}
}

func hasReason(reasons []RiskReason, code string) bool {
	for _, r := range reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

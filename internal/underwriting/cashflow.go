package underwriting

import (
	"math"
	"sort"
	"strings"
)

// Essential-spend merchant category codes: groceries, fuel, pharmacy,
// telecom/utilities, insurance.
var essentialMCCs = map[string]bool{
	"5411": true, "5412": true, "5422": true,
	"5541": true, "5542": true, "5983": true,
	"5912": true, "5976": true,
	"4814": true, "4816": true, "4899": true,
	"6300": true, "6513": true,
}

var incomeKeywords = []string{"salary", "payroll", "deposit", "direct dep", "wage", "income"}

var recurringKeywords = []string{"loan", "mortgage", "rent", "payment", "subscription", "auto pay"}

var essentialKeywords = []string{
	"grocery", "gas", "fuel", "pharmacy", "medical",
	"utility", "electric", "water", "rent", "mortgage",
	"insurance", "phone", "internet",
}

var nsfKeywords = []string{"nsf", "overdraft", "insufficient", "returned payment"}

// AnalyzeCashflow reduces a transaction history (90 days recommended) to
// cashflow health metrics. It fails on an empty history.
func AnalyzeCashflow(txns []BankTransaction) (*CashflowMetrics, error) {
	if len(txns) == 0 {
		return nil, ErrNoTransactions
	}

	sorted := make([]BankTransaction, len(txns))
	copy(sorted, txns)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	incomeMedian, incomeCV := incomeMetrics(sorted)
	essentialMedian, discretionaryMedian := spendingMetrics(sorted)

	return &CashflowMetrics{
		NetIncomeMedian:          round2(incomeMedian),
		IncomeCV:                 round3(math.Min(incomeCV, 2.0)),
		EssentialSpendMedian:     round2(essentialMedian),
		DiscretionarySpendMedian: round2(discretionaryMedian),
		BufferDays:               round1(bufferDays(incomeMedian, essentialMedian+discretionaryMedian)),
		PaymentBurden:            round3(paymentBurden(sorted, incomeMedian)),
		OnTimeRatio:              round3(onTimeRatio(sorted)),
		NSFCount90d:              countNSF(sorted),
		TransactionCount:         len(txns),
	}, nil
}

// incomeMetrics returns the median monthly income and its coefficient of
// variation. When nothing looks like income, any sizable inflow counts.
func incomeMetrics(txns []BankTransaction) (median, cv float64) {
	var income []BankTransaction
	for _, t := range txns {
		if t.Amount > 0 && isIncome(t) {
			income = append(income, t)
		}
	}
	if len(income) == 0 {
		for _, t := range txns {
			if t.Amount > 100 {
				income = append(income, t)
			}
		}
	}

	monthly := monthlyTotals(income, false)
	if len(monthly) == 0 {
		return 0, 1.0
	}

	median = medianOf(monthly)
	if len(monthly) > 1 && median > 0 {
		cv = sampleStddev(monthly) / median
	}
	return median, cv
}

func spendingMetrics(txns []BankTransaction) (essentialMedian, discretionaryMedian float64) {
	var essential, discretionary []BankTransaction
	for _, t := range txns {
		if t.Amount >= 0 {
			continue
		}
		if isEssential(t) {
			essential = append(essential, t)
		} else {
			discretionary = append(discretionary, t)
		}
	}

	essentialMedian = medianOf(monthlyTotals(essential, true))
	discretionaryMedian = medianOf(monthlyTotals(discretionary, true))
	return essentialMedian, discretionaryMedian
}

// bufferDays estimates how long the applicant could cover spending from the
// monthly surplus. Half the surplus is treated as accessible savings.
func bufferDays(monthlyIncome, monthlySpend float64) float64 {
	if monthlySpend <= 0 {
		return 30
	}
	dailyBurn := monthlySpend / 30
	net := monthlyIncome - monthlySpend
	if net <= 0 {
		return 0
	}
	days := net * 0.5 / dailyBurn
	return math.Min(days, 90)
}

// paymentBurden is estimated monthly recurring obligations as a share of
// income, capped at 100%.
func paymentBurden(txns []BankTransaction, monthlyIncome float64) float64 {
	if monthlyIncome <= 0 {
		return 1.0
	}

	var total float64
	for _, t := range txns {
		if t.Amount < 0 && isRecurring(t) {
			total += -t.Amount
		}
	}

	days := txns[len(txns)-1].Timestamp.Sub(txns[0].Timestamp).Hours() / 24
	months := math.Max(days/30, 1)
	return math.Min(total/months/monthlyIncome, 1.0)
}

// onTimeRatio approximates payment punctuality from late-fee indicators.
func onTimeRatio(txns []BankTransaction) float64 {
	lateFees := 0
	recurring := 0
	payments := 0
	for _, t := range txns {
		if t.Amount >= 0 {
			continue
		}
		payments++
		if strings.Contains(searchText(t), "late") {
			lateFees++
		}
		if isRecurring(t) {
			recurring++
		}
	}
	if payments == 0 {
		return 1.0
	}
	if recurring == 0 {
		recurring = 1
	}
	return math.Max(0, 1.0-float64(lateFees)/float64(recurring))
}

func countNSF(txns []BankTransaction) int {
	count := 0
	for _, t := range txns {
		text := searchText(t)
		for _, kw := range nsfKeywords {
			if strings.Contains(text, kw) {
				count++
				break
			}
		}
	}
	return count
}

func isIncome(t BankTransaction) bool {
	if t.Type == TypeIncome {
		return true
	}
	return containsAny(searchText(t), incomeKeywords)
}

func isEssential(t BankTransaction) bool {
	if t.MCC != "" && essentialMCCs[t.MCC] {
		return true
	}
	return containsAny(strings.ToLower(t.Merchant), essentialKeywords)
}

func isRecurring(t BankTransaction) bool {
	return containsAny(searchText(t), recurringKeywords)
}

func searchText(t BankTransaction) string {
	return strings.ToLower(t.Merchant + " " + t.Counterparty)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// monthlyTotals sums amounts per calendar month. abs sums magnitudes for
// expense buckets.
func monthlyTotals(txns []BankTransaction, abs bool) []float64 {
	monthly := make(map[string]float64)
	for _, t := range txns {
		amount := t.Amount
		if abs {
			amount = math.Abs(amount)
		}
		monthly[t.Timestamp.Format("2006-01")] += amount
	}
	totals := make([]float64, 0, len(monthly))
	for _, v := range monthly {
		totals = append(totals, v)
	}
	return totals
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func sampleStddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// Package underwriting implements cashflow-first credit underwriting.
//
// Bank transaction history is reduced to cashflow health metrics, then a
// monotone probability-of-default model turns the metrics into an
// explainable decision: approved/declined, credit limit, risk-based APR,
// risk reasons, and counterfactual improvement suggestions. A failed
// liveness check declines the application before any scoring happens.
package underwriting

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors.
var (
	ErrNotFound        = errors.New("underwriting: not found")
	ErrNoApplicant     = errors.New("underwriting: applicant not found, submit personal data first")
	ErrNoTransactions  = errors.New("underwriting: no transaction data, upload transactions first")
	ErrNoLivenessCheck = errors.New("underwriting: no liveness check, perform identity verification first")
	ErrInvalidRecord   = errors.New("underwriting: invalid record")
)

// TransactionType classifies a bank transaction.
type TransactionType string

const (
	TypeIncome   TransactionType = "income"
	TypeExpense  TransactionType = "expense"
	TypeTransfer TransactionType = "transfer"
	TypeFee      TransactionType = "fee"
)

// EmploymentStatus is an applicant's stated employment situation.
type EmploymentStatus string

const (
	EmploymentFullTime     EmploymentStatus = "full_time"
	EmploymentPartTime     EmploymentStatus = "part_time"
	EmploymentSelfEmployed EmploymentStatus = "self_employed"
	EmploymentUnemployed   EmploymentStatus = "unemployed"
	EmploymentRetired      EmploymentStatus = "retired"
)

// BankTransaction is one entry from an applicant's account history. Amount
// is positive for money in, negative for money out.
type BankTransaction struct {
	ID           string          `json:"txnId"`
	AccountID    string          `json:"accountId"`
	Timestamp    time.Time       `json:"timestamp"`
	Amount       float64         `json:"amount"`
	Currency     string          `json:"currency"`
	Merchant     string          `json:"merchant,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
	Type         TransactionType `json:"transactionType"`
	MCC          string          `json:"mcc,omitempty"`
}

// Applicant holds the personal and employment data an application needs.
type Applicant struct {
	UserID           string           `json:"userId"`
	FullName         string           `json:"fullName"`
	Address          string           `json:"address"`
	Country          string           `json:"country"`
	EmploymentStatus EmploymentStatus `json:"employmentStatus"`
	MonthlyIncome    float64          `json:"monthlyIncome"`
	TenureMonths     int              `json:"tenureMonths"`
	EmailHash        string           `json:"emailHash,omitempty"`
	PhoneHash        string           `json:"phoneHash,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// placeholderName marks applicants auto-created by a transaction upload
// before personal data arrives.
const placeholderName = "Pending"

// CashflowMetrics are the financial health indicators computed from an
// applicant's transaction history.
type CashflowMetrics struct {
	NetIncomeMedian          float64 `json:"netIncomeMedian"`
	IncomeCV                 float64 `json:"incomeCv"`
	EssentialSpendMedian     float64 `json:"essentialSpendMedian"`
	DiscretionarySpendMedian float64 `json:"discretionarySpendMedian"`
	BufferDays               float64 `json:"bufferDays"`
	PaymentBurden            float64 `json:"paymentBurden"`
	OnTimeRatio              float64 `json:"onTimeRatio"`
	NSFCount90d              int     `json:"nsfCount90d"`
	TransactionCount         int     `json:"transactionCount"`
}

// RiskReason is one factor behind a decision, signed by its PD impact.
type RiskReason struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Impact      float64 `json:"impact"`
	Severity    string  `json:"severity"`
}

// Counterfactual is a what-if improvement path with its estimated PD change.
type Counterfactual struct {
	Action       string  `json:"action"`
	CurrentValue float64 `json:"currentValue"`
	TargetValue  float64 `json:"targetValue"`
	PDDelta      float64 `json:"pdDelta"`
	Feasibility  string  `json:"feasibility"`
}

// Decision is a complete underwriting outcome.
type Decision struct {
	ID                 string           `json:"decisionId"`
	UserID             string           `json:"userId"`
	Jurisdiction       string           `json:"jurisdiction"`
	FraudGatePassed    bool             `json:"fraudGatePassed"`
	FraudDeclineReason string           `json:"fraudDeclineReason,omitempty"`
	Cashflow           *CashflowMetrics `json:"cashflowMetrics,omitempty"`
	PD12M              float64          `json:"pd12m"`
	LGD                float64          `json:"lgd"`
	ExpectedLoss       float64          `json:"expectedLoss"`
	Approved           bool             `json:"approved"`
	CreditLimit        float64          `json:"creditLimit"`
	APR                *float64         `json:"apr,omitempty"`
	Reasons            []RiskReason     `json:"reasons"`
	Counterfactuals    []Counterfactual `json:"counterfactuals"`
	CreatedAt          time.Time        `json:"createdAt"`
}

// Status reports which application steps a user has completed.
type Status struct {
	UserID                string `json:"userId"`
	TransactionsUploaded  bool   `json:"transactionsUploaded"`
	TransactionCount      int    `json:"transactionCount"`
	PersonalDataSubmitted bool   `json:"personalDataSubmitted"`
	LivenessChecked       bool   `json:"livenessChecked"`
	DecisionMade          bool   `json:"decisionMade"`
	ReadyForAnalysis      bool   `json:"readyForAnalysis"`
}

// Removed reports what a user-data deletion cleaned up.
type Removed struct {
	Applicant    bool `json:"applicant"`
	Transactions int  `json:"transactions"`
	Decisions    int  `json:"decisions"`
}

// Store persists applicants, their transaction history, and decisions.
type Store interface {
	// UpsertApplicant creates or replaces an applicant record.
	UpsertApplicant(ctx context.Context, a *Applicant) error
	// GetApplicant returns an applicant by user id.
	GetApplicant(ctx context.Context, userID string) (*Applicant, error)
	// ReplaceTransactions swaps a user's transaction history wholesale.
	ReplaceTransactions(ctx context.Context, userID string, txns []BankTransaction) error
	// ListTransactions returns a user's transactions ordered by timestamp.
	ListTransactions(ctx context.Context, userID string) ([]BankTransaction, error)
	// CountTransactions returns how many transactions a user has uploaded.
	CountTransactions(ctx context.Context, userID string) (int, error)
	// CreateDecision persists a decision.
	CreateDecision(ctx context.Context, d *Decision) error
	// LatestDecision returns a user's most recent decision.
	LatestDecision(ctx context.Context, userID string) (*Decision, error)
	// DeleteUser removes all data for a user.
	DeleteUser(ctx context.Context, userID string) (*Removed, error)
}

package underwriting

import (
	"context"
	"errors"
	"time"

	"github.com/durinhq/durin/internal/liveness"
	"github.com/durinhq/durin/internal/logging"
	"github.com/durinhq/durin/internal/metrics"
	"github.com/durinhq/durin/internal/traces"
)

// LivenessReader is the slice of the liveness store the underwriting flow
// needs. The identity gate result comes from the user's most recent check.
type LivenessReader interface {
	Latest(ctx context.Context, userID string) (*liveness.CheckResult, error)
}

// Broadcaster pushes decision events to realtime subscribers.
type Broadcaster interface {
	BroadcastDecision(applicantID, decision string)
}

// Service coordinates the underwriting flow: applicant data, transaction
// history, the liveness gate, and scoring.
type Service struct {
	store    Store
	liveness LivenessReader
	hub      Broadcaster // may be nil
}

// NewService creates an underwriting service. hub may be nil.
func NewService(store Store, livenessStore LivenessReader, hub Broadcaster) *Service {
	return &Service{store: store, liveness: livenessStore, hub: hub}
}

// SaveApplicant stores or replaces an applicant's personal data.
func (s *Service) SaveApplicant(ctx context.Context, a *Applicant) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return s.store.UpsertApplicant(ctx, a)
}

// SaveTransactions replaces a user's transaction history. A placeholder
// applicant is created when transactions arrive before personal data.
func (s *Service) SaveTransactions(ctx context.Context, userID string, txns []BankTransaction) error {
	if len(txns) == 0 {
		return ErrNoTransactions
	}

	if _, err := s.store.GetApplicant(ctx, userID); errors.Is(err, ErrNotFound) {
		placeholder := &Applicant{
			UserID:           userID,
			FullName:         placeholderName,
			Address:          placeholderName,
			Country:          "US",
			EmploymentStatus: EmploymentFullTime,
			CreatedAt:        time.Now().UTC(),
		}
		if err := s.store.UpsertApplicant(ctx, placeholder); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return s.store.ReplaceTransactions(ctx, userID, txns)
}

// Analyze runs the full underwriting flow for a user and persists the
// resulting decision. All three inputs must exist: personal data,
// transaction history, and a liveness check.
func (s *Service) Analyze(ctx context.Context, userID, jurisdiction string) (*Decision, error) {
	ctx, span := traces.StartSpan(ctx, "underwriting.analyze")
	defer span.End()
	span.SetAttributes(traces.ApplicantID(userID))

	applicant, err := s.store.GetApplicant(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoApplicant
	}
	if err != nil {
		return nil, err
	}

	txns, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, ErrNoTransactions
	}

	check, err := s.liveness.Latest(ctx, userID)
	if errors.Is(err, liveness.ErrNotFound) {
		return nil, ErrNoLivenessCheck
	}
	if err != nil {
		return nil, err
	}

	var cashflow *CashflowMetrics
	if check.Pass {
		cashflow, err = AnalyzeCashflow(txns)
		if err != nil {
			return nil, err
		}
	}

	decision := Score(userID, applicant, cashflow, check, jurisdiction)
	if err := s.store.CreateDecision(ctx, decision); err != nil {
		return nil, err
	}

	outcome := "declined"
	if decision.Approved {
		outcome = "approved"
	}
	metrics.UnderwritingDecisionsTotal.WithLabelValues(outcome).Inc()
	logging.L(ctx).Info("underwriting decision",
		"decision_id", decision.ID,
		"user_id", userID,
		"jurisdiction", decision.Jurisdiction,
		"approved", decision.Approved,
		"pd_12m", decision.PD12M)
	if s.hub != nil {
		s.hub.BroadcastDecision(userID, outcome)
	}
	return decision, nil
}

// Decision returns a user's most recent decision.
func (s *Service) Decision(ctx context.Context, userID string) (*Decision, error) {
	return s.store.LatestDecision(ctx, userID)
}

// Status reports which application steps a user has completed.
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	status := &Status{UserID: userID}

	applicant, err := s.store.GetApplicant(ctx, userID)
	if err == nil {
		status.PersonalDataSubmitted = applicant.FullName != placeholderName
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	count, err := s.store.CountTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	status.TransactionCount = count
	status.TransactionsUploaded = count > 0

	if _, err := s.liveness.Latest(ctx, userID); err == nil {
		status.LivenessChecked = true
	} else if !errors.Is(err, liveness.ErrNotFound) {
		return nil, err
	}

	if _, err := s.store.LatestDecision(ctx, userID); err == nil {
		status.DecisionMade = true
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	status.ReadyForAnalysis = status.TransactionsUploaded &&
		status.PersonalDataSubmitted &&
		status.LivenessChecked
	return status, nil
}

// DeleteUser removes all stored data for a user.
func (s *Service) DeleteUser(ctx context.Context, userID string) (*Removed, error) {
	return s.store.DeleteUser(ctx, userID)
}

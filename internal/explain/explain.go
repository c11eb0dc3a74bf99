// Package explain turns analysis results into natural-language risk
// explanations for compliance officers.
//
// Explanations come from an OpenAI-compatible chat API when one is
// configured; account identifiers are masked before they leave the process.
// When the API is unavailable or disabled, a rule-based fallback produces a
// deterministic explanation from the detected signals, so the endpoint never
// fails just because the language model did.
package explain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/durinhq/durin/internal/analysis"
	"github.com/durinhq/durin/internal/engine"
	"github.com/durinhq/durin/internal/logging"
	"github.com/durinhq/durin/internal/metrics"
)

// Source identifies how an explanation was produced.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// Explanation is one generated risk explanation.
type Explanation struct {
	AnalysisID  string    `json:"analysisId"`
	AccountID   string    `json:"accountId"`
	Source      Source    `json:"source"`
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// ContextProvider supplies per-account analysis context.
type ContextProvider interface {
	AccountContext(ctx context.Context, analysisID, accountID string) (*analysis.AccountContext, error)
}

// Service generates explanations and answers compliance questions.
type Service struct {
	contexts ContextProvider
	llm      *Client // nil when the LLM path is disabled
}

// NewService creates an explanation service. llm may be nil.
func NewService(contexts ContextProvider, llm *Client) *Service {
	return &Service{contexts: contexts, llm: llm}
}

const analystSystemPrompt = `You are a compliance analyst specializing in AML (Anti-Money Laundering) and KYC (Know Your Customer) fraud detection.

Your role is to explain fraud risk scores in clear, professional language that compliance officers can understand.

Guidelines:
- Cite specific AML/KYC red flags (e.g., structuring, layering, shared devices)
- Keep explanations under 100 words
- Never expose full personal identifiers (mask if needed)
- Use professional, factual tone
- Focus on behavioral patterns, not speculation`

// ExplainAccount generates an explanation for one account in one analysis.
func (s *Service) ExplainAccount(ctx context.Context, analysisID, accountID string) (*Explanation, error) {
	acct, err := s.contexts.AccountContext(ctx, analysisID, accountID)
	if err != nil {
		return nil, err
	}

	exp := &Explanation{
		AnalysisID:  analysisID,
		AccountID:   accountID,
		GeneratedAt: time.Now().UTC(),
	}

	if s.llm != nil {
		text, err := s.llm.Complete(ctx, []Message{
			{Role: "system", Content: analystSystemPrompt},
			{Role: "user", Content: accountPrompt(acct)},
		}, 200, 0.3)
		if err == nil {
			exp.Source = SourceLLM
			exp.Text = text
			metrics.ExplanationsTotal.WithLabelValues(string(SourceLLM)).Inc()
			return exp, nil
		}
		logging.L(ctx).Warn("llm explanation failed, using fallback",
			"analysis_id", analysisID, "error", err)
	}

	exp.Source = SourceFallback
	exp.Text = fallbackExplanation(acct.Account.Score, acct.Account.Signals)
	metrics.ExplanationsTotal.WithLabelValues(string(SourceFallback)).Inc()
	return exp, nil
}

// accountPrompt renders the masked per-account context for the model.
func accountPrompt(acct *analysis.AccountContext) string {
	var signals []string
	for _, sig := range acct.Account.Signals {
		signals = append(signals, fmt.Sprintf("- %s (%s severity): weight %.1f, evidence %s",
			strings.ToUpper(string(sig.Kind)), sig.Severity, sig.Weight, maskAll(sig.Evidence)))
	}
	signalsText := "No specific signals detected"
	if len(signals) > 0 {
		signalsText = strings.Join(signals, "\n")
	}

	return fmt.Sprintf(`Account ID: %s
Risk Score: %.2f/10
Risk Bucket: %s
Connected Accounts: %d

Detected Signals:
%s

Provide a concise explanation of why this account is flagged, citing relevant AML/KYC concerns.`,
		MaskIdentifier(acct.Account.ID),
		acct.Account.Score,
		acct.Account.Bucket,
		len(acct.Edges),
		signalsText,
	)
}

// fallbackExplanation is the rule-based path used when no LLM is available.
func fallbackExplanation(score float64, signals []engine.Signal) string {
	if score < 3 {
		return "Low risk account with normal transaction patterns and no significant red flags detected."
	}

	var parts []string
	for _, sig := range signals {
		switch sig.Kind {
		case engine.KindSharedDevice:
			parts = append(parts, "Multiple users accessing from same device - potential account takeover or mule network.")
		case engine.KindSharedIP:
			parts = append(parts, "Shared IP address with other users - possible coordinated activity.")
		case engine.KindStructuring:
			parts = append(parts, "Structuring pattern detected - multiple small transactions to evade reporting thresholds.")
		case engine.KindCircularFlow:
			parts = append(parts, "Circular transaction pattern - potential layering to obscure fund origins.")
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "Elevated risk based on network analysis and transaction patterns.")
	}
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, " ")
}

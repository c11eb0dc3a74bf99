package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *DurinClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *DurinClient) *Handlers {
	return &Handlers{client: client}
}

// HandleRunAnalysis uploads CSV files and runs an analysis.
func (h *Handlers) HandleRunAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	transactionsPath := req.GetString("transactions_path", "")
	if transactionsPath == "" {
		return mcp.NewToolResultError("transactions_path is required"), nil
	}
	accountsPath := req.GetString("accounts_path", "")

	raw, err := h.client.RunAnalysis(ctx, transactionsPath, accountsPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}

	text, err := formatAnalysis(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse analysis: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetLatestAnalysis returns the most recent analysis.
func (h *Handlers) HandleGetLatestAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetLatestAnalysis(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get latest analysis: %v", err)), nil
	}

	text, err := formatAnalysis(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse analysis: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetAccountRisk returns one account's risk profile.
func (h *Handlers) HandleGetAccountRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accountID := req.GetString("account_id", "")
	if accountID == "" {
		return mcp.NewToolResultError("account_id is required"), nil
	}

	analysisID, errResult := h.resolveAnalysisID(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	raw, err := h.client.GetAccountContext(ctx, analysisID, accountID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get account risk: %v", err)), nil
	}

	text, err := formatAccountContext(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse account: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListHighRisk lists the high-risk accounts in an analysis.
func (h *Handlers) HandleListHighRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	analysisID := req.GetString("analysis_id", "")

	var raw json.RawMessage
	var err error
	if analysisID == "" {
		raw, err = h.client.GetLatestAnalysis(ctx)
	} else {
		raw, err = h.client.GetAnalysis(ctx, analysisID)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get analysis: %v", err)), nil
	}

	text, err := formatHighRisk(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse analysis: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleExplainAccount generates a risk explanation for an account.
func (h *Handlers) HandleExplainAccount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accountID := req.GetString("account_id", "")
	if accountID == "" {
		return mcp.NewToolResultError("account_id is required"), nil
	}

	analysisID, errResult := h.resolveAnalysisID(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	raw, err := h.client.ExplainAccount(ctx, analysisID, accountID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to explain account: %v", err)), nil
	}

	text, err := formatExplanation(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse explanation: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// resolveAnalysisID returns the analysis_id argument, or the latest
// analysis id when the argument is absent.
func (h *Handlers) resolveAnalysisID(ctx context.Context, req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	if id := req.GetString("analysis_id", ""); id != "" {
		return id, nil
	}

	raw, err := h.client.GetLatestAnalysis(ctx)
	if err != nil {
		return "", mcp.NewToolResultError(fmt.Sprintf("No analysis_id given and latest analysis lookup failed: %v", err))
	}
	a, err := parseAnalysis(raw)
	if err != nil {
		return "", mcp.NewToolResultError(fmt.Sprintf("Failed to parse latest analysis: %v", err))
	}
	return a.ID, nil
}

// --- Response shapes ---

type signalInfo struct {
	Kind     string   `json:"kind"`
	Weight   float64  `json:"weight"`
	Severity string   `json:"severity"`
	Evidence []string `json:"evidence"`
}

type nodeInfo struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Score   float64      `json:"score"`
	Bucket  string       `json:"bucket"`
	Signals []signalInfo `json:"signals"`
}

type edgeInfo struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Kind        string  `json:"kind"`
	Count       int     `json:"count"`
	TotalAmount float64 `json:"totalAmount"`
	SharedKey   string  `json:"sharedKey"`
}

type analysisInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result *struct {
		HighRisk []nodeInfo `json:"highRiskAccounts"`
		Summary  struct {
			TotalAccounts     int `json:"totalAccounts"`
			TotalTransactions int `json:"totalTransactions"`
			TotalSignals      int `json:"totalSignals"`
			HighRiskCount     int `json:"highRiskCount"`
		} `json:"summary"`
		Degraded         bool     `json:"degraded"`
		PartialDetectors []string `json:"partialDetectors"`
	} `json:"result"`
	CreatedAt time.Time `json:"createdAt"`
}

func parseAnalysis(raw json.RawMessage) (*analysisInfo, error) {
	var wrapper struct {
		Analysis *analysisInfo `json:"analysis"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.Analysis == nil {
		return nil, fmt.Errorf("unexpected analysis response format")
	}
	return wrapper.Analysis, nil
}

// --- Formatting helpers ---

func formatAnalysis(raw json.RawMessage) (string, error) {
	a, err := parseAnalysis(raw)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Analysis %s (%s)\n", a.ID, a.Status)
	fmt.Fprintf(&sb, "Run at: %s\n", a.CreatedAt.Format(time.RFC3339))

	if a.Result == nil {
		sb.WriteString("No result attached.\n")
		return sb.String(), nil
	}

	s := a.Result.Summary
	fmt.Fprintf(&sb, "Accounts: %d | Transactions: %d | Signals: %d\n",
		s.TotalAccounts, s.TotalTransactions, s.TotalSignals)
	fmt.Fprintf(&sb, "High risk accounts: %d\n", s.HighRiskCount)

	if a.Result.Degraded {
		fmt.Fprintf(&sb, "WARNING: degraded result, partial detectors: %s\n",
			strings.Join(a.Result.PartialDetectors, ", "))
	}

	if len(a.Result.HighRisk) > 0 {
		sb.WriteString("\nTop high-risk accounts:\n")
		for i, n := range a.Result.HighRisk {
			if i >= 10 {
				fmt.Fprintf(&sb, "  ... and %d more\n", len(a.Result.HighRisk)-10)
				break
			}
			fmt.Fprintf(&sb, "  %s (score %.1f): %s\n", n.ID, n.Score, signalKinds(n.Signals))
		}
	}

	return sb.String(), nil
}

func formatAccountContext(raw json.RawMessage) (string, error) {
	var ctx struct {
		AnalysisID string     `json:"analysisId"`
		Account    nodeInfo   `json:"account"`
		Edges      []edgeInfo `json:"edges"`
	}
	if err := json.Unmarshal(raw, &ctx); err != nil {
		return "", err
	}
	if ctx.Account.ID == "" {
		return "", fmt.Errorf("unexpected account response format")
	}

	n := ctx.Account
	var sb strings.Builder
	fmt.Fprintf(&sb, "Account %s", n.ID)
	if n.Name != "" {
		fmt.Fprintf(&sb, " (%s)", n.Name)
	}
	fmt.Fprintf(&sb, "\nAnalysis: %s\n", ctx.AnalysisID)
	fmt.Fprintf(&sb, "Risk score: %.1f/10 (%s)\n", n.Score, n.Bucket)

	if len(n.Signals) == 0 {
		sb.WriteString("No fraud signals against this account.\n")
	} else {
		fmt.Fprintf(&sb, "\nSignals (%d):\n", len(n.Signals))
		for _, sig := range n.Signals {
			fmt.Fprintf(&sb, "  %s [%s] weight %.1f\n", sig.Kind, sig.Severity, sig.Weight)
			for _, ev := range sig.Evidence {
				fmt.Fprintf(&sb, "    - %s\n", ev)
			}
		}
	}

	if len(ctx.Edges) > 0 {
		fmt.Fprintf(&sb, "\nGraph edges (%d):\n", len(ctx.Edges))
		for i, e := range ctx.Edges {
			if i >= 15 {
				fmt.Fprintf(&sb, "  ... and %d more\n", len(ctx.Edges)-15)
				break
			}
			fmt.Fprintf(&sb, "  %s -> %s (%s", e.Source, e.Target, e.Kind)
			if e.Count > 0 {
				fmt.Fprintf(&sb, ", %d txns, %.2f total", e.Count, e.TotalAmount)
			}
			if e.SharedKey != "" {
				fmt.Fprintf(&sb, ", shared %s", e.SharedKey)
			}
			sb.WriteString(")\n")
		}
	}

	return sb.String(), nil
}

func formatHighRisk(raw json.RawMessage) (string, error) {
	a, err := parseAnalysis(raw)
	if err != nil {
		return "", err
	}
	if a.Result == nil || len(a.Result.HighRisk) == 0 {
		return fmt.Sprintf("Analysis %s has no high-risk accounts.", a.ID), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Analysis %s: %d high-risk account(s)\n\n", a.ID, len(a.Result.HighRisk))
	for i, n := range a.Result.HighRisk {
		fmt.Fprintf(&sb, "%d. %s", i+1, n.ID)
		if n.Name != "" {
			fmt.Fprintf(&sb, " (%s)", n.Name)
		}
		fmt.Fprintf(&sb, "\n   Score: %.1f/10 | Signals: %s\n", n.Score, signalKinds(n.Signals))
	}
	return sb.String(), nil
}

func formatExplanation(raw json.RawMessage) (string, error) {
	var wrapper struct {
		Explanation *struct {
			AccountID string `json:"accountId"`
			Source    string `json:"source"`
			Text      string `json:"text"`
		} `json:"explanation"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return "", err
	}
	if wrapper.Explanation == nil {
		return "", fmt.Errorf("unexpected explanation response format")
	}

	e := wrapper.Explanation
	return fmt.Sprintf("Explanation for %s (source: %s)\n\n%s", e.AccountID, e.Source, e.Text), nil
}

func signalKinds(signals []signalInfo) string {
	if len(signals) == 0 {
		return "none"
	}
	kinds := make([]string, 0, len(signals))
	for _, s := range signals {
		kinds = append(kinds, s.Kind)
	}
	return strings.Join(kinds, ", ")
}

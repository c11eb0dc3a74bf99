package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Durin MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolRunAnalysis = mcp.NewTool("run_analysis",
	mcp.WithDescription(
		"Run a fraud-graph analysis on transaction data. "+
			"Reads a transactions CSV (and optionally an accounts CSV with KYC data) "+
			"from local file paths, uploads them to Durin, and returns the analysis "+
			"summary including high-risk account count."),
	mcp.WithString("transactions_path",
		mcp.Required(),
		mcp.Description("Local path to the transactions CSV file")),
	mcp.WithString("accounts_path",
		mcp.Description("Optional local path to an accounts CSV file with KYC records")),
)

var ToolGetLatestAnalysis = mcp.NewTool("get_latest_analysis",
	mcp.WithDescription(
		"Get the most recent fraud analysis: totals, signal counts, and the "+
			"high-risk account list. Use this to see the current state of the graph "+
			"before drilling into individual accounts."),
)

var ToolGetAccountRisk = mcp.NewTool("get_account_risk",
	mcp.WithDescription(
		"Get one account's risk profile from an analysis: its 0-10 score, risk "+
			"bucket (low/medium/high), the fraud signals raised against it with "+
			"evidence, and its graph edges to other accounts."),
	mcp.WithString("account_id",
		mcp.Required(),
		mcp.Description("The account id to look up")),
	mcp.WithString("analysis_id",
		mcp.Description("Analysis to read from. Defaults to the most recent analysis.")),
)

var ToolListHighRisk = mcp.NewTool("list_high_risk",
	mcp.WithDescription(
		"List the accounts flagged high risk in an analysis, ordered by score. "+
			"Each entry shows the account's score and which signal kinds fired."),
	mcp.WithString("analysis_id",
		mcp.Description("Analysis to read from. Defaults to the most recent analysis.")),
)

var ToolExplainAccount = mcp.NewTool("explain_account",
	mcp.WithDescription(
		"Generate a plain-language explanation of why an account was scored the "+
			"way it was, suitable for a compliance reviewer. Identifiers in the "+
			"explanation are masked."),
	mcp.WithString("account_id",
		mcp.Required(),
		mcp.Description("The account id to explain")),
	mcp.WithString("analysis_id",
		mcp.Description("Analysis to read from. Defaults to the most recent analysis.")),
)

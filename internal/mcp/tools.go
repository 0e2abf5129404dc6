package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gateway-fm/dcaload/pkg/types"
)

// maxSampleLines caps the per-block table in run detail output.
const maxSampleLines = 30

// RegisterTools registers all load driver tools on the MCP server.
func RegisterTools(s *server.MCPServer, client *Client) {
	registerStatus(s, client)
	registerHealth(s, client)
	registerHistory(s, client)
	registerRunDetail(s, client)
	registerDeleteRun(s, client)
}

func registerStatus(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("dcaload_status",
		gomcp.WithDescription("Get the live DCA load run: state, current block vs. duration, schedules attempted/submitted/failed, failure breakdown, fees spent and the last burst."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/v1/status")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Load driver unreachable: %v\n\nIs it running with -listen set?", err)), nil
		}
		return gomcp.NewToolResultText(formatStatus(raw)), nil
	})
}

func registerHealth(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("dcaload_health",
		gomcp.WithDescription("Quick readiness check for the load driver. Checks that the chain node still answers RPC."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/ready")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Load driver unhealthy: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHealth(raw)), nil
	})
}

func registerHistory(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("dcaload_history",
		gomcp.WithDescription("List recorded load runs with summary metrics (paginated, newest first)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max results to return (default: 10, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Results offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		offset := req.GetInt("offset", 0)
		path := fmt.Sprintf("/v1/history?limit=%d&offset=%d", limit, offset)

		raw, err := client.Get(ctx, path)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("History failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHistory(raw)), nil
	})
}

func registerRunDetail(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("dcaload_run_detail",
		gomcp.WithDescription("Get a recorded run by ID with its per-block samples (fees, block weight, outcomes)."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		raw, err := client.Get(ctx, "/v1/history/"+url.PathEscape(id))
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Run detail failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatRunDetail(raw)), nil
	})
}

func registerDeleteRun(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("dcaload_delete_run",
		gomcp.WithDescription("Delete a recorded run and its block samples. This is a MUTATING operation."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID to delete"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		_, err = client.Delete(ctx, "/v1/history/"+url.PathEscape(id))
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Delete failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Run Deleted"),
			kv("ID", id),
		)), nil
	})
}

// Response formatting functions

func formatStatus(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing status: %v", err)
	}

	startBlock := getNum(m, "startBlock")
	currentBlock := getNum(m, "currentBlock")
	elapsed := 0.0
	if currentBlock > startBlock {
		elapsed = currentBlock - startBlock
	}

	lines := joinLines(
		section("DCA Load Status"),
		kv("State", getStr(m, "state")),
		kv("Run", getStr(m, "runId")),
		kv("Endpoint", getStr(m, "endpoint")),
		kv("Chain", getStr(m, "chain")),
		kv("Signer", getStr(m, "signer")),
		kv("Blocks", fmt.Sprintf("%s / %s (%s)", formatNumber(elapsed), formatNumber(getNum(m, "durationBlocks")), getStr(m, "stopMode"))),
		kv("Current Block", formatNumber(currentBlock)),
		kv("Bursts", formatNumber(getNum(m, "bursts"))),
		kv("Attempts", formatNumber(getNum(m, "attempts"))),
		kv("Submitted", formatNumber(getNum(m, "submitted"))),
		kv("Failed", formatNumber(getNum(m, "failed"))),
		kv("Success Rate", formatPct(successRate(getNum(m, "submitted"), getNum(m, "attempts")))),
		optional("Total Spent", getStr(m, "totalSpent")),
		optional("Error", getStr(m, "error")),
	)

	if outcomes, ok := m["outcomes"].(map[string]any); ok && len(outcomes) > 0 {
		lines += "\n\n" + section("Outcomes") + "\n" + formatOutcomes(outcomes)
	}

	if lat, ok := m["submitLatency"].(map[string]any); ok {
		lines += "\n\n" + joinLines(
			section("Submission Latency"),
			kv("Min", formatMs(getNum(lat, "min"))),
			kv("P50", formatMs(getNum(lat, "p50"))),
			kv("P95", formatMs(getNum(lat, "p95"))),
			kv("P99", formatMs(getNum(lat, "p99"))),
			kv("Max", formatMs(getNum(lat, "max"))),
		)
	}

	if last, ok := m["lastBurst"].(map[string]any); ok {
		lines += "\n\n" + joinLines(
			section("Last Burst"),
			kv("Block", formatNumber(getNum(last, "block"))),
			kv("Submitted", fmt.Sprintf("%s / %s", formatNumber(getNum(last, "submitted")), formatNumber(getNum(last, "attempts")))),
			kv("Duration", formatMs(getNum(last, "durationMs"))),
			optional("Fee Spent", getStr(last, "feeSpent")),
			optional("Balance", getStr(last, "balance")),
			formatWeight(last),
		)
	}

	return lines
}

func formatHealth(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing health: %v", err)
	}

	ready, _ := m["ready"].(bool)
	state := "READY"
	if !ready {
		state = "NOT READY"
	}

	lines := section("Load Driver Health: " + state)

	if checks, ok := m["checks"].([]any); ok {
		for _, c := range checks {
			if check, ok := c.(map[string]any); ok {
				name := getStr(check, "name")
				status := getStr(check, "status")
				latencyMs := getNum(check, "latency_ms")
				errMsg := getStr(check, "error")
				line := fmt.Sprintf("  %-15s %s (%dms)", name, status, int64(latencyMs))
				if errMsg != "" {
					line += " - " + errMsg
				}
				lines += "\n" + line
			}
		}
	}

	return lines
}

func formatHistory(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing history: %v", err)
	}

	lines := joinLines(
		section("Run History"),
		kv("Total Runs", formatNumber(getNum(m, "total"))),
		"",
	)

	runs, ok := m["runs"].([]any)
	if !ok || len(runs) == 0 {
		lines += "\nNo runs found."
		return lines
	}
	lines += "\n\n"

	for _, r := range runs {
		run, ok := r.(map[string]any)
		if !ok {
			continue
		}
		lines += fmt.Sprintf("### %s\n", getStr(run, "id"))
		lines += joinLines(
			kv("State", getStr(run, "state")),
			kv("Blocks", fmt.Sprintf("%s..%s", formatNumber(getNum(run, "startBlock")), formatNumber(getNum(run, "endBlock")))),
			kv("Bursts", formatNumber(getNum(run, "bursts"))),
			kv("Submitted", fmt.Sprintf("%s / %s", formatNumber(getNum(run, "submitted")), formatNumber(getNum(run, "attempts")))),
			optional("Total Spent", getStr(run, "totalSpent")),
			kv("Started", formatTime(getStr(run, "startedAt"))),
		)
		lines += "\n\n"
	}

	return lines
}

func formatRunDetail(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing run detail: %v", err)
	}

	run, ok := m["run"].(map[string]any)
	if !ok {
		return "Run not found"
	}

	lines := joinLines(
		section("Run: "+getStr(run, "id")),
		kv("State", getStr(run, "state")),
		kv("Endpoint", getStr(run, "endpoint")),
		kv("Chain", getStr(run, "chain")),
		kv("Signer", getStr(run, "signer")),
		kv("Blocks", fmt.Sprintf("%s..%s (duration %s)", formatNumber(getNum(run, "startBlock")), formatNumber(getNum(run, "endBlock")), formatNumber(getNum(run, "durationBlocks")))),
		kv("Bursts", formatNumber(getNum(run, "bursts"))),
		kv("Attempts", formatNumber(getNum(run, "attempts"))),
		kv("Submitted", formatNumber(getNum(run, "submitted"))),
		kv("Failed", formatNumber(getNum(run, "failed"))),
		kv("Initial Balance", getStr(run, "initialBalance")),
		optional("Final Balance", getStr(run, "finalBalance")),
		optional("Total Spent", getStr(run, "totalSpent")),
		kv("Started", formatTime(getStr(run, "startedAt"))),
		optional("Error", getStr(run, "error")),
	)

	samples, _ := m["samples"].([]any)
	if len(samples) == 0 {
		return lines
	}

	lines += "\n\n" + section("Block Samples") + "\n"
	lines += fmt.Sprintf("  %-10s %-9s %-12s %-20s %s\n", "block", "ok/sent", "fee", "ref_time", "proof_size")
	for i, sm := range samples {
		if i >= maxSampleLines {
			lines += fmt.Sprintf("  ... and %d more\n", len(samples)-maxSampleLines)
			break
		}
		sample, ok := sm.(map[string]any)
		if !ok {
			continue
		}
		fee := getStr(sample, "feeSpent")
		if fee == "" {
			fee = "-"
		}
		refTime, proofSize := "-", "-"
		if known, _ := sample["weightKnown"].(bool); known {
			refTime = formatNumber(getNum(sample, "refTime"))
			proofSize = formatNumber(getNum(sample, "proofSize"))
		}
		lines += fmt.Sprintf("  %-10s %-9s %-12s %-20s %s\n",
			formatNumber(getNum(sample, "block")),
			fmt.Sprintf("%d/%d", int64(getNum(sample, "submitted")), int64(getNum(sample, "attempts"))),
			fee, refTime, proofSize)
	}

	return lines
}

// formatOutcomes lists non-zero outcome counts in reporting order.
func formatOutcomes(outcomes map[string]any) string {
	lines := make([]string, 0, len(types.AllOutcomes))
	for _, o := range types.AllOutcomes {
		if n := getNum(outcomes, string(o)); n > 0 {
			lines = append(lines, kv(string(o), formatNumber(n)))
		}
	}
	return joinLines(lines...)
}

func formatWeight(burst map[string]any) string {
	if known, _ := burst["weightKnown"].(bool); !known {
		return kv("Block Weight", "unknown")
	}
	return kv("Block Weight", fmt.Sprintf("ref_time=%s proof_size=%s",
		formatNumber(getNum(burst, "refTime")), formatNumber(getNum(burst, "proofSize"))))
}

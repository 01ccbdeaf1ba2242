package mcpapi

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/evanschultz/waymark/internal/adapters/storage/sqlite"
	"github.com/evanschultz/waymark/internal/app"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
	Error  map[string]any `json:"error"`
}

// newTestServer builds a server over an in-memory ledger with a fixed clock.
func newTestServer(t *testing.T) *mcpserver.MCPServer {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	svc := app.NewService(repo, func() time.Time { return time.UnixMilli(500_000) }, app.ServiceConfig{AutoCreateNodes: true})
	srv, err := NewServer(Config{}, svc)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

// handle sends one JSON-RPC payload through the server and decodes the response.
func handle(t *testing.T, srv *mcpserver.MCPServer, payload map[string]any) jsonRPCResponse {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	reply := srv.HandleMessage(context.Background(), raw)
	encoded, err := json.Marshal(reply)
	if err != nil {
		t.Fatalf("Marshal(reply) error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return decoded
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// callTool invokes one tool and returns its first text block and error flag.
func callTool(t *testing.T, srv *mcpserver.MCPServer, name string, args map[string]any) (string, bool) {
	t.Helper()
	resp := handle(t, srv, callToolRequest(7, name, args))
	if resp.Error != nil {
		t.Fatalf("%s returned JSON-RPC error %#v", name, resp.Error)
	}
	contentRaw, ok := resp.Result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", resp.Result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, _ := first["text"].(string)
	isError, _ := resp.Result["isError"].(bool)
	return text, isError
}

// mustCallTool invokes a tool that must succeed and decodes its JSON payload.
func mustCallTool(t *testing.T, srv *mcpserver.MCPServer, name string, args map[string]any, out any) {
	t.Helper()
	text, isError := callTool(t, srv, name, args)
	if isError {
		t.Fatalf("%s failed: %s", name, text)
	}
	if out == nil {
		return
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("decode %s result %q: %v", name, text, err)
	}
}

// TestServerRegistersLedgerTools verifies tool discovery lists every ledger tool.
func TestServerRegistersLedgerTools(t *testing.T) {
	srv := newTestServer(t)
	resp := handle(t, srv, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	toolsRaw, ok := resp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools missing: %#v", resp)
	}
	names := []string{}
	for _, raw := range toolsRaw {
		if tool, ok := raw.(map[string]any); ok {
			names = append(names, tool["name"].(string))
		}
	}
	for _, want := range []string{
		"waymark.start_sequence", "waymark.finish_sequence", "waymark.sequence_summary",
		"waymark.open_interval", "waymark.close_interval", "waymark.advance",
		"waymark.list_nodes", "waymark.list_intervals", "waymark.recent_changes",
	} {
		if !slices.Contains(names, want) {
			t.Fatalf("tool %q not registered; got %v", want, names)
		}
	}
}

// TestServerEpisodeFlow verifies the start, open, advance, close, finish scenario over tool calls.
func TestServerEpisodeFlow(t *testing.T) {
	srv := newTestServer(t)

	var seq sequenceView
	mustCallTool(t, srv, "waymark.start_sequence", nil, &seq)
	if seq.ID == 0 || seq.Status != "active" {
		t.Fatalf("unexpected sequence %#v", seq)
	}

	var opened intervalView
	mustCallTool(t, srv, "waymark.open_interval", map[string]any{"node": "A", "timestamp": 0}, &opened)
	if !opened.Open || opened.StartTime != 0 {
		t.Fatalf("unexpected opened interval %#v", opened)
	}

	var advanced struct {
		Closed intervalView `json:"closed"`
		Opened intervalView `json:"opened"`
	}
	mustCallTool(t, srv, "waymark.advance", map[string]any{"node": "B", "timestamp": 100}, &advanced)
	if advanced.Closed.ID != opened.ID || advanced.Closed.EndTime == nil || *advanced.Closed.EndTime != 100 {
		t.Fatalf("unexpected closed interval %#v", advanced.Closed)
	}
	if advanced.Opened.StartTime != 100 || !advanced.Opened.Open {
		t.Fatalf("unexpected opened interval %#v", advanced.Opened)
	}

	text, isError := callTool(t, srv, "waymark.finish_sequence", nil)
	if !isError || !strings.HasPrefix(text, "conflict:") {
		t.Fatalf("expected conflict finishing with an open interval, got %q", text)
	}

	mustCallTool(t, srv, "waymark.close_interval", map[string]any{"node": "B", "timestamp": 150}, nil)
	mustCallTool(t, srv, "waymark.finish_sequence", map[string]any{"sequence_id": seq.ID}, &seq)
	if seq.Status != "finished" {
		t.Fatalf("expected finished sequence, got %#v", seq)
	}

	var summary summaryView
	mustCallTool(t, srv, "waymark.sequence_summary", map[string]any{"sequence_id": seq.ID}, &summary)
	if len(summary.Intervals) != 2 || summary.Open || summary.TotalMS != 150 {
		t.Fatalf("unexpected summary %#v", summary)
	}
	if len(summary.Dwell) != 2 || summary.Dwell[0].Node != "A" || summary.Dwell[0].DurationMS != 100 {
		t.Fatalf("unexpected dwell %#v", summary.Dwell)
	}

	var listed struct {
		Intervals []intervalView `json:"intervals"`
	}
	mustCallTool(t, srv, "waymark.list_intervals", map[string]any{"from": 120}, &listed)
	if len(listed.Intervals) != 1 || listed.Intervals[0].StartTime != 100 {
		t.Fatalf("unexpected range query %#v", listed.Intervals)
	}

	var changes struct {
		Events []map[string]any `json:"events"`
	}
	mustCallTool(t, srv, "waymark.recent_changes", map[string]any{"limit": 1}, &changes)
	if len(changes.Events) != 1 || changes.Events[0]["table"] != "sequences" {
		t.Fatalf("unexpected recent changes %#v", changes.Events)
	}
}

// TestServerToolErrors verifies argument and service failures become tool errors.
func TestServerToolErrors(t *testing.T) {
	srv := newTestServer(t)

	text, isError := callTool(t, srv, "waymark.open_interval", map[string]any{"node": "  "})
	if !isError || !strings.HasPrefix(text, "invalid_request:") {
		t.Fatalf("expected invalid_request for blank node, got %q", text)
	}
	text, isError = callTool(t, srv, "waymark.open_interval", map[string]any{"node": "A"})
	if !isError || !strings.HasPrefix(text, "not_found:") {
		t.Fatalf("expected not_found without an active sequence, got %q", text)
	}
	text, isError = callTool(t, srv, "waymark.sequence_summary", map[string]any{"sequence_id": 99})
	if !isError || !strings.HasPrefix(text, "not_found:") {
		t.Fatalf("expected not_found for unknown sequence, got %q", text)
	}
}

// TestNewServerRequiresService verifies construction fails without a ledger.
func TestNewServerRequiresService(t *testing.T) {
	if _, err := NewServer(Config{}, nil); err == nil {
		t.Fatal("expected error for nil service")
	}
}

// Package mcpapi exposes the ledger as MCP tools over stdio.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/evanschultz/waymark/internal/app"
	"github.com/evanschultz/waymark/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP server identity.
type Config struct {
	ServerName    string
	ServerVersion string
}

// LedgerService is the slice of app.Service the tools call.
type LedgerService interface {
	Now() int64
	ListNodes(context.Context) ([]domain.Node, error)
	StartSequence(context.Context) (domain.Sequence, error)
	FinishSequence(context.Context, int64) (domain.Sequence, error)
	ActiveSequence(context.Context) (domain.Sequence, bool, error)
	SummarizeSequence(context.Context, int64) (app.SequenceSummary, error)
	OpenIntervalByName(context.Context, string, int64, int64) (domain.Interval, error)
	CloseOpenIntervalByName(context.Context, string, int64) (domain.Interval, error)
	AdvanceByName(context.Context, string, int64) (app.AdvanceResult, error)
	QueryIntervals(context.Context, app.IntervalFilter) iter.Seq2[domain.Interval, error]
	ListChangeEvents(context.Context, int) ([]domain.ChangeEvent, error)
}

// NewServer builds an MCP server with every ledger tool registered.
func NewServer(cfg Config, svc LedgerService) (*mcpserver.MCPServer, error) {
	if svc == nil {
		return nil, errors.New("ledger service is required")
	}
	cfg = normalizeConfig(cfg)
	srv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerSequenceTools(srv, svc)
	registerIntervalTools(srv, svc)
	registerQueryTools(srv, svc)
	return srv, nil
}

// ServeStdio runs srv on stdin/stdout until the client disconnects.
func ServeStdio(srv *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(srv)
}

// normalizeConfig applies deterministic defaults to MCP server config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "waymark"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	return cfg
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, app.ErrValidation):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, app.ErrConflict):
		return mcp.NewToolResultError("conflict: " + err.Error())
	case errors.Is(err, app.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}

// invalidRequestToolResult reports malformed tool arguments.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}

// jsonResult encodes out as a JSON tool result.
func jsonResult(tool string, out any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(out)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

package mcpapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanschultz/waymark/internal/app"
	"github.com/evanschultz/waymark/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

type sequenceView struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type intervalView struct {
	ID          int64  `json:"id"`
	SequenceID  int64  `json:"sequence_id"`
	StartTime   int64  `json:"start_time"`
	StartNodeID int64  `json:"start_node_id"`
	EndTime     *int64 `json:"end_time,omitempty"`
	EndNodeID   *int64 `json:"end_node_id,omitempty"`
	Open        bool   `json:"open"`
}

type dwellView struct {
	Node       string `json:"node"`
	Visits     int    `json:"visits"`
	DurationMS int64  `json:"duration_ms"`
}

type summaryView struct {
	Sequence  sequenceView   `json:"sequence"`
	Intervals []intervalView `json:"intervals"`
	Dwell     []dwellView    `json:"dwell"`
	StartTime int64          `json:"start_time"`
	EndTime   int64          `json:"end_time"`
	Open      bool           `json:"open"`
	TotalMS   int64          `json:"total_ms"`
}

func toSequenceView(seq domain.Sequence) sequenceView {
	return sequenceView{ID: seq.ID, Status: seq.Status.String()}
}

func toIntervalView(in domain.Interval) intervalView {
	out := intervalView{
		ID:          in.ID,
		SequenceID:  in.SequenceID,
		StartTime:   in.StartTime,
		StartNodeID: in.StartNodeID,
		Open:        in.IsOpen(),
	}
	if end, node, ok := in.End.Closed(); ok {
		out.EndTime = &end
		out.EndNodeID = &node
	}
	return out
}

func toSummaryView(sum app.SequenceSummary) summaryView {
	out := summaryView{
		Sequence:  toSequenceView(sum.Sequence),
		Intervals: make([]intervalView, 0, len(sum.Intervals)),
		Dwell:     make([]dwellView, 0, len(sum.Dwell)),
		StartTime: sum.StartTime,
		EndTime:   sum.EndTime,
		Open:      sum.Open,
		TotalMS:   sum.Total,
	}
	for _, interval := range sum.Intervals {
		out.Intervals = append(out.Intervals, toIntervalView(interval))
	}
	for _, dwell := range sum.Dwell {
		out.Dwell = append(out.Dwell, dwellView{Node: dwell.Node.Name, Visits: dwell.Visits, DurationMS: dwell.Duration})
	}
	return out
}

// resolveSequence returns id, or the active sequence id when id is zero.
func resolveSequence(ctx context.Context, svc LedgerService, id int64) (int64, error) {
	if id != 0 {
		return id, nil
	}
	seq, ok, err := svc.ActiveSequence(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %w", app.ErrNotFound, app.ErrNoActiveSequence)
	}
	return seq.ID, nil
}

// registerSequenceTools registers lifecycle tools.
func registerSequenceTools(srv *mcpserver.MCPServer, svc LedgerService) {
	srv.AddTool(
		mcp.NewTool(
			"waymark.start_sequence",
			mcp.WithDescription("Start a new ACTIVE sequence. Fails while another sequence is active."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			seq, err := svc.StartSequence(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("start_sequence", toSequenceView(seq))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"waymark.finish_sequence",
			mcp.WithDescription("Finish a sequence whose trailing interval is closed."),
			mcp.WithNumber("sequence_id", mcp.Description("Sequence id (defaults to the active sequence)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := resolveSequence(ctx, svc, int64(req.GetInt("sequence_id", 0)))
			if err != nil {
				return toolResultFromError(err), nil
			}
			seq, err := svc.FinishSequence(ctx, id)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("finish_sequence", toSequenceView(seq))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"waymark.sequence_summary",
			mcp.WithDescription("Summarize one sequence: intervals, per-node dwell and totals."),
			mcp.WithNumber("sequence_id", mcp.Description("Sequence id (defaults to the active sequence)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := resolveSequence(ctx, svc, int64(req.GetInt("sequence_id", 0)))
			if err != nil {
				return toolResultFromError(err), nil
			}
			sum, err := svc.SummarizeSequence(ctx, id)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("sequence_summary", toSummaryView(sum))
		},
	)
}

// intervalArgs are the shared arguments of the interval write tools.
type intervalArgs struct {
	Node       string `json:"node"`
	Timestamp  *int64 `json:"timestamp"`
	SequenceID int64  `json:"sequence_id"`
}

// bindIntervalArgs decodes and checks interval tool arguments. A missing timestamp means now.
func bindIntervalArgs(req mcp.CallToolRequest, svc LedgerService) (intervalArgs, int64, *mcp.CallToolResult) {
	var args intervalArgs
	if err := req.BindArguments(&args); err != nil {
		return intervalArgs{}, 0, invalidRequestToolResult(err)
	}
	if strings.TrimSpace(args.Node) == "" {
		return intervalArgs{}, 0, mcp.NewToolResultError(`invalid_request: required argument "node" not found`)
	}
	ts := svc.Now()
	if args.Timestamp != nil {
		ts = *args.Timestamp
	}
	return args, ts, nil
}

// registerIntervalTools registers open, close and advance.
func registerIntervalTools(srv *mcpserver.MCPServer, svc LedgerService) {
	srv.AddTool(
		mcp.NewTool(
			"waymark.open_interval",
			mcp.WithDescription("Open an interval starting at a node."),
			mcp.WithString("node", mcp.Required(), mcp.Description("Start node name")),
			mcp.WithNumber("timestamp", mcp.Description("Unix milliseconds (defaults to now)")),
			mcp.WithNumber("sequence_id", mcp.Description("Sequence id (defaults to the active sequence)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, ts, bad := bindIntervalArgs(req, svc)
			if bad != nil {
				return bad, nil
			}
			interval, err := svc.OpenIntervalByName(ctx, args.Node, ts, args.SequenceID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("open_interval", toIntervalView(interval))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"waymark.close_interval",
			mcp.WithDescription("Close the open interval of the active sequence at a node."),
			mcp.WithString("node", mcp.Required(), mcp.Description("End node name")),
			mcp.WithNumber("timestamp", mcp.Description("Unix milliseconds (defaults to now)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, ts, bad := bindIntervalArgs(req, svc)
			if bad != nil {
				return bad, nil
			}
			interval, err := svc.CloseOpenIntervalByName(ctx, args.Node, ts)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("close_interval", toIntervalView(interval))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"waymark.advance",
			mcp.WithDescription("Close the open interval at a node and open the next one there, atomically."),
			mcp.WithString("node", mcp.Required(), mcp.Description("Next node name")),
			mcp.WithNumber("timestamp", mcp.Description("Unix milliseconds (defaults to now)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, ts, bad := bindIntervalArgs(req, svc)
			if bad != nil {
				return bad, nil
			}
			res, err := svc.AdvanceByName(ctx, args.Node, ts)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("advance", map[string]any{
				"closed": toIntervalView(res.Closed),
				"opened": toIntervalView(res.Opened),
			})
		},
	)
}

// registerQueryTools registers read-only tools.
func registerQueryTools(srv *mcpserver.MCPServer, svc LedgerService) {
	srv.AddTool(
		mcp.NewTool(
			"waymark.list_nodes",
			mcp.WithDescription("List every node."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			nodes, err := svc.ListNodes(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			rows := make([]map[string]any, 0, len(nodes))
			for _, node := range nodes {
				rows = append(rows, map[string]any{"id": node.ID, "name": node.Name})
			}
			return jsonResult("list_nodes", map[string]any{"nodes": rows})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"waymark.list_intervals",
			mcp.WithDescription("List intervals ordered by start time."),
			mcp.WithNumber("sequence_id", mcp.Description("Only intervals in this sequence")),
			mcp.WithNumber("node_id", mcp.Description("Only intervals starting or ending at this node")),
			mcp.WithNumber("from", mcp.Description("Only intervals overlapping from this time (unix ms)")),
			mcp.WithNumber("to", mcp.Description("Only intervals overlapping before this time (unix ms)")),
			mcp.WithBoolean("open_only", mcp.Description("Only open intervals")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				SequenceID int64  `json:"sequence_id"`
				NodeID     int64  `json:"node_id"`
				From       *int64 `json:"from"`
				To         *int64 `json:"to"`
				OpenOnly   bool   `json:"open_only"`
				Limit      int    `json:"limit"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			rows := []intervalView{}
			for interval, err := range svc.QueryIntervals(ctx, app.IntervalFilter{
				SequenceID: args.SequenceID,
				NodeID:     args.NodeID,
				From:       args.From,
				To:         args.To,
				OpenOnly:   args.OpenOnly,
				Limit:      args.Limit,
			}) {
				if err != nil {
					return toolResultFromError(err), nil
				}
				rows = append(rows, toIntervalView(interval))
			}
			return jsonResult("list_intervals", map[string]any{"intervals": rows})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"waymark.recent_changes",
			mcp.WithDescription("List recent ledger changes, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			events, err := svc.ListChangeEvents(ctx, req.GetInt("limit", 25))
			if err != nil {
				return toolResultFromError(err), nil
			}
			rows := make([]map[string]any, 0, len(events))
			for _, event := range events {
				rows = append(rows, map[string]any{
					"id":          event.ID,
					"table":       string(event.Table),
					"operation":   string(event.Operation),
					"row_id":      event.RowID,
					"occurred_at": event.OccurredAt,
				})
			}
			return jsonResult("recent_changes", map[string]any{"events": rows})
		},
	)
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/evanschultz/waymark/internal/adapters/server/mcpapi"
	"github.com/evanschultz/waymark/internal/adapters/storage/sqlite"
	"github.com/evanschultz/waymark/internal/app"
	"github.com/evanschultz/waymark/internal/display"
	"github.com/evanschultz/waymark/internal/domain"
	"github.com/evanschultz/waymark/internal/tui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newPathsCommand prints resolved runtime paths.
func newPathsCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show config, data and log locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", c.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", c.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", c.configPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", c.paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", c.cfg.Database.Path)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", c.paths.LogDir)
			return nil
		},
	}
}

// newMigrateCommand exposes schema evolution without opening the ledger.
func newMigrateCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or evolve the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List known migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withMigrator(func(m *sqlite.Migrator) error {
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, status := range statuses {
					state := "pending"
					if status.Applied {
						state = "applied " + status.AppliedAt.Format("2006-01-02 15:04:05")
					}
					_, _ = fmt.Fprintf(out, "%3d  %-28s %s\n", status.Version, status.Name, state)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withMigrator(func(m *sqlite.Migrator) error {
				count, err := m.Up(cmd.Context())
				if err != nil {
					return err
				}
				version, err := m.Version(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s); schema version %d\n", count, version)
				return nil
			})
		},
	})
	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert the newest applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withMigrator(func(m *sqlite.Migrator) error {
				count, err := m.Down(cmd.Context(), steps)
				if err != nil {
					return err
				}
				version, err := m.Version(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reverted %d migration(s); schema version %d\n", count, version)
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	cmd.AddCommand(down)
	return cmd
}

// newNodeCommand manages the node registry.
func newNodeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Manage nodes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(func(svc *app.Service) error {
				node, err := svc.CreateNode(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "node %d %s\n", node.ID, node.Name)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("node", args[0])
			if err != nil {
				return err
			}
			return c.withService(func(svc *app.Service) error {
				node, err := svc.RenameNode(cmd.Context(), id, args[1])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "node %d %s\n", node.ID, node.Name)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(func(svc *app.Service) error {
				nodes, err := svc.ListNodes(cmd.Context())
				if err != nil {
					return err
				}
				for _, node := range nodes {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", node.ID, node.Name)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a node that no interval references",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("node", args[0])
			if err != nil {
				return err
			}
			return c.withService(func(svc *app.Service) error {
				if err := svc.DeleteNode(cmd.Context(), id); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted node %d\n", id)
				return nil
			})
		},
	})
	return cmd
}

// newSeqCommand drives the sequence lifecycle.
func newSeqCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "seq",
		Aliases: []string{"sequence"},
		Short:   "Manage sequences",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start a new active sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(func(svc *app.Service) error {
				seq, err := svc.StartSequence(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sequence %d %s\n", seq.ID, seq.Status)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "finish [id]",
		Short: "Finish a sequence (the active one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(func(svc *app.Service) error {
				id, err := sequenceArg(cmd, svc, args)
				if err != nil {
					return err
				}
				seq, err := svc.FinishSequence(cmd.Context(), id)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sequence %d %s\n", seq.ID, seq.Status)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Describe the active sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(func(svc *app.Service) error {
				seq, ok, err := svc.ActiveSequence(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !ok {
					_, _ = fmt.Fprintln(out, "no active sequence")
					return nil
				}
				sum, err := svc.SummarizeSequence(cmd.Context(), seq.ID)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "sequence %d %s\n", seq.ID, seq.Status)
				_, _ = fmt.Fprintf(out, "intervals: %d\n", len(sum.Intervals))
				if len(sum.Intervals) == 0 {
					return nil
				}
				_, _ = fmt.Fprintf(out, "started: %s\n", c.formatter.Time(sum.StartTime))
				_, _ = fmt.Fprintf(out, "total: %s\n", display.FormatDuration(sum.Total))
				last := sum.Intervals[len(sum.Intervals)-1]
				if last.IsOpen() {
					_, _ = fmt.Fprintf(out, "at: %s for %s\n", sum.NodeName(last.StartNodeID), display.FormatDuration(last.Duration(svc.Now())))
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sequences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(func(svc *app.Service) error {
				sequences, err := svc.ListSequences(cmd.Context())
				if err != nil {
					return err
				}
				for _, seq := range sequences {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", seq.ID, seq.Status)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reverse <id>",
		Short: "Delete a sequence and all of its intervals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("sequence", args[0])
			if err != nil {
				return err
			}
			return c.withService(func(svc *app.Service) error {
				if err := svc.ReverseSequence(cmd.Context(), id); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reversed sequence %d\n", id)
				return nil
			})
		},
	})
	var (
		style string
		width int
		raw   bool
	)
	report := &cobra.Command{
		Use:   "report [id]",
		Short: "Render a sequence report (the active or latest one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(func(svc *app.Service) error {
				id, err := reportSequenceArg(cmd, svc, args)
				if err != nil {
					return err
				}
				sum, err := svc.SummarizeSequence(cmd.Context(), id)
				if err != nil {
					return err
				}
				md := display.SequenceReport(sum, c.formatter)
				if !raw {
					md = display.NewMarkdownRenderer(style).Render(md, width)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), md)
				return nil
			})
		},
	}
	report.Flags().StringVar(&style, "style", "dark", "glamour style (dark, light, notty)")
	report.Flags().IntVar(&width, "width", 80, "wrap width")
	report.Flags().BoolVar(&raw, "raw", false, "print markdown without rendering")
	cmd.AddCommand(report)
	return cmd
}

// newOpenCommand starts an interval at a node.
func newOpenCommand(c *cli) *cobra.Command {
	var (
		at    string
		seqID int64
	)
	cmd := &cobra.Command{
		Use:   "open <node>",
		Short: "Open an interval starting at a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := parseTimestamp(at, c.now)
			if err != nil {
				return err
			}
			return c.withService(func(svc *app.Service) error {
				interval, err := svc.OpenIntervalByName(cmd.Context(), args[0], ts, seqID)
				if err != nil {
					return err
				}
				c.logger.Info("interval opened", "interval_id", interval.ID, "sequence_id", interval.SequenceID, "node", args[0])
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "opened interval %d at %s\n", interval.ID, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "timestamp (unix ms or RFC3339, default now)")
	cmd.Flags().Int64Var(&seqID, "seq", 0, "sequence id (default the active one)")
	return cmd
}

// newCloseCommand ends the open interval at a node.
func newCloseCommand(c *cli) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "close <node>",
		Short: "Close the open interval at a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := parseTimestamp(at, c.now)
			if err != nil {
				return err
			}
			return c.withService(func(svc *app.Service) error {
				interval, err := svc.CloseOpenIntervalByName(cmd.Context(), args[0], ts)
				if err != nil {
					return err
				}
				c.logger.Info("interval closed", "interval_id", interval.ID, "node", args[0])
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "closed interval %d at %s after %s\n",
					interval.ID, args[0], display.FormatDuration(interval.Duration(ts)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "timestamp (unix ms or RFC3339, default now)")
	return cmd
}

// newAdvanceCommand closes the open interval and opens the next one in one step.
func newAdvanceCommand(c *cli) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "advance <node>",
		Short: "Close the open interval at a node and open the next one there",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := parseTimestamp(at, c.now)
			if err != nil {
				return err
			}
			return c.withService(func(svc *app.Service) error {
				res, err := svc.AdvanceByName(cmd.Context(), args[0], ts)
				if err != nil {
					return err
				}
				c.logger.Info("interval advanced", "closed_id", res.Closed.ID, "opened_id", res.Opened.ID, "node", args[0])
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "closed interval %d, opened interval %d at %s\n", res.Closed.ID, res.Opened.ID, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "timestamp (unix ms or RFC3339, default now)")
	return cmd
}

// intervalRecord is the list output row for json and yaml.
type intervalRecord struct {
	ID         int64  `json:"id" yaml:"id"`
	SequenceID int64  `json:"sequence_id" yaml:"sequence_id"`
	StartTime  int64  `json:"start_time" yaml:"start_time"`
	StartNode  string `json:"start_node" yaml:"start_node"`
	EndTime    *int64 `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	EndNode    string `json:"end_node,omitempty" yaml:"end_node,omitempty"`
	DurationMS int64  `json:"duration_ms" yaml:"duration_ms"`
}

// newListCommand queries intervals.
func newListCommand(c *cli) *cobra.Command {
	var (
		nodeName string
		seqID    int64
		from     string
		to       string
		openOnly bool
		limit    int
		format   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List intervals ordered by start time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			switch format {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("unsupported format %q", format)
			}
			filter := app.IntervalFilter{SequenceID: seqID, OpenOnly: openOnly, Limit: limit}
			var err error
			if filter.From, err = parseOptionalTimestamp(from); err != nil {
				return err
			}
			if filter.To, err = parseOptionalTimestamp(to); err != nil {
				return err
			}
			return c.withService(func(svc *app.Service) error {
				ctx := cmd.Context()
				nodes, err := svc.ListNodes(ctx)
				if err != nil {
					return err
				}
				names := make(map[int64]string, len(nodes))
				for _, node := range nodes {
					names[node.ID] = node.Name
				}
				if nodeName != "" {
					node, err := svc.FindNodeByName(ctx, nodeName)
					if err != nil {
						return err
					}
					filter.NodeID = node.ID
				}
				now := svc.Now()
				records := []intervalRecord{}
				for interval, err := range svc.QueryIntervals(ctx, filter) {
					if err != nil {
						return err
					}
					records = append(records, toIntervalRecord(interval, names, now))
				}
				return writeIntervals(cmd.OutOrStdout(), format, records, c.formatter)
			})
		},
	}
	cmd.Flags().StringVar(&nodeName, "node", "", "only intervals starting or ending at this node")
	cmd.Flags().Int64Var(&seqID, "seq", 0, "only intervals in this sequence")
	cmd.Flags().StringVar(&from, "from", "", "only intervals overlapping from this time")
	cmd.Flags().StringVar(&to, "to", "", "only intervals overlapping before this time")
	cmd.Flags().BoolVar(&openOnly, "open", false, "only open intervals")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 for all)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text|json|yaml")
	return cmd
}

func toIntervalRecord(interval domain.Interval, names map[int64]string, now int64) intervalRecord {
	rec := intervalRecord{
		ID:         interval.ID,
		SequenceID: interval.SequenceID,
		StartTime:  interval.StartTime,
		StartNode:  names[interval.StartNodeID],
		DurationMS: interval.Duration(now),
	}
	if end, endNode, ok := interval.End.Closed(); ok {
		rec.EndTime = &end
		rec.EndNode = names[endNode]
	}
	return rec
}

// writeIntervals renders list output in the requested format.
func writeIntervals(out io.Writer, format string, records []intervalRecord, f display.Formatter) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "no intervals")
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "SEQ", "DAY", "START", "FROM", "TO", "END", "DURATION")
	for _, rec := range records {
		to, end := "…", "open"
		if rec.EndTime != nil {
			to = rec.EndNode
			end = f.Clock(*rec.EndTime)
		}
		t.Row(
			strconv.FormatInt(rec.ID, 10),
			strconv.FormatInt(rec.SequenceID, 10),
			f.Day(rec.StartTime),
			f.Clock(rec.StartTime),
			rec.StartNode,
			to,
			end,
			display.FormatDuration(rec.DurationMS),
		)
	}
	_, err := fmt.Fprintln(out, t.String())
	return err
}

// newLogCommand prints the change-event activity log.
func newLogCommand(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent ledger changes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(func(svc *app.Service) error {
				events, err := svc.ListChangeEvents(cmd.Context(), limit)
				if err != nil {
					return err
				}
				for _, event := range events {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s %s #%d\t%s\n",
						event.ID, event.Operation, event.Table, event.RowID, c.formatter.Time(event.OccurredAt))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events (-1 for all)")
	return cmd
}

// newExportCommand writes a ledger snapshot.
func newExportCommand(c *cli) *cobra.Command {
	var (
		outPath string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the whole ledger as a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(func(svc *app.Service) error {
				snap, err := svc.ExportSnapshot(cmd.Context())
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				encoded, err := encodeSnapshot(snap, snapshotFormat(format, outPath))
				if err != nil {
					return err
				}
				if outPath == "-" {
					if _, err := cmd.OutOrStdout().Write(encoded); err != nil {
						return fmt.Errorf("write snapshot to stdout: %w", err)
					}
					return nil
				}
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return fmt.Errorf("create export output dir: %w", err)
				}
				if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				c.logger.Info("snapshot exported", "path", outPath, "intervals", len(snap.Intervals))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	cmd.Flags().StringVar(&format, "format", "", "json|yaml (default from the file extension, else json)")
	return cmd
}

// newImportCommand loads a snapshot into an empty ledger.
func newImportCommand(c *cli) *cobra.Command {
	var (
		inPath string
		format string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a snapshot into an empty ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inPath == "" {
				return errors.New("--in is required")
			}
			content, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			snap, err := decodeSnapshot(content, snapshotFormat(format, inPath))
			if err != nil {
				return err
			}
			return c.withService(func(svc *app.Service) error {
				if err := svc.ImportSnapshot(cmd.Context(), snap); err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d node(s), %d sequence(s), %d interval(s)\n",
					len(snap.Nodes), len(snap.Sequences), len(snap.Intervals))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot file")
	cmd.Flags().StringVar(&format, "format", "", "json|yaml (default from the file extension, else json)")
	return cmd
}

// snapshotFormat picks the explicit format or infers it from the path.
func snapshotFormat(explicit, path string) string {
	if f := strings.ToLower(strings.TrimSpace(explicit)); f != "" {
		return f
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	}
	return "json"
}

func encodeSnapshot(snap app.Snapshot, format string) ([]byte, error) {
	switch format {
	case "json":
		encoded, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode snapshot json: %w", err)
		}
		return append(encoded, '\n'), nil
	case "yaml":
		encoded, err := yaml.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot yaml: %w", err)
		}
		return encoded, nil
	}
	return nil, fmt.Errorf("unsupported snapshot format %q", format)
}

func decodeSnapshot(content []byte, format string) (app.Snapshot, error) {
	var snap app.Snapshot
	switch format {
	case "json":
		if err := json.Unmarshal(content, &snap); err != nil {
			return app.Snapshot{}, fmt.Errorf("decode snapshot json: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(content, &snap); err != nil {
			return app.Snapshot{}, fmt.Errorf("decode snapshot yaml: %w", err)
		}
	default:
		return app.Snapshot{}, fmt.Errorf("unsupported snapshot format %q", format)
	}
	return snap, nil
}

// newWatchCommand runs the live ledger view.
func newWatchCommand(c *cli) *cobra.Command {
	var style string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the ledger live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(func(svc *app.Service) error {
				// Runtime logs stay in the dev-file sink while the view owns the terminal.
				c.logger.SetConsoleEnabled(false)
				defer c.logger.SetConsoleEnabled(true)

				m := tui.NewModel(svc,
					tui.WithFormatter(c.formatter),
					tui.WithMarkdownStyle(style),
				)
				defer m.Close()
				c.logger.Info("starting tui program loop")
				if _, err := programFactory(m).Run(); err != nil {
					c.logger.Error("tui program terminated with error", "err", err)
					return fmt.Errorf("run tui program: %w", err)
				}
				c.logger.Info("command flow complete", "command", "watch")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&style, "style", "dark", "glamour style for the report pane")
	return cmd
}

// mcpServe stores a package-level helper value.
var mcpServe = mcpapi.ServeStdio

// newMCPCommand serves ledger tools to an MCP client over stdio.
func newMCPCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve ledger tools to an MCP client over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(func(svc *app.Service) error {
				// Stdout carries the protocol.
				c.logger.SetConsoleEnabled(false)
				defer c.logger.SetConsoleEnabled(true)

				srv, err := mcpapi.NewServer(mcpapi.Config{ServerName: c.appName, ServerVersion: version}, svc)
				if err != nil {
					return err
				}
				c.logger.Info("mcp stdio server starting", "db_path", c.cfg.Database.Path)
				if err := mcpServe(srv); err != nil {
					c.logger.Error("mcp stdio server failed", "err", err)
					return fmt.Errorf("serve mcp: %w", err)
				}
				return nil
			})
		},
	}
}

// sequenceArg resolves an optional id argument, defaulting to the active sequence.
func sequenceArg(cmd *cobra.Command, svc *app.Service, args []string) (int64, error) {
	if len(args) == 1 {
		return parseID("sequence", args[0])
	}
	seq, ok, err := svc.ActiveSequence(cmd.Context())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %w", app.ErrNotFound, app.ErrNoActiveSequence)
	}
	return seq.ID, nil
}

// reportSequenceArg is sequenceArg falling back to the newest sequence.
func reportSequenceArg(cmd *cobra.Command, svc *app.Service, args []string) (int64, error) {
	if len(args) == 1 {
		return parseID("sequence", args[0])
	}
	if seq, ok, err := svc.ActiveSequence(cmd.Context()); err != nil {
		return 0, err
	} else if ok {
		return seq.ID, nil
	}
	sequences, err := svc.ListSequences(cmd.Context())
	if err != nil {
		return 0, err
	}
	if len(sequences) == 0 {
		return 0, fmt.Errorf("%w: no sequences", app.ErrNotFound)
	}
	return sequences[len(sequences)-1].ID, nil
}

package app

import (
	"context"

	"github.com/evanschultz/waymark/internal/domain"
)

// NodeDwell totals the time a sequence spent at one node.
type NodeDwell struct {
	Node     domain.Node
	Duration int64
	Visits   int
}

// SequenceSummary describes one episode for reports and views.
type SequenceSummary struct {
	Sequence  domain.Sequence
	Intervals []domain.Interval
	Nodes     map[int64]domain.Node
	// Dwell is ordered by each node's first visit.
	Dwell     []NodeDwell
	StartTime int64
	EndTime   int64
	Open      bool
	Total     int64
}

// NodeName returns the display name for id, or "" when unknown.
func (s SequenceSummary) NodeName(id int64) string {
	return s.Nodes[id].Name
}

// SummarizeSequence totals the sequence's intervals. Open intervals are measured up to now.
func (s *Service) SummarizeSequence(ctx context.Context, sequenceID int64) (SequenceSummary, error) {
	now := s.Now()
	var out SequenceSummary
	err := s.read(ctx, func(tx Store) error {
		seq, err := tx.GetSequence(ctx, sequenceID)
		if err != nil {
			return notFound(err, "sequence", sequenceID)
		}
		intervals, err := tx.ListIntervals(ctx, IntervalFilter{SequenceID: sequenceID})
		if err != nil {
			return err
		}
		nodes, err := tx.ListNodes(ctx)
		if err != nil {
			return err
		}
		out = summarize(seq, intervals, nodes, now)
		return nil
	})
	if err != nil {
		return SequenceSummary{}, err
	}
	return out, nil
}

// summarize builds a summary from intervals sorted by start time.
func summarize(seq domain.Sequence, intervals []domain.Interval, nodes []domain.Node, now int64) SequenceSummary {
	byID := make(map[int64]domain.Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}
	out := SequenceSummary{
		Sequence:  seq,
		Intervals: intervals,
		Nodes:     byID,
		Dwell:     []NodeDwell{},
	}
	if len(intervals) == 0 {
		return out
	}

	index := map[int64]int{}
	out.StartTime = intervals[0].StartTime
	for _, interval := range intervals {
		d := interval.Duration(now)
		out.Total += d
		pos, ok := index[interval.StartNodeID]
		if !ok {
			pos = len(out.Dwell)
			index[interval.StartNodeID] = pos
			out.Dwell = append(out.Dwell, NodeDwell{Node: byID[interval.StartNodeID]})
		}
		out.Dwell[pos].Duration += d
		out.Dwell[pos].Visits++

		end, closed := interval.EndTime()
		if !closed {
			out.Open = true
			end = max(now, interval.StartTime)
		}
		out.EndTime = max(out.EndTime, end)
	}
	return out
}

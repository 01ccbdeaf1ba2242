package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/evanschultz/waymark/internal/domain"
	"github.com/google/uuid"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "waymark.snapshot.v1"

// Snapshot is a portable copy of the whole ledger.
type Snapshot struct {
	Version    string             `json:"version" yaml:"version"`
	ID         string             `json:"id" yaml:"id"`
	ExportedAt time.Time          `json:"exported_at" yaml:"exported_at"`
	Nodes      []SnapshotNode     `json:"nodes" yaml:"nodes"`
	Sequences  []SnapshotSequence `json:"sequences" yaml:"sequences"`
	Intervals  []SnapshotInterval `json:"intervals" yaml:"intervals"`
}

// SnapshotNode represents snapshot node data used by this package.
type SnapshotNode struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// SnapshotSequence represents snapshot sequence data used by this package.
type SnapshotSequence struct {
	ID     int64                 `json:"id" yaml:"id"`
	Status domain.SequenceStatus `json:"status" yaml:"status"`
}

// SnapshotInterval uses pointers for the optional end, matching the storage layout.
type SnapshotInterval struct {
	ID          int64  `json:"id" yaml:"id"`
	SequenceID  int64  `json:"sequence_id" yaml:"sequence_id"`
	StartTime   int64  `json:"start_time" yaml:"start_time"`
	StartNodeID int64  `json:"start_node_id" yaml:"start_node_id"`
	EndTime     *int64 `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	EndNodeID   *int64 `json:"end_node_id,omitempty" yaml:"end_node_id,omitempty"`
}

// ExportSnapshot reads the whole ledger from one consistent snapshot.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Version:    SnapshotVersion,
		ID:         uuid.NewString(),
		ExportedAt: s.clock().UTC(),
		Nodes:      []SnapshotNode{},
		Sequences:  []SnapshotSequence{},
		Intervals:  []SnapshotInterval{},
	}
	err := s.read(ctx, func(tx Store) error {
		nodes, err := tx.ListNodes(ctx)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			snap.Nodes = append(snap.Nodes, SnapshotNode{ID: node.ID, Name: node.Name})
		}
		sequences, err := tx.ListSequences(ctx)
		if err != nil {
			return err
		}
		for _, seq := range sequences {
			snap.Sequences = append(snap.Sequences, SnapshotSequence{ID: seq.ID, Status: seq.Status})
		}
		intervals, err := tx.ListIntervals(ctx, IntervalFilter{})
		if err != nil {
			return err
		}
		for _, interval := range intervals {
			snap.Intervals = append(snap.Intervals, snapshotIntervalFromDomain(interval))
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot loads snap into an empty ledger, preserving IDs. Nothing is
// written unless every row passes validation.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return validationError(err)
	}
	snap.sort()

	return s.mutate(ctx, func(tx Store, changes *changeSet) error {
		nodes, err := tx.ListNodes(ctx)
		if err != nil {
			return err
		}
		sequences, err := tx.ListSequences(ctx)
		if err != nil {
			return err
		}
		if len(nodes) > 0 || len(sequences) > 0 {
			return conflictError(ErrLedgerNotEmpty)
		}

		for _, node := range snap.Nodes {
			created, err := tx.CreateNode(ctx, domain.Node{ID: node.ID, Name: strings.TrimSpace(node.Name)})
			if err != nil {
				return fmt.Errorf("import node %d: %w", node.ID, err)
			}
			changes.record(domain.ChangeTableNodes, domain.ChangeOperationInsert, created.ID)
		}
		for _, seq := range snap.Sequences {
			created, err := tx.CreateSequence(ctx, domain.Sequence{ID: seq.ID, Status: seq.Status})
			if err != nil {
				return fmt.Errorf("import sequence %d: %w", seq.ID, err)
			}
			changes.record(domain.ChangeTableSequences, domain.ChangeOperationInsert, created.ID)
		}
		for _, interval := range snap.Intervals {
			created, err := tx.CreateInterval(ctx, interval.toDomain())
			if err != nil {
				return fmt.Errorf("import interval %d: %w", interval.ID, err)
			}
			changes.record(domain.ChangeTableIntervals, domain.ChangeOperationInsert, created.ID)
		}
		return nil
	})
}

// Validate checks the snapshot against every ledger invariant.
func (s *Snapshot) Validate() error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSnapshot, s.Version)
	}

	nodeIDs := map[int64]struct{}{}
	for _, node := range s.Nodes {
		if node.ID <= 0 {
			return fmt.Errorf("%w: node id %d: %w", ErrInvalidSnapshot, node.ID, domain.ErrInvalidID)
		}
		if _, ok := nodeIDs[node.ID]; ok {
			return fmt.Errorf("%w: duplicate node id %d", ErrInvalidSnapshot, node.ID)
		}
		if _, err := domain.NewNode(node.Name); err != nil {
			return fmt.Errorf("%w: node %d: %w", ErrInvalidSnapshot, node.ID, err)
		}
		nodeIDs[node.ID] = struct{}{}
	}

	statusByID := map[int64]domain.SequenceStatus{}
	active := 0
	for _, seq := range s.Sequences {
		if seq.ID <= 0 {
			return fmt.Errorf("%w: sequence id %d: %w", ErrInvalidSnapshot, seq.ID, domain.ErrInvalidID)
		}
		if _, ok := statusByID[seq.ID]; ok {
			return fmt.Errorf("%w: duplicate sequence id %d", ErrInvalidSnapshot, seq.ID)
		}
		if !seq.Status.IsValid() {
			return fmt.Errorf("%w: sequence %d: %w", ErrInvalidSnapshot, seq.ID, domain.ErrInvalidSequenceStatus)
		}
		if seq.Status == domain.SequenceActive {
			active++
		}
		statusByID[seq.ID] = seq.Status
	}
	if active > 1 {
		return fmt.Errorf("%w: %d active sequences", ErrInvalidSnapshot, active)
	}

	intervalIDs := map[int64]struct{}{}
	bySequence := map[int64][]domain.Interval{}
	for _, raw := range s.Intervals {
		if raw.ID <= 0 {
			return fmt.Errorf("%w: interval id %d: %w", ErrInvalidSnapshot, raw.ID, domain.ErrInvalidID)
		}
		if _, ok := intervalIDs[raw.ID]; ok {
			return fmt.Errorf("%w: duplicate interval id %d", ErrInvalidSnapshot, raw.ID)
		}
		intervalIDs[raw.ID] = struct{}{}
		if (raw.EndTime == nil) != (raw.EndNodeID == nil) {
			return fmt.Errorf("%w: interval %d: end time and end node must be set together", ErrInvalidSnapshot, raw.ID)
		}
		interval := raw.toDomain()
		if err := interval.Validate(); err != nil {
			return fmt.Errorf("%w: interval %d: %w", ErrInvalidSnapshot, raw.ID, err)
		}
		if _, ok := statusByID[interval.SequenceID]; !ok {
			return fmt.Errorf("%w: interval %d references missing sequence %d", ErrInvalidSnapshot, raw.ID, interval.SequenceID)
		}
		if _, ok := nodeIDs[interval.StartNodeID]; !ok {
			return fmt.Errorf("%w: interval %d references missing node %d", ErrInvalidSnapshot, raw.ID, interval.StartNodeID)
		}
		if endNode, ok := interval.EndNodeID(); ok {
			if _, exists := nodeIDs[endNode]; !exists {
				return fmt.Errorf("%w: interval %d references missing node %d", ErrInvalidSnapshot, raw.ID, endNode)
			}
		}
		bySequence[interval.SequenceID] = append(bySequence[interval.SequenceID], interval)
	}

	for seqID, intervals := range bySequence {
		if err := validateChain(intervals, statusByID[seqID]); err != nil {
			return fmt.Errorf("%w: sequence %d: %w", ErrInvalidSnapshot, seqID, err)
		}
	}
	return nil
}

// validateChain checks ordering and the single trailing open interval of one sequence.
func validateChain(intervals []domain.Interval, status domain.SequenceStatus) error {
	sortIntervals(intervals)
	for idx, interval := range intervals {
		last := idx == len(intervals)-1
		if interval.IsOpen() {
			if !last {
				return domain.ErrIntervalOpen
			}
			if status == domain.SequenceFinished {
				return domain.ErrSequenceFinished
			}
			continue
		}
		if last {
			continue
		}
		end, _ := interval.EndTime()
		if end > intervals[idx+1].StartTime {
			return domain.ErrOutOfOrder
		}
	}
	return nil
}

// sort orders every section by id, and intervals by start time.
func (s *Snapshot) sort() {
	sort.Slice(s.Nodes, func(i, j int) bool { return s.Nodes[i].ID < s.Nodes[j].ID })
	sort.Slice(s.Sequences, func(i, j int) bool { return s.Sequences[i].ID < s.Sequences[j].ID })
	sort.Slice(s.Intervals, func(i, j int) bool {
		if s.Intervals[i].StartTime != s.Intervals[j].StartTime {
			return s.Intervals[i].StartTime < s.Intervals[j].StartTime
		}
		return s.Intervals[i].ID < s.Intervals[j].ID
	})
}

// sortIntervals orders intervals by start time, then id.
func sortIntervals(intervals []domain.Interval) {
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].StartTime != intervals[j].StartTime {
			return intervals[i].StartTime < intervals[j].StartTime
		}
		return intervals[i].ID < intervals[j].ID
	})
}

// snapshotIntervalFromDomain flattens the end variant into optional fields.
func snapshotIntervalFromDomain(interval domain.Interval) SnapshotInterval {
	out := SnapshotInterval{
		ID:          interval.ID,
		SequenceID:  interval.SequenceID,
		StartTime:   interval.StartTime,
		StartNodeID: interval.StartNodeID,
	}
	if end, nodeID, ok := interval.End.Closed(); ok {
		out.EndTime = &end
		out.EndNodeID = &nodeID
	}
	return out
}

// toDomain rebuilds the end variant.
func (i SnapshotInterval) toDomain() domain.Interval {
	out := domain.Interval{
		ID:          i.ID,
		SequenceID:  i.SequenceID,
		StartTime:   i.StartTime,
		StartNodeID: i.StartNodeID,
		End:         domain.OpenEnd(),
	}
	if i.EndTime != nil && i.EndNodeID != nil {
		out.End = domain.ClosedEnd(*i.EndTime, *i.EndNodeID)
	}
	return out
}


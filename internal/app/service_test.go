package app

import (
	"context"
	"errors"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/evanschultz/waymark/internal/domain"
)

type fakeRepo struct {
	nodes     map[int64]domain.Node
	sequences map[int64]domain.Sequence
	intervals map[int64]domain.Interval
	events    []domain.ChangeEvent

	// failCreateInterval makes every CreateInterval call fail.
	failCreateInterval error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		nodes:     map[int64]domain.Node{},
		sequences: map[int64]domain.Sequence{},
		intervals: map[int64]domain.Interval{},
	}
}

func nextID[V any](rows map[int64]V, want int64) int64 {
	if want > 0 {
		return want
	}
	var maxID int64
	for id := range rows {
		maxID = max(maxID, id)
	}
	return maxID + 1
}

func (f *fakeRepo) CreateNode(_ context.Context, n domain.Node) (domain.Node, error) {
	n.ID = nextID(f.nodes, n.ID)
	f.nodes[n.ID] = n
	return n, nil
}

func (f *fakeRepo) UpdateNode(_ context.Context, n domain.Node) error {
	if _, ok := f.nodes[n.ID]; !ok {
		return ErrNotFound
	}
	f.nodes[n.ID] = n
	return nil
}

func (f *fakeRepo) DeleteNode(_ context.Context, id int64) error {
	if _, ok := f.nodes[id]; !ok {
		return ErrNotFound
	}
	delete(f.nodes, id)
	return nil
}

func (f *fakeRepo) GetNode(_ context.Context, id int64) (domain.Node, error) {
	n, ok := f.nodes[id]
	if !ok {
		return domain.Node{}, ErrNotFound
	}
	return n, nil
}

func (f *fakeRepo) FindNodeByName(_ context.Context, name string) (domain.Node, error) {
	for _, id := range slices.Sorted(maps.Keys(f.nodes)) {
		if f.nodes[id].Name == name {
			return f.nodes[id], nil
		}
	}
	return domain.Node{}, ErrNotFound
}

func (f *fakeRepo) ListNodes(_ context.Context) ([]domain.Node, error) {
	out := make([]domain.Node, 0, len(f.nodes))
	for _, id := range slices.Sorted(maps.Keys(f.nodes)) {
		out = append(out, f.nodes[id])
	}
	return out, nil
}

func (f *fakeRepo) CountNodeReferences(_ context.Context, id int64) (int, error) {
	count := 0
	for _, in := range f.intervals {
		end, _ := in.EndNodeID()
		if in.StartNodeID == id || end == id {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) CreateSequence(_ context.Context, s domain.Sequence) (domain.Sequence, error) {
	s.ID = nextID(f.sequences, s.ID)
	f.sequences[s.ID] = s
	return s, nil
}

func (f *fakeRepo) UpdateSequence(_ context.Context, s domain.Sequence) error {
	if _, ok := f.sequences[s.ID]; !ok {
		return ErrNotFound
	}
	f.sequences[s.ID] = s
	return nil
}

func (f *fakeRepo) DeleteSequence(_ context.Context, id int64) error {
	if _, ok := f.sequences[id]; !ok {
		return ErrNotFound
	}
	delete(f.sequences, id)
	return nil
}

func (f *fakeRepo) GetSequence(_ context.Context, id int64) (domain.Sequence, error) {
	s, ok := f.sequences[id]
	if !ok {
		return domain.Sequence{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) GetActiveSequence(_ context.Context) (domain.Sequence, error) {
	for _, s := range f.sequences {
		if s.IsActive() {
			return s, nil
		}
	}
	return domain.Sequence{}, ErrNotFound
}

func (f *fakeRepo) ListSequences(_ context.Context) ([]domain.Sequence, error) {
	out := make([]domain.Sequence, 0, len(f.sequences))
	for _, id := range slices.Sorted(maps.Keys(f.sequences)) {
		out = append(out, f.sequences[id])
	}
	return out, nil
}

func (f *fakeRepo) CreateInterval(_ context.Context, in domain.Interval) (domain.Interval, error) {
	if f.failCreateInterval != nil {
		return domain.Interval{}, f.failCreateInterval
	}
	in.ID = nextID(f.intervals, in.ID)
	f.intervals[in.ID] = in
	return in, nil
}

func (f *fakeRepo) UpdateInterval(_ context.Context, in domain.Interval) error {
	if _, ok := f.intervals[in.ID]; !ok {
		return ErrNotFound
	}
	f.intervals[in.ID] = in
	return nil
}

func (f *fakeRepo) GetInterval(_ context.Context, id int64) (domain.Interval, error) {
	in, ok := f.intervals[id]
	if !ok {
		return domain.Interval{}, ErrNotFound
	}
	return in, nil
}

func (f *fakeRepo) GetOpenInterval(_ context.Context, sequenceID int64) (domain.Interval, error) {
	for _, in := range f.intervals {
		if in.SequenceID == sequenceID && in.IsOpen() {
			return in, nil
		}
	}
	return domain.Interval{}, ErrNotFound
}

func (f *fakeRepo) LatestInterval(ctx context.Context, sequenceID int64) (domain.Interval, error) {
	rows, _ := f.ListIntervals(ctx, IntervalFilter{SequenceID: sequenceID})
	if len(rows) == 0 {
		return domain.Interval{}, ErrNotFound
	}
	return rows[len(rows)-1], nil
}

func (f *fakeRepo) ListIntervals(_ context.Context, filter IntervalFilter) ([]domain.Interval, error) {
	out := []domain.Interval{}
	for _, in := range f.intervals {
		if filter.SequenceID > 0 && in.SequenceID != filter.SequenceID {
			continue
		}
		if filter.NodeID > 0 {
			end, _ := in.EndNodeID()
			if in.StartNodeID != filter.NodeID && end != filter.NodeID {
				continue
			}
		}
		if filter.OpenOnly && !in.IsOpen() {
			continue
		}
		if !in.Overlaps(filter.From, filter.To) {
			continue
		}
		out = append(out, in)
	}
	sortIntervals(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeRepo) DeleteIntervalsBySequence(_ context.Context, sequenceID int64) ([]int64, error) {
	removed := []int64{}
	for _, id := range slices.Sorted(maps.Keys(f.intervals)) {
		if f.intervals[id].SequenceID == sequenceID {
			removed = append(removed, id)
			delete(f.intervals, id)
		}
	}
	return removed, nil
}

func (f *fakeRepo) AppendChangeEvents(_ context.Context, events []domain.ChangeEvent) error {
	for _, event := range events {
		event.ID = int64(len(f.events) + 1)
		f.events = append(f.events, event)
	}
	return nil
}

func (f *fakeRepo) ListChangeEvents(_ context.Context, limit int) ([]domain.ChangeEvent, error) {
	out := slices.Clone(f.events)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WithinTx restores the previous maps when fn fails.
func (f *fakeRepo) WithinTx(_ context.Context, fn func(Store) error) error {
	nodes, sequences, intervals := maps.Clone(f.nodes), maps.Clone(f.sequences), maps.Clone(f.intervals)
	events := slices.Clone(f.events)
	if err := fn(f); err != nil {
		f.nodes, f.sequences, f.intervals, f.events = nodes, sequences, intervals, events
		return err
	}
	return nil
}

func (f *fakeRepo) WithinReadTx(_ context.Context, fn func(Store) error) error {
	return fn(f)
}

// newTestService returns a service over a fake repo with a fixed clock.
func newTestService(t *testing.T, cfg ServiceConfig) (*Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	now := time.UnixMilli(10_000_000)
	return NewService(repo, func() time.Time { return now }, cfg), repo
}

func mustNode(t *testing.T, svc *Service, name string) domain.Node {
	t.Helper()
	node, err := svc.CreateNode(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateNode(%q) error = %v", name, err)
	}
	return node
}

func TestCreateRenameAndDeleteNode(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, ServiceConfig{})

	a := mustNode(t, svc, "A")
	if a.ID != 1 {
		t.Fatalf("unexpected node id %d", a.ID)
	}
	if _, err := svc.CreateNode(ctx, " A "); !errors.Is(err, ErrConflict) || !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("expected duplicate conflict, got %v", err)
	}
	if _, err := svc.CreateNode(ctx, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	renamed, err := svc.RenameNode(ctx, a.ID, "Alpha")
	if err != nil {
		t.Fatalf("RenameNode() error = %v", err)
	}
	if renamed.ID != a.ID || renamed.Name != "Alpha" {
		t.Fatalf("unexpected renamed node %#v", renamed)
	}
	if _, err := svc.RenameNode(ctx, 99, "X"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := svc.DeleteNode(ctx, a.ID); err != nil {
		t.Fatalf("DeleteNode() error = %v", err)
	}
	if _, err := svc.GetNode(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted node to be missing, got %v", err)
	}
}

func TestDeleteReferencedNodeConflicts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, ServiceConfig{})
	a := mustNode(t, svc, "A")
	if _, err := svc.StartSequence(ctx); err != nil {
		t.Fatalf("StartSequence() error = %v", err)
	}
	if _, err := svc.OpenInterval(ctx, OpenIntervalInput{StartNodeID: a.ID, Timestamp: 1000}); err != nil {
		t.Fatalf("OpenInterval() error = %v", err)
	}
	if err := svc.DeleteNode(ctx, a.ID); !errors.Is(err, ErrConflict) || !errors.Is(err, ErrNodeReferenced) {
		t.Fatalf("expected referenced conflict, got %v", err)
	}
}

func TestEnsureNodeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, ServiceConfig{})
	first, err := svc.EnsureNode(ctx, "Desk")
	if err != nil {
		t.Fatalf("EnsureNode() error = %v", err)
	}
	second, err := svc.EnsureNode(ctx, " Desk ")
	if err != nil {
		t.Fatalf("EnsureNode() second error = %v", err)
	}
	if first.ID != second.ID || len(repo.nodes) != 1 {
		t.Fatalf("expected a single node, got %#v %#v", first, second)
	}
}

func TestChangeEventsPersistedWithMutation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, ServiceConfig{})
	mustNode(t, svc, "A")
	if _, err := svc.StartSequence(ctx); err != nil {
		t.Fatalf("StartSequence() error = %v", err)
	}
	events, err := svc.ListChangeEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListChangeEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %#v", events)
	}
	if events[0].Table != domain.ChangeTableSequences || events[1].Table != domain.ChangeTableNodes {
		t.Fatalf("expected newest first, got %#v", events)
	}
	if events[0].OccurredAt != svc.Now() {
		t.Fatalf("unexpected event time %d", events[0].OccurredAt)
	}
}

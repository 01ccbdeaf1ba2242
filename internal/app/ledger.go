package app

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/evanschultz/waymark/internal/domain"
)

// OpenIntervalInput holds input values for open interval operations.
type OpenIntervalInput struct {
	StartNodeID int64
	Timestamp   int64
	// SequenceID targets a sequence; zero means the active one.
	SequenceID int64
}

// AdvanceResult is the pair written by Advance.
type AdvanceResult struct {
	Closed domain.Interval
	Opened domain.Interval
}

// OpenInterval starts a new interval in a sequence that has none open.
func (s *Service) OpenInterval(ctx context.Context, in OpenIntervalInput) (domain.Interval, error) {
	var opened domain.Interval
	err := s.mutate(ctx, func(tx Store, changes *changeSet) error {
		var err error
		opened, err = openInterval(ctx, tx, changes, in)
		return err
	})
	if err != nil {
		return domain.Interval{}, err
	}
	return opened, nil
}

// OpenIntervalByName resolves the start node by name before opening.
func (s *Service) OpenIntervalByName(ctx context.Context, nodeName string, timestamp, sequenceID int64) (domain.Interval, error) {
	var opened domain.Interval
	err := s.mutate(ctx, func(tx Store, changes *changeSet) error {
		node, err := s.resolveNode(ctx, tx, changes, nodeName)
		if err != nil {
			return err
		}
		opened, err = openInterval(ctx, tx, changes, OpenIntervalInput{
			StartNodeID: node.ID,
			Timestamp:   timestamp,
			SequenceID:  sequenceID,
		})
		return err
	})
	if err != nil {
		return domain.Interval{}, err
	}
	return opened, nil
}

// CloseInterval ends an open interval at endNodeID.
func (s *Service) CloseInterval(ctx context.Context, intervalID, endNodeID, timestamp int64) (domain.Interval, error) {
	var closed domain.Interval
	err := s.mutate(ctx, func(tx Store, changes *changeSet) error {
		var err error
		closed, err = closeInterval(ctx, tx, changes, intervalID, endNodeID, timestamp)
		return err
	})
	if err != nil {
		return domain.Interval{}, err
	}
	return closed, nil
}

// CloseOpenIntervalByName closes the active sequence's open interval at a named node.
func (s *Service) CloseOpenIntervalByName(ctx context.Context, nodeName string, timestamp int64) (domain.Interval, error) {
	var closed domain.Interval
	err := s.mutate(ctx, func(tx Store, changes *changeSet) error {
		open, err := currentOpenInterval(ctx, tx)
		if err != nil {
			return err
		}
		node, err := s.resolveNode(ctx, tx, changes, nodeName)
		if err != nil {
			return err
		}
		closed, err = closeInterval(ctx, tx, changes, open.ID, node.ID, timestamp)
		return err
	})
	if err != nil {
		return domain.Interval{}, err
	}
	return closed, nil
}

// Advance closes the active sequence's open interval at nextNodeID and opens
// the following interval from the same node and time. Both writes share one
// transaction.
func (s *Service) Advance(ctx context.Context, nextNodeID, timestamp int64) (AdvanceResult, error) {
	var out AdvanceResult
	err := s.mutate(ctx, func(tx Store, changes *changeSet) error {
		var err error
		out, err = advance(ctx, tx, changes, nextNodeID, timestamp)
		return err
	})
	if err != nil {
		return AdvanceResult{}, err
	}
	return out, nil
}

// AdvanceByName resolves the next node by name before advancing.
func (s *Service) AdvanceByName(ctx context.Context, nodeName string, timestamp int64) (AdvanceResult, error) {
	var out AdvanceResult
	err := s.mutate(ctx, func(tx Store, changes *changeSet) error {
		if _, err := currentOpenInterval(ctx, tx); err != nil {
			return err
		}
		node, err := s.resolveNode(ctx, tx, changes, nodeName)
		if err != nil {
			return err
		}
		out, err = advance(ctx, tx, changes, node.ID, timestamp)
		return err
	})
	if err != nil {
		return AdvanceResult{}, err
	}
	return out, nil
}

// GetInterval returns one interval.
func (s *Service) GetInterval(ctx context.Context, id int64) (domain.Interval, error) {
	interval, err := s.repo.GetInterval(ctx, id)
	if err != nil {
		return domain.Interval{}, notFound(err, "interval", id)
	}
	return interval, nil
}

// QueryIntervals returns a lazy, restartable sequence of matching intervals
// ordered by start time. Each range over the result reads a fresh snapshot.
func (s *Service) QueryIntervals(ctx context.Context, filter IntervalFilter) iter.Seq2[domain.Interval, error] {
	return func(yield func(domain.Interval, error) bool) {
		var rows []domain.Interval
		err := s.read(ctx, func(tx Store) error {
			var err error
			rows, err = tx.ListIntervals(ctx, filter)
			return err
		})
		if err != nil {
			yield(domain.Interval{}, err)
			return
		}
		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

// CollectIntervals drains a QueryIntervals sequence into a slice.
func CollectIntervals(seq iter.Seq2[domain.Interval, error]) ([]domain.Interval, error) {
	out := []domain.Interval{}
	for interval, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, interval)
	}
	return out, nil
}

// openInterval inserts an open interval after checking the sequence and ordering invariants.
func openInterval(ctx context.Context, tx Store, changes *changeSet, in OpenIntervalInput) (domain.Interval, error) {
	if in.Timestamp < 0 {
		return domain.Interval{}, validationError(domain.ErrInvalidTimestamp)
	}
	seq, err := targetSequence(ctx, tx, in.SequenceID)
	if err != nil {
		return domain.Interval{}, err
	}
	if !seq.IsActive() {
		return domain.Interval{}, conflictError(domain.ErrSequenceFinished)
	}
	if err := requireNode(ctx, tx, in.StartNodeID); err != nil {
		return domain.Interval{}, err
	}

	latest, err := tx.LatestInterval(ctx, seq.ID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return domain.Interval{}, err
	case latest.IsOpen():
		return domain.Interval{}, conflictError(domain.ErrIntervalOpen)
	default:
		if end, _ := latest.EndTime(); in.Timestamp < end {
			return domain.Interval{}, validationError(domain.ErrOutOfOrder)
		}
	}
	// LatestInterval orders by start time, so double-check no older row is still open.
	if _, err := tx.GetOpenInterval(ctx, seq.ID); err == nil {
		return domain.Interval{}, conflictError(domain.ErrIntervalOpen)
	} else if !errors.Is(err, ErrNotFound) {
		return domain.Interval{}, err
	}

	interval, err := domain.NewInterval(seq.ID, in.StartNodeID, in.Timestamp)
	if err != nil {
		return domain.Interval{}, validationError(err)
	}
	created, err := tx.CreateInterval(ctx, interval)
	if err != nil {
		return domain.Interval{}, fmt.Errorf("insert interval: %w", err)
	}
	changes.record(domain.ChangeTableIntervals, domain.ChangeOperationInsert, created.ID)
	return created, nil
}

// closeInterval sets the end of an open interval.
func closeInterval(ctx context.Context, tx Store, changes *changeSet, intervalID, endNodeID, timestamp int64) (domain.Interval, error) {
	interval, err := tx.GetInterval(ctx, intervalID)
	if err != nil {
		return domain.Interval{}, notFound(err, "interval", intervalID)
	}
	if !interval.IsOpen() {
		return domain.Interval{}, conflictError(domain.ErrIntervalClosed)
	}
	if err := requireNode(ctx, tx, endNodeID); err != nil {
		return domain.Interval{}, err
	}
	if err := interval.Close(endNodeID, timestamp); err != nil {
		return domain.Interval{}, validationError(err)
	}
	if err := tx.UpdateInterval(ctx, interval); err != nil {
		return domain.Interval{}, fmt.Errorf("update interval: %w", err)
	}
	changes.record(domain.ChangeTableIntervals, domain.ChangeOperationUpdate, interval.ID)
	return interval, nil
}

// advance performs the close-then-open pair on the active sequence.
func advance(ctx context.Context, tx Store, changes *changeSet, nextNodeID, timestamp int64) (AdvanceResult, error) {
	open, err := currentOpenInterval(ctx, tx)
	if err != nil {
		return AdvanceResult{}, err
	}
	closed, err := closeInterval(ctx, tx, changes, open.ID, nextNodeID, timestamp)
	if err != nil {
		return AdvanceResult{}, err
	}
	opened, err := openInterval(ctx, tx, changes, OpenIntervalInput{
		StartNodeID: nextNodeID,
		Timestamp:   timestamp,
		SequenceID:  closed.SequenceID,
	})
	if err != nil {
		return AdvanceResult{}, err
	}
	return AdvanceResult{Closed: closed, Opened: opened}, nil
}

// currentOpenInterval returns the active sequence's open interval.
func currentOpenInterval(ctx context.Context, tx Store) (domain.Interval, error) {
	seq, err := tx.GetActiveSequence(ctx)
	if errors.Is(err, ErrNotFound) {
		return domain.Interval{}, fmt.Errorf("%w: %w", ErrNotFound, ErrNoActiveSequence)
	}
	if err != nil {
		return domain.Interval{}, err
	}
	open, err := tx.GetOpenInterval(ctx, seq.ID)
	if errors.Is(err, ErrNotFound) {
		return domain.Interval{}, fmt.Errorf("%w: %w in sequence %d", ErrNotFound, ErrNoOpenInterval, seq.ID)
	}
	if err != nil {
		return domain.Interval{}, err
	}
	return open, nil
}

// targetSequence loads the explicit sequence or falls back to the active one.
func targetSequence(ctx context.Context, tx Store, sequenceID int64) (domain.Sequence, error) {
	if sequenceID < 0 {
		return domain.Sequence{}, validationError(domain.ErrInvalidID)
	}
	if sequenceID == 0 {
		seq, err := tx.GetActiveSequence(ctx)
		if errors.Is(err, ErrNotFound) {
			return domain.Sequence{}, fmt.Errorf("%w: %w", ErrNotFound, ErrNoActiveSequence)
		}
		return seq, err
	}
	seq, err := tx.GetSequence(ctx, sequenceID)
	if err != nil {
		return domain.Sequence{}, notFound(err, "sequence", sequenceID)
	}
	return seq, nil
}

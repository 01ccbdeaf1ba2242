package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/evanschultz/waymark/internal/domain"
)

// StartSequence creates the single ACTIVE sequence. It does not open an interval.
func (s *Service) StartSequence(ctx context.Context) (domain.Sequence, error) {
	var seq domain.Sequence
	err := s.mutate(ctx, func(tx Store, changes *changeSet) error {
		if _, err := tx.GetActiveSequence(ctx); err == nil {
			return conflictError(ErrActiveSequenceExists)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		var err error
		seq, err = tx.CreateSequence(ctx, domain.NewSequence())
		if err != nil {
			return fmt.Errorf("insert sequence: %w", err)
		}
		changes.record(domain.ChangeTableSequences, domain.ChangeOperationInsert, seq.ID)
		return nil
	})
	if err != nil {
		return domain.Sequence{}, err
	}
	return seq, nil
}

// FinishSequence moves a sequence to FINISHED once its trailing interval is closed.
func (s *Service) FinishSequence(ctx context.Context, sequenceID int64) (domain.Sequence, error) {
	var seq domain.Sequence
	err := s.mutate(ctx, func(tx Store, changes *changeSet) error {
		var err error
		seq, err = tx.GetSequence(ctx, sequenceID)
		if err != nil {
			return notFound(err, "sequence", sequenceID)
		}
		if seq.Status == domain.SequenceFinished {
			return conflictError(domain.ErrSequenceFinished)
		}
		if _, err := tx.GetOpenInterval(ctx, seq.ID); err == nil {
			return conflictError(domain.ErrIntervalOpen)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := seq.Finish(); err != nil {
			return conflictError(err)
		}
		if err := tx.UpdateSequence(ctx, seq); err != nil {
			return fmt.Errorf("update sequence: %w", err)
		}
		changes.record(domain.ChangeTableSequences, domain.ChangeOperationUpdate, seq.ID)
		return nil
	})
	if err != nil {
		return domain.Sequence{}, err
	}
	return seq, nil
}

// ActiveSequence returns the ACTIVE sequence; ok is false when there is none.
func (s *Service) ActiveSequence(ctx context.Context) (seq domain.Sequence, ok bool, err error) {
	seq, err = s.repo.GetActiveSequence(ctx)
	if errors.Is(err, ErrNotFound) {
		return domain.Sequence{}, false, nil
	}
	if err != nil {
		return domain.Sequence{}, false, err
	}
	return seq, true, nil
}

// GetSequence returns one sequence.
func (s *Service) GetSequence(ctx context.Context, id int64) (domain.Sequence, error) {
	seq, err := s.repo.GetSequence(ctx, id)
	if err != nil {
		return domain.Sequence{}, notFound(err, "sequence", id)
	}
	return seq, nil
}

// ListSequences returns every sequence ordered by id.
func (s *Service) ListSequences(ctx context.Context) ([]domain.Sequence, error) {
	return s.repo.ListSequences(ctx)
}

// ReverseSequence deletes a whole episode: its intervals, then the sequence itself.
func (s *Service) ReverseSequence(ctx context.Context, sequenceID int64) error {
	return s.mutate(ctx, func(tx Store, changes *changeSet) error {
		if _, err := tx.GetSequence(ctx, sequenceID); err != nil {
			return notFound(err, "sequence", sequenceID)
		}
		removed, err := tx.DeleteIntervalsBySequence(ctx, sequenceID)
		if err != nil {
			return fmt.Errorf("delete sequence intervals: %w", err)
		}
		for _, id := range removed {
			changes.record(domain.ChangeTableIntervals, domain.ChangeOperationDelete, id)
		}
		if err := tx.DeleteSequence(ctx, sequenceID); err != nil {
			return fmt.Errorf("delete sequence: %w", err)
		}
		changes.record(domain.ChangeTableSequences, domain.ChangeOperationDelete, sequenceID)
		return nil
	})
}

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evanschultz/waymark/internal/domain"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	// AutoCreateNodes lets name-based operations create unknown nodes on first use.
	AutoCreateNodes bool
}

// Clock returns the current time.
type Clock func() time.Time

// Service is the interval ledger and sequence lifecycle over a Repository.
type Service struct {
	repo            Repository
	clock           Clock
	hub             *Hub
	autoCreateNodes bool
}

// NewService constructs a new value for this package.
func NewService(repo Repository, clock Clock, cfg ServiceConfig) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:            repo,
		clock:           clock,
		hub:             NewHub(),
		autoCreateNodes: cfg.AutoCreateNodes,
	}
}

// Now returns the service clock as Unix milliseconds.
func (s *Service) Now() int64 {
	return s.clock().UnixMilli()
}

// Subscribe registers interest in changes to the tables in shape.
func (s *Service) Subscribe(shape QueryShape) *Subscription {
	return s.hub.Subscribe(shape)
}

// ListChangeEvents returns the most recent activity-log entries, newest first.
func (s *Service) ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	return s.repo.ListChangeEvents(ctx, limit)
}

// changeSet collects the row changes made inside one transaction.
type changeSet struct {
	now    int64
	events []domain.ChangeEvent
}

// record appends one change.
func (c *changeSet) record(table domain.ChangeTable, op domain.ChangeOperation, rowID int64) {
	c.events = append(c.events, domain.ChangeEvent{
		Table:      table,
		Operation:  op,
		RowID:      rowID,
		OccurredAt: c.now,
	})
}

// mutate runs fn in one transaction, persists its change log, and notifies
// subscribers only after the commit succeeded.
func (s *Service) mutate(ctx context.Context, fn func(Store, *changeSet) error) error {
	changes := &changeSet{now: s.Now()}
	err := s.repo.WithinTx(ctx, func(tx Store) error {
		if err := fn(tx, changes); err != nil {
			return err
		}
		if len(changes.events) == 0 {
			return nil
		}
		return tx.AppendChangeEvents(ctx, changes.events)
	})
	if err != nil {
		return err
	}
	s.hub.Publish(changes.events)
	return nil
}

// read runs fn against a consistent snapshot.
func (s *Service) read(ctx context.Context, fn func(Store) error) error {
	return s.repo.WithinReadTx(ctx, fn)
}

func validationError(cause error) error {
	return fmt.Errorf("%w: %w", ErrValidation, cause)
}

func conflictError(cause error) error {
	return fmt.Errorf("%w: %w", ErrConflict, cause)
}

// notFound labels a storage miss with the entity it refers to.
func notFound(err error, entity string, id int64) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
	}
	return err
}

package app

import (
	"context"

	"github.com/evanschultz/waymark/internal/domain"
)

// IntervalFilter narrows QueryIntervals results. Zero values do not filter.
type IntervalFilter struct {
	// NodeID matches intervals starting or ending at the node.
	NodeID     int64
	SequenceID int64
	// From and To select intervals overlapping [From, To).
	From     *int64
	To       *int64
	OpenOnly bool
	Limit    int
}

// Store is the typed row access used inside and outside transactions.
type Store interface {
	CreateNode(context.Context, domain.Node) (domain.Node, error)
	UpdateNode(context.Context, domain.Node) error
	DeleteNode(context.Context, int64) error
	GetNode(context.Context, int64) (domain.Node, error)
	FindNodeByName(context.Context, string) (domain.Node, error)
	ListNodes(context.Context) ([]domain.Node, error)
	CountNodeReferences(context.Context, int64) (int, error)

	CreateSequence(context.Context, domain.Sequence) (domain.Sequence, error)
	UpdateSequence(context.Context, domain.Sequence) error
	DeleteSequence(context.Context, int64) error
	GetSequence(context.Context, int64) (domain.Sequence, error)
	GetActiveSequence(context.Context) (domain.Sequence, error)
	ListSequences(context.Context) ([]domain.Sequence, error)

	CreateInterval(context.Context, domain.Interval) (domain.Interval, error)
	UpdateInterval(context.Context, domain.Interval) error
	GetInterval(context.Context, int64) (domain.Interval, error)
	GetOpenInterval(context.Context, int64) (domain.Interval, error)
	LatestInterval(context.Context, int64) (domain.Interval, error)
	ListIntervals(context.Context, IntervalFilter) ([]domain.Interval, error)
	DeleteIntervalsBySequence(context.Context, int64) ([]int64, error)

	AppendChangeEvents(context.Context, []domain.ChangeEvent) error
	ListChangeEvents(context.Context, int) ([]domain.ChangeEvent, error)
}

// Repository is a Store that can scope work in a transaction.
// WithinTx commits when fn returns nil and rolls everything back otherwise.
// WithinReadTx always rolls back and gives fn a consistent snapshot.
type Repository interface {
	Store
	WithinTx(context.Context, func(Store) error) error
	WithinReadTx(context.Context, func(Store) error) error
}

package app

import (
	"context"
	"errors"

	"github.com/evanschultz/waymark/internal/domain"
)

// CreateNode registers a new node. Names are unique within the ledger.
func (s *Service) CreateNode(ctx context.Context, name string) (domain.Node, error) {
	node, err := domain.NewNode(name)
	if err != nil {
		return domain.Node{}, validationError(err)
	}
	var created domain.Node
	err = s.mutate(ctx, func(tx Store, changes *changeSet) error {
		if _, err := tx.FindNodeByName(ctx, node.Name); err == nil {
			return conflictError(ErrDuplicateNode)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		created, err = tx.CreateNode(ctx, node)
		if err != nil {
			return err
		}
		changes.record(domain.ChangeTableNodes, domain.ChangeOperationInsert, created.ID)
		return nil
	})
	if err != nil {
		return domain.Node{}, err
	}
	return created, nil
}

// EnsureNode returns the node called name, creating it on first use.
func (s *Service) EnsureNode(ctx context.Context, name string) (domain.Node, error) {
	var node domain.Node
	err := s.mutate(ctx, func(tx Store, changes *changeSet) error {
		var err error
		node, err = ensureNode(ctx, tx, changes, name)
		return err
	})
	if err != nil {
		return domain.Node{}, err
	}
	return node, nil
}

// RenameNode changes a node's name while keeping its identity.
func (s *Service) RenameNode(ctx context.Context, id int64, name string) (domain.Node, error) {
	var node domain.Node
	err := s.mutate(ctx, func(tx Store, changes *changeSet) error {
		var err error
		node, err = tx.GetNode(ctx, id)
		if err != nil {
			return notFound(err, "node", id)
		}
		if err := node.Rename(name); err != nil {
			return validationError(err)
		}
		if other, err := tx.FindNodeByName(ctx, node.Name); err == nil && other.ID != node.ID {
			return conflictError(ErrDuplicateNode)
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := tx.UpdateNode(ctx, node); err != nil {
			return err
		}
		changes.record(domain.ChangeTableNodes, domain.ChangeOperationUpdate, node.ID)
		return nil
	})
	if err != nil {
		return domain.Node{}, err
	}
	return node, nil
}

// DeleteNode removes a node that no interval references.
func (s *Service) DeleteNode(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(tx Store, changes *changeSet) error {
		if _, err := tx.GetNode(ctx, id); err != nil {
			return notFound(err, "node", id)
		}
		refs, err := tx.CountNodeReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return conflictError(ErrNodeReferenced)
		}
		if err := tx.DeleteNode(ctx, id); err != nil {
			return err
		}
		changes.record(domain.ChangeTableNodes, domain.ChangeOperationDelete, id)
		return nil
	})
}

// GetNode returns one node.
func (s *Service) GetNode(ctx context.Context, id int64) (domain.Node, error) {
	node, err := s.repo.GetNode(ctx, id)
	if err != nil {
		return domain.Node{}, notFound(err, "node", id)
	}
	return node, nil
}

// FindNodeByName returns the node called name.
func (s *Service) FindNodeByName(ctx context.Context, name string) (domain.Node, error) {
	return s.repo.FindNodeByName(ctx, domain.NormalizeNodeName(name))
}

// ListNodes returns all nodes ordered by id.
func (s *Service) ListNodes(ctx context.Context) ([]domain.Node, error) {
	return s.repo.ListNodes(ctx)
}

// ensureNode finds or creates a node inside an open transaction.
func ensureNode(ctx context.Context, tx Store, changes *changeSet, name string) (domain.Node, error) {
	node, err := domain.NewNode(name)
	if err != nil {
		return domain.Node{}, validationError(err)
	}
	existing, err := tx.FindNodeByName(ctx, node.Name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Node{}, err
	}
	created, err := tx.CreateNode(ctx, node)
	if err != nil {
		return domain.Node{}, err
	}
	changes.record(domain.ChangeTableNodes, domain.ChangeOperationInsert, created.ID)
	return created, nil
}

// resolveNode maps a name to a node, creating it when the service allows it.
func (s *Service) resolveNode(ctx context.Context, tx Store, changes *changeSet, name string) (domain.Node, error) {
	if s.autoCreateNodes {
		return ensureNode(ctx, tx, changes, name)
	}
	name = domain.NormalizeNodeName(name)
	if name == "" {
		return domain.Node{}, validationError(domain.ErrInvalidName)
	}
	node, err := tx.FindNodeByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return domain.Node{}, validationError(ErrUnknownNode)
	}
	return node, err
}

// requireNode reports a missing node as invalid input.
func requireNode(ctx context.Context, tx Store, id int64) error {
	if id <= 0 {
		return validationError(domain.ErrInvalidID)
	}
	if _, err := tx.GetNode(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return validationError(ErrUnknownNode)
		}
		return err
	}
	return nil
}

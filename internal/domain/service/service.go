// Package service models the Service aggregate: a named bundle of nodes that
// both admins (as grants) and subscriptions (as selection) reference.
package service

import (
	"context"

	apperrors "github.com/moguard/panel/internal/shared/errors"
)

// Service is the Service aggregate (§3). Node/admin/subscription
// associations are join-table state owned by internal/store, not by this
// struct, per SPEC_FULL.md §9's "cyclic entity graph" guidance.
type Service struct {
	id      int64
	remark  string
	nodeIDs []int64
}

// New validates and constructs a Service.
func New(remark string, nodeIDs []int64) (*Service, error) {
	if remark == "" {
		return nil, apperrors.NewValidationError("remark is required")
	}
	return &Service{remark: remark, nodeIDs: nodeIDs}, nil
}

// Reconstruct rebuilds a Service from persisted state.
func Reconstruct(id int64, remark string, nodeIDs []int64) *Service {
	return &Service{id: id, remark: remark, nodeIDs: nodeIDs}
}

func (s *Service) ID() int64          { return s.id }
func (s *Service) Remark() string     { return s.remark }
func (s *Service) NodeIDs() []int64   { return s.nodeIDs }

// Update applies a service's editable fields — the PUT /api/services/{id}
// surface.
func (s *Service) Update(remark string, nodeIDs []int64) {
	s.remark, s.nodeIDs = remark, nodeIDs
}

// HasNode reports whether nodeID is part of this service's node set.
func (s *Service) HasNode(nodeID int64) bool {
	for _, id := range s.nodeIDs {
		if id == nodeID {
			return true
		}
	}
	return false
}

// Repository persists and retrieves Service aggregates.
type Repository interface {
	Create(ctx context.Context, s *Service) (*Service, error)
	Update(ctx context.Context, s *Service) error
	Get(ctx context.Context, id int64) (*Service, error)
	List(ctx context.Context) ([]*Service, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*Service, error)
	Delete(ctx context.Context, id int64) error
}

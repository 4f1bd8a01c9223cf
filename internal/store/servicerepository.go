package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/moguard/panel/internal/domain/service"
)

// ServiceRepository implements service.Repository over gorm.
type ServiceRepository struct {
	db *gorm.DB
}

// NewServiceRepository constructs a service.Repository backed by db.
func NewServiceRepository(db *gorm.DB) service.Repository {
	return &ServiceRepository{db: db}
}

func serviceToModel(s *service.Service) (*serviceModel, error) {
	raw, err := json.Marshal(s.NodeIDs())
	if err != nil {
		return nil, fmt.Errorf("store: encode service node ids: %w", err)
	}
	return &serviceModel{ID: s.ID(), Remark: s.Remark(), NodeIDsRaw: string(raw)}, nil
}

func modelToService(m *serviceModel) (*service.Service, error) {
	var nodeIDs []int64
	if m.NodeIDsRaw != "" {
		if err := json.Unmarshal([]byte(m.NodeIDsRaw), &nodeIDs); err != nil {
			return nil, fmt.Errorf("store: decode service node ids: %w", err)
		}
	}
	return service.Reconstruct(m.ID, m.Remark, nodeIDs), nil
}

func (r *ServiceRepository) Create(ctx context.Context, s *service.Service) (*service.Service, error) {
	m, err := serviceToModel(s)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("store: create service: %w", err)
	}
	return modelToService(m)
}

func (r *ServiceRepository) Update(ctx context.Context, s *service.Service) error {
	m, err := serviceToModel(s)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Model(&serviceModel{}).Where("id = ?", m.ID).Updates(m).Error; err != nil {
		return fmt.Errorf("store: update service %d: %w", m.ID, err)
	}
	return nil
}

func (r *ServiceRepository) Get(ctx context.Context, id int64) (*service.Service, error) {
	var m serviceModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, fmt.Errorf("store: get service %d: %w", id, err)
	}
	return modelToService(&m)
}

func (r *ServiceRepository) List(ctx context.Context) ([]*service.Service, error) {
	var ms []*serviceModel
	if err := r.db.WithContext(ctx).Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("store: list services: %w", err)
	}
	out := make([]*service.Service, 0, len(ms))
	for _, m := range ms {
		s, err := modelToService(m)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *ServiceRepository) ListByIDs(ctx context.Context, ids []int64) ([]*service.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var ms []*serviceModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("store: list services by ids: %w", err)
	}
	out := make([]*service.Service, 0, len(ms))
	for _, m := range ms {
		s, err := modelToService(m)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *ServiceRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&serviceModel{}, id).Error; err != nil {
		return fmt.Errorf("store: delete service %d: %w", id, err)
	}
	return nil
}

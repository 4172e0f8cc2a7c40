package verification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/dmitrijs2005/gophenroll/internal/repositories/metadata"
)

// QuotaStore keeps the last quota snapshot reported by the service.
type QuotaStore interface {
	SaveQuota(ctx context.Context, q models.Quota) error
	// LoadQuota returns (nil, nil) when nothing was saved yet.
	LoadQuota(ctx context.Context) (*models.Quota, error)
}

// MetadataQuotaStore keeps the snapshot as JSON in the metadata table.
type MetadataQuotaStore struct {
	repo metadata.Repository
}

func NewMetadataQuotaStore(repo metadata.Repository) *MetadataQuotaStore {
	return &MetadataQuotaStore{repo: repo}
}

func (s *MetadataQuotaStore) SaveQuota(ctx context.Context, q models.Quota) error {
	b, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return s.repo.Set(ctx, common.QuotaMetadataKey, b)
}

func (s *MetadataQuotaStore) LoadQuota(ctx context.Context) (*models.Quota, error) {
	b, err := s.repo.Get(ctx, common.QuotaMetadataKey)
	if err != nil || b == nil {
		return nil, err
	}
	q := &models.Quota{}
	if err := json.Unmarshal(b, q); err != nil {
		return nil, fmt.Errorf("decode quota: %w", err)
	}
	return q, nil
}

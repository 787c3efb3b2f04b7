package service

import (
	"context"
	"log"
	"time"

	"stratodrive/internal/domain"
)

// SweepSource выдает владельцев, чьи файлы менялись после отметки:
// кандидатов фоновой сверки
type SweepSource interface {
	TouchedOwners(ctx context.Context, since time.Time) ([]string, error)
}

type QuotaService struct {
	quotas QuotaLedger
	sweep  SweepSource
}

func NewQuotaService(quotas QuotaLedger, sweep SweepSource) *QuotaService {
	return &QuotaService{quotas: quotas, sweep: sweep}
}

// Info возвращает сводку использования хранилища владельца;
// нулевой лимит означает "без ограничений"
func (s *QuotaService) Info(ctx context.Context, ownerID string) (*domain.QuotaInfo, error) {
	quota, err := s.quotas.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	info := &domain.QuotaInfo{
		TotalSpace: quota.MaxStorageBytes,
		UsedSpace:  quota.UsedStorageBytes,
	}
	if quota.MaxStorageBytes > 0 {
		info.AvailableSpace = quota.MaxStorageBytes - quota.UsedStorageBytes
		if info.AvailableSpace < 0 {
			info.AvailableSpace = 0
		}
		info.UsagePercent = float64(quota.UsedStorageBytes) / float64(quota.MaxStorageBytes) * 100
	}
	return info, nil
}

func (s *QuotaService) Reconcile(ctx context.Context, ownerID string) error {
	return s.quotas.Reconcile(ctx, ownerID)
}

// SweepTouched сверяет счетчики всех владельцев с активностью после
// отметки; сбой по одному владельцу не прерывает обход остальных
func (s *QuotaService) SweepTouched(ctx context.Context, since time.Time) int {
	owners, err := s.sweep.TouchedOwners(ctx, since)
	if err != nil {
		log.Printf("[QuotaService] Failed to list owners for sweep: %v", err)
		return 0
	}

	reconciled := 0
	for _, owner := range owners {
		if err := s.quotas.Reconcile(ctx, owner); err != nil {
			log.Printf("[QuotaService] Sweep reconciliation failed for owner %s: %v", owner, err)
			continue
		}
		reconciled++
	}
	if reconciled > 0 {
		log.Printf("[QuotaService] Sweep reconciled %d owners", reconciled)
	}
	return reconciled
}

package service

import (
	"context"
	"time"

	"github.com/scamwatch/portal/internal/authstub/domain"
	"github.com/scamwatch/portal/internal/authstub/store"
)

// ActivityService records user actions in the stub's bounded activity log.
type ActivityService struct {
	Store *store.Store
}

func (s *ActivityService) Track(ctx context.Context, userID, action string) {
	s.Store.AppendActivity(ctx, domain.ActivityEvent{
		UserID:     userID,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	})
}

func (s *ActivityService) Recent(ctx context.Context, limit int) []domain.ActivityEvent {
	return s.Store.RecentActivity(ctx, limit)
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/local-scope/localscope/internal/domain"
	"github.com/local-scope/localscope/internal/events"
	"github.com/local-scope/localscope/internal/repository"
	apperrors "github.com/local-scope/localscope/pkg/util"
)

// ProfileService serves the profiles table.
type ProfileService struct {
	profiles   repository.ProfileRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewProfileService creates the service.
func NewProfileService(profiles repository.ProfileRepository, dispatcher events.Dispatcher, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	return &ProfileService{profiles: profiles, dispatcher: dispatcher, logger: logger}
}

// Get returns the profile row for userID.
func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	return s.profiles.GetByUserID(ctx, userID)
}

// Update validates and applies a partial profile write.
func (s *ProfileService) Update(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error) {
	if update.Empty() {
		return nil, apperrors.NewValidationError("nothing to update", nil)
	}

	var fields []string
	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		if name == "" {
			return nil, apperrors.NewValidationError("full_name cannot be blank", nil)
		}
		update.FullName = &name
		fields = append(fields, "full_name")
	}
	if update.Phone != nil {
		phone := strings.TrimSpace(*update.Phone)
		update.Phone = &phone
		fields = append(fields, "phone")
	}
	if update.SubscriptionTier != nil {
		if !update.SubscriptionTier.Valid() {
			return nil, apperrors.NewValidationError("unknown subscription tier", map[string]any{"subscription_tier": *update.SubscriptionTier})
		}
		fields = append(fields, "subscription_tier")
	}

	profile, err := s.profiles.Update(ctx, userID, update)
	if err != nil {
		return nil, err
	}

	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventProfileUpdated,
		UserID:    userID,
		Timestamp: time.Now(),
		Payload:   events.ProfileUpdatedPayload{Fields: fields},
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
	return profile, nil
}

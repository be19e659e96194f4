package service

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/local-scope/localscope/internal/config"
	"github.com/local-scope/localscope/internal/events"
)

// NotificationService handles emitting notifications for account events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events until unregister is called.
func (n *NotificationService) RegisterHandlers() (unregister func()) {
	if n.dispatcher == nil {
		return func() {}
	}
	stops := []func(){
		n.dispatcher.Subscribe(events.EventUserSignedUp, n.handleUserSignedUp),
		n.dispatcher.Subscribe(events.EventEmailConfirmed, n.handleEmailConfirmed),
		n.dispatcher.Subscribe(events.EventUserSignedOut, n.handleUserSignedOut),
		n.dispatcher.Subscribe(events.EventProfileUpdated, n.handleProfileUpdated),
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

// ConfirmationLink builds the link mailed to a new user.
func (n *NotificationService) ConfirmationLink(token string) string {
	base := strings.TrimSpace(n.cfg.ConfirmationURL)
	if base == "" || token == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

func (n *NotificationService) handleUserSignedUp(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.UserSignedUpPayload)
	if !ok {
		return nil
	}
	n.logger.Info("UserSignedUp", zap.String("user_id", event.UserID), zap.String("role", string(payload.Role)))
	if payload.AutoConfirmed {
		return nil
	}
	n.sendEmailNotificationStub(ctx, payload.Email, "Confirm your Local Scope account", n.ConfirmationLink(payload.ConfirmationToken))
	return nil
}

func (n *NotificationService) handleEmailConfirmed(ctx context.Context, event events.Event) error {
	n.logger.Info("EmailConfirmed", zap.String("user_id", event.UserID))
	return nil
}

func (n *NotificationService) handleUserSignedOut(ctx context.Context, event events.Event) error {
	n.logger.Info("UserSignedOut", zap.String("user_id", event.UserID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleProfileUpdated(ctx context.Context, event events.Event) error {
	n.logger.Info("ProfileUpdated", zap.String("user_id", event.UserID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, to, subject, link string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("link", link))
}

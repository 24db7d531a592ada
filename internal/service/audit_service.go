package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/crm-admin/internal/domain"
	"github.com/spec-kit/crm-admin/internal/events"
	"github.com/spec-kit/crm-admin/internal/repository"
)

// AuditService records session events in the user history. Writing history
// is best effort: a failure is logged and never reaches the session flow.
type AuditService struct {
	dispatcher events.Dispatcher
	history    repository.HistoryRepository
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, history repository.HistoryRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		history:    history,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventUserRegistered, a.record(domain.HistoryActionRegister))
	a.dispatcher.Subscribe(events.EventUserLoggedIn, a.record(domain.HistoryActionLogin))
	a.dispatcher.Subscribe(events.EventUserLoggedOut, a.record(domain.HistoryActionLogout))
	a.dispatcher.Subscribe(events.EventUserLoggedOutAll, a.record(domain.HistoryActionLogoutAll))
}

func (a *AuditService) record(action domain.HistoryAction) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		entry := &domain.HistoryEntry{
			UserID:  event.UserID,
			Action:  action,
			Details: details(event),
			IP:      event.IP,
		}
		if err := a.history.Create(ctx, entry); err != nil {
			return fmt.Errorf("record %s for user %s: %w", action, event.UserID, err)
		}
		a.logger.Debug("history recorded",
			zap.String("action", string(action)),
			zap.String("user_id", event.UserID),
			zap.String("event_id", event.ID))
		return nil
	}
}

func details(event events.Event) map[string]any {
	out := map[string]any{"event_id": event.ID}
	if event.UserAgent != "" {
		out["user_agent"] = event.UserAgent
	}
	if event.ActorID != "" && event.ActorID != event.UserID {
		out["actor_id"] = event.ActorID
	}
	if p, ok := event.Payload.(events.LogoutPayload); ok {
		out["single_session"] = p.SingleSession
		out["revoked"] = p.Revoked
	}
	return out
}

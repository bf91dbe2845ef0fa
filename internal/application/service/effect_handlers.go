package service

import (
	"context"
	"fmt"

	"github.com/openscience/moderation/internal/application/dispatcher"
	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/event"
)

// ModeratorDirectory resolves the moderator accounts of a provider. Queue
// notifications carry no explicit recipients; the handler addresses them to
// the provider's admins at delivery time.
type ModeratorDirectory interface {
	ListAdmins(ctx context.Context, providerID string) ([]string, error)
}

// EffectHandlers consumes the side-effect events that fires emit after
// commit and routes them to the notification and search adapters.
type EffectHandlers struct {
	notifier   port.Notifier
	indexer    port.SearchIndexer
	moderators ModeratorDirectory
	logger     Logger
}

// NewEffectHandlers creates the handlers
func NewEffectHandlers(notifier port.Notifier, indexer port.SearchIndexer, moderators ModeratorDirectory, logger Logger) *EffectHandlers {
	return &EffectHandlers{notifier: notifier, indexer: indexer, moderators: moderators, logger: logger}
}

// Register subscribes the handlers on the dispatcher
func (h *EffectHandlers) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeNotifyRequested, "notifier", h.HandleNotify)
	d.SubscribeNamed(event.TypeReindexRequested, "search_indexer", h.HandleReindex)
	d.SubscribeNamed(event.TypeModerationChanged, "moderation_audit_log", h.HandleModerationChanged)
}

// HandleNotify delivers one queued notification. Events without explicit
// recipients are moderation-queue notifications addressed to the
// provider's moderators.
func (h *EffectHandlers) HandleNotify(ctx context.Context, evt *event.Event) error {
	template := evt.GetPayloadString("template")
	recipients := evt.GetPayloadStrings("recipients")

	if len(recipients) == 0 && evt.ProviderID != "" && h.moderators != nil {
		admins, err := h.moderators.ListAdmins(ctx, evt.ProviderID)
		if err != nil {
			return fmt.Errorf("resolve moderators for %s: %w", evt.ProviderID, err)
		}
		recipients = admins
	}
	if len(recipients) == 0 {
		h.logger.Info("Notification has no recipients", "template", template)
		return nil
	}

	var templateContext map[string]any
	if raw, ok := evt.Payload["context"].(map[string]any); ok {
		templateContext = raw
	}

	if err := h.notifier.Notify(ctx, template, recipients, templateContext); err != nil {
		return fmt.Errorf("deliver %s: %w", template, err)
	}
	return nil
}

// HandleReindex forwards one reindex request to the search adapter
func (h *EffectHandlers) HandleReindex(ctx context.Context, evt *event.Event) error {
	if err := h.indexer.Reindex(ctx, entity.TargetKind(evt.TargetKind), evt.TargetID); err != nil {
		return fmt.Errorf("reindex %s/%s: %w", evt.TargetKind, evt.TargetID, err)
	}
	return nil
}

// HandleModerationChanged records derived state changes in the log stream
func (h *EffectHandlers) HandleModerationChanged(ctx context.Context, evt *event.Event) error {
	h.logger.Info("Registration moderation state changed",
		"registration_id", evt.TargetID,
		"provider_id", evt.ProviderID,
		"from", evt.GetPayloadString("from"),
		"to", evt.GetPayloadString("to"),
		"sanction_id", evt.GetPayloadString("sanction_id"))
	return nil
}

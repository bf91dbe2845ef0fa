// Package machines wires the declarative transition tables to concrete
// entities: each machine type owns one entity family's hook implementation
// (permission validation, audit actions, side effects, notifications) and
// runs fires inside the caller-facing transaction boundary.
package machines

import (
	"context"
	"time"

	"github.com/openscience/moderation/internal/application/dispatcher"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/event"
	"github.com/openscience/moderation/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// FireInput carries the caller-supplied context of one trigger execution
type FireInput struct {
	ActorID string
	Comment string
	Auto    bool
	Extra   map[string]any
}

func (in FireInput) fire(target workflow.Machineable, trigger workflow.Trigger) *workflow.Fire {
	return &workflow.Fire{
		Target:  target,
		Trigger: trigger,
		ActorID: in.ActorID,
		Comment: in.Comment,
		Auto:    in.Auto,
		Extra:   in.Extra,
	}
}

// drainEffects publishes the side effects recorded during a committed fire
// as async domain events. It runs strictly after the transaction commits;
// a failing handler can only ever lose a notification, never a transition.
func drainEffects(ctx context.Context, d dispatcher.Dispatcher, f *workflow.Fire, target entity.TargetRef) {
	if d == nil {
		return
	}
	for _, eff := range f.Effects() {
		kind := string(target.Kind)
		if eff.TargetKind != "" {
			kind = eff.TargetKind
		}
		var evt *event.Event
		switch eff.Kind {
		case workflow.EffectNotify:
			payload := map[string]any{
				"template":   eff.Template,
				"recipients": eff.Recipients,
				"context":    eff.Context,
			}
			evt = event.NewEvent(event.TypeNotifyRequested, kind, eff.TargetID, eff.ProviderID, payload)
		case workflow.EffectReindex:
			evt = event.NewEvent(event.TypeReindexRequested, kind, eff.TargetID, eff.ProviderID, nil)
		default:
			continue
		}
		d.DispatchAsync(ctx, evt)
	}
}

// stamp fixes the fire's timestamp so the audit action and the entity's
// last-transitioned field agree on a single instant.
func stamp(f *workflow.Fire, now func() time.Time) time.Time {
	if f.OccurredAt.IsZero() {
		f.OccurredAt = now().UTC()
	}
	return f.OccurredAt
}

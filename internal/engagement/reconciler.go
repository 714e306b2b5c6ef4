package engagement

import (
	"context"

	"github.com/koinonia/backend/internal/notify"
	"github.com/koinonia/backend/pkg/logger"
)

// Reconciler drives the caches from the server's change feed. Reaction
// events carry the message id and trigger a reconcile of exactly that
// message; pin events refresh the group's pinned set.
type Reconciler struct {
	reactions *ReactionCache
	pins      *PinCache
}

func NewReconciler(reactions *ReactionCache, pins *PinCache) *Reconciler {
	return &Reconciler{reactions: reactions, pins: pins}
}

// Run consumes events until the channel closes or the context ends.
// Reconcile failures are logged and skipped; the next event for the same
// entity repairs the miss.
func (r *Reconciler) Run(ctx context.Context, events <-chan notify.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Reconciler) handle(ctx context.Context, ev notify.ChangeEvent) {
	switch ev.Kind {
	case notify.KindReaction:
		if err := r.reactions.Reconcile(ctx, ev.EntityID); err != nil && ctx.Err() == nil {
			logger.Warn("engagement_reconcile_reactions_failed", map[string]interface{}{
				"message_id": ev.EntityID.String(),
				"error":      err.Error(),
			})
		}
	case notify.KindPin:
		if err := r.pins.Reconcile(ctx, ev.GroupID); err != nil && ctx.Err() == nil {
			logger.Warn("engagement_reconcile_pins_failed", map[string]interface{}{
				"group_id": ev.GroupID.String(),
				"error":    err.Error(),
			})
		}
	}
}

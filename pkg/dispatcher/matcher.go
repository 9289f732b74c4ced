package dispatcher

import (
	"context"
	"slices"

	"github.com/dukex/convergence/pkg/models"
	"github.com/dukex/convergence/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// match returns the workflows with at least one firing trigger, each at most once.
// Firing a trigger starts its cooldown.
func (d *Dispatcher) match(ctx context.Context, event *models.Event) []*models.Workflow {
	var matched []*models.Workflow

	now := d.now()

	for _, workflow := range d.catalog.Workflows() {
		for _, trigger := range workflow.Triggers {
			if !d.fires(ctx, workflow, trigger, event) {
				continue
			}

			key := workflow.ID + "/" + trigger.ID

			d.mu.Lock()
			last, seen := d.lastFired[key]
			cooling := seen && trigger.Cooldown > 0 && now.Sub(last) < trigger.Cooldown
			if !cooling {
				d.lastFired[key] = now
			}
			d.mu.Unlock()

			if cooling {
				d.logger.DebugContext(ctx, "Trigger cooling down",
					"workflow_id", workflow.ID,
					"trigger_id", trigger.ID,
					"remaining", trigger.Cooldown-now.Sub(last))

				continue
			}

			trace.SpanFromContext(ctx).AddEvent("trigger.fired", trace.WithAttributes(
				attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
				attribute.String(otelhelper.TriggerIDKey, trigger.ID),
			))

			matched = append(matched, workflow)

			break
		}
	}

	return matched
}

func (d *Dispatcher) fires(ctx context.Context, workflow *models.Workflow, trigger models.Trigger, event *models.Event) bool {
	if trigger.EventType != event.Type {
		return false
	}

	if len(trigger.DeviceIDs) > 0 && !slices.Contains(trigger.DeviceIDs, event.Source.DeviceID) {
		return false
	}

	if len(trigger.Zones) > 0 && !slices.Contains(trigger.Zones, event.Source.Zone) && !slices.Contains(trigger.Zones, event.Location.Zone) {
		return false
	}

	ok, err := models.MatchAll(trigger.Conditions, event.Data)
	if err != nil {
		d.logger.WarnContext(ctx, "Trigger condition could not be evaluated",
			"workflow_id", workflow.ID,
			"trigger_id", trigger.ID,
			"error", err)

		return false
	}

	return ok
}

package main

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/dukex/convergence/pkg/eventbus"
	"github.com/dukex/convergence/pkg/events"
)

// unwrap turns a decoded *T notification into its T value.
func unwrap(n events.Notification) events.Notification {
	v := reflect.ValueOf(n)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		if inner, ok := v.Elem().Interface().(events.Notification); ok {
			return inner
		}
	}

	return n
}

// describe returns the log level and fields worth printing for a notification.
func describe(n events.Notification) (slog.Level, []any) {
	fields := []any{"type", n.GetType()}

	switch e := unwrap(n).(type) {
	case events.EventPublished:
		if e.Event != nil {
			fields = append(fields, "event_id", e.Event.ID, "event_type", e.Event.Type, "severity", e.Event.Severity)
		}
	case events.EventProcessed:
		if e.Event != nil {
			fields = append(fields, "event_id", e.Event.ID, "status", e.Event.Status, "triggered", len(e.Event.TriggeredWorkflows))
		}
	case events.WorkflowsTriggered:
		fields = append(fields, "workflows", e.WorkflowIDs)
	case events.WorkflowStarted:
		if e.Execution != nil {
			fields = append(fields, "execution_id", e.Execution.ID, "workflow", e.Execution.WorkflowName)
		}
	case events.WorkflowStepStarted:
		return slog.LevelDebug, append(fields, "step_id", e.StepID, "step_index", e.StepIndex)
	case events.WorkflowStepCompleted:
		fields = append(fields, "step_id", e.Step.StepID, "status", e.Step.Status)
	case events.DeviceCommandExecuted:
		fields = append(fields, "device_id", e.Command.DeviceID, "action", e.Command.Action, "success", e.Result.Success)
	case events.WorkflowCompleted:
		if e.Execution != nil {
			fields = append(fields, "execution_id", e.Execution.ID, "duration", e.Duration)
		}
	case events.WorkflowFailed:
		if e.Execution != nil {
			fields = append(fields, "execution_id", e.Execution.ID)
		}

		return slog.LevelWarn, append(fields, "error", e.Error)
	case events.WorkflowArchived:
		if e.Execution != nil {
			fields = append(fields, "execution_id", e.Execution.ID, "status", e.Execution.Status)
		}
	case events.ReportingUpdated:
		return slog.LevelDebug, append(fields, "total_events", e.Data.TotalEvents, "active_workflows", e.Data.WorkflowsTriggered)
	case events.DemoStarted:
		fields = append(fields, "scenario", e.ScenarioID, "steps", e.TotalSteps)
	case events.DemoCompleted:
		fields = append(fields, "scenario", e.ScenarioID)
	default:
		fields = append(fields, "key", n.GetKey())
	}

	return slog.LevelInfo, fields
}

func printer(logger *slog.Logger) eventbus.Handler {
	return func(ctx context.Context, n events.Notification) {
		level, fields := describe(n)
		logger.Log(ctx, level, "Notification", fields...)
	}
}

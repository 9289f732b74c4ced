// Package template renders step parameters against the event that triggered a workflow.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/convergence/pkg/models"
)

// Context builds the data parameters are rendered with:
//
//	{{ .event.source.zone }}, {{ .event.data.confidence }}, {{ .execution.id }}
func Context(event *models.Event, executionID, workflowID string) map[string]any {
	data := map[string]any{
		"execution": map[string]any{
			"id":          executionID,
			"workflow_id": workflowID,
		},
	}

	if event == nil {
		return data
	}

	data["event"] = map[string]any{
		"id":       event.ID,
		"type":     string(event.Type),
		"severity": string(event.Severity),
		"source": map[string]any{
			"device_id":   event.Source.DeviceID,
			"device_type": event.Source.DeviceType,
			"location":    event.Source.Location,
			"zone":        event.Source.Zone,
			"building":    event.Source.Building,
		},
		"location": map[string]any{
			"building": event.Location.Building,
			"floor":    event.Location.Floor,
			"zone":     event.Location.Zone,
			"room":     event.Location.Room,
		},
		"data": event.Data,
	}

	return data
}

// NeedsTemplating reports whether a string holds a template action.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// RenderParameters returns a copy of params with every templated string rendered.
// Nested maps and lists are walked.
func RenderParameters(params map[string]any, data any) (map[string]any, error) {
	out := make(map[string]any, len(params))

	for key, value := range params {
		rendered, err := renderValue(value, data)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}

		out[key] = rendered
	}

	return out, nil
}

func renderValue(value any, data any) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		return RenderParameters(v, data)
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("parameter").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

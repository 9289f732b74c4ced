// Package catalog holds the built-in workflow templates.
package catalog

import (
	"time"

	"github.com/dukex/convergence/pkg/models"
)

// Templates returns a fresh copy of the built-in templates. Callers may mutate the result freely.
func Templates() []models.Template {
	out := make([]models.Template, len(builtin))

	for i, t := range builtin {
		out[i] = cloneTemplate(t)
	}

	return out
}

// Template looks up a built-in template by id.
func Template(id string) (models.Template, bool) {
	for _, t := range builtin {
		if t.ID == id {
			return cloneTemplate(t), true
		}
	}

	return models.Template{}, false
}

func cloneTemplate(t models.Template) models.Template {
	clone := t
	clone.Steps = models.CloneSteps(t.Steps)
	clone.Triggers = models.CloneTriggers(t.Triggers)
	clone.ComplianceTags = append([]string(nil), t.ComplianceTags...)
	clone.RecommendedDevices = append([]models.DeviceRef(nil), t.RecommendedDevices...)

	return clone
}

var builtin = []models.Template{
	{
		ID:          "tmpl-active-shooter",
		Name:        "Active Shooter Lockdown (K-12 School)",
		Description: "Immediate lockdown protocol for weapon detection at school entrance.",
		Sector:      models.SectorEducation,
		Steps: []models.Step{
			{ID: "weapon-detect", Label: "AI Vision Analysis", Action: "Weapon Detection", Parameters: map[string]any{"confidence": 0.95}},
			{
				ID:     "lockdown-doors",
				Label:  "Lockdown Command",
				Action: "Lock All Doors",
				Device: &models.DeviceRef{ID: "access-system-1", Type: "access control", Location: models.Location{Building: "Main", Floor: "All", Room: "All"}},
			},
			{ID: "police-alert", Label: "Emergency Alert", Action: "Notify Police", Escalation: &models.EscalationRef{Type: models.EscalationPolice, Contact: "911"}},
			{ID: "pa-broadcast", Label: "Facility Broadcast", Action: "PA Announcement", Parameters: map[string]any{"message": "Lockdown in effect"}},
			{ID: "display-alert", Label: "Emergency Alert", Action: "Display Alert on Screens"},
		},
		Triggers: []models.Trigger{
			{
				ID:          "weapon-at-entrance",
				Source:      "camera-main-entrance",
				EventType:   models.EventWeaponDetected,
				Priority:    1,
				Conditions:  []models.Condition{{Field: "confidence", Operator: models.OpGreaterThan, Value: 0.8}},
				Description: "High-confidence weapon detection",
			},
		},
		RecommendedDevices: []models.DeviceRef{
			{ID: "camera-main-entrance", Type: "AI camera", Location: models.Location{Building: "Main", Floor: "1", Room: "Entrance"}},
			{ID: "access-system-1", Type: "access control", Location: models.Location{Building: "Main", Floor: "All", Room: "All"}},
		},
		ComplianceTags: []string{"FERPA", "School Safety"},
	},
	{
		ID:          "tmpl-infant-protection",
		Name:        "Infant Protection Protocol (Healthcare)",
		Description: "RFID infant tag security protocol for hospital maternity ward.",
		Sector:      models.SectorHealthcare,
		Steps: []models.Step{
			{ID: "rfid-alert", Label: "Badge Reader Event", Action: "RFID Tag Left Secure Area"},
			{ID: "lock-exits", Label: "Lockdown Command", Action: "Lock Maternity Ward Exits"},
			{ID: "security-notify", Label: "Security Alert", Action: "Notify Security Team"},
			{ID: "camera-track", Label: "CCTV Motion Detection", Action: "Activate Nearby Cameras"},
		},
		Triggers: []models.Trigger{
			{ID: "infant-tag-breach", Source: "rfid-maternity-ward", EventType: models.EventInfantTagBreach, Priority: 1},
		},
		RecommendedDevices: []models.DeviceRef{
			{ID: "rfid-maternity-ward", Type: "RFID reader", Location: models.Location{Building: "Hospital", Floor: "3", Room: "Maternity Ward"}},
		},
		ComplianceTags: []string{"HIPAA", "Infant Safety"},
	},
	{
		ID:          "tmpl-unauthorized-entry",
		Name:        "Unauthorized Entry (Office)",
		Description: "After-hours access denial response for office buildings.",
		Sector:      models.SectorCommercial,
		Steps: []models.Step{
			{ID: "access-denied", Label: "Access Control Alert", Action: "Badge Access Denied"},
			{ID: "guard-notify", Label: "Security Alert", Action: "Notify Guard"},
			{ID: "cctv-track", Label: "CCTV Motion Detection", Action: "Track with Nearest Camera"},
			{ID: "sms-alert", Label: "Security Alert", Action: "Send SMS Alert"},
		},
		Triggers: []models.Trigger{
			{
				ID:         "after-hours-denial",
				Source:     "badge-reader-main",
				EventType:  models.EventAccessDenied,
				Priority:   2,
				Cooldown:   5 * time.Second,
				Parameters: map[string]any{"schedule": "after-hours"},
			},
			{
				ID:          "repeated-failures",
				Source:      "badge-reader-main",
				EventType:   models.EventMultipleFailedAttempts,
				Priority:    1,
				Conditions:  []models.Condition{{Field: "attempts", Operator: models.OpGreaterEqual, Value: 3}},
				Description: "Three or more failed badge attempts",
			},
		},
		RecommendedDevices: []models.DeviceRef{
			{ID: "badge-reader-main", Type: "badge reader", Location: models.Location{Building: "Office", Floor: "1", Room: "Main Entrance"}},
		},
		ComplianceTags: []string{"Building Security"},
	},
	{
		ID:          "tmpl-fire-safety",
		Name:        "Fire Safety Drill",
		Description: "Scheduled or emergency fire safety response protocol.",
		Sector:      models.SectorCommercial,
		Steps: []models.Step{
			{ID: "fire-alarm", Label: "Alarm System", Action: "Sound Fire Alarm"},
			{ID: "unlock-exits", Label: "Lockdown Command", Action: "Unlock All Exit Doors"},
			{ID: "compliance-log", Label: "Compliance Audit Event", Action: "Log Fire Drill Event"},
		},
		Triggers: []models.Trigger{
			{ID: "fire-alarm", Source: "fire-sensor-system", EventType: models.EventFireAlarm, Priority: 1},
			{ID: "fire-detected", Source: "fire-sensor-system", EventType: models.EventFireDetected, Priority: 1},
			{ID: "fire-drill", Source: "scheduled-event", EventType: models.EventFireDrill, Priority: 3},
		},
		RecommendedDevices: []models.DeviceRef{
			{ID: "fire-sensor-system", Type: "fire sensor", Location: models.Location{Building: "Office", Floor: "All", Room: "All"}},
		},
		ComplianceTags: []string{"Fire Safety", "OSHA"},
	},
	{
		ID:          "tmpl-visitor-management",
		Name:        "Visitor Management (Enterprise)",
		Description: "Unscheduled visitor protocol for enterprise facilities.",
		Sector:      models.SectorCommercial,
		Steps: []models.Step{
			{ID: "visitor-signin", Label: "Visitor Management Event", Action: "Unscheduled Visitor Sign-in"},
			{ID: "reception-alert", Label: "Security Alert", Action: "Alert Reception"},
			{ID: "camera-view", Label: "CCTV Motion Detection", Action: "Activate Specific Camera View"},
			{ID: "badge-record", Label: "Compliance Audit Event", Action: "Record Badge Attempt"},
		},
		Triggers: []models.Trigger{
			{ID: "unscheduled-visitor", Source: "visitor-kiosk", EventType: models.EventUnscheduledVisitor, Priority: 3, Parameters: map[string]any{"schedule": "outside-hours"}},
		},
		RecommendedDevices: []models.DeviceRef{
			{ID: "visitor-kiosk", Type: "visitor kiosk", Location: models.Location{Building: "Enterprise", Floor: "1", Room: "Lobby"}},
		},
		ComplianceTags: []string{"Visitor Security", "Enterprise Policy"},
	},
}

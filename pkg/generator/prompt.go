package generator

import (
	"strings"
	"time"
)

type component struct {
	Label       string
	Description string
}

var availableComponents = []component{
	{"CCTV Motion Detection", "Detects motion from security cameras"},
	{"AI Vision Analysis", "Object/weapon detection with zone mapping"},
	{"Access Control Alert", "Unauthorized, forced, or door held open alerts"},
	{"Badge Reader Event", "Authorized entry, failed attempt, or RFID events"},
	{"Visitor Management Event", "Unscheduled visitor or VIP arrival notifications"},
	{"Emergency Alert", "Fire, medical emergency, or panic button events"},
	{"Alarm System", "Intrusion, fire, or environmental alarms"},
	{"Facility Broadcast", "PA system, intercom, or SMS notifications"},
	{"Lockdown Command", "Lock doors/zones, flash lights, display signage"},
	{"Compliance Audit Event", "Log all steps for after-action review"},
}

const systemPrompt = `You are an expert physical security consultant with deep knowledge of
industry standards (NIST Cybersecurity Framework, Standard Response Protocol), device integration
protocols (ONVIF, OSDP, MQTT, gRPC), compliance requirements (FERPA, HIPAA, SOX) and emergency
response escalation procedures.

Analyse the request for implicit requirements, consider time, location, occupancy and threat level,
map the request to specific devices and actions, validate compliance and explain every decision.
Prioritise life safety, prefer fail-safe modes for critical systems and account for human factors.

Always respond with valid JSON matching the requested schema.`

const responseFormat = `{
  "workflow": {
    "name": "Workflow Name",
    "description": "Brief description",
    "steps": [
      {"id": "step-1", "label": "Step Label", "action": "Specific action to take", "reasoning": "Why this step is needed", "parameters": {}}
    ],
    "triggers": [
      {"source": "device-id", "eventType": "event_type", "naturalLanguageDescription": "Human readable trigger", "confidence": 0.9}
    ],
    "complianceTags": ["relevant compliance standards"]
  },
  "confidence": 0.85,
  "reasoning": [
    {"step": 1, "question": "What question is being answered?", "analysis": "Analysis", "conclusion": "Decision", "confidence": 0.9}
  ],
  "warnings": ["any potential issues"],
  "suggestions": ["improvement recommendations"],
  "riskAssessment": "Overall risk analysis",
  "complianceAnalysis": "Compliance considerations",
  "alternativeApproaches": ["other viable options"]
}`

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

// buildPrompt renders the user turn sent to the model.
func buildPrompt(req GenerationRequest, now time.Time) string {
	var b strings.Builder

	b.WriteString("# SECURITY WORKFLOW GENERATION REQUEST\n\n")
	b.WriteString("## User Request\n\"" + req.Input + "\"\n\n")

	b.WriteString("## Available Context\n")
	b.WriteString("**Building Information:** " + orDefault(req.BuildingInfo, "General facility") + "\n")
	b.WriteString("**Sector/Industry:** " + orDefault(req.Sector, "General") + "\n")
	b.WriteString("**Current Time:** " + orDefault(req.CurrentTime, now.Format(time.RFC3339)) + "\n")
	b.WriteString("**Compliance Requirements:** " + orDefault(strings.Join(req.ComplianceRules, ", "), "Standard security protocols") + "\n\n")

	b.WriteString("## Available Security Components\n")

	for _, c := range availableComponents {
		b.WriteString("- " + c.Label + ": " + c.Description + "\n")
	}

	b.WriteString("\n## Generation Instructions\n")
	b.WriteString("Work through requirements analysis, threat assessment, device mapping, workflow design, ")
	b.WriteString("compliance validation and risk mitigation. Generate clear triggers based on the available devices, ")
	b.WriteString("detailed steps with device mapping, escalation procedures, required logging and confidence scores.\n\n")
	b.WriteString("Respond with a JSON object in this exact format:\n")
	b.WriteString(responseFormat)

	return b.String()
}

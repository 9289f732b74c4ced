package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukex/convergence/pkg/catalog"
	"github.com/dukex/convergence/pkg/models"
	"github.com/dukex/convergence/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// StorageKey is the blob key under which the full workflow list is mirrored.
const StorageKey = "convergence.workflows"

// Workflow owns the user-authored and template-activated workflows. The list is
// kept most-recent-first and mirrored in full to the blob store on every change.
type Workflow struct {
	mu        sync.RWMutex
	store     persistence.BlobStore
	workflows []*models.Workflow
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewWorkflow creates a new workflow service. Call Load to read the mirrored list.
func NewWorkflow(store persistence.BlobStore, logger *slog.Logger) *Workflow {
	return &Workflow{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("module", "workflow-service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.store == nil {
		return "Persistence layer not initialized", false
	}

	err := w.store.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Load replaces the in-memory list with the mirrored one. Missing or corrupt data
// yields an empty list; the failure is logged and never returned.
func (w *Workflow) Load(ctx context.Context) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.workflows = nil

	body, err := w.store.Get(ctx, StorageKey)
	if err != nil {
		if !persistence.IsBlobNotFound(err) {
			w.logger.WarnContext(ctx, "Failed to read stored workflows, starting empty", "error", err)
		}

		return 0
	}

	var stored []*models.Workflow

	err = json.Unmarshal(body, &stored)
	if err != nil {
		w.logger.WarnContext(ctx, "Stored workflows are corrupt, starting empty", "error", err)

		return 0
	}

	for _, wf := range stored {
		if wf != nil {
			w.workflows = append(w.workflows, wf)
		}
	}

	w.logger.InfoContext(ctx, "Loaded workflows", "count", len(w.workflows))

	return len(w.workflows)
}

// AddWorkflowRequest describes a user-built or AI-generated workflow.
type AddWorkflowRequest struct {
	Name            string                       `json:"name"`
	Description     string                       `json:"description,omitempty"`
	Steps           []models.Step                `json:"steps"`
	Triggers        []models.Trigger             `json:"triggers,omitempty"`
	Location        *models.Location             `json:"location,omitempty"`
	Schedule        *models.Schedule             `json:"schedule,omitempty"`
	ComplianceTags  []string                     `json:"compliance_tags,omitempty"`
	AIMetadata      *models.AIGenerationMetadata `json:"ai_metadata,omitempty"`
	ConfidenceScore float64                      `json:"confidence_score,omitempty"`
}

// AddWorkflow saves a new workflow at the head of the list. A blank name or an
// empty step list is rejected before anything is written.
func (w *Workflow) AddWorkflow(ctx context.Context, req AddWorkflowRequest) (*models.Workflow, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, NewValidationError("AddWorkflow", "name_required", "workflow name is required", ErrWorkflowNameRequired)
	}

	if len(req.Steps) == 0 {
		return nil, NewValidationError("AddWorkflow", "steps_required", "workflow must have at least one step", ErrStepsRequired)
	}

	workflow := &models.Workflow{
		ID:              "wf_" + uuid.New().String(),
		Name:            name,
		Description:     req.Description,
		Steps:           normalizeSteps(req.Steps),
		Triggers:        normalizeTriggers(req.Triggers),
		Source:          models.WorkflowSourceCustom,
		Active:          true,
		ComplianceTags:  append([]string(nil), req.ComplianceTags...),
		ConfidenceScore: req.ConfidenceScore,
		CreatedAt:       w.now(),
	}

	if req.Location != nil {
		location := *req.Location
		workflow.Location = &location
	}

	if req.Schedule != nil {
		schedule := *req.Schedule
		workflow.Schedule = &schedule
	}

	if req.AIMetadata != nil {
		meta := *req.AIMetadata
		workflow.AIMetadata = &meta
		workflow.Source = models.WorkflowSourceAIGenerated
		workflow.ValidationStatus = models.ValidationPending
	}

	err := w.validate.Struct(workflow)
	if err != nil {
		return nil, NewValidationError("AddWorkflow", "invalid_workflow", err.Error(), ErrInvalidRequest)
	}

	return w.prepend(ctx, workflow)
}

// ActivateTemplate clones a built-in template into a new, independent workflow.
func (w *Workflow) ActivateTemplate(ctx context.Context, templateID string) (*models.Workflow, error) {
	tmpl, ok := catalog.Template(templateID)
	if !ok {
		return nil, &ServiceError{Op: "ActivateTemplate", Code: "template_not_found", Err: ErrTemplateNotFound}
	}

	workflow := &models.Workflow{
		ID:             "wf_" + uuid.New().String(),
		Name:           tmpl.Name,
		Description:    tmpl.Description,
		Steps:          models.CloneSteps(tmpl.Steps),
		Triggers:       models.CloneTriggers(tmpl.Triggers),
		Source:         models.WorkflowSourceTemplate,
		Active:         true,
		ComplianceTags: append([]string(nil), tmpl.ComplianceTags...),
		TemplateID:     tmpl.ID,
		CreatedAt:      w.now(),
	}

	return w.prepend(ctx, workflow)
}

func (w *Workflow) prepend(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.workflows = append([]*models.Workflow{workflow}, w.workflows...)
	w.mirror(ctx)

	w.logger.InfoContext(ctx, "Workflow saved",
		"workflow_id", workflow.ID,
		"source", workflow.Source,
		"steps", len(workflow.Steps))

	return workflow.Clone(), nil
}

// RemoveWorkflow deletes a workflow by id. No history is kept.
func (w *Workflow) RemoveWorkflow(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	index := w.indexOf(id)
	if index < 0 {
		return &ServiceError{Op: "RemoveWorkflow", Code: "workflow_not_found", Err: ErrWorkflowNotFound}
	}

	w.workflows = append(w.workflows[:index:index], w.workflows[index+1:]...)

	w.mirror(ctx)

	w.logger.InfoContext(ctx, "Workflow removed", "workflow_id", id)

	return nil
}

// ClearWorkflows drops every saved workflow.
func (w *Workflow) ClearWorkflows(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.workflows = nil
	w.mirror(ctx)

	return nil
}

// ValidateWorkflow records a reviewer's verdict on an AI-generated workflow.
func (w *Workflow) ValidateWorkflow(ctx context.Context, id string, status models.ValidationStatus) (*models.Workflow, error) {
	if status != models.ValidationValidated && status != models.ValidationRejected {
		return nil, NewValidationError("ValidateWorkflow", "invalid_status", "", ErrInvalidValidationStatus)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	index := w.indexOf(id)
	if index < 0 {
		return nil, &ServiceError{Op: "ValidateWorkflow", Code: "workflow_not_found", Err: ErrWorkflowNotFound}
	}

	workflow := w.workflows[index]
	if workflow.Source != models.WorkflowSourceAIGenerated {
		return nil, NewValidationError("ValidateWorkflow", "not_ai_generated", "", ErrNotAIGenerated)
	}

	workflow.ValidationStatus = status
	w.mirror(ctx)

	return workflow.Clone(), nil
}

// SetActive toggles whether a workflow takes part in trigger matching.
func (w *Workflow) SetActive(ctx context.Context, id string, active bool) (*models.Workflow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	index := w.indexOf(id)
	if index < 0 {
		return nil, &ServiceError{Op: "SetActive", Code: "workflow_not_found", Err: ErrWorkflowNotFound}
	}

	w.workflows[index].Active = active
	w.mirror(ctx)

	return w.workflows[index].Clone(), nil
}

// Workflows returns copies of every saved workflow, most recent first.
func (w *Workflow) Workflows() []*models.Workflow {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]*models.Workflow, len(w.workflows))
	for i, wf := range w.workflows {
		out[i] = wf.Clone()
	}

	return out
}

// ActiveWorkflows returns copies of the workflows that take part in trigger matching.
// Rejected AI workflows never do.
func (w *Workflow) ActiveWorkflows() []*models.Workflow {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []*models.Workflow

	for _, wf := range w.workflows {
		if !wf.Active || wf.ValidationStatus == models.ValidationRejected {
			continue
		}

		out = append(out, wf.Clone())
	}

	return out
}

// Get returns a copy of a saved workflow.
func (w *Workflow) Get(id string) (*models.Workflow, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	index := w.indexOf(id)
	if index < 0 {
		return nil, &ServiceError{Op: "Get", Code: "workflow_not_found", Err: ErrWorkflowNotFound}
	}

	return w.workflows[index].Clone(), nil
}

func (w *Workflow) indexOf(id string) int {
	for i, wf := range w.workflows {
		if wf.ID == id {
			return i
		}
	}

	return -1
}

// mirror writes the full list. Callers hold the write lock. Persistence is best
// effort: the in-memory list stays authoritative and a failed write is only logged,
// to be retried by the next change.
func (w *Workflow) mirror(ctx context.Context) {
	list := w.workflows
	if list == nil {
		list = []*models.Workflow{}
	}

	body, err := json.Marshal(list)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to encode workflows", "error", err)

		return
	}

	err = w.store.Put(ctx, StorageKey, body)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to mirror workflows",
			"count", len(list),
			"error", err)
	}
}

func normalizeSteps(steps []models.Step) []models.Step {
	out := models.CloneSteps(steps)

	for i := range out {
		if out[i].ID == "" {
			out[i].ID = "step-" + strconv.Itoa(i+1)
		}

		if out[i].Label == "" {
			out[i].Label = out[i].Action
		}
	}

	return out
}

func normalizeTriggers(triggers []models.Trigger) []models.Trigger {
	out := models.CloneTriggers(triggers)

	for i := range out {
		if out[i].ID == "" {
			out[i].ID = "trigger-" + strconv.Itoa(i+1)
		}
	}

	return out
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/convergence/pkg/mocks"
	"github.com/dukex/convergence/pkg/models"
	"github.com/dukex/convergence/pkg/persistence"
	"github.com/dukex/convergence/pkg/persistence/file"
	"github.com/dukex/convergence/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func lockdownSteps() []models.Step {
	return []models.Step{
		{ID: "lock", Label: "Lock doors", Action: "Lock All Doors"},
		{ID: "notify", Label: "Notify police", Action: "Notify Police"},
	}
}

func storedIDs(t *testing.T, store persistence.BlobStore) []string {
	t.Helper()

	body, err := store.Get(context.Background(), StorageKey)
	require.NoError(t, err)

	var stored []*models.Workflow
	require.NoError(t, json.Unmarshal(body, &stored))

	ids := make([]string, len(stored))
	for i, wf := range stored {
		ids[i] = wf.ID
	}

	return ids
}

func TestWorkflow_AddWorkflow(t *testing.T) {
	store := memory.NewStore()
	service := NewWorkflow(store, slog.Default())
	ctx := context.Background()

	first, err := service.AddWorkflow(ctx, AddWorkflowRequest{Name: "  First  ", Steps: lockdownSteps()})
	require.NoError(t, err)

	second, err := service.AddWorkflow(ctx, AddWorkflowRequest{Name: "Second", Steps: lockdownSteps()})
	require.NoError(t, err)

	assert.Equal(t, "First", first.Name)
	assert.Equal(t, models.WorkflowSourceCustom, first.Source)
	assert.True(t, first.Active)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Contains(t, first.ID, "wf_")
	assert.Empty(t, first.ValidationStatus)

	list := service.Workflows()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "most recent first")
	assert.Equal(t, []string{second.ID, first.ID}, storedIDs(t, store))
}

func TestWorkflow_AddWorkflow_AIMetadataMarksPending(t *testing.T) {
	service := NewWorkflow(memory.NewStore(), slog.Default())

	wf, err := service.AddWorkflow(context.Background(), AddWorkflowRequest{
		Name:            "Generated",
		Steps:           lockdownSteps(),
		AIMetadata:      &models.AIGenerationMetadata{OriginalPrompt: "lock the school", Model: "gemini-1.5-flash"},
		ConfidenceScore: 0.8,
	})
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowSourceAIGenerated, wf.Source)
	assert.Equal(t, models.ValidationPending, wf.ValidationStatus)
	assert.InDelta(t, 0.8, wf.ConfidenceScore, 0.0001)
}

func TestWorkflow_AddWorkflow_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		request  AddWorkflowRequest
		expected error
	}{
		{name: "empty name", request: AddWorkflowRequest{Name: "", Steps: lockdownSteps()}, expected: ErrWorkflowNameRequired},
		{name: "blank name", request: AddWorkflowRequest{Name: "   ", Steps: lockdownSteps()}, expected: ErrWorkflowNameRequired},
		{name: "no steps", request: AddWorkflowRequest{Name: "Empty"}, expected: ErrStepsRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mocks.MockBlobStore{}
			service := NewWorkflow(store, slog.Default())

			wf, err := service.AddWorkflow(context.Background(), tt.request)
			require.ErrorIs(t, err, tt.expected)
			assert.True(t, IsValidationError(err))
			assert.Nil(t, wf)
			assert.Empty(t, service.Workflows())

			store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestWorkflow_ActivateTemplateTwice(t *testing.T) {
	service := NewWorkflow(memory.NewStore(), slog.Default())
	ctx := context.Background()

	first, err := service.ActivateTemplate(ctx, "tmpl-active-shooter")
	require.NoError(t, err)

	second, err := service.ActivateTemplate(ctx, "tmpl-active-shooter")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, "tmpl-active-shooter", first.ID)
	assert.Equal(t, first.Steps, second.Steps)
	assert.Equal(t, first.Triggers, second.Triggers)
	assert.Equal(t, first.ComplianceTags, second.ComplianceTags)
	assert.Equal(t, models.WorkflowSourceTemplate, first.Source)
	assert.Equal(t, "tmpl-active-shooter", first.TemplateID)

	_, err = service.ActivateTemplate(ctx, "tmpl-unknown")
	require.ErrorIs(t, err, ErrTemplateNotFound)
	assert.True(t, IsNotFoundError(err))
}

func TestWorkflow_ActivatedTemplateIsIndependent(t *testing.T) {
	service := NewWorkflow(memory.NewStore(), slog.Default())

	wf, err := service.ActivateTemplate(context.Background(), "tmpl-active-shooter")
	require.NoError(t, err)

	wf.Steps[0].Parameters["confidence"] = 0.1

	again, err := service.ActivateTemplate(context.Background(), "tmpl-active-shooter")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, again.Steps[0].Parameters["confidence"], 0.0001)
}

func TestWorkflow_RemoveWorkflow(t *testing.T) {
	store := file.NewStore(t.TempDir())
	service := NewWorkflow(store, slog.Default())
	ctx := context.Background()

	keep, err := service.AddWorkflow(ctx, AddWorkflowRequest{Name: "Keep", Steps: lockdownSteps()})
	require.NoError(t, err)

	drop, err := service.AddWorkflow(ctx, AddWorkflowRequest{Name: "Drop", Steps: lockdownSteps()})
	require.NoError(t, err)

	require.NoError(t, service.RemoveWorkflow(ctx, drop.ID))

	list := service.Workflows()
	require.Len(t, list, 1)
	assert.Equal(t, keep.ID, list[0].ID)
	assert.Equal(t, []string{keep.ID}, storedIDs(t, store))

	err = service.RemoveWorkflow(ctx, drop.ID)
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_ClearWorkflows(t *testing.T) {
	store := memory.NewStore()
	service := NewWorkflow(store, slog.Default())
	ctx := context.Background()

	_, err := service.AddWorkflow(ctx, AddWorkflowRequest{Name: "One", Steps: lockdownSteps()})
	require.NoError(t, err)

	require.NoError(t, service.ClearWorkflows(ctx))
	assert.Empty(t, service.Workflows())
	assert.Empty(t, storedIDs(t, store))
}

func TestWorkflow_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		store := memory.NewStore()
		writer := NewWorkflow(store, slog.Default())

		saved, err := writer.AddWorkflow(ctx, AddWorkflowRequest{Name: "Persisted", Steps: lockdownSteps()})
		require.NoError(t, err)

		reader := NewWorkflow(store, slog.Default())
		assert.Equal(t, 1, reader.Load(ctx))

		loaded, err := reader.Get(saved.ID)
		require.NoError(t, err)
		assert.Equal(t, saved.Name, loaded.Name)
		assert.Equal(t, saved.Steps, loaded.Steps)
	})

	t.Run("missing blob", func(t *testing.T) {
		service := NewWorkflow(memory.NewStore(), slog.Default())
		assert.Equal(t, 0, service.Load(ctx))
		assert.Empty(t, service.Workflows())
	})

	t.Run("corrupt blob", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.Put(ctx, StorageKey, []byte("{not json")))

		service := NewWorkflow(store, slog.Default())
		assert.Equal(t, 0, service.Load(ctx))
		assert.Empty(t, service.Workflows())
	})

	t.Run("store failure", func(t *testing.T) {
		store := &mocks.MockBlobStore{}
		store.On("Get", mock.Anything, StorageKey).Return(nil, errors.New("connection refused"))

		service := NewWorkflow(store, slog.Default())
		assert.Equal(t, 0, service.Load(ctx))
		store.AssertExpectations(t)
	})
}

func TestWorkflow_ValidateWorkflow(t *testing.T) {
	service := NewWorkflow(memory.NewStore(), slog.Default())
	ctx := context.Background()

	custom, err := service.AddWorkflow(ctx, AddWorkflowRequest{Name: "Custom", Steps: lockdownSteps()})
	require.NoError(t, err)

	ai, err := service.AddWorkflow(ctx, AddWorkflowRequest{
		Name:       "AI",
		Steps:      lockdownSteps(),
		AIMetadata: &models.AIGenerationMetadata{Model: "gemini-1.5-flash"},
	})
	require.NoError(t, err)

	_, err = service.ValidateWorkflow(ctx, custom.ID, models.ValidationValidated)
	require.ErrorIs(t, err, ErrNotAIGenerated)

	_, err = service.ValidateWorkflow(ctx, ai.ID, models.ValidationPending)
	require.ErrorIs(t, err, ErrInvalidValidationStatus)

	rejected, err := service.ValidateWorkflow(ctx, ai.ID, models.ValidationRejected)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationRejected, rejected.ValidationStatus)

	active := service.ActiveWorkflows()
	require.Len(t, active, 1)
	assert.Equal(t, custom.ID, active[0].ID)
}

func TestWorkflow_SetActive(t *testing.T) {
	service := NewWorkflow(memory.NewStore(), slog.Default())
	ctx := context.Background()

	wf, err := service.AddWorkflow(ctx, AddWorkflowRequest{Name: "Toggle", Steps: lockdownSteps()})
	require.NoError(t, err)

	updated, err := service.SetActive(ctx, wf.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Empty(t, service.ActiveWorkflows())

	_, err = service.SetActive(ctx, "missing", true)
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_MirrorFailureKeepsChanges(t *testing.T) {
	store := &mocks.MockBlobStore{}
	store.On("Put", mock.Anything, StorageKey, mock.Anything).Return(errors.New("disk full"))

	ctx := context.Background()
	service := NewWorkflow(store, slog.Default())

	wf, err := service.AddWorkflow(ctx, AddWorkflowRequest{Name: "Unsaved", Steps: lockdownSteps()})
	require.NoError(t, err)
	require.NotNil(t, wf)

	workflows := service.Workflows()
	require.Len(t, workflows, 1)
	assert.Equal(t, wf.ID, workflows[0].ID)

	disabled, err := service.SetActive(ctx, wf.ID, false)
	require.NoError(t, err)
	assert.False(t, disabled.Active)
	assert.Empty(t, service.ActiveWorkflows())

	activated, err := service.ActivateTemplate(ctx, "tmpl-fire-safety")
	require.NoError(t, err)
	assert.Len(t, service.Workflows(), 2)

	require.NoError(t, service.RemoveWorkflow(ctx, activated.ID))
	assert.Len(t, service.Workflows(), 1)

	require.NoError(t, service.ClearWorkflows(ctx))
	assert.Empty(t, service.Workflows())

	store.AssertNumberOfCalls(t, "Put", 5)
}

func TestWorkflow_ReturnsCopies(t *testing.T) {
	service := NewWorkflow(memory.NewStore(), slog.Default())

	wf, err := service.AddWorkflow(context.Background(), AddWorkflowRequest{Name: "Original", Steps: lockdownSteps()})
	require.NoError(t, err)

	wf.Name = "Mutated"
	service.Workflows()[0].Steps[0].Label = "Mutated"

	stored, err := service.Get(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", stored.Name)
	assert.Equal(t, "Lock doors", stored.Steps[0].Label)
}

func TestWorkflow_HealthCheck(t *testing.T) {
	service := NewWorkflow(memory.NewStore(), slog.Default())

	msg, ok := service.HealthCheck(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", msg)
}

package catalog

import (
	"github.com/dukex/convergence/pkg/models"
)

// SavedWorkflows lists the workflows saved by users.
type SavedWorkflows interface {
	Workflows() []*models.Workflow
	ActiveWorkflows() []*models.Workflow
}

// Matchable is every workflow known to the dispatcher: the built-in templates under
// their own ids followed by the saved, active workflows. Once a template has been
// activated its saved clone replaces it, so disabling the clone silences the template.
type Matchable struct {
	Saved SavedWorkflows
}

func (m Matchable) Workflows() []*models.Workflow {
	claimed := map[string]bool{}

	var saved []*models.Workflow

	if m.Saved != nil {
		for _, wf := range m.Saved.Workflows() {
			if wf.TemplateID != "" {
				claimed[wf.TemplateID] = true
			}
		}

		saved = m.Saved.ActiveWorkflows()
	}

	templates := Templates()
	out := make([]*models.Workflow, 0, len(templates)+len(saved))

	for i := range templates {
		if claimed[templates[i].ID] {
			continue
		}

		out = append(out, templates[i].AsWorkflow())
	}

	return append(out, saved...)
}

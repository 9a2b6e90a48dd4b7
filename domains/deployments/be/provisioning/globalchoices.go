package provisioning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erdbridge/erdbridge/domains/deployments/be/service"
	"github.com/erdbridge/erdbridge/platform/go/dataverse"
	"github.com/erdbridge/erdbridge/platform/go/naming"
)

// ChoiceGateway is the slice of the platform gateway the choice manager uses.
type ChoiceGateway interface {
	GetGlobalChoiceByName(ctx context.Context, name string) (dataverse.GlobalChoice, error)
	CreateGlobalChoice(ctx context.Context, name, displayName string, options []dataverse.ChoiceOption) (string, error)
	AddSolutionComponent(ctx context.Context, componentID string, componentType int, solutionUniqueName string) error
}

// ChoiceManager creates or reuses shared option sets. Option sets are global,
// so an existing one with the prefixed name is reused rather than recreated;
// only sets this call created belong to the caller's manifest.
type ChoiceManager struct {
	gateway ChoiceGateway
	logger  *zap.Logger
}

// NewChoiceManager constructs a ChoiceManager.
func NewChoiceManager(gateway ChoiceGateway, logger *zap.Logger) *ChoiceManager {
	if gateway == nil {
		panic("provisioning: gateway is required")
	}
	if logger == nil {
		panic("provisioning: logger is required")
	}
	return &ChoiceManager{gateway: gateway, logger: logger}
}

// EnsureGlobalChoices ensures every descriptor exists and is attached to the
// solution. Per-choice failures are advisory warnings; the remaining choices
// still get processed.
func (m *ChoiceManager) EnsureGlobalChoices(ctx context.Context, choices []service.GlobalChoiceDescriptor, prefix, solutionUniqueName string) (service.ChoiceOutcome, error) {
	outcome := service.ChoiceOutcome{}

	for _, desc := range choices {
		name, err := naming.LogicalName(prefix, desc.Name)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("global choice %s: %v", desc.Name, err))
			continue
		}

		displayName := desc.DisplayName
		if displayName == "" {
			displayName = titleCase(desc.Name)
		}

		existing, err := m.gateway.GetGlobalChoiceByName(ctx, name)
		switch {
		case err == nil:
			outcome.Reused = append(outcome.Reused, service.ChoiceRecord{ID: existing.ID, Name: name, DisplayName: displayName})
			m.logger.Info("global choice exists", zap.String("name", name))
			if err := m.attach(ctx, existing.ID, solutionUniqueName); err != nil {
				outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("attach global choice %s to solution: %v", name, err))
			}
			continue
		case !dataverse.IsNotFound(err):
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("probe global choice %s: %v", name, err))
			continue
		}

		options := make([]dataverse.ChoiceOption, 0, len(desc.Options))
		for _, option := range desc.Options {
			options = append(options, dataverse.ChoiceOption{Value: option.Value, Label: option.Label})
		}

		id, err := m.gateway.CreateGlobalChoice(ctx, name, displayName, options)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("create global choice %s: %v", name, err))
			continue
		}
		outcome.Created = append(outcome.Created, service.ChoiceRecord{ID: id, Name: name, DisplayName: displayName})
		m.logger.Info("global choice created", zap.String("name", name))

		if err := m.attach(ctx, id, solutionUniqueName); err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("attach global choice %s to solution: %v", name, err))
		}
	}

	return outcome, nil
}

func (m *ChoiceManager) attach(ctx context.Context, componentID, solutionUniqueName string) error {
	if componentID == "" || solutionUniqueName == "" {
		return nil
	}
	return m.gateway.AddSolutionComponent(ctx, componentID, dataverse.ComponentTypeGlobalOptionSet, solutionUniqueName)
}

var _ service.ChoiceManager = (*ChoiceManager)(nil)

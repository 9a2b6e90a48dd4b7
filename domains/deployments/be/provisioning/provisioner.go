// Package provisioning creates schema objects on the metadata platform. Every
// operation is an idempotent ensure: look the object up first, create it only
// when absent, then confirm it is queryable before anything depends on it.
package provisioning

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/erdbridge/erdbridge/domains/deployments/be/service"
	"github.com/erdbridge/erdbridge/platform/go/dataverse"
)

// ContainerGateway is the slice of the platform gateway the provisioner uses.
type ContainerGateway interface {
	GetPublisherByName(ctx context.Context, uniqueName string) (dataverse.Publisher, error)
	GetPublisherByPrefix(ctx context.Context, prefix string) (dataverse.Publisher, error)
	CreatePublisher(ctx context.Context, spec dataverse.PublisherSpec) (string, error)
	GetSolution(ctx context.Context, uniqueName string) (dataverse.Solution, error)
	CreateSolution(ctx context.Context, uniqueName, friendlyName, publisherID string) (string, error)
}

// Provisioner ensures the publisher and solution container objects exist.
type Provisioner struct {
	gateway      ContainerGateway
	logger       *zap.Logger
	lookupPolicy dataverse.Policy
}

// NewProvisioner constructs a Provisioner.
func NewProvisioner(gateway ContainerGateway, logger *zap.Logger) *Provisioner {
	if gateway == nil {
		panic("provisioning: gateway is required")
	}
	if logger == nil {
		panic("provisioning: logger is required")
	}
	return &Provisioner{
		gateway:      gateway,
		logger:       logger,
		lookupPolicy: dataverse.ProvisionerLookupPolicy,
	}
}

// EnsurePublisher returns the existing publisher or creates it. A different
// publisher already holding the requested prefix is an error: two publishers
// sharing a prefix would collide on every schema name.
func (p *Provisioner) EnsurePublisher(ctx context.Context, spec service.PublisherSpec) (dataverse.Publisher, error) {
	publisher, err := p.gateway.GetPublisherByName(ctx, spec.UniqueName)
	if err == nil {
		if publisher.Prefix != spec.Prefix {
			return dataverse.Publisher{}, fmt.Errorf("publisher %s exists with prefix %q, requested %q",
				spec.UniqueName, publisher.Prefix, spec.Prefix)
		}
		p.logger.Info("publisher exists", zap.String("publisher", publisher.UniqueName))
		return publisher, nil
	}
	if !dataverse.IsNotFound(err) {
		return dataverse.Publisher{}, err
	}

	byPrefix, err := p.gateway.GetPublisherByPrefix(ctx, spec.Prefix)
	if err == nil {
		return dataverse.Publisher{}, fmt.Errorf("prefix %q is already owned by publisher %s", spec.Prefix, byPrefix.UniqueName)
	}
	if !dataverse.IsNotFound(err) {
		return dataverse.Publisher{}, err
	}

	friendlyName := spec.FriendlyName
	if friendlyName == "" {
		friendlyName = spec.UniqueName
	}
	if _, err := p.gateway.CreatePublisher(ctx, dataverse.PublisherSpec{
		UniqueName:   spec.UniqueName,
		FriendlyName: friendlyName,
		Prefix:       spec.Prefix,
	}); err != nil {
		return dataverse.Publisher{}, fmt.Errorf("create publisher %s: %w", spec.UniqueName, err)
	}
	p.logger.Info("publisher created", zap.String("publisher", spec.UniqueName), zap.String("prefix", spec.Prefix))

	publisher, err = p.awaitPublisher(ctx, spec.UniqueName)
	if err != nil {
		// Everything downstream needs the publisher id, so this is fatal even
		// though the create itself went through.
		return dataverse.Publisher{}, fmt.Errorf("publisher %s created but could not be retrieved: %w", spec.UniqueName, err)
	}
	return publisher, nil
}

// EnsureSolution returns the existing solution or creates it under the publisher.
func (p *Provisioner) EnsureSolution(ctx context.Context, spec service.SolutionSpec, publisher dataverse.Publisher) (dataverse.Solution, error) {
	solution, err := p.gateway.GetSolution(ctx, spec.UniqueName)
	if err == nil {
		if solution.PublisherID != "" && solution.PublisherID != publisher.ID {
			return dataverse.Solution{}, fmt.Errorf("solution %s exists under a different publisher", spec.UniqueName)
		}
		p.logger.Info("solution exists", zap.String("solution", solution.UniqueName))
		return solution, nil
	}
	if !dataverse.IsNotFound(err) {
		return dataverse.Solution{}, err
	}

	friendlyName := spec.FriendlyName
	if friendlyName == "" {
		friendlyName = spec.UniqueName
	}
	if _, err := p.gateway.CreateSolution(ctx, spec.UniqueName, friendlyName, publisher.ID); err != nil {
		return dataverse.Solution{}, fmt.Errorf("create solution %s: %w", spec.UniqueName, err)
	}
	p.logger.Info("solution created", zap.String("solution", spec.UniqueName))

	solution, err = p.awaitSolution(ctx, spec.UniqueName)
	if err != nil {
		return dataverse.Solution{}, fmt.Errorf("solution %s created but could not be retrieved: %w", spec.UniqueName, err)
	}
	return solution, nil
}

// awaitPublisher polls until the created publisher is visible to reads. The
// platform's metadata cache makes a freshly created object briefly invisible.
func (p *Provisioner) awaitPublisher(ctx context.Context, uniqueName string) (dataverse.Publisher, error) {
	var publisher dataverse.Publisher
	err := p.lookupPolicy.Do(ctx, p.logger, "lookupPublisher", func() error {
		got, err := p.gateway.GetPublisherByName(ctx, uniqueName)
		if dataverse.IsNotFound(err) {
			return notVisibleYet("lookupPublisher")
		}
		if err != nil {
			return err
		}
		publisher = got
		return nil
	})
	return publisher, err
}

func (p *Provisioner) awaitSolution(ctx context.Context, uniqueName string) (dataverse.Solution, error) {
	var solution dataverse.Solution
	err := p.lookupPolicy.Do(ctx, p.logger, "lookupSolution", func() error {
		got, err := p.gateway.GetSolution(ctx, uniqueName)
		if dataverse.IsNotFound(err) {
			return notVisibleYet("lookupSolution")
		}
		if err != nil {
			return err
		}
		solution = got
		return nil
	})
	return solution, err
}

// notVisibleYet reclassifies a post-create 404 as transient so the lookup
// policy keeps polling instead of giving up on the first read.
func notVisibleYet(op string) error {
	return &dataverse.APIError{
		Op:         op,
		StatusCode: http.StatusNotFound,
		Kind:       dataverse.KindTransient,
		Message:    "created object not visible yet",
	}
}

// sleeper waits unless the context ends first. Builders take it as a field so
// tests run without real delays.
type sleeper func(ctx context.Context, d time.Duration)

func defaultSleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

var _ service.Provisioner = (*Provisioner)(nil)

// pkg/service/registry.go
package service

import (
	"sort"
	"sync"

	"github.com/cmatc13/p2pservice/pkg/errors"
	"github.com/cmatc13/p2pservice/pkg/logging"
)

// Registry indexes services by name for lookup by the admin API and the status
// publisher. It plays no part in cancellation or cleanup; those flow through
// tokens and RunChild.
type Registry struct {
	services map[string]*Service
	mutex    sync.RWMutex
	logger   *logging.Logger
}

// NewRegistry creates a new service registry
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		services: make(map[string]*Service),
		logger:   logger,
	}
}

// Register adds a service to the registry under its name
func (r *Registry) Register(service *Service) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	name := service.Name()
	if _, exists := r.services[name]; exists {
		return errors.WrapWithOperation(errors.ServiceErrorf(errors.ErrAlreadyExists, errors.ServiceErrDuplicateName,
			"service %s is already registered", name), errors.OpRegister)
	}

	r.services[name] = service
	r.logger.Debug("Service registered", "name", name)
	return nil
}

// Get returns a service by name
func (r *Registry) Get(name string) (*Service, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	service, exists := r.services[name]
	if !exists {
		return nil, errors.ServiceErrorf(errors.ErrNotFound, errors.ServiceErrUnknown,
			"service %s not found", name)
	}

	return service, nil
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Statuses returns a snapshot of every registered service's status
func (r *Registry) Statuses() map[string]Status {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	statuses := make(map[string]Status, len(r.services))
	for name, service := range r.services {
		statuses[name] = service.Status()
	}
	return statuses
}

// All returns the registered services ordered by name
func (r *Registry) All() []*Service {
	names := r.Names()

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	services := make([]*Service, 0, len(names))
	for _, name := range names {
		if service, ok := r.services[name]; ok {
			services = append(services, service)
		}
	}
	return services
}

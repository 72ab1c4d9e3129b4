package service

import (
	"context"
	"errors"
	"fmt"
)

// Service defines a generic service.
type Service interface{}

// RunnableService defines a service that can be run.
type RunnableService interface {
	Service

	Run()
	Shutdown(ctx context.Context) error
}

// Group is a container for managing a bunch of services.
type Group struct {
	list []Service
}

func (g *Group) Add(services ...Service) { g.list = append(g.list, services...) }

// Start starts each runnable service in the group.
func (g *Group) Start() {
	for _, s := range g.list {
		if v, ok := s.(RunnableService); ok {
			v.Run()
		}
	}
}

// Shutdown stops the group, joining the errors of every service that
// didn't stop cleanly.
func (g *Group) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range g.list {
		v, ok := s.(RunnableService)
		if !ok {
			continue
		}
		if err := v.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("couldn't stop [%v]: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

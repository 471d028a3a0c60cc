// Package di provides a small lazy dependency injection container with
// type-safe tokens.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry resolves registered services by name.
type ServiceRegistry interface {
	Get(name string) any
}

// Container is a ServiceRegistry that also accepts registrations.
type Container interface {
	ServiceRegistry
	Register(name string, service any)
	RegisterFactory(name string, factory func(ServiceRegistry) any)
	Has(name string) bool
}

type entry struct {
	once     sync.Once
	factory  func(ServiceRegistry) any
	instance any
}

type container struct {
	mu       sync.RWMutex
	services map[string]*entry
}

// NewContainer returns an empty container.
func NewContainer() Container {
	return &container{services: make(map[string]*entry)}
}

// Register stores an already built service.
func (c *container) Register(name string, service any) {
	e := &entry{instance: service}
	e.once.Do(func() {})

	c.mu.Lock()
	c.services[name] = e
	c.mu.Unlock()
}

// RegisterFactory stores a factory that runs once, on first Get.
func (c *container) RegisterFactory(name string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	c.services[name] = &entry{factory: factory}
	c.mu.Unlock()
}

// Has reports whether name has been registered.
func (c *container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.services[name]
	return ok
}

// Get resolves name, building it on first use. It panics on unknown names:
// a missing registration is a wiring bug.
func (c *container) Get(name string) any {
	c.mu.RLock()
	e, ok := c.services[name]
	c.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("di: service %q is not registered", name))
	}

	e.once.Do(func() {
		e.instance = e.factory(c)
	})
	return e.instance
}

package gateway

import (
	"context"
	"fmt"
	"sort"
)

// Command handles one request type. Init validates and extracts parameters from
// the envelope; Execute performs the action. A fresh Command is built per request.
type Command interface {
	Init(env Envelope) error
	Execute(ctx context.Context) (any, error)
}

type Factory func() Command

// Commands maps request types to factories. It is filled once at startup and
// only read afterwards.
type Commands struct {
	factories map[string]Factory
}

func NewCommands() *Commands {
	return &Commands{factories: make(map[string]Factory)}
}

func (c *Commands) Register(name string, factory Factory) {
	if name == "" || factory == nil {
		panic("gateway: command registration requires a name and a factory")
	}
	if _, dup := c.factories[name]; dup {
		panic(fmt.Sprintf("gateway: command %q registered twice", name))
	}
	c.factories[name] = factory
}

func (c *Commands) Lookup(name string) (Command, bool) {
	factory, ok := c.factories[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

func (c *Commands) Names() []string {
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

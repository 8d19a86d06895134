package scope

// ProcessorContext supplies the per-processor settings a decoded scope
// cannot carry for itself: its name, its undefined-variable policy, and a
// fresh environment to resolve against.
type ProcessorContext interface {
	ScopeName() string
	DeferUndefined() bool
	NewEnvironment() (Environment, error)
}

type processorContext struct {
	name           string
	deferUndefined bool
	factory        func() (Environment, error)
}

// NewProcessorContext builds the standard ProcessorContext. A nil factory
// yields scopes with no environment.
func NewProcessorContext(name string, deferUndefined bool, factory func() (Environment, error)) ProcessorContext {
	return &processorContext{
		name:           name,
		deferUndefined: deferUndefined,
		factory:        factory,
	}
}

func (c *processorContext) ScopeName() string {
	return c.name
}

func (c *processorContext) DeferUndefined() bool {
	return c.deferUndefined
}

func (c *processorContext) NewEnvironment() (Environment, error) {
	if c.factory == nil {
		return nil, nil
	}
	return c.factory()
}

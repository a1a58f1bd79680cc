package store

import "github.com/tethys-org/store/pkg/registry"

// Option configures store construction.
type Option func(*config)

type config struct {
	name         string
	maxInstances int
	runtime      *Runtime
}

func defaultConfig() config {
	return config{
		maxInstances: registry.DefaultMaxInstances,
	}
}

// WithName overrides the generated type name (which defaults to the state
// type's name). Instances of one logical store type must share a name, or
// they will not share actions or the per-type instance cap.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithInstanceMaxCount caps live instances per store type. 0 means
// unbounded. The default is registry.DefaultMaxInstances.
func WithInstanceMaxCount(n int) Option {
	return func(c *config) {
		c.maxInstances = n
	}
}

// WithRuntime wires the store to an isolated Runtime instead of Default.
func WithRuntime(rt *Runtime) Option {
	return func(c *config) {
		c.runtime = rt
	}
}

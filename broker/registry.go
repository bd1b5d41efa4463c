package broker

import (
	"fmt"
	"sort"

	"github.com/alphadose/haxmap"

	"github.com/miladsoleymani/chanflow/core"
)

// Factory creates a Broker from the given ConnectorConfig.
type Factory func(cfg ConnectorConfig) (core.Broker, error)

var factories = haxmap.New[string, Factory]()

// Register adds a named broker factory. Plugins call this from init().
// The name is what the "type" attribute of a connector selects.
func Register(name string, factory Factory) {
	factories.Set(name, factory)
}

// Create instantiates a broker using the factory registered for cfg.Type.
func Create(cfg ConnectorConfig) (core.Broker, error) {
	f, ok := factories.Get(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("chanflow: unknown broker type %q", cfg.Type)
	}
	return f(cfg)
}

// Kinds returns the registered factory names in sorted order.
func Kinds() []string {
	var out []string
	factories.ForEach(func(name string, _ Factory) bool {
		out = append(out, name)
		return true
	})
	sort.Strings(out)
	return out
}

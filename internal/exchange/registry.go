package exchange

import "sort"

// Registry resolves connectors by exchange name.
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry builds a registry from the given connectors. A later
// connector with a duplicate name replaces the earlier one.
func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Name()] = c
	}
	return r
}

// Get returns the connector for the exchange name.
func (r *Registry) Get(name string) (Connector, bool) {
	c, ok := r.connectors[name]
	return c, ok
}

// Names returns all registered exchange names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered connector in name order.
func (r *Registry) All() []Connector {
	all := make([]Connector, 0, len(r.connectors))
	for _, name := range r.Names() {
		all = append(all, r.connectors[name])
	}
	return all
}

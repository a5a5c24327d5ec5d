package analyzers

import (
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/common"
)

// Registry is the static analyzer table, assembled at program start.
// Analyzer identity is a value in this table, not a module path.
type Registry struct {
	byName map[string]Analyzer
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Analyzer)}
}

// DefaultRegistry registers the built-in analyzers.
func DefaultRegistry(logger arbor.ILogger) *Registry {
	r := NewRegistry()
	r.Register(NewPatternScanner(logger))
	r.Register(NewSEOAudit(logger))
	r.Register(NewLLMDiscoveryAudit(logger))
	r.Register(NewSecurityAudit(logger))
	r.Register(NewExampleBugFinder(logger))
	return r
}

// Register adds an analyzer. Registering a duplicate name panics: that is a
// programming error caught at startup, not a runtime condition.
func (r *Registry) Register(a Analyzer) {
	name := a.Describe().Name
	if _, exists := r.byName[name]; exists {
		panic("duplicate analyzer registration: " + name)
	}
	r.byName[name] = a
	r.order = append(r.order, name)
}

// Get returns the analyzer for a name.
func (r *Registry) Get(name string) (Analyzer, error) {
	a, ok := r.byName[name]
	if !ok {
		return nil, common.NotFoundError("unknown plugin %q", name)
	}
	return a, nil
}

// Names returns the registered analyzer names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Describe lists every registered analyzer sorted by name.
func (r *Registry) Describe() []Description {
	descs := make([]Description, 0, len(r.byName))
	for _, name := range r.order {
		descs = append(descs, r.byName[name].Describe())
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

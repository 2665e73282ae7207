package pattern

// Registry resolves a pattern_type string (as recorded in
// WorkflowMetadata) to its Pattern implementation.
type Registry struct {
	patterns map[string]Pattern
}

// NewRegistry builds a Registry pre-populated with all six built-in
// patterns (spec §4.H).
func NewRegistry() *Registry {
	r := &Registry{patterns: make(map[string]Pattern)}
	for _, p := range []Pattern{
		ChainOfThought{},
		TreeOfThoughts{},
		ReAct{},
		Research{},
		Debate{},
		Reflection{},
	} {
		r.patterns[p.Name()] = p
	}
	return r
}

// Register adds or overrides a pattern by name.
func (r *Registry) Register(p Pattern) { r.patterns[p.Name()] = p }

// Get resolves patternType to its Pattern, or false if unregistered.
func (r *Registry) Get(patternType string) (Pattern, bool) {
	p, ok := r.patterns[patternType]
	return p, ok
}

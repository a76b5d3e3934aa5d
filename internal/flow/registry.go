package flow

// Registry indexes loaded flows by id (spec.md §9's "FlowRegistry" split
// out of the loader: the loader only turns files into Flow values, this
// holds them for the scheduler and reactive pipeline to look up during
// sleep resume and scheduled dispatch).
type Registry struct {
	byID map[string]*Flow
}

// NewRegistry builds a Registry from an already-loaded flow set.
func NewRegistry(flows []*Flow) *Registry {
	r := &Registry{byID: make(map[string]*Flow, len(flows))}
	for _, f := range flows {
		r.byID[f.ID] = f
	}
	return r
}

func (r *Registry) Get(id string) (*Flow, bool) {
	f, ok := r.byID[id]
	return f, ok
}

func (r *Registry) All() []*Flow {
	flows := make([]*Flow, 0, len(r.byID))
	for _, f := range r.byID {
		flows = append(flows, f)
	}
	return flows
}

func (r *Registry) Scheduled() []*Flow {
	var flows []*Flow
	for _, f := range r.byID {
		if f.Schedule != nil {
			flows = append(flows, f)
		}
	}
	return flows
}

func (r *Registry) Reactive() []*Flow {
	var flows []*Flow
	for _, f := range r.byID {
		if f.Schedule == nil {
			flows = append(flows, f)
		}
	}
	return flows
}

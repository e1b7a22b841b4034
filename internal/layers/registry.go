package layers

// Registry is the ordered set of layer handles of one session.
type Registry struct {
	order   []*Handle
	byID    map[string]*Handle
	aliases map[string]string
}

// NewRegistry builds handles for variants in the given order. Duplicate ids
// keep the first variant.
func NewRegistry(pub Publisher, variants ...Variant) *Registry {
	r := &Registry{
		byID:    make(map[string]*Handle, len(variants)),
		aliases: make(map[string]string),
	}
	for _, v := range variants {
		if _, dup := r.byID[v.ID]; dup {
			continue
		}
		h := NewHandle(v, pub)
		r.order = append(r.order, h)
		r.byID[v.ID] = h
		for _, a := range v.Aliases {
			r.aliases[a] = v.ID
		}
	}
	return r
}

// DefaultRegistry holds one handle per known variant.
func DefaultRegistry(pub Publisher) *Registry {
	return NewRegistry(pub, Variants()...)
}

func (r *Registry) Get(id string) (*Handle, bool) {
	h, ok := r.byID[id]
	return h, ok
}

// Resolve maps a layer id or a legacy alias to the canonical id.
func (r *Registry) Resolve(idOrAlias string) (string, bool) {
	if _, ok := r.byID[idOrAlias]; ok {
		return idOrAlias, true
	}
	id, ok := r.aliases[idOrAlias]
	return id, ok
}

func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, h.ID())
	}
	return out
}

func (r *Registry) Handles() []*Handle {
	return append([]*Handle(nil), r.order...)
}

// Selected returns every handle currently marked selected.
func (r *Registry) Selected() []*Handle {
	var out []*Handle
	for _, h := range r.order {
		if h.Selected() {
			out = append(out, h)
		}
	}
	return out
}

func (r *Registry) FeatureCount() int {
	n := 0
	for _, h := range r.order {
		n += h.Len()
	}
	return n
}

// ClearAll deactivates and empties every handle.
func (r *Registry) ClearAll() {
	for _, h := range r.order {
		h.Deactivate()
		h.Clear()
	}
}

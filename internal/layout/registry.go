package layout

import (
	"fmt"
	"sort"
)

// Registry is an immutable table of layouts. Build it once at startup and pass it by reference.
type Registry struct {
	layouts map[string]Layout
	ids     []string
}

// NewRegistry builds the built-in layouts plus any extra definitions.
// An extra definition with a built-in id replaces it.
func NewRegistry(extra ...Definition) (*Registry, error) {
	defs := Builtins()
	index := make(map[string]int, len(defs))
	for i, d := range defs {
		index[d.ID] = i
	}
	for _, d := range extra {
		if i, ok := index[d.ID]; ok {
			defs[i] = d
			continue
		}
		index[d.ID] = len(defs)
		defs = append(defs, d)
	}

	layouts := make([]Layout, 0, len(defs))
	for _, d := range defs {
		l, err := d.Build()
		if err != nil {
			return nil, err
		}
		layouts = append(layouts, l)
	}
	return FromLayouts(layouts...)
}

// FromLayouts builds a registry from already derived layouts.
func FromLayouts(layouts ...Layout) (*Registry, error) {
	r := &Registry{layouts: make(map[string]Layout, len(layouts))}
	for _, l := range layouts {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.layouts[l.ID]; dup {
			return nil, fmt.Errorf("duplicate layout id: %s", l.ID)
		}
		r.layouts[l.ID] = l.clone()
		r.ids = append(r.ids, l.ID)
	}
	sort.Strings(r.ids)
	return r, nil
}

// Resolve returns a copy of the layout registered under id.
func (r *Registry) Resolve(id string) (Layout, error) {
	l, ok := r.layouts[id]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %q", ErrUnknownLayout, id)
	}
	return l.clone(), nil
}

// IDs возвращает отсортированный список идентификаторов
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// ForShots возвращает раскладки ровно на n кадров
func (r *Registry) ForShots(n int) []string {
	var ids []string
	for _, id := range r.ids {
		if r.layouts[id].Shots() == n {
			ids = append(ids, id)
		}
	}
	return ids
}

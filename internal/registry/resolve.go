package registry

import "fmt"

// Resolve orders the requested types so that every prerequisite which is
// also requested comes first. Each round places every type whose requested
// prerequisites were placed in earlier rounds, keeping request order within
// the round. Duplicates collapse onto their first occurrence. An empty
// request resolves every registered type.
func (r *Registry) Resolve(requested []EntityType) ([]EntityType, error) {
	if len(requested) == 0 {
		requested = r.order
	}

	inRequest := make(map[EntityType]bool, len(requested))
	remaining := make([]EntityType, 0, len(requested))
	for _, t := range requested {
		if _, ok := r.byType[t]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, t)
		}
		if inRequest[t] {
			continue
		}
		inRequest[t] = true
		remaining = append(remaining, t)
	}

	placed := make(map[EntityType]bool, len(remaining))
	order := make([]EntityType, 0, len(remaining))

	for len(remaining) > 0 {
		var ready, blocked []EntityType
		for _, t := range remaining {
			if r.prerequisitesPlaced(t, inRequest, placed) {
				ready = append(ready, t)
			} else {
				blocked = append(blocked, t)
			}
		}

		if len(ready) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, joinTypes(blocked, ", "))
		}

		for _, t := range ready {
			placed[t] = true
		}
		order = append(order, ready...)
		remaining = blocked
	}

	return order, nil
}

func (r *Registry) prerequisitesPlaced(t EntityType, inRequest, placed map[EntityType]bool) bool {
	for _, dep := range r.byType[t].Dependencies {
		if inRequest[dep] && !placed[dep] {
			return false
		}
	}
	return true
}

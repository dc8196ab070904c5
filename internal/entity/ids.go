package entity

// EnsureUniqueIDs returns a copy of models in which every ID (at any depth)
// already present in seen is replaced with a fresh one. Accepted IDs are
// added to seen, so one map can be threaded through all lists of a control.
func EnsureUniqueIDs(models []Model, seen map[string]struct{}) []Model {
	if models == nil {
		return nil
	}
	out := make([]Model, len(models))
	for i := range models {
		m := models[i].DeepCopy()
		if _, dup := seen[m.ID]; dup || m.ID == "" {
			m.ID = NewID()
		}
		seen[m.ID] = struct{}{}
		for group, children := range m.Children {
			m.Children[group] = EnsureUniqueIDs(children, seen)
		}
		out[i] = *m
	}
	return out
}

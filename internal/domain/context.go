package domain

// Fragment is one block of assembled context. Fragments are included
// whole or not at all; a fragment is never split mid-text.
type Fragment struct {
	Kind FragmentKind `json:"kind"`
	// Role is set for history fragments only.
	Role string `json:"role,omitempty"`
	// Ref is the source identifier: document ID or conversation turn ID.
	Ref  string `json:"ref,omitempty"`
	Text string `json:"text"`
}

// AssembledContext is the bounded prompt context for one run. The system
// instruction is reserved separately and not counted in TotalSize; the
// sum of history and document fragment sizes never exceeds the budget it
// was assembled under.
type AssembledContext struct {
	System    string     `json:"system"`
	Fragments []Fragment `json:"fragments"`
	TotalSize int        `json:"total_size"`
}

// HistoryFragments returns the conversation fragments in chronological order.
func (a AssembledContext) HistoryFragments() []Fragment {
	var out []Fragment
	for _, f := range a.Fragments {
		if f.Kind == FragmentKindHistory {
			out = append(out, f)
		}
	}
	return out
}

// DocumentFragments returns the document fragments in rank order.
func (a AssembledContext) DocumentFragments() []Fragment {
	var out []Fragment
	for _, f := range a.Fragments {
		if f.Kind == FragmentKindDocument {
			out = append(out, f)
		}
	}
	return out
}

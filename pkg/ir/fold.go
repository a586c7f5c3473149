package ir

// Fold is a generalized reduction. Each accumulator i starts at Inits[i] and
// is updated by Steps[i] with the element names bound. Merge combines the
// accumulators (and the count) at the end; without it the single accumulator
// is the result. WhenEmpty replaces the result when no element was folded.
type Fold struct {
	AccuNames []string
	Inits     []Node
	IndexName string
	EltNames  []string
	Steps     []Node
	CountName string
	Merge     Node
	WhenEmpty Node

	MayRearrange bool
	MayReduce    bool

	// PartiallyFolded counts elements an earlier pass already folded into Inits.
	PartiallyFolded int
}

func (f *Fold) AccuCount() int { return len(f.AccuNames) }
func (f *Fold) EltCount() int  { return len(f.EltNames) }

func (f *Fold) IsIndexed() bool          { return f.IndexName != "" }
func (f *Fold) IsCounted() bool          { return f.CountName != "" }
func (f *Fold) IsSpecialWhenEmpty() bool { return f.WhenEmpty != nil }
func (f *Fold) IsMergedExplicitly() bool { return f.Merge != nil }

// MayReduceAndRearrange allows seeding from any static element, not only the first
func (f *Fold) MayReduceAndRearrange() bool { return f.MayReduce && f.MayRearrange }

// IsChainable reports whether the fold can be compiled as an inline chain
func (f *Fold) IsChainable() bool {
	return f.AccuCount() == 1 && f.EltCount() == 1 && !f.IsIndexed() && !f.IsCounted()
}

// Nodes lists every expression the definition owns
func (f *Fold) Nodes() []Node {
	nodes := make([]Node, 0, len(f.Inits)+len(f.Steps)+2)
	nodes = append(nodes, f.Inits...)
	nodes = append(nodes, f.Steps...)
	if f.Merge != nil {
		nodes = append(nodes, f.Merge)
	}
	if f.WhenEmpty != nil {
		nodes = append(nodes, f.WhenEmpty)
	}
	return nodes
}

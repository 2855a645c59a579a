// Package ot is a type-dispatching operational transformation engine.
// Applications register four small functions per diff type and get
// list-level invert, squash and transform for free.
package ot

// System is the algebra of one diff family.
type System[D any] interface {
	// IsEmpty reports whether the diff has no observable effect.
	IsEmpty(d D) bool
	// Invert returns the diffs that undo ops, last diff first.
	Invert(ops []D) []D
	// Squash compacts a sequence without changing its effect.
	Squash(ops []D) []D
	// Transform reconciles two concurrent sequences applied to one state.
	Transform(left, right []D) (TransformResult[D], error)
}

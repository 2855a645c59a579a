package ot

// TransformResult holds the catch-up sequences produced by transforming
// two concurrent operations: Left is applied on top of the left input,
// Right on top of the right input. Both sides then reach the same state.
type TransformResult[D any] struct {
	Left  []D
	Right []D
}

func Of[D any](left, right []D) TransformResult[D] {
	return TransformResult[D]{Left: left, Right: right}
}

// Swapped builds the usual "both sides commute" result: the left side
// catches up by applying right, the right side by applying left.
func Swapped[D any](left, right D) TransformResult[D] {
	return TransformResult[D]{Left: []D{right}, Right: []D{left}}
}

func LeftOnly[D any](ops ...D) TransformResult[D] {
	return TransformResult[D]{Left: ops}
}

func RightOnly[D any](ops ...D) TransformResult[D] {
	return TransformResult[D]{Right: ops}
}

// Empty is the result of two concurrent diffs with identical effect.
func Empty[D any]() TransformResult[D] {
	return TransformResult[D]{}
}

func (r TransformResult[D]) IsEmpty() bool {
	return len(r.Left) == 0 && len(r.Right) == 0
}

func (r TransformResult[D]) Swap() TransformResult[D] {
	return TransformResult[D]{Left: r.Right, Right: r.Left}
}

// Map converts both sides, used when wrapping a sub-system's diffs.
func Map[S, D any](r TransformResult[S], f func(S) D) TransformResult[D] {
	return TransformResult[D]{Left: mapList(r.Left, f), Right: mapList(r.Right, f)}
}

func mapList[S, D any](ops []S, f func(S) D) []D {
	if len(ops) == 0 {
		return nil
	}
	out := make([]D, len(ops))
	for i, op := range ops {
		out[i] = f(op)
	}
	return out
}

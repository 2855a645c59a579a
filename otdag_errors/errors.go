// Provides common otdag errors definitions.
package otdag_errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDispatchNotRegistered = errors.New("otdag: no function registered for diff type")
	ErrTransformConflict     = errors.New("otdag: transform conflict")
	ErrCommitNotFound        = errors.New("otdag: commit not found")
	ErrDisjointHistory       = errors.New("otdag: heads have no common ancestor")
	ErrRepositoryIO          = errors.New("otdag: repository i/o failure")
	ErrHeadsConflict         = errors.New("otdag: heads changed concurrently")
	ErrLevelInvariant        = errors.New("otdag: commit level invariant violated")
	ErrBadRecord             = errors.New("otdag: malformed record")
	ErrClosed                = errors.New("otdag: state manager is invalidated")
	ErrNoHeads               = errors.New("otdag: repository has no heads")
	ErrStaleHead             = errors.New("otdag: head is a parent of another commit")
)

// DispatchError names the operation and the diff types that had no
// registered function.
type DispatchError struct {
	Op    string
	Types []string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %s(%s)", ErrDispatchNotRegistered.Error(), e.Op, strings.Join(e.Types, ", "))
}

func (e *DispatchError) Unwrap() error { return ErrDispatchNotRegistered }

// TransformConflict is returned by transform functions on genuine
// semantic conflicts. Left and Right are the offending diffs.
type TransformConflict struct {
	Left   any
	Right  any
	Reason string
}

func NewTransformConflict(left, right any, reason string) *TransformConflict {
	return &TransformConflict{Left: left, Right: right, Reason: reason}
}

func (e *TransformConflict) Error() string {
	return fmt.Sprintf("%s: %s (%v vs %v)", ErrTransformConflict.Error(), e.Reason, e.Left, e.Right)
}

func (e *TransformConflict) Unwrap() error { return ErrTransformConflict }

// IOError wraps a backend failure so that it matches ErrRepositoryIO.
type IOError struct {
	Op  string
	Err error
}

func WrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Err: err}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrRepositoryIO.Error(), e.Op, e.Err)
}

func (e *IOError) Is(target error) bool { return target == ErrRepositoryIO }

func (e *IOError) Unwrap() error { return e.Err }

package store

import "flatfs/internal/common"

// Admission gates concurrent open handles against a fixed ceiling. The
// counter is aggregate across the whole namespace, not per file: closing a
// different file than the one opened still releases the same shared slot.
//
// Like the rest of the package, Admission is not safe for concurrent use;
// the caller serializes access.
type Admission struct {
	count int
	limit int
}

func newAdmission(limit int) *Admission {
	return &Admission{limit: limit}
}

// Acquire claims one open slot. Fails with ErrTooManyOpen at the ceiling.
func (a *Admission) Acquire() error {
	if a.count >= a.limit {
		return common.ErrTooManyOpen
	}
	a.count++
	return nil
}

// Release returns one open slot. Failing with ErrNotOpen when the counter
// is already zero is a guard against unbalanced close calls, not an
// expected path.
func (a *Admission) Release() error {
	if a.count == 0 {
		return common.ErrNotOpen
	}
	a.count--
	return nil
}

// Count returns the number of currently held slots.
func (a *Admission) Count() int {
	return a.count
}

// Limit returns the admission ceiling.
func (a *Admission) Limit() int {
	return a.limit
}

// Reset drops every held slot. Used at teardown.
func (a *Admission) Reset() {
	a.count = 0
}

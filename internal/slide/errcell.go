package slide

import "sync/atomic"

// errCell is a slide-scoped, first-writer-wins error slot. Once set it is
// never cleared until Close; reads are race-free via atomic.Value.
// Replaces the source's pointer-CAS with an atomic optional value per
// spec.md §9.
type errCell struct {
	v atomic.Value // stores errBox
}

type errBox struct {
	err error
}

// trySet stores err only if no error has been recorded yet. Returns true if
// this call was the one that set it.
func (c *errCell) trySet(err error) bool {
	return c.v.CompareAndSwap(nil, errBox{err: err})
}

// get returns the recorded error, or nil if none has been set.
func (c *errCell) get() error {
	v := c.v.Load()
	if v == nil {
		return nil
	}
	return v.(errBox).err
}

package engine

// Clock hands out dispatch sequence numbers.
//
// The dispatcher stamps every record with Next before routing it, so
// sequence numbers follow input order across all shards. The merge step
// uses them to restore the order in which accounts were created.
//
// Clock is owned by the dispatcher goroutine and is not safe for
// concurrent use.
type Clock struct {
	seq uint64
}

// NewClock creates a clock starting at 0. The first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start uint64) *Clock {
	return &Clock{seq: start}
}

// Next returns the next sequence number.
func (c *Clock) Next() uint64 {
	c.seq++
	return c.seq
}

// Current returns the last issued sequence number.
func (c *Clock) Current() uint64 {
	return c.seq
}

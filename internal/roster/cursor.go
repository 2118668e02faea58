package roster

import "fmt"

// Range is an inclusive window of positions in the member list.
type Range struct {
	Start int
	End   int
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}

// Cursor tracks the next range to subscribe to. The batch size is fixed at
// construction.
type Cursor struct {
	nextStart int
	batchSize int
}

func NewCursor(batchSize int) (*Cursor, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidPolicy, batchSize)
	}
	return &Cursor{batchSize: batchSize}, nil
}

func (c *Cursor) CurrentRange() Range {
	return Range{Start: c.nextStart, End: c.nextStart + c.batchSize - 1}
}

// Advance moves the cursor to the following batch.
func (c *Cursor) Advance() {
	c.nextStart += c.batchSize
}

func (c *Cursor) BatchSize() int {
	return c.batchSize
}

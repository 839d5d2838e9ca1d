package ostrbuf

// Tee composes two Buffers: every write and flush goes to both. It fails
// once either side fails, surfacing whichever error hit first.
type Tee struct {
	failLatch
	a, b Buffer
}

// NewTee composes a and b into one Buffer.
func NewTee(a, b Buffer) *Tee {
	return &Tee{a: a, b: b}
}

func (t *Tee) Write(p []byte) (int, error) {
	if t.Failed() {
		return 0, t.Err()
	}
	n, errA := t.a.Write(p)
	_, errB := t.b.Write(p)
	if errA != nil {
		return n, t.fail(errA)
	}
	if errB != nil {
		return n, t.fail(errB)
	}
	return n, nil
}

func (t *Tee) Flush() error {
	if t.Failed() {
		return t.Err()
	}
	errA := t.a.Flush()
	errB := t.b.Flush()
	if errA != nil {
		return t.fail(errA)
	}
	if errB != nil {
		return t.fail(errB)
	}
	return nil
}

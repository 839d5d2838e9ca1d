package ostrbuf

// Null discards every write; used for disabled outputs and tests.
type Null struct{}

// NewNull constructs a Null buffer.
func NewNull() *Null { return &Null{} }

func (Null) Write(p []byte) (int, error) { return len(p), nil }
func (Null) Flush() error                { return nil }
func (Null) Failed() bool                { return false }
func (Null) Err() error                  { return nil }

package triton

// BufferStatusSink is a StatusSink that just remembers the last error, for
// tests and the demo CLI. A zero BufferStatusSink is ready to use.
type BufferStatusSink struct {
	Err string
}

func (s *BufferStatusSink) SetError(msg string) { s.Err = msg }

// OK reports whether no error has been recorded.
func (s *BufferStatusSink) OK() bool { return s.Err == "" }

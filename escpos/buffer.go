package escpos

// Buffer is an ordered, append-only command buffer.
// Once Finalize is called the buffer is sealed; further writes panic.
type Buffer struct {
	data   []byte
	sealed bool
}

// NewBuffer creates an empty command buffer
func NewBuffer() *Buffer {
	return &Buffer{data: make([]byte, 0, 256)}
}

// Write appends raw bytes to the buffer
func (b *Buffer) Write(p ...byte) *Buffer {
	if b.sealed {
		panic("escpos: write to finalized buffer")
	}
	b.data = append(b.data, p...)
	return b
}

// Append appends each command in order
func (b *Buffer) Append(cmds ...[]byte) *Buffer {
	for _, c := range cmds {
		b.Write(c...)
	}
	return b
}

// Len returns the number of bytes written so far
func (b *Buffer) Len() int {
	return len(b.data)
}

// Sealed reports whether Finalize has been called
func (b *Buffer) Sealed() bool {
	return b.sealed
}

// Finalize seals the buffer and returns a copy of its bytes
func (b *Buffer) Finalize() []byte {
	b.sealed = true
	return b.Bytes()
}

// Bytes returns a copy of the current contents
func (b *Buffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

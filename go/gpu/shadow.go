package gpu

// Shadow remembers the last value seen for one piece of state.
type Shadow[T comparable] struct {
	v     T
	valid bool
}

// Track stores v and reports whether it differs from the previous value.
// The first call always reports a change.
func (s *Shadow[T]) Track(v T) bool {
	if s.valid && s.v == v {
		return false
	}
	s.v = v
	s.valid = true
	return true
}

func (s *Shadow[T]) Value() T { return s.v }

// Reset forgets the value so the next Track reports a change.
func (s *Shadow[T]) Reset() {
	var zero T
	s.v = zero
	s.valid = false
}

// shadowReg tracks a register from the file.
type shadowReg struct {
	Shadow[uint32]
	reg Register
}

func (s *shadowReg) update(f *RegisterFile) bool {
	return s.Track(f.U32(s.reg))
}

func trackRegs(f *RegisterFile, regs ...*shadowReg) bool {
	dirty := false
	for _, r := range regs {
		// no short circuit, every shadow must see the new value
		if r.update(f) {
			dirty = true
		}
	}
	return dirty
}

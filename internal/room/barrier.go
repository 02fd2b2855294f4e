package room

// Barrier gates an async step: it opens once Required distinct participants
// have signalled. A barrier with Required 0 never opens.
type Barrier struct {
	required int
	ready    map[string]struct{}
}

func NewBarrier(required int) *Barrier {
	return &Barrier{required: required, ready: make(map[string]struct{})}
}

// Signal marks id as ready. It returns false for a repeated signal.
func (b *Barrier) Signal(id string) bool {
	if _, ok := b.ready[id]; ok {
		return false
	}
	b.ready[id] = struct{}{}
	return true
}

// Forget withdraws id, used when a participant leaves mid-step.
func (b *Barrier) Forget(id string) {
	delete(b.ready, id)
}

func (b *Barrier) Count() int    { return len(b.ready) }
func (b *Barrier) Required() int { return b.required }

func (b *Barrier) SetRequired(n int) {
	b.required = n
}

func (b *Barrier) IsOpen() bool {
	return b.required > 0 && len(b.ready) >= b.required
}

// Reset clears every signal and sets a new requirement.
func (b *Barrier) Reset(required int) {
	b.required = required
	clear(b.ready)
}

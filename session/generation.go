package session

// generation counts session state transitions. Work that started under one
// generation may only write its result while that generation is current;
// otherwise a login, logout or reset has happened in between and the result
// is stale. Guarded by Manager.mu.
type generation struct {
	n uint64
}

func (g *generation) current() uint64 {
	return g.n
}

// advance moves to a new generation and returns it.
func (g *generation) advance() uint64 {
	g.n++
	return g.n
}

// stale reports whether seen is no longer the current generation.
func (g *generation) stale(seen uint64) bool {
	return seen != g.n
}

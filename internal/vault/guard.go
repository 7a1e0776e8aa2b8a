package vault

// reentrancyGuard blocks nested mutating calls. The core is single-threaded,
// so this is a plain flag: reentrancy can only arrive synchronously, via a
// token transfer hook or the swap router calling back into the ledger.
type reentrancyGuard struct {
	locked bool
}

// enter acquires the guard or fails with ErrReentrantCall.
func (g *reentrancyGuard) enter() error {
	if g.locked {
		return ErrReentrantCall
	}
	g.locked = true
	return nil
}

// exit releases the guard. Must run on every exit path, including errors.
func (g *reentrancyGuard) exit() {
	g.locked = false
}

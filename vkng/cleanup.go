package vkng

// Cleanup is a stack of release functions run in reverse order of
// registration. Constructors push a release for every object they create and
// run the stack if a later step fails, so a half-built unit never escapes.
type Cleanup struct {
	funcs []func()
}

func (c *Cleanup) Add(release func()) {
	c.funcs = append(c.funcs, release)
}

// Run releases everything registered so far, newest first, and empties the
// stack.
func (c *Cleanup) Run() {
	for i := len(c.funcs) - 1; i >= 0; i-- {
		c.funcs[i]()
	}
	c.funcs = nil
}

// Move transfers every registered release to a new stack, leaving c empty.
// It is used once a constructor succeeds and ownership passes to its result.
func (c *Cleanup) Move() *Cleanup {
	moved := &Cleanup{funcs: c.funcs}
	c.funcs = nil
	return moved
}

func (c *Cleanup) Len() int {
	return len(c.funcs)
}

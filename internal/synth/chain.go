package synth

import "fmt"

// Finder answers module lookups. ok is false when the finder does not know name.
type Finder interface {
	FindModule(name string) (m *Module, ok bool, err error)
}

// FinderFunc adapts a function to Finder.
type FinderFunc func(name string) (*Module, bool, error)

// FindModule calls f.
func (f FinderFunc) FindModule(name string) (*Module, bool, error) {
	return f(name)
}

// Chain is an ordered list of finders consulted first to last. Finders are only
// ever added.
type Chain struct {
	finders []Finder
}

// NewChain creates a chain consulting finders in the given order.
func NewChain(finders ...Finder) *Chain {
	return &Chain{finders: append([]Finder(nil), finders...)}
}

// Install puts f in front of every finder already in the chain.
func (c *Chain) Install(f Finder) {
	c.finders = append([]Finder{f}, c.finders...)
}

// Len returns the number of installed finders.
func (c *Chain) Len() int {
	return len(c.finders)
}

// Resolve asks each finder in turn. The first finder that knows name decides the
// result, including its error.
func (c *Chain) Resolve(name string) (*Module, error) {
	for _, f := range c.finders {
		m, ok, err := f.FindModule(name)
		if err != nil {
			return nil, err
		}
		if ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
}

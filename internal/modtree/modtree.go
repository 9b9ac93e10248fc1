// Package modtree models the discovery input of the module loader: named
// collections nested to any depth, with loadable units at the leaves. A unit
// is code that has not run yet; its Load function is the import step the
// registry performs exactly once.
package modtree

import "context"

// LoadFunc produces the live value of a unit. It runs at most once per
// declared name, on a goroutine owned by the registry. Returning an error
// (or panicking) marks the unit failed without taking the process down.
type LoadFunc func(ctx context.Context) (any, error)

// Node is either a *Collection or a *Unit. The interface is sealed so a
// discovery tree can only be built from these two shapes.
type Node interface {
	nodeName() string
}

// Unit is a leaf: one loadable module, keyed by its declared name. Names
// must be unique across every collection handed to the same registry.
type Unit struct {
	Name string
	Load LoadFunc
}

func (u *Unit) nodeName() string { return u.Name }

// Collection is a named inner node grouping units and further collections.
// The grouping carries no semantics beyond organization; only leaf names
// matter to the registry.
type Collection struct {
	Name     string
	children []Node
}

func (c *Collection) nodeName() string { return c.Name }

// NewCollection builds a collection from the given children.
func NewCollection(name string, children ...Node) *Collection {
	c := &Collection{Name: name}
	return c.Add(children...)
}

// Add appends children, returning the collection for chaining. Nil children
// are a programmer error.
func (c *Collection) Add(children ...Node) *Collection {
	for _, child := range children {
		if child == nil {
			panic("modtree: nil node added to collection " + c.Name)
		}
		c.children = append(c.children, child)
	}
	return c
}

// Walk visits every unit under root depth-first, in declared order. A nil
// root is a programmer error: discovery must be handed real collections.
func Walk(root *Collection, visit func(*Unit)) {
	if root == nil {
		panic("modtree: walk of nil collection")
	}
	for _, child := range root.children {
		switch n := child.(type) {
		case *Unit:
			visit(n)
		case *Collection:
			Walk(n, visit)
		}
	}
}

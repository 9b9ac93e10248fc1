package modtree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func unit(name string) *Unit {
	return &Unit{Name: name, Load: func(ctx context.Context) (any, error) { return name, nil }}
}

func TestWalkVisitsLeavesDepthFirst(t *testing.T) {
	root := NewCollection("services",
		unit("alpha"),
		NewCollection("nested",
			unit("beta"),
			NewCollection("deeper", unit("gamma")),
		),
		unit("delta"),
	)

	var seen []string
	Walk(root, func(u *Unit) { seen = append(seen, u.Name) })

	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta"}, seen)
}

func TestWalkEmptyCollection(t *testing.T) {
	var seen []string
	Walk(NewCollection("empty"), func(u *Unit) { seen = append(seen, u.Name) })
	assert.Empty(t, seen)
}

func TestNilNodesPanic(t *testing.T) {
	assert.Panics(t, func() { NewCollection("bad", nil) })
	assert.Panics(t, func() { Walk(nil, func(*Unit) {}) })
}

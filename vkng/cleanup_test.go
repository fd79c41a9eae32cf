package vkng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanupRunsNewestFirst(t *testing.T) {
	var released []string
	var cleanup Cleanup

	cleanup.Add(func() { released = append(released, "memory") })
	cleanup.Add(func() { released = append(released, "image") })
	cleanup.Add(func() { released = append(released, "view") })
	assert.Equal(t, 3, cleanup.Len())

	cleanup.Run()
	assert.Equal(t, []string{"view", "image", "memory"}, released)
	assert.Zero(t, cleanup.Len())

	cleanup.Run()
	assert.Len(t, released, 3)
}

func TestCleanupMove(t *testing.T) {
	var released []string
	var cleanup Cleanup

	cleanup.Add(func() { released = append(released, "buffer") })
	owned := cleanup.Move()

	cleanup.Run()
	assert.Empty(t, released)

	owned.Run()
	assert.Equal(t, []string{"buffer"}, released)
}

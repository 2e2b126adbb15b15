package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion_Default(t *testing.T) {
	assert.NotEmpty(t, Version)
}

func TestVersion_Set(t *testing.T) {
	prev := Version
	Version = "test-v1"
	assert.Equal(t, "test-v1", Version)
	Version = prev
}

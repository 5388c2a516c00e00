package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvgVal(t *testing.T) {
	a := NewAvgVal(1)
	a.Add(2)
	a.Add(3)
	assert.Equal(t, 3, a.Count())
	assert.InDelta(t, 2.0, a.Val(), 1e-12)
}

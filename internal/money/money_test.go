package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentOfRoundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, int64(2500), PercentOf(25000, 10))
	assert.Equal(t, int64(1), PercentOf(5, 10))
	assert.Equal(t, int64(0), PercentOf(4, 10))
	assert.Equal(t, int64(1250), PercentOf(10000, 12.5))
}

func TestScale(t *testing.T) {
	assert.Equal(t, int64(13000), Scale(10000, 30))
	assert.Equal(t, int64(10400), Scale(13000, -20))
	assert.Equal(t, int64(0), Scale(0, 50))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 23.08, Ratio(3000, 13000))
	assert.Equal(t, 0.0, Ratio(3000, 0))
	assert.Equal(t, -100.0, Ratio(-5000, 5000))
}

func TestFromFloat(t *testing.T) {
	assert.Equal(t, int64(15000), FromFloat(15000))
	assert.Equal(t, int64(2), FromFloat(1.5))
}

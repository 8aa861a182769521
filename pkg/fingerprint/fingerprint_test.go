package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerbatimBelowLimit(t *testing.T) {
	assert.Equal(t, "feed", Of("feed"))
	assert.Equal(t, strings.Repeat("a", 63), Of(strings.Repeat("a", 63)))
}

func TestHashedAboveLimit(t *testing.T) {
	long := strings.Repeat("x", 200)
	fp := Of(long)
	assert.LessOrEqual(t, len(fp), MaxLen)
	assert.NotEqual(t, long, fp)
}

func TestDeterministic(t *testing.T) {
	long := strings.Repeat("y", 100)
	assert.Equal(t, Of(long), Of(long))
}

func TestLengthBound(t *testing.T) {
	for _, n := range []int{64, 65, 1000, 10000} {
		fp := Of(strings.Repeat("z", n))
		assert.LessOrEqual(t, len(fp), MaxLen)
	}
}

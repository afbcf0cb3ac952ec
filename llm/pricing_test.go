package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	// gpt-4o-mini: 0.00015/1K input, 0.0006/1K output
	cost := EstimateCost("gpt-4o-mini", 1000, 1000)
	assert.InDelta(t, 0.00075, cost, 1e-9)

	assert.Zero(t, EstimateCost("gpt-4o-mini", 0, 0))
	assert.Zero(t, EstimateCost("unknown-model", 5000, 5000))
}

func TestEstimateCost_Monotonic(t *testing.T) {
	base := EstimateCost("gemini-1.5-flash", 100, 100)
	moreInput := EstimateCost("gemini-1.5-flash", 200, 100)
	moreOutput := EstimateCost("gemini-1.5-flash", 100, 200)

	assert.Greater(t, moreInput, base)
	assert.Greater(t, moreOutput, base)
}

func TestEstimateCost_Linear(t *testing.T) {
	one := EstimateCost("gpt-4o", 100, 50)
	double := EstimateCost("gpt-4o", 200, 100)
	assert.InDelta(t, 2*one, double, 1e-12)
}

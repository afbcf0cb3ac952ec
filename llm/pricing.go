package llm

// pricing holds per-1K-token USD rates for a model.
type pricing struct {
	Input  float64
	Output float64
}

// modelPricing maps known model names to their rates. Models absent from
// the table cost 0, which keeps local open-weight models free in reports.
var modelPricing = map[string]pricing{
	"gpt-4o-mini":      {Input: 0.00015, Output: 0.0006},
	"gpt-4o":           {Input: 0.005, Output: 0.015},
	"o3-mini":          {Input: 0.00055, Output: 0.0022},
	"gemini-1.5-flash": {Input: 0.000075, Output: 0.0003},
	"gemini-1.5-pro":   {Input: 0.00125, Output: 0.005},
	"gemini-2.5-flash": {Input: 0.000075, Output: 0.0003},

	"claude-3-5-haiku-20241022":  {Input: 0.0008, Output: 0.004},
	"claude-sonnet-4-5-20250929": {Input: 0.003, Output: 0.015},
}

// EstimateCost returns the USD cost of a call with the given token counts.
// Cost is linear in both token counts; unknown models cost 0.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000.0*p.Input + float64(outputTokens)/1000.0*p.Output
}

package pricing

// Rate holds per-1K-token prices split by token role.
type Rate struct {
	Input  float64 // USD per 1K prompt tokens.
	Output float64 // USD per 1K completion tokens.
}

// fallbackRates is the built-in price table used when a model has no
// catalog entry. Unlike catalog prices, these rates are differentiated by
// token role.
var fallbackRates = map[string]Rate{
	"gpt-4":             {Input: 0.03, Output: 0.06},
	"gpt-4-turbo":       {Input: 0.01, Output: 0.03},
	"gpt-3.5-turbo":     {Input: 0.0015, Output: 0.002},
	"gpt-3.5-turbo-16k": {Input: 0.003, Output: 0.004},
}

// FallbackRate returns the built-in rate for a model, if one exists.
func FallbackRate(modelID string) (Rate, bool) {
	rate, ok := fallbackRates[modelID]
	return rate, ok
}

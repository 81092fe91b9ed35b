package llm

// modelPricing holds per-model pricing in USD per 1M tokens.
type modelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// priceTable maps model identifiers to their pricing.
var priceTable = map[string]modelPricing{
	// OpenAI / Azure OpenAI
	"gpt-4o":       {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":  {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":      {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"gpt-4.1-mini": {InputPerMillion: 0.40, OutputPerMillion: 1.60},

	// Groq
	"llama-3.3-70b-versatile": {InputPerMillion: 0.59, OutputPerMillion: 0.79},
	"llama-3.1-8b-instant":    {InputPerMillion: 0.05, OutputPerMillion: 0.08},

	// Perplexity
	"sonar": {InputPerMillion: 1.00, OutputPerMillion: 1.00},
}

// EstimateCost returns the estimated cost in USD for the given model and token counts.
// Returns 0 if the model is not found in the price table.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := priceTable[model]
	if !ok {
		return 0
	}

	inputCost := float64(inputTokens) / 1_000_000.0 * pricing.InputPerMillion
	outputCost := float64(outputTokens) / 1_000_000.0 * pricing.OutputPerMillion
	return inputCost + outputCost
}

// EstimateTokens provides a rough token count estimation for the given text.
// Uses the approximation of 1 token per 4 characters.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		return 1
	}
	return n
}

// Usage accumulates token counts across the completions of one turn.
type Usage struct {
	Model        string `json:"model,omitempty"`
	Calls        int    `json:"calls"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Add records one completion.
func (u *Usage) Add(resp *CompletionResponse) {
	if resp == nil {
		return
	}
	u.Calls++
	u.InputTokens += resp.InputTokens
	u.OutputTokens += resp.OutputTokens
	if resp.Model != "" {
		u.Model = resp.Model
	}
}

// Cost estimates the USD cost of the accumulated usage.
func (u Usage) Cost() float64 {
	return EstimateCost(u.Model, u.InputTokens, u.OutputTokens)
}

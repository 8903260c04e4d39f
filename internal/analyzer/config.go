package analyzer

import "github.com/tributary-ai/model-router/internal/types"

// Config holds the tunable tables of the analyzer. Empty keyword lists and
// missing table rows fall back to the defaults.
type Config struct {
	CodingKeywords    []string `yaml:"coding_keywords"`
	DataKeywords      []string `yaml:"data_keywords"`
	CreativeKeywords  []string `yaml:"creative_keywords"`
	TechnicalKeywords []string `yaml:"technical_keywords"`
	ReasoningKeywords []string `yaml:"reasoning_keywords"`
	VisionKeywords    []string `yaml:"vision_keywords"`

	BaseTokens  map[types.TaskCategory]int   `yaml:"base_tokens"`
	Multipliers map[types.Complexity]float64 `yaml:"complexity_multipliers"`

	LongContextChars  int `yaml:"long_context_chars"`  // long_context category
	LargeContextChars int `yaml:"large_context_chars"` // largeContext capability
	FastResponseChars int `yaml:"fast_response_chars"`
}

// DefaultConfig returns the built-in keyword lists and token tables
func DefaultConfig() Config {
	return Config{
		CodingKeywords: []string{
			"code", "function", "bug", "debug", "fix", "compile", "error", "exception",
			"implement", "refactor", "class", "method", "variable", "script", "program",
			"javascript", "typescript", "python", "golang", "java", "rust", "sql", "api",
			"regex", "stack trace", "unit test",
		},
		DataKeywords: []string{
			"data", "dataset", "analyze", "analysis", "statistics", "statistical", "chart",
			"graph", "csv", "spreadsheet", "correlation", "regression", "average", "mean",
			"median", "trend", "metrics", "visualize",
		},
		CreativeKeywords: []string{
			"story", "poem", "write a", "creative", "fiction", "novel", "character",
			"plot", "song", "lyrics", "narrative", "imagine", "screenplay", "haiku",
		},
		TechnicalKeywords: []string{
			"algorithm", "architecture", "protocol", "database", "kubernetes", "docker",
			"network", "latency", "throughput", "concurrency", "thread", "memory",
			"compiler", "kernel", "encryption", "distributed", "microservice", "cache",
			"framework", "infrastructure",
		},
		ReasoningKeywords: []string{
			"why", "prove", "proof", "reason", "reasoning", "logic", "logical", "deduce",
			"infer", "step by step", "explain why", "evaluate", "compare", "trade-off",
			"tradeoff", "derive", "puzzle",
		},
		VisionKeywords: []string{"image", "picture", "photo"},
		BaseTokens: map[types.TaskCategory]int{
			types.CategoryGeneralConversation:  300,
			types.CategoryCoding:               800,
			types.CategoryDataAnalysis:         600,
			types.CategoryCreativeWriting:      1000,
			types.CategoryTechnicalExplanation: 700,
			types.CategoryReasoning:            600,
			types.CategoryVision:               400,
			types.CategoryMultimodal:           600,
			types.CategoryLongContext:          1000,
		},
		Multipliers: map[types.Complexity]float64{
			types.ComplexitySimple:        0.5,
			types.ComplexityModerate:      1.0,
			types.ComplexityComplex:       1.5,
			types.ComplexityHighlyComplex: 2.0,
		},
		LongContextChars:  10000,
		LargeContextChars: 5000,
		FastResponseChars: 200,
	}
}

// merged overlays non-empty fields of c onto the defaults
func (c Config) merged() Config {
	out := DefaultConfig()
	if len(c.CodingKeywords) > 0 {
		out.CodingKeywords = c.CodingKeywords
	}
	if len(c.DataKeywords) > 0 {
		out.DataKeywords = c.DataKeywords
	}
	if len(c.CreativeKeywords) > 0 {
		out.CreativeKeywords = c.CreativeKeywords
	}
	if len(c.TechnicalKeywords) > 0 {
		out.TechnicalKeywords = c.TechnicalKeywords
	}
	if len(c.ReasoningKeywords) > 0 {
		out.ReasoningKeywords = c.ReasoningKeywords
	}
	if len(c.VisionKeywords) > 0 {
		out.VisionKeywords = c.VisionKeywords
	}
	for k, v := range c.BaseTokens {
		out.BaseTokens[k] = v
	}
	for k, v := range c.Multipliers {
		out.Multipliers[k] = v
	}
	if c.LongContextChars > 0 {
		out.LongContextChars = c.LongContextChars
	}
	if c.LargeContextChars > 0 {
		out.LargeContextChars = c.LargeContextChars
	}
	if c.FastResponseChars > 0 {
		out.FastResponseChars = c.FastResponseChars
	}
	return out
}

package types

import "time"

// Complexity buckets
type Complexity string

const (
	ComplexitySimple        Complexity = "simple"
	ComplexityModerate      Complexity = "moderate"
	ComplexityComplex       Complexity = "complex"
	ComplexityHighlyComplex Complexity = "highly_complex"
)

// TaskCategory is the primary kind of work a conversation asks for
type TaskCategory string

const (
	CategoryGeneralConversation  TaskCategory = "general_conversation"
	CategoryCoding               TaskCategory = "coding"
	CategoryDataAnalysis         TaskCategory = "data_analysis"
	CategoryCreativeWriting      TaskCategory = "creative_writing"
	CategoryTechnicalExplanation TaskCategory = "technical_explanation"
	CategoryReasoning            TaskCategory = "reasoning"
	CategoryVision               TaskCategory = "vision"
	CategoryMultimodal           TaskCategory = "multimodal"
	CategoryLongContext          TaskCategory = "long_context"
)

// RequiredCapabilities are the capability flags derived from a conversation
type RequiredCapabilities struct {
	Vision       bool `json:"vision"`
	Coding       bool `json:"coding"`
	Reasoning    bool `json:"reasoning"`
	Analysis     bool `json:"analysis"`
	Creativity   bool `json:"creativity"`
	FastResponse bool `json:"fast_response"`
	LargeContext bool `json:"large_context"`
	Multilingual bool `json:"multilingual"`
}

// Count returns how many flags are set
func (r RequiredCapabilities) Count() int {
	n := 0
	for _, b := range []bool{r.Vision, r.Coding, r.Reasoning, r.Analysis, r.Creativity, r.FastResponse, r.LargeContext, r.Multilingual} {
		if b {
			n++
		}
	}
	return n
}

// ComplexitySignals are the raw pattern counts behind the complexity score
type ComplexitySignals struct {
	CodeBlocks      int     `json:"code_blocks"`
	MathExpressions int     `json:"math_expressions"`
	TableRows       int     `json:"table_rows"`
	Images          int     `json:"images"`
	Questions       int     `json:"questions"`
	Bullets         int     `json:"bullets"`
	TechnicalTerms  int     `json:"technical_terms"`
	CodingTerms     bool    `json:"coding_terms"`
	DataTerms       bool    `json:"data_terms"`
	CreativeTerms   bool    `json:"creative_terms"`
	ReasoningTerms  bool    `json:"reasoning_terms"`
	NonASCIIRatio   float64 `json:"non_ascii_ratio"`
	RawScore        float64 `json:"raw_score"`
}

// AnalysisMetadata describes the conversation shape
type AnalysisMetadata struct {
	IsFollowUp    bool `json:"is_follow_up"`
	HistoryLength int  `json:"history_length"`
	MessageCount  int  `json:"message_count"`
	TotalLength   int  `json:"total_length"`
}

// TaskAnalysis is the classification of a conversation
type TaskAnalysis struct {
	ID                    string               `json:"id"`
	Complexity            Complexity           `json:"complexity"`
	ComplexityScore       float64              `json:"complexity_score"`
	Category              TaskCategory         `json:"category"`
	RequiredCapabilities  RequiredCapabilities `json:"required_capabilities"`
	EstimatedInputTokens  int                  `json:"estimated_input_tokens"`
	EstimatedOutputTokens int                  `json:"estimated_output_tokens"`
	Language              string               `json:"language"`
	Metadata              AnalysisMetadata     `json:"metadata"`
	Preferences           *Preferences         `json:"preferences,omitempty"`
	Signals               ComplexitySignals    `json:"signals"`
	CreatedAt             time.Time            `json:"created_at"`
}

// AnalysisOptions are caller hints for the analyzer
type AnalysisOptions struct {
	IsFollowUp    *bool        `json:"is_follow_up,omitempty"`
	HistoryLength *int         `json:"history_length,omitempty"`
	Preferences   *Preferences `json:"preferences,omitempty"`
}

package analyzer

import (
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/model-router/internal/types"
)

// Complexity weights
const (
	codeBlockWeight = 15 * 1.5
	mathWeight      = 10 * 1.3
	tableRowWeight  = 8 * 1.2
	imageWeight     = 12 * 1.4
	questionWeight  = 5

	technicalTermWeight = 2
	technicalTermCap    = 20

	codingBonus    = 15
	dataBonus      = 10
	reasoningBonus = 12

	multilingualRatio = 0.05
	scriptShare       = 0.10
)

// Analyzer classifies conversations. It holds no mutable state and is safe
// for concurrent use.
type Analyzer struct {
	cfg       Config
	coding    keywordMatcher
	data      keywordMatcher
	creative  keywordMatcher
	technical keywordMatcher
	reasoning keywordMatcher
	vision    keywordMatcher
	logger    *logrus.Logger
}

// New creates an analyzer from cfg merged over the defaults
func New(cfg Config, logger *logrus.Logger) *Analyzer {
	if logger == nil {
		logger = logrus.New()
	}
	cfg = cfg.merged()
	return &Analyzer{
		cfg:       cfg,
		coding:    newKeywordMatcher(cfg.CodingKeywords),
		data:      newKeywordMatcher(cfg.DataKeywords),
		creative:  newKeywordMatcher(cfg.CreativeKeywords),
		technical: newKeywordMatcher(cfg.TechnicalKeywords),
		reasoning: newKeywordMatcher(cfg.ReasoningKeywords),
		vision:    newKeywordMatcher(cfg.VisionKeywords),
		logger:    logger,
	}
}

// Analyze classifies the conversation. All content-derived fields depend only
// on messages and options.
func (a *Analyzer) Analyze(messages []types.Message, opts *types.AnalysisOptions) *types.TaskAnalysis {
	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		texts = append(texts, m.Text())
	}
	blob := strings.Join(texts, "\n")
	totalLength := utf8.RuneCountInString(blob)

	signals := a.scan(blob)
	signals.RawScore = a.rawComplexity(signals, totalLength, len(messages))
	complexity, score := bucket(signals.RawScore)

	analysis := &types.TaskAnalysis{
		ID:              uuid.NewString(),
		Complexity:      complexity,
		ComplexityScore: score,
		Language:        detectLanguage(blob),
		Signals:         signals,
		Metadata:        buildMetadata(messages, totalLength, opts),
		CreatedAt:       time.Now(),
	}
	if opts != nil && opts.Preferences != nil {
		prefs := *opts.Preferences
		analysis.Preferences = &prefs
	}

	analysis.Category = a.category(signals, totalLength)
	analysis.RequiredCapabilities = a.capabilities(analysis, blob, totalLength)
	analysis.EstimatedInputTokens = int(math.Ceil(float64(totalLength) / 4))
	analysis.EstimatedOutputTokens = a.outputTokens(analysis.Category, complexity)

	a.logger.WithFields(logrus.Fields{
		"analysis_id": analysis.ID,
		"category":    analysis.Category,
		"complexity":  analysis.Complexity,
		"raw_score":   signals.RawScore,
		"language":    analysis.Language,
	}).Debug("Task analyzed")

	return analysis
}

// scan counts the structural and keyword signals in the blob
func (a *Analyzer) scan(blob string) types.ComplexitySignals {
	s := types.ComplexitySignals{
		CodeBlocks:      len(codeBlockPattern.FindAllStringIndex(blob, -1)),
		MathExpressions: len(mathPattern.FindAllStringIndex(blob, -1)),
		TableRows:       len(tableRowPattern.FindAllStringIndex(blob, -1)),
		Images:          len(imagePattern.FindAllStringIndex(blob, -1)),
		Questions:       countQuestions(blob),
		Bullets:         len(bulletPattern.FindAllStringIndex(blob, -1)),
		TechnicalTerms:  a.technical.count(blob),
		CodingTerms:     a.coding.matches(blob),
		DataTerms:       a.data.matches(blob),
		CreativeTerms:   a.creative.matches(blob),
		ReasoningTerms:  a.reasoning.matches(blob),
	}

	total, nonASCII := 0, 0
	for _, r := range blob {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r > unicode.MaxASCII {
			nonASCII++
		}
	}
	if total > 0 {
		s.NonASCIIRatio = float64(nonASCII) / float64(total)
	}
	return s
}

// rawComplexity is the weighted signal sum clamped to [0,100]
func (a *Analyzer) rawComplexity(s types.ComplexitySignals, totalLength, messageCount int) float64 {
	score := 0.0

	if messageCount > 0 {
		avg := totalLength / messageCount
		switch {
		case avg > 2000:
			score += 25
		case avg > 1000:
			score += 15
		case avg > 500:
			score += 5
		}
	}

	score += float64(s.CodeBlocks) * codeBlockWeight
	score += float64(s.MathExpressions) * mathWeight
	score += float64(s.TableRows) * tableRowWeight
	score += float64(s.Images) * imageWeight
	score += float64(s.Questions) * questionWeight
	score += math.Min(technicalTermCap, float64(s.TechnicalTerms*technicalTermWeight))

	if s.CodingTerms {
		score += codingBonus
	}
	if s.DataTerms {
		score += dataBonus
	}
	if s.ReasoningTerms {
		score += reasoningBonus
	}

	return math.Max(0, math.Min(100, score))
}

// bucket maps a raw score onto a complexity level and its fixed midpoint score
func bucket(raw float64) (types.Complexity, float64) {
	switch {
	case raw < 25:
		return types.ComplexitySimple, 25
	case raw < 50:
		return types.ComplexityModerate, 50
	case raw < 75:
		return types.ComplexityComplex, 75
	default:
		return types.ComplexityHighlyComplex, 100
	}
}

// category walks the priority chain; first match wins
func (a *Analyzer) category(s types.ComplexitySignals, totalLength int) types.TaskCategory {
	technical := s.TechnicalTerms > 0
	switch {
	case s.CodeBlocks > 0 && s.CodingTerms:
		return types.CategoryCoding
	case s.DataTerms && (s.TableRows > 0 || s.Bullets > 3):
		return types.CategoryDataAnalysis
	case s.CreativeTerms && !technical:
		return types.CategoryCreativeWriting
	case technical && s.ReasoningTerms:
		return types.CategoryTechnicalExplanation
	case s.ReasoningTerms || s.Questions > 3:
		return types.CategoryReasoning
	case s.Images > 0:
		return types.CategoryVision
	case totalLength > a.cfg.LongContextChars:
		return types.CategoryLongContext
	default:
		return types.CategoryGeneralConversation
	}
}

// capabilities derives each flag from the signals directly; category only
// widens a flag, it never narrows one
func (a *Analyzer) capabilities(t *types.TaskAnalysis, blob string, totalLength int) types.RequiredCapabilities {
	s := t.Signals
	heavy := t.Complexity == types.ComplexityComplex || t.Complexity == types.ComplexityHighlyComplex
	speed := t.Preferences != nil && t.Preferences.QualitySpeedTradeoff == types.TradeoffSpeed

	return types.RequiredCapabilities{
		Vision:       s.Images > 0 || a.vision.matches(blob),
		Coding:       s.CodeBlocks > 0 || t.Category == types.CategoryCoding || s.CodingTerms,
		Reasoning:    s.ReasoningTerms || s.MathExpressions > 0 || t.Category == types.CategoryReasoning || heavy,
		Analysis:     s.DataTerms || s.TableRows > 0 || t.Category == types.CategoryDataAnalysis,
		Creativity:   s.CreativeTerms || t.Category == types.CategoryCreativeWriting,
		FastResponse: speed || (t.Complexity == types.ComplexitySimple && totalLength < a.cfg.FastResponseChars),
		LargeContext: totalLength > a.cfg.LargeContextChars || t.Category == types.CategoryLongContext,
		Multilingual: s.NonASCIIRatio > multilingualRatio,
	}
}

// outputTokens is base tokens for the category times the complexity multiplier
func (a *Analyzer) outputTokens(category types.TaskCategory, complexity types.Complexity) int {
	base, ok := a.cfg.BaseTokens[category]
	if !ok {
		base = a.cfg.BaseTokens[types.CategoryGeneralConversation]
	}
	mult, ok := a.cfg.Multipliers[complexity]
	if !ok {
		mult = 1
	}
	return int(math.Ceil(float64(base) * mult))
}

func buildMetadata(messages []types.Message, totalLength int, opts *types.AnalysisOptions) types.AnalysisMetadata {
	md := types.AnalysisMetadata{
		IsFollowUp:    len(messages) > 1,
		HistoryLength: len(messages),
		MessageCount:  len(messages),
		TotalLength:   totalLength,
	}
	if opts != nil {
		if opts.IsFollowUp != nil {
			md.IsFollowUp = *opts.IsFollowUp
		}
		if opts.HistoryLength != nil {
			md.HistoryLength = *opts.HistoryLength
		}
	}
	return md
}

// detectLanguage returns the dominant non-Latin script, if any, as a language code
func detectLanguage(text string) string {
	var letters, kana, hangul, han, arabic, cyrillic int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			kana++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		}
	}
	if letters == 0 {
		return "en"
	}

	share := func(n int) bool { return float64(n)/float64(letters) >= scriptShare }
	switch {
	case kana > 0 && share(kana+han):
		return "ja"
	case share(hangul):
		return "ko"
	case share(han):
		return "zh"
	case share(arabic):
		return "ar"
	case share(cyrillic):
		return "ru"
	default:
		return "en"
	}
}

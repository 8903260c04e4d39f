package analyzer

import (
	"regexp"
	"strings"
)

var (
	codeBlockPattern = regexp.MustCompile("(?s)```.*?```")
	mathPattern      = regexp.MustCompile(`(?s)\$\$.+?\$\$|\$[^$\n]+?\$|\\\(.+?\\\)|\\\[.+?\\\]`)
	tableRowPattern  = regexp.MustCompile(`(?m)^[ \t]*\|.*\|[ \t]*$`)
	imagePattern     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	bulletPattern    = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+•]|\d+[.)])[ \t]+\S`)
)

// keywordMatcher matches any of a list of keywords on word boundaries,
// case-insensitively
type keywordMatcher struct {
	re *regexp.Regexp
}

func newKeywordMatcher(keywords []string) keywordMatcher {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(k)))
	}
	if len(quoted) == 0 {
		return keywordMatcher{}
	}
	return keywordMatcher{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)}
}

func (m keywordMatcher) matches(text string) bool {
	return m.re != nil && m.re.MatchString(text)
}

func (m keywordMatcher) count(text string) int {
	if m.re == nil {
		return 0
	}
	return len(m.re.FindAllStringIndex(text, -1))
}

func countQuestions(text string) int {
	return strings.Count(text, "?") + strings.Count(text, "？")
}

package routing

import (
	"errors"
	"regexp"
	"slices"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Target is where a user message is sent.
type Target string

const (
	TargetAssistant Target = "assistant"
	TargetJira      Target = "jira"
)

// DefaultJiraKeywords trigger a ticket lookup instead of the assistant.
var DefaultJiraKeywords = []string{"jira", "ticket", "tickets", "bug", "bugs"}

var ErrNoKeywords = errors.New("at least one routing keyword is required")

var issueKeyPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-[0-9]+\b`)

// Decision is the outcome of routing one message.
type Decision struct {
	Target   Target
	Keywords []string
}

// KeywordRouter picks a Target from whole-word keyword hits.
type KeywordRouter struct {
	matcher *goahocorasick.Machine
}

// NewKeywordRouter builds an Aho-Corasick automaton over the lower-cased keywords.
func NewKeywordRouter(keywords []string) (*KeywordRouter, error) {
	cleaned := lo.Uniq(lo.FilterMap(keywords, func(k string, _ int) (string, bool) {
		k = strings.ToLower(strings.TrimSpace(k))
		return k, k != ""
	}))
	if len(cleaned) == 0 {
		return nil, ErrNoKeywords
	}
	// the double-array trie is built from sorted keys
	slices.Sort(cleaned)

	patterns := lo.Map(cleaned, func(k string, _ int) []rune { return []rune(k) })
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &KeywordRouter{matcher: m}, nil
}

// Route returns TargetJira when a keyword appears as a whole word.
func (r *KeywordRouter) Route(text string) Decision {
	matched := r.Match(text)
	if len(matched) == 0 {
		return Decision{Target: TargetAssistant}
	}
	return Decision{Target: TargetJira, Keywords: matched}
}

// Match lists whole-word keyword hits, deduplicated, in order of appearance.
func (r *KeywordRouter) Match(text string) []string {
	runes := []rune(strings.ToLower(text))
	if len(runes) == 0 {
		return nil
	}

	terms := r.matcher.MultiPatternSearch(runes, false)
	var hits []string
	for _, term := range terms {
		start := term.Pos
		end := start + len(term.Word)
		if start < 0 || end > len(runes) {
			continue
		}
		if start > 0 && isWordRune(runes[start-1]) {
			continue
		}
		if end < len(runes) && isWordRune(runes[end]) {
			continue
		}
		hits = append(hits, string(term.Word))
	}
	return lo.Uniq(hits)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// ExtractIssueKeys finds Jira issue keys such as FIN-123. With a projectKey,
// only that project's keys are returned, so tokens like UTF-8 or SHA-256 are
// not mistaken for issues.
func ExtractIssueKeys(text, projectKey string) []string {
	keys := lo.Uniq(issueKeyPattern.FindAllString(text, -1))
	if projectKey == "" {
		return keys
	}
	prefix := strings.ToUpper(strings.TrimSpace(projectKey)) + "-"
	return lo.Filter(keys, func(k string, _ int) bool { return strings.HasPrefix(k, prefix) })
}

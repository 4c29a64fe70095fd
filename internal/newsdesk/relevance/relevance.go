// Package relevance derives topical tags and a heuristic relevance score
// from article text. Every function here is pure.
package relevance

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/sources"
)

// FallbackTag is assigned when no group or phrase matches.
const FallbackTag = "general"

// RecencyWindow is how old an article may be and still earn the recency bonus.
const RecencyWindow = 7 * 24 * time.Hour

const (
	titleWeight  = 3
	imageBonus   = 1
	recencyBonus = 2
)

// Group is a named topic whose keywords map to a single tag.
type Group struct {
	Name     string
	Keywords []string
}

// CategoryGroups are tested in order; each contributes its name at most once.
var CategoryGroups = []Group{
	{Name: "technology", Keywords: []string{"neural network", "machine learning", "generative", "adversarial network", "diffusion model", "algorithm", "artificial intelligence"}},
	{Name: "ethics", Keywords: []string{"ethic", "consent", "privacy", "misinformation", "disinformation", "regulation", "legislation"}},
	{Name: "detection", Keywords: []string{"detect", "watermark", "authenticat", "verification", "forensic", "provenance"}},
	{Name: "research", Keywords: []string{"research", "study", "paper", "university", "dataset", "scientist"}},
	{Name: "social-impact", Keywords: []string{"election", "politic", "celebrit", "social media", "harassment", "public trust"}},
	{Name: "security", Keywords: []string{"fraud", "scam", "cyber", "identity theft", "impersonat", "phishing"}},
}

// DomainPhrases are the topical phrases that drive tagging and scoring.
var DomainPhrases = []string{
	"deepfake",
	"deep fake",
	"synthetic media",
	"face swap",
	"voice cloning",
	"ai-generated video",
	"manipulated media",
	"digital forgery",
}

var phrasePatterns = compilePhrases(DomainPhrases)

func compilePhrases(phrases []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(phrases))
	for i, p := range phrases {
		out[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(p))
	}
	return out
}

// MaxPhraseTags bounds how many domain phrase tags one article may carry.
func MaxPhraseTags() int {
	return 3 + len(CategoryGroups)
}

// DeriveTags returns the sorted, de-duplicated tag set for a.
func DeriveTags(a sources.Article) []string {
	text := strings.ToLower(a.Text())
	seen := make(map[string]bool)

	for _, g := range CategoryGroups {
		for _, kw := range g.Keywords {
			if strings.Contains(text, kw) {
				seen[g.Name] = true
				break
			}
		}
	}

	phraseTags := 0
	for _, p := range DomainPhrases {
		if phraseTags >= MaxPhraseTags() {
			break
		}
		if !strings.Contains(text, p) {
			continue
		}
		slug := Slug(p)
		if !seen[slug] {
			seen[slug] = true
			phraseTags++
		}
	}

	if len(seen) == 0 {
		return []string{FallbackTag}
	}

	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// ScoreRelevance computes the keyword, media and recency score of a at now.
// An article matching no domain phrase scores 0 whatever its other traits.
func ScoreRelevance(a sources.Article, now time.Time) float64 {
	var score float64
	title := strings.ToLower(a.Title)
	text := a.Text()

	for i, p := range DomainPhrases {
		if strings.Contains(title, p) {
			score += titleWeight
		}
		score += float64(len(phrasePatterns[i].FindAllStringIndex(text, -1)))
	}
	if score == 0 {
		return 0
	}

	if strings.TrimSpace(a.URLToImage) != "" {
		score += imageBonus
	}
	if !a.PublishedAt.IsZero() && now.Sub(a.PublishedAt) <= RecencyWindow {
		score += recencyBonus
	}
	return score
}

// Slug lower-cases s, folds accents and joins words with hyphens.
func Slug(s string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}

package classifier

import (
	"sort"
	"strings"

	"github.com/ashureev/deskroute/internal/domain"
)

// LabelNetwork is reported for hardware-bucket results driven by network keywords.
const LabelNetwork = "Network"

// Result is the outcome of a single classification.
type Result struct {
	Category   domain.IssueType   `json:"category"`
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	Matched    []string           `json:"matched_keywords"`
	Scores     map[string]float64 `json:"scores"`
}

// KeywordClassifier is safe for concurrent use; it is read-only after construction.
type KeywordClassifier struct {
	hardware  []string
	password  []string
	software  []string
	network   []string
	greetings map[string]struct{}

	passwordWeight float64
	divisor        float64
	minLength      int
}

// NewKeywordClassifier builds a classifier from p. Invalid scoring
// parameters fall back to DefaultPolicy values.
func NewKeywordClassifier(p Policy) *KeywordClassifier {
	def := DefaultPolicy()
	if p.PasswordWeight <= 0 {
		p.PasswordWeight = def.PasswordWeight
	}
	if p.ConfidenceDivisor <= 0 {
		p.ConfidenceDivisor = def.ConfidenceDivisor
	}
	if p.MinLength < 0 {
		p.MinLength = def.MinLength
	}

	c := &KeywordClassifier{
		hardware:       normalize(p.Hardware),
		password:       normalize(p.Password),
		software:       normalize(p.Software),
		network:        normalize(p.Network),
		greetings:      make(map[string]struct{}, len(p.Greetings)),
		passwordWeight: p.PasswordWeight,
		divisor:        p.ConfidenceDivisor,
		minLength:      p.MinLength,
	}
	for _, g := range normalize(p.Greetings) {
		c.greetings[g] = struct{}{}
	}
	return c
}

// IsGreeting reports whether text is exactly one of the greeting phrases.
func (c *KeywordClassifier) IsGreeting(text string) bool {
	_, ok := c.greetings[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// Classify scores text and picks a category.
//
// Password wins when its weighted count ties or exceeds both the hardware
// bucket and software. Software wins when strictly greater than the hardware
// bucket. Network hits count towards the hardware bucket.
func (c *KeywordClassifier) Classify(text string) Result {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < c.minLength || c.IsGreeting(trimmed) {
		return Result{Category: domain.IssueGeneral, Label: string(domain.IssueGeneral), Matched: []string{}, Scores: map[string]float64{}}
	}

	lower := strings.ToLower(trimmed)
	matched := make(map[string]struct{})
	hw := count(lower, c.hardware, matched)
	pw := count(lower, c.password, matched)
	sw := count(lower, c.software, matched)
	nw := count(lower, c.network, matched)

	weightedPW := float64(pw) * c.passwordWeight
	bucketHW := float64(hw + nw)
	swf := float64(sw)

	res := Result{
		Matched: sortedKeys(matched),
		Scores: map[string]float64{
			"hardware": float64(hw),
			"password": weightedPW,
			"software": swf,
			"network":  float64(nw),
		},
	}

	switch {
	case weightedPW == 0 && bucketHW == 0 && swf == 0:
		res.Category = domain.IssueGeneral
		res.Label = string(domain.IssueGeneral)
		return res
	case weightedPW >= bucketHW && weightedPW >= swf:
		res.Category = domain.IssuePassword
	case swf > bucketHW:
		res.Category = domain.IssueSoftware
	default:
		res.Category = domain.IssueHardware
	}

	res.Label = string(res.Category)
	if res.Category == domain.IssueHardware && nw > hw {
		res.Label = LabelNetwork
	}

	res.Confidence = clamp(max(weightedPW, float64(hw), swf, float64(nw)) / c.divisor)
	return res
}

func count(text string, keywords []string, matched map[string]struct{}) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
			matched[kw] = struct{}{}
		}
	}
	return n
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

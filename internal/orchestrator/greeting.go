package orchestrator

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/ashureev/deskroute/internal/agent"
	"github.com/ashureev/deskroute/internal/domain"
)

// greetingPhrases open a greeting-only message. Longer phrases come first.
var greetingPhrases = []string{
	"good afternoon",
	"good morning",
	"good evening",
	"hello there",
	"hi there",
	"greetings",
	"hello",
	"hey",
	"hi",
}

// isGreeting reports whether msg opens with a greeting phrase as a whole
// word. "hi, my laptop is broken" qualifies; "this printer" does not.
func isGreeting(msg string) bool {
	s := strings.ToLower(strings.TrimSpace(msg))
	for _, p := range greetingPhrases {
		if !strings.HasPrefix(s, p) {
			continue
		}
		rest := []rune(s[len(p):])
		if len(rest) == 0 || !unicode.IsLetter(rest[0]) {
			return true
		}
	}
	return false
}

// buildGreeting renders the time-of-day greeting, personalized when the
// employee is known.
func buildGreeting(assistantName string, sess *domain.Session, now time.Time) string {
	tod := agent.TimeOfDayGreeting(now)
	if sess != nil && sess.Employee != nil {
		if first := sess.Employee.FirstName(); first != "" {
			g := fmt.Sprintf("%s, %s! I'm %s, your IT support specialist.", tod, first, assistantName)
			if dept := sess.Employee.Department; dept != "" {
				g += fmt.Sprintf(" I see you're from the %s department.", dept)
			}
			return g + " How can I help you with your IT needs today?"
		}
	}
	return fmt.Sprintf("%s! I'm %s, your IT support specialist. How can I help you today?", tod, assistantName)
}

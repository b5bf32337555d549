package orchestrator

import (
	"context"
	"log/slog"

	"github.com/ashureev/deskroute/internal/domain"
	"github.com/ashureev/deskroute/internal/llm"
)

// Classification sources, in precedence order.
const (
	SourceSticky  = "sticky"
	SourceKeyword = "keyword"
	SourceLLM     = "llm"
	SourceDefault = "default"
)

// Decision is the outcome of ResolveCategory.
type Decision struct {
	Category   domain.IssueType
	Label      string
	Confidence float64
	Source     string
}

// ResolveCategory is the single category policy for a turn:
// a specific category already on the session wins, then the keyword
// classifier, then the secondary classifier, then General.
//
// secondary may be nil. Its errors are logged and treated as General.
func ResolveCategory(ctx context.Context, current domain.IssueType, text string, kc Classifier, secondary llm.SecondaryClassifier) Decision {
	if current.IsSpecific() {
		return Decision{Category: current, Source: SourceSticky}
	}

	if kc != nil {
		res := kc.Classify(text)
		if res.Category.IsSpecific() {
			return Decision{
				Category:   res.Category,
				Label:      res.Label,
				Confidence: res.Confidence,
				Source:     SourceKeyword,
			}
		}
	}

	if secondary != nil {
		label, err := secondary.ClassifyText(ctx, text)
		if err != nil {
			slog.Warn("Secondary classifier failed", "error", err)
		} else if cat := domain.ParseIssueType(label); cat.IsSpecific() {
			return Decision{Category: cat, Label: string(cat), Source: SourceLLM}
		}
	}

	return Decision{Category: domain.IssueGeneral, Label: string(domain.IssueGeneral), Source: SourceDefault}
}

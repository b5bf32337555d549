package llm

import (
	"context"
	"fmt"
	"strings"
)

const classifierSystemPrompt = `You classify IT support requests.
Answer with exactly one word: Hardware, Software, Password or General.
Hardware covers devices, peripherals, and network connectivity.
Password covers logins, account lockouts, resets and multi-factor authentication.
Software covers applications, installs, updates and licenses.
Anything else is General.`

// PromptClassifier asks a Client for a single category word.
type PromptClassifier struct {
	client Client
}

// NewPromptClassifier wraps client.
func NewPromptClassifier(client Client) *PromptClassifier {
	return &PromptClassifier{client: client}
}

// ClassifyText implements SecondaryClassifier.
func (p *PromptClassifier) ClassifyText(ctx context.Context, text string) (string, error) {
	temp := 0.0
	out, err := p.client.Generate(ctx, Request{
		System:      classifierSystemPrompt,
		UserMessage: text,
		MaxTokens:   8,
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("prompt classify: %w", err)
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.Trim(fields[0], ".,:;!\"'"), nil
}

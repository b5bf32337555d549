// Package classifier scores support messages against keyword sets.
package classifier

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Policy holds the keyword sets and scoring parameters.
type Policy struct {
	Hardware []string `yaml:"hardware"`
	Password []string `yaml:"password"`
	Software []string `yaml:"software"`
	Network  []string `yaml:"network"`

	// Greetings are matched against the whole trimmed message.
	Greetings []string `yaml:"greetings"`

	PasswordWeight    float64 `yaml:"password_weight"`
	ConfidenceDivisor float64 `yaml:"confidence_divisor"`
	MinLength         int     `yaml:"min_length"`
}

// DefaultPolicy returns the built-in keyword policy.
func DefaultPolicy() Policy {
	return Policy{
		Hardware: []string{
			"device", "computer", "laptop", "desktop", "slow", "broken",
			"screen", "keyboard", "mouse", "printer", "hardware",
			"battery", "power", "crash", "frozen", "blue screen", "bsod",
			"restart", "boot", "monitor", "display", "black screen", "webcam",
			"camera", "microphone", "audio", "sound", "speaker", "usb",
			"drive", "disk", "storage",
		},
		Password: []string{
			"password", "login", "forgot", "reset", "locked", "account",
			"access", "credentials", "can't log in", "authentication",
			"username", "locked out", "security", "signin", "sign in",
			"log in", "cannot access", "password expired", "change password",
			"identity", "verification", "two-factor", "2fa", "mfa",
		},
		Software: []string{
			"software", "application", "app", "program", "install",
			"update", "upgrade", "microsoft", "office", "excel", "word",
			"outlook", "email", "browser", "chrome", "edge", "firefox",
			"safari", "teams", "slack", "zoom", "license", "activation",
			"windows", "macos", "os", "operating system", "error message",
		},
		Network:           []string{"wifi", "network", "internet", "connection"},
		Greetings:         []string{"hi", "hello", "hey", "hi there", "hello there", "greetings"},
		PasswordWeight:    1.2,
		ConfidenceDivisor: 5,
		MinLength:         10,
	}
}

// Validate checks the policy for usable parameters and disjoint keyword sets.
func (p Policy) Validate() error {
	if p.PasswordWeight <= 0 {
		return fmt.Errorf("password_weight must be > 0")
	}
	if p.ConfidenceDivisor <= 0 {
		return fmt.Errorf("confidence_divisor must be > 0")
	}
	if p.MinLength < 0 {
		return fmt.Errorf("min_length must be >= 0")
	}

	seen := make(map[string]string)
	sets := []struct {
		name     string
		keywords []string
	}{
		{"hardware", p.Hardware},
		{"password", p.Password},
		{"software", p.Software},
		{"network", p.Network},
	}
	for _, set := range sets {
		for _, kw := range set.keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				return fmt.Errorf("%s: empty keyword", set.name)
			}
			if other, ok := seen[kw]; ok && other != set.name {
				return fmt.Errorf("keyword %q appears in both %s and %s", kw, other, set.name)
			}
			seen[kw] = set.name
		}
	}
	return nil
}

// LoadPolicyFile reads a YAML policy file. Keys missing from the file keep
// their DefaultPolicy values.
func LoadPolicyFile(path string) (*Policy, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load classifier policy from %q: %w", path, err)
	}

	policy := DefaultPolicy()
	if err := k.UnmarshalWithConf("", &policy, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse classifier policy from %q: %w", path, err)
	}

	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("classifier policy validation failed for %q: %w", path, err)
	}
	return &policy, nil
}

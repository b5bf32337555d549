package agent

import (
	"context"
	"fmt"
)

const (
	topicReset   = "reset"
	topicPolicy  = "policy"
	topicLockout = "lockout"
)

const genericPasswordSystem = "generic"

// PasswordTools provides reset procedures, password policies and lockout
// information per system.
type PasswordTools struct {
	systems knowledge
}

// NewPasswordTools returns password tools backed by the built-in tables.
func NewPasswordTools() *PasswordTools {
	return &PasswordTools{systems: knowledge{
		"windows": {
			topicReset: `1. Contact IT Helpdesk at support@meai.com with your employee ID and complete identity verification.
2. A temporary password will be provided; you will be prompted to change it at next login.
3. Self-service: on the login screen click "I forgot my password" and follow the prompts.
All password resets require multi-factor authentication verification.`,
			topicPolicy: `- Minimum length: 12 characters
- At least 3 of: uppercase, lowercase, numbers, special characters
- Cannot contain your username or parts of your full name
- Cannot reuse any of your last 5 passwords
- Expires every 90 days
- Lockout occurs after 5 failed attempts`,
			topicLockout: `- Lockout threshold: 5 failed login attempts
- Lockout duration: 30 minutes auto-unlock
- For immediate unlock call ext. 1234 or email support@meai.com`,
		},
		"office 365": {
			topicReset: `1. Go to https://portal.office.com and click "Can't access your account?"
2. Verify your identity via phone or email and create a new password.
3. Or contact IT Helpdesk at support@meai.com for a temporary password.
Your Office 365 password is synchronized with email and Teams access.`,
			topicPolicy: `- Minimum length: 12 characters
- At least 3 of: uppercase, lowercase, numbers, special characters
- Cannot contain your username or email address
- Cannot reuse any of your last 5 passwords
- Expires every 90 days
- Lockout occurs after 10 failed attempts`,
			topicLockout: `- Lockout threshold: 10 failed login attempts
- Lockout duration: 24 hours auto-unlock
- For immediate unlock call ext. 1234 or email support@meai.com and say it is an Office 365 lockout`,
		},
		"email": {
			topicReset: `1. Go to https://mail.company.com and click "Forgot password".
2. Or contact IT Helpdesk at support@meai.com; a temporary password is sent via SMS to your registered mobile number.`,
		},
		"vpn": {
			topicReset: `VPN passwords cannot be reset through self-service.
Contact IT Security at security@meai.com with your employee ID and complete enhanced identity verification.`,
			topicPolicy: `- Minimum length: 16 characters
- Must include uppercase, lowercase, numbers and special characters
- Expires every 60 days
- Lockout occurs after 3 failed attempts`,
			topicLockout: `- Lockout threshold: 3 failed login attempts
- No auto-unlock
- Contact IT Security at security@meai.com or ext. 5678 (business hours only); manager approval may be needed`,
		},
		"teams": {
			topicReset: `Your Teams password is the same as your Office 365 password; follow the Office 365 reset procedure at https://portal.office.com.`,
		},
		"salesforce": {
			topicLockout: `- Lockout threshold: 5 failed login attempts
- Lockout duration: 15 minutes auto-unlock
- Contact salesforce.admin@meai.com for an immediate unlock`,
		},
		genericPasswordSystem: {
			topicReset: `1. Look for a "Forgot Password" or "Reset Password" link on the login page and follow the verification steps.
2. Or contact IT Helpdesk at support@meai.com with your employee ID and the system you need access to.`,
			topicPolicy: `- Minimum length: 12 characters
- Mix of uppercase, lowercase, numbers and special characters
- No reuse of recent passwords`,
			topicLockout: `- Most systems lock after 3-10 failed login attempts
- Standard systems unlock after 15-30 minutes; high-security systems require a manual unlock
- Contact IT Helpdesk at ext. 1234 or support@meai.com`,
		},
	}}
}

// Lookup returns the text for topic on system, falling back to the
// generic entry.
func (p *PasswordTools) Lookup(system, topic string) string {
	if topics, ok := p.systems[system]; ok {
		if text, ok := topics[topic]; ok {
			return text
		}
	}
	return p.systems[genericPasswordSystem][topic]
}

// Context implements Toolset.
func (p *PasswordTools) Context(_ context.Context, req Request) []ToolResult {
	system, ok := p.systems.findSubject(req.Query)
	if !ok || system == genericPasswordSystem {
		system = genericPasswordSystem
	}

	var topics []string
	if mentionsAny(req.Query, "reset", "forgot", "change") {
		topics = append(topics, topicReset)
	}
	if mentionsAny(req.Query, "lock") {
		topics = append(topics, topicLockout)
	}
	if mentionsAny(req.Query, "policy", "requirement", "expire", "complex") {
		topics = append(topics, topicPolicy)
	}
	if len(topics) == 0 {
		topics = append(topics, topicReset)
	}

	out := make([]ToolResult, 0, len(topics))
	for _, topic := range topics {
		text := p.Lookup(system, topic)
		if text == "" {
			continue
		}
		out = append(out, ToolResult{
			Tool:   "password_" + topic,
			Output: fmt.Sprintf("System: %s\n%s", system, text),
		})
	}
	return out
}

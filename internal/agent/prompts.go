package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/deskroute/internal/domain"
)

// Defaults for user-facing identity strings.
const (
	DefaultAssistantName  = "ME.ai Assistant"
	DefaultSupportContact = "support@meai.com"
)

const (
	hardwarePersona = `You specialize in hardware and technical support: laptops, desktops, printers, peripherals and network connectivity.
Walk the user through troubleshooting one step at a time and ask which device is affected when it is unclear.`

	passwordPersona = `You specialize in password and account access issues.
Never ask for or repeat a password. Verify identity before describing reset steps and explain lockout policies when relevant.`

	softwarePersona = `You specialize in software and application issues: installs, updates, licensing and Microsoft 365.
Ask which application and version are involved and check compatibility with the user's devices.`

	generalPersona = `You are a general IT support assistant.
Ask clarifying questions until the issue can be identified as hardware, software or account related.`
)

// TimeOfDayGreeting returns "Good morning", "Good afternoon" or "Good evening".
func TimeOfDayGreeting(now time.Time) string {
	switch h := now.Hour(); {
	case h >= 5 && h < 12:
		return "Good morning"
	case h >= 12 && h < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// BuildSystemPrompt assembles the system prompt for one turn.
func BuildSystemPrompt(assistantName, persona string, sess *domain.Session, tools []ToolResult, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an empathetic IT support specialist. %s!\n\n", assistantName, TimeOfDayGreeting(now))
	b.WriteString(persona)
	b.WriteString("\n\nKeep answers short and practical. Offer escalation to a human technician when the issue cannot be resolved remotely.\n")

	if sess != nil {
		if emp := sess.Employee; emp != nil {
			b.WriteString("\nEmployee:\n")
			fmt.Fprintf(&b, "- Name: %s\n", emp.Name)
			if emp.Department != "" {
				fmt.Fprintf(&b, "- Department: %s\n", emp.Department)
			}
			if emp.Position != "" {
				fmt.Fprintf(&b, "- Position: %s\n", emp.Position)
			}
		}
		if len(sess.Devices) > 0 {
			b.WriteString("\nRegistered devices:\n")
			for _, d := range sess.Devices {
				fmt.Fprintf(&b, "- %s %s (%s)\n", d.Type, d.Model, d.ID)
			}
		}
		if sess.Language != "" {
			fmt.Fprintf(&b, "\nRespond in %s.\n", sess.Language)
		}
	}

	if len(tools) > 0 {
		b.WriteString("\nReference information:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "[%s]\n%s\n", t.Tool, strings.TrimSpace(t.Output))
		}
	}
	return b.String()
}

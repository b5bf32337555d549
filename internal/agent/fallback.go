package agent

import (
	"fmt"
	"strings"

	"github.com/ashureev/deskroute/internal/domain"
)

// Apology is returned when nothing better is available.
func Apology(supportContact string) string {
	if supportContact == "" {
		supportContact = DefaultSupportContact
	}
	return "I apologize, but I'm experiencing technical difficulties. Please try again later or contact our IT support team directly at " +
		supportContact + " if your issue is urgent."
}

// FallbackReply builds a keyword-driven reply used when the model is
// unavailable. reason is one of the Reason constants.
func FallbackReply(message string, sess *domain.Session, category domain.IssueType, reason, assistantName string) string {
	if assistantName == "" {
		assistantName = DefaultAssistantName
	}

	greeting := "Hello, "
	if sess != nil && sess.Employee != nil {
		if first := sess.Employee.FirstName(); first != "" {
			greeting = fmt.Sprintf("Hi %s, ", first)
		}
	}

	if reason == ReasonTimeout {
		return greeting + "I apologize for the delay. Our system is experiencing some momentary slowness. " +
			"Could you please provide some additional details about your issue so I can assist you better once our systems are back to normal speed?"
	}

	msg := strings.ToLower(strings.TrimSpace(message))

	switch category {
	case domain.IssuePassword:
		switch {
		case containsAny(msg, "reset", "forgot"):
			return greeting + "I understand you need to reset your password. For security reasons, I'll need to verify your identity first. " +
				"Could you please confirm your department and employee ID?"
		case containsAny(msg, "locked"):
			return greeting + "I see that your account is locked. This typically happens after multiple incorrect password attempts. " +
				"Which system or application are you trying to access?"
		}
		return greeting + "I understand you're having an issue with authentication or accessing your account. " +
			"Could you specify which system or application you're having trouble accessing?"

	case domain.IssueHardware:
		switch {
		case containsAny(msg, "slow", "performance", "freezing", "frozen"):
			return greeting + "I'm sorry to hear your device is running slowly. This could be due to low disk space, too many applications running, or outdated software. " +
				"Which operating system are you using, and when did you start noticing the issue?"
		case containsAny(msg, "printer", "print", "scanning"):
			return greeting + "I understand you're having an issue with a printer. " +
				"Could you tell me the model of the printer, and whether it's connected via network or USB?"
		case containsAny(msg, "wifi", "internet", "connection", "network"):
			return greeting + "I see you're experiencing network connectivity issues. " +
				"Are you having trouble connecting to the WiFi, or is your device connected but you can't reach specific websites or services?"
		}
		return greeting + "Thank you for reaching out about your hardware issue. " +
			"Which device are you having problems with, and what symptoms are you seeing?"

	case domain.IssueSoftware:
		switch {
		case containsAny(msg, "install", "download", "setup"):
			return greeting + "I understand you need help installing software. " +
				"Which application are you trying to install, and what error do you see during installation?"
		case containsAny(msg, "update", "upgrade", "patch"):
			return greeting + "I see you're having issues with a software update. " +
				"Which program needs updating, and what happens when you try to update it?"
		case containsAny(msg, "office", "excel", "word", "powerpoint", "outlook"):
			return greeting + "I understand you're experiencing an issue with Microsoft Office. " +
				"Which Office application is giving you trouble, and what happens when the problem occurs?"
		}
		return greeting + "I understand you're having a software issue. " +
			"Which application are you having problems with, and what error messages or unexpected behavior are you seeing?"
	}

	return greeting + "Thank you for reaching out to IT support. I'm " + assistantName +
		". Could you provide more details about what you're experiencing so I can better assist you?"
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

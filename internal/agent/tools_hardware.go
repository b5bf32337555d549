package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// DeviceStatus is a monitoring snapshot for one device.
type DeviceStatus struct {
	Status    string
	LastCheck string
	Issues    string
}

// TroubleshootParams selects a troubleshooting guide.
type TroubleshootParams struct {
	DeviceType string
	Issue      string
}

const generalHardwareSteps = `1. Restart the device
2. Check all physical connections
3. Update drivers/firmware
4. Run built-in diagnostics if available
5. Document any error messages`

var deviceIDPattern = regexp.MustCompile(`(?i)\bDEV\d{3,}\b`)

// HardwareTools provides device inventory, monitoring status and
// troubleshooting guides.
type HardwareTools struct {
	statuses map[string]DeviceStatus
	guides   knowledge
}

// NewHardwareTools returns hardware tools backed by the built-in tables.
func NewHardwareTools() *HardwareTools {
	return &HardwareTools{
		statuses: map[string]DeviceStatus{
			"DEV001": {Status: "Online", LastCheck: "2025-04-17 08:30:00", Issues: "None"},
			"DEV002": {Status: "Offline", LastCheck: "2025-04-16 17:45:00", Issues: "Connectivity issues"},
			"DEV003": {Status: "Warning", LastCheck: "2025-04-17 09:15:00", Issues: "Low disk space"},
		},
		guides: knowledge{
			"laptop": {
				"won't power on": `1. Check power connection and cable
2. Remove battery, hold power button for 30 seconds, reinsert battery
3. Try a different power outlet
4. Check for any physical damage to the power port
5. If still not working, contact IT support for hardware assessment`,
				"slow performance": `1. Restart the computer
2. Check for available disk space (need at least 10% free)
3. Close unnecessary applications running in the background
4. Check for malware or viruses
5. Verify your computer is not overheating`,
				"blue screen": `1. Note any error codes displayed on the blue screen
2. Restart the computer
3. Check for recent software or driver updates
4. Boot in Safe Mode to isolate issues
5. Run hardware diagnostics from BIOS/UEFI`,
			},
			"desktop": {
				"won't power on": `1. Check power cable connections at both computer and wall outlet
2. Test with a different power cable if available
3. Check if the power supply switch is turned on
4. Listen for any beep codes during startup
5. Verify monitor is powered on and connected properly`,
				"slow performance": `1. Restart the computer
2. Check for available disk space
3. Check CPU and memory usage in Task Manager
4. Close unnecessary applications and background processes
5. Scan for malware and viruses`,
				"strange noises": `1. Identify source of noise (fan, hard drive, power supply)
2. Check for dust buildup and clean if necessary
3. Ensure all fans are functioning properly
4. Check for loose components or cables
5. For grinding noises from hard drives, backup data immediately`,
			},
			"printer": {
				"not printing": `1. Check physical connections (power, network/USB)
2. Verify printer is online and ready (no error lights)
3. Check for paper jams
4. Restart the printer
5. Clear print queue on computer
6. Check if correct printer is selected`,
				"poor print quality": `1. Run printer cleaning cycle
2. Check toner/ink levels
3. Verify paper type settings match paper being used
4. Check for any obstructions in paper path
5. Update printer drivers`,
				"paper jam": `1. Power off the printer
2. Open all access panels
3. Gently remove jammed paper (pull in direction of normal paper path)
4. Check for torn paper remaining inside
5. Close all panels and restart printer`,
			},
		},
	}
}

// DeviceStatus returns the monitoring status for id.
func (h *HardwareTools) DeviceStatus(id string) (DeviceStatus, bool) {
	st, ok := h.statuses[strings.ToUpper(strings.TrimSpace(id))]
	return st, ok
}

// Troubleshoot returns the guide for p.
func (h *HardwareTools) Troubleshoot(p TroubleshootParams) string {
	deviceType := strings.ToLower(strings.TrimSpace(p.DeviceType))
	issue := strings.ToLower(strings.TrimSpace(p.Issue))

	if _, ok := h.guides[deviceType]; !ok {
		return "No troubleshooting information available for device type: " + deviceType
	}
	if name, steps, ok := h.guides.findTopic(deviceType, issue); ok {
		return fmt.Sprintf("Troubleshooting steps for %s - %s:\n%s", deviceType, name, steps)
	}
	return fmt.Sprintf("No specific troubleshooting steps found for '%s' with %s. Here are general troubleshooting steps:\n%s",
		issue, deviceType, generalHardwareSteps)
}

// Context implements Toolset.
func (h *HardwareTools) Context(_ context.Context, req Request) []ToolResult {
	var out []ToolResult
	var deviceType string

	if req.Session != nil && len(req.Session.Devices) > 0 {
		var b strings.Builder
		for _, d := range req.Session.Devices {
			fmt.Fprintf(&b, "- %s: %s %s", d.ID, d.Type, d.Model)
			if d.OS != "" {
				fmt.Fprintf(&b, " (%s)", d.OS)
			}
			b.WriteString("\n")
		}
		out = append(out, ToolResult{Tool: "employee_devices", Output: b.String()})
		deviceType = strings.ToLower(req.Session.Devices[0].Type)
	}

	ids := deviceIDPattern.FindAllString(req.Query, -1)
	if req.Session != nil {
		for _, d := range req.Session.Devices {
			ids = append(ids, d.ID)
		}
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(id)
		if seen[id] {
			continue
		}
		seen[id] = true
		if st, ok := h.DeviceStatus(id); ok {
			out = append(out, ToolResult{
				Tool:   "device_status",
				Output: fmt.Sprintf("%s\nDevice Status: %s\nLast Checked: %s\nIssues: %s", id, st.Status, st.LastCheck, st.Issues),
			})
		}
	}

	if mentioned, ok := h.guides.findSubject(req.Query); ok {
		deviceType = mentioned
	}
	if _, ok := h.guides[deviceType]; ok {
		if name, _, found := h.guides.findTopic(deviceType, hardwareIssue(req.Query)); found {
			out = append(out, ToolResult{
				Tool:   "troubleshoot_hardware",
				Output: h.Troubleshoot(TroubleshootParams{DeviceType: deviceType, Issue: name}),
			})
		}
	}
	return out
}

// hardwareIssue maps free text to a known issue phrase.
func hardwareIssue(query string) string {
	switch {
	case mentionsAny(query, "power on", "turn on", "won't start", "wont start", "dead"):
		return "won't power on"
	case mentionsAny(query, "slow", "freez", "lag"):
		return "slow performance"
	case mentionsAny(query, "blue screen", "bsod"):
		return "blue screen"
	case mentionsAny(query, "noise", "grinding", "clicking"):
		return "strange noises"
	case mentionsAny(query, "jam"):
		return "paper jam"
	case mentionsAny(query, "quality", "streak", "faded", "smudge"):
		return "poor print quality"
	case mentionsAny(query, "not printing", "won't print", "can't print", "cannot print"):
		return "not printing"
	}
	return ""
}

package agent

import (
	"context"
	"fmt"
	"strings"
)

const generalSoftwareSteps = `1. Restart the application
2. Check for software updates
3. Verify your internet connection if the application requires it
4. Restart your computer
5. Repair or reinstall the application`

// SoftwareTools provides troubleshooting guides and OS compatibility.
type SoftwareTools struct {
	guides        knowledge
	compatibility knowledge
}

// NewSoftwareTools returns software tools backed by the built-in tables.
func NewSoftwareTools() *SoftwareTools {
	return &SoftwareTools{
		guides: knowledge{
			"microsoft office": {
				"activation": `1. Check your Microsoft account is properly signed in
2. Go to File > Account to verify your subscription status
3. Run the Office repair tool: File > Account > Office Account > Repair
4. Sign out and sign back in to reactivate
5. Contact IT for license verification if issues persist`,
				"crashes": `1. Save your work and restart the application
2. Update Office to the latest version
3. Start in Safe Mode (hold Ctrl while starting the application)
4. Repair the Office installation from Control Panel
5. Disable COM add-ins and test again`,
				"slow": `1. Close other applications to free up memory
2. Check for large or complex documents
3. Clear the Office file cache
4. Check for Windows updates
5. Verify your computer meets minimum requirements for Office`,
			},
			"outlook": {
				"not sending emails": `1. Check your internet connection
2. Verify your account settings: File > Account Settings
3. Send a test email to yourself
4. Make sure Work Offline is unchecked on the Send/Receive tab
5. Create a new Outlook profile: Control Panel > Mail > Show Profiles > Add`,
				"search not working": `1. Rebuild the search index: File > Options > Search > Indexing Options > Advanced > Rebuild
2. Verify the correct mailbox is being searched
3. Restart Outlook
4. Check the Windows Search service is running
5. Repair Office if issues persist`,
				"calendar": `1. Check calendar permissions for shared calendars
2. Verify calendar sync settings
3. Toggle calendar view options
4. Restart Outlook
5. Check for conflicts with other calendar applications`,
			},
			"teams": {
				"audio issues": `1. Check your speakers or headset are connected and selected in Teams
2. Test audio devices in Settings > Devices
3. Check Windows sound settings
4. Try a different headset
5. Restart Teams and your computer`,
				"video issues": `1. Check the camera is connected and not used by another application
2. Verify camera permissions in Windows settings
3. Test the camera in Settings > Devices
4. Update camera drivers
5. Join without video, then enable it once connected`,
				"can't join meetings": `1. Check your internet connection
2. Verify you're signed in with the correct account
3. Join via the web client (teams.microsoft.com)
4. Clear the Teams cache
5. Reinstall Teams`,
			},
			"chrome": {
				"crashes": `1. Close and reopen Chrome
2. Update Chrome to the latest version
3. Clear browsing data
4. Disable extensions
5. Reset Chrome settings`,
				"slow": `1. Close unnecessary tabs
2. Clear cache and cookies
3. Remove unused extensions
4. Scan for malware with Chrome's built-in scanner
5. Update Chrome to the latest version`,
				"won't load websites": `1. Check your internet connection
2. Try the site in Incognito mode (Ctrl+Shift+N)
3. Flush the DNS cache with 'ipconfig /flushdns'
4. Reset network settings in Windows
5. Check if the website is down for everyone`,
			},
			"windows": {
				"slow startup": `1. Disable unnecessary startup programs in Task Manager
2. Scan for malware with Windows Defender
3. Run Disk Cleanup
4. Defragment the drive (HDD only)
5. Consider a hardware upgrade for older computers`,
				"blue screen": `1. Note the error code displayed on the blue screen
2. Check for Windows updates
3. Update device drivers, especially graphics and network drivers
4. Run 'sfc /scannow' from an administrator Command Prompt
5. Run Memory Diagnostics to check RAM`,
				"updates failing": `1. Run the Windows Update Troubleshooter
2. Clear the Windows Update cache
3. Check for adequate disk space
4. Try updating in Safe Mode
5. Use the Windows Update Assistant`,
			},
		},
		compatibility: knowledge{
			"microsoft office": {"windows 10": "Fully compatible", "windows 11": "Fully compatible", "macos": "Compatible (macOS version available)", "linux": "Not officially supported"},
			"adobe creative cloud": {"windows 10": "Fully compatible", "windows 11": "Fully compatible", "macos": "Compatible", "linux": "Not supported"},
			"autocad":   {"windows 10": "Fully compatible", "windows 11": "Compatible with latest version", "macos": "Not supported natively (use virtualization)", "linux": "Not supported"},
			"zoom":      {"windows 10": "Fully compatible", "windows 11": "Fully compatible", "macos": "Fully compatible", "linux": "Compatible (limited features)"},
			"chrome":    {"windows 10": "Fully compatible", "windows 11": "Fully compatible", "macos": "Fully compatible", "linux": "Fully compatible"},
			"firefox":   {"windows 10": "Fully compatible", "windows 11": "Fully compatible", "macos": "Fully compatible", "linux": "Fully compatible"},
			"edge":      {"windows 10": "Fully compatible", "windows 11": "Fully compatible", "macos": "Compatible", "linux": "Not officially supported"},
			"teams":     {"windows 10": "Fully compatible", "windows 11": "Fully compatible", "macos": "Compatible (some features limited)", "linux": "Limited compatibility (web version recommended)"},
		},
	}
}

// Troubleshoot returns the guide for issue in software.
func (s *SoftwareTools) Troubleshoot(software, issue string) string {
	software = s.canonical(software)
	if _, ok := s.guides[software]; !ok {
		return "No troubleshooting information available for software: " + software
	}
	if name, steps, ok := s.guides.findTopic(software, issue); ok {
		return fmt.Sprintf("Troubleshooting steps for %s - %s:\n%s", software, name, steps)
	}
	return fmt.Sprintf("No specific troubleshooting steps found for '%s' with %s. Here are general troubleshooting steps:\n%s",
		strings.ToLower(issue), software, generalSoftwareSteps)
}

// Compatibility reports how software runs on osName.
func (s *SoftwareTools) Compatibility(software, osName string) string {
	software = s.canonical(software)
	osName = strings.ToLower(strings.TrimSpace(osName))
	table, ok := s.compatibility[software]
	if !ok {
		return fmt.Sprintf("No compatibility information available for %s with any operating system.", software)
	}
	for _, key := range []string{"windows 10", "windows 11", "macos", "linux"} {
		if status, ok := table[key]; ok && (strings.Contains(osName, key) || (osName != "" && strings.Contains(key, osName))) {
			return fmt.Sprintf("%s compatibility with %s: %s", software, key, status)
		}
	}
	return fmt.Sprintf("No compatibility information available for %s with %s. Please contact IT support for more information.", software, osName)
}

// canonical maps product aliases onto table keys.
func (s *SoftwareTools) canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "office", "office 365", "microsoft 365", "word", "excel", "powerpoint":
		return "microsoft office"
	}
	return name
}

// Context implements Toolset.
func (s *SoftwareTools) Context(_ context.Context, req Request) []ToolResult {
	software, ok := s.guides.findSubject(req.Query)
	if !ok {
		software, ok = s.compatibility.findSubject(req.Query)
	}
	if !ok && mentionsAny(req.Query, "office", "word", "excel", "powerpoint") {
		software, ok = "microsoft office", true
	}
	if !ok {
		return nil
	}

	var out []ToolResult
	if issue := softwareIssue(req.Query); issue != "" {
		if _, _, found := s.guides.findTopic(software, issue); found {
			out = append(out, ToolResult{Tool: "troubleshoot_software", Output: s.Troubleshoot(software, issue)})
		}
	}
	if req.Session != nil {
		for _, d := range req.Session.Devices {
			if d.OS == "" {
				continue
			}
			out = append(out, ToolResult{Tool: "software_compatibility", Output: s.Compatibility(software, d.OS)})
			break
		}
	}
	return out
}

// softwareIssue maps free text to a known issue phrase.
func softwareIssue(query string) string {
	switch {
	case mentionsAny(query, "activat", "licen"):
		return "activation"
	case mentionsAny(query, "crash", "closes unexpectedly", "not responding"):
		return "crashes"
	case mentionsAny(query, "not sending", "won't send", "stuck in outbox"):
		return "not sending emails"
	case mentionsAny(query, "search"):
		return "search not working"
	case mentionsAny(query, "calendar"):
		return "calendar"
	case mentionsAny(query, "audio", "sound", "microphone", "mic "):
		return "audio issues"
	case mentionsAny(query, "video", "camera", "webcam"):
		return "video issues"
	case mentionsAny(query, "join"):
		return "can't join meetings"
	case mentionsAny(query, "won't load", "not loading", "can't load"):
		return "won't load websites"
	case mentionsAny(query, "blue screen", "bsod"):
		return "blue screen"
	case mentionsAny(query, "startup", "boot"):
		return "slow startup"
	case mentionsAny(query, "update"):
		return "updates failing"
	case mentionsAny(query, "slow"):
		return "slow"
	}
	return ""
}

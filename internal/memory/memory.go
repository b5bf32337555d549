// Package memory keeps per-session conversation history and context metadata.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mode selects the retention policy of a ConversationMemory.
type Mode string

const (
	// ModeBuffer keeps the full history.
	ModeBuffer Mode = "buffer"
	// ModeWindow keeps only the last K turns.
	ModeWindow Mode = "window"
)

// DefaultWindowTurns is the default K for window mode.
const DefaultWindowTurns = 10

// ParseMode returns the mode named by s, defaulting to buffer.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeWindow)) {
		return ModeWindow
	}
	return ModeBuffer
}

// Message roles.
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Message is a single remembered message.
type Message struct {
	Role      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemContext carries structured context merged into the metadata bag.
// DeviceList replaces the stored device list; Device appends one entry.
type SystemContext struct {
	UserInfo   map[string]any
	DeviceList []map[string]any
	Device     map[string]any
	IssueData  map[string]any
	Metadata   map[string]any
}

// Snapshot is the serializable export of a ConversationMemory.
type Snapshot struct {
	SessionID   string           `json:"session_id"`
	Mode        Mode             `json:"memory_type"`
	CreatedAt   time.Time        `json:"created_at"`
	LastUpdated time.Time        `json:"last_updated"`
	UserInfo    map[string]any   `json:"user_info"`
	DeviceInfo  []map[string]any `json:"device_info"`
	IssueData   map[string]any   `json:"issue_data"`
	Metadata    map[string]any   `json:"metadata"`
	Messages    []Message        `json:"messages"`
}

// ConversationMemory is owned by a single session. It is safe for
// concurrent use but is never shared across sessions.
type ConversationMemory struct {
	mu        sync.RWMutex
	sessionID string
	mode      Mode
	k         int
	messages  []Message

	userInfo   map[string]any
	deviceInfo []map[string]any
	issueData  map[string]any
	metadata   map[string]any

	createdAt   time.Time
	lastUpdated time.Time

	sink Sink
}

// New creates an empty memory. k is ignored in buffer mode; k <= 0 uses
// DefaultWindowTurns. sink may be nil.
func New(sessionID string, mode Mode, k int, sink Sink) *ConversationMemory {
	if k <= 0 {
		k = DefaultWindowTurns
	}
	if mode != ModeWindow {
		mode = ModeBuffer
	}
	now := time.Now()
	return &ConversationMemory{
		sessionID:   sessionID,
		mode:        mode,
		k:           k,
		messages:    []Message{},
		userInfo:    map[string]any{},
		deviceInfo:  []map[string]any{},
		issueData:   map[string]any{},
		metadata:    map[string]any{},
		createdAt:   now,
		lastUpdated: now,
		sink:        sink,
	}
}

// SessionID returns the owning session id.
func (m *ConversationMemory) SessionID() string { return m.sessionID }

// Mode returns the retention mode.
func (m *ConversationMemory) Mode() Mode { return m.mode }

// AddUserMessage appends a human message.
func (m *ConversationMemory) AddUserMessage(text string) {
	m.add(RoleHuman, text)
}

// AddAIMessage appends an assistant message.
func (m *ConversationMemory) AddAIMessage(text string) {
	m.add(RoleAI, text)
}

func (m *ConversationMemory) add(role, text string) {
	m.mu.Lock()
	now := time.Now()
	m.messages = append(m.messages, Message{Role: role, Content: text, Timestamp: now})
	if m.mode == ModeWindow && len(m.messages) > 2*m.k {
		m.messages = append([]Message(nil), m.messages[len(m.messages)-2*m.k:]...)
	}
	m.lastUpdated = now
	m.mu.Unlock()

	m.flush()
}

// AddSystemContext merges ctx into the metadata bag.
func (m *ConversationMemory) AddSystemContext(ctx SystemContext) {
	m.mu.Lock()
	mergeInto(m.userInfo, ctx.UserInfo)
	mergeInto(m.issueData, ctx.IssueData)
	mergeInto(m.metadata, ctx.Metadata)
	if ctx.DeviceList != nil {
		m.deviceInfo = make([]map[string]any, 0, len(ctx.DeviceList))
		for _, d := range ctx.DeviceList {
			m.deviceInfo = append(m.deviceInfo, copyMap(d))
		}
	}
	if ctx.Device != nil {
		m.deviceInfo = append(m.deviceInfo, copyMap(ctx.Device))
	}
	m.lastUpdated = time.Now()
	m.mu.Unlock()

	m.flush()
}

// LoadHistory returns all messages in buffer mode or the last K turns in
// window mode, oldest first.
func (m *ConversationMemory) LoadHistory() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages
	if m.mode == ModeWindow && len(msgs) > 2*m.k {
		msgs = msgs[len(msgs)-2*m.k:]
	}
	return append([]Message(nil), msgs...)
}

// Summary renders the history as "User:"/"Assistant:" lines.
func (m *ConversationMemory) Summary() string {
	var b strings.Builder
	for _, msg := range m.LoadHistory() {
		speaker := "User"
		if msg.Role == RoleAI {
			speaker = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, msg.Content)
	}
	return b.String()
}

// Export returns a full snapshot.
func (m *ConversationMemory) Export() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Clear empties the history and bumps last_updated. Creation time and
// metadata are kept.
func (m *ConversationMemory) Clear() {
	m.mu.Lock()
	m.messages = []Message{}
	m.lastUpdated = time.Now()
	m.mu.Unlock()

	m.flush()
}

// Restore replaces the memory contents with snap. Used when loading from a
// persistence backend.
func (m *ConversationMemory) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !snap.CreatedAt.IsZero() {
		m.createdAt = snap.CreatedAt
	}
	m.lastUpdated = snap.LastUpdated
	m.messages = append([]Message{}, snap.Messages...)
	if m.mode == ModeWindow && len(m.messages) > 2*m.k {
		m.messages = m.messages[len(m.messages)-2*m.k:]
	}
	m.userInfo = copyMap(snap.UserInfo)
	m.issueData = copyMap(snap.IssueData)
	m.metadata = copyMap(snap.Metadata)
	m.deviceInfo = make([]map[string]any, 0, len(snap.DeviceInfo))
	for _, d := range snap.DeviceInfo {
		m.deviceInfo = append(m.deviceInfo, copyMap(d))
	}
}

func (m *ConversationMemory) snapshotLocked() Snapshot {
	devices := make([]map[string]any, 0, len(m.deviceInfo))
	for _, d := range m.deviceInfo {
		devices = append(devices, copyMap(d))
	}
	return Snapshot{
		SessionID:   m.sessionID,
		Mode:        m.mode,
		CreatedAt:   m.createdAt,
		LastUpdated: m.lastUpdated,
		UserInfo:    copyMap(m.userInfo),
		DeviceInfo:  devices,
		IssueData:   copyMap(m.issueData),
		Metadata:    copyMap(m.metadata),
		Messages:    append([]Message{}, m.messages...),
	}
}

func (m *ConversationMemory) flush() {
	if m.sink == nil {
		return
	}
	m.mu.RLock()
	snap := m.snapshotLocked()
	m.mu.RUnlock()
	m.sink.Persist(snap)
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

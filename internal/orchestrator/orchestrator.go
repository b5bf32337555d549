// Package orchestrator runs the per-turn helpdesk protocol: identify the
// employee, short-circuit greetings, classify, route to an agent and record
// the exchange.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/deskroute/internal/agent"
	"github.com/ashureev/deskroute/internal/domain"
	"github.com/ashureev/deskroute/internal/llm"
	"github.com/ashureev/deskroute/internal/memory"
	"github.com/ashureev/deskroute/internal/session"
	"github.com/ashureev/deskroute/internal/transcript"
)

// DefaultTurnTimeout bounds collaborator calls within one turn.
const DefaultTurnTimeout = 30 * time.Second

// Hints carry optional per-message context from a channel adapter.
type Hints struct {
	Email    string
	Phone    string
	Language string
	Channel  string
}

// Orchestrator is safe for concurrent use. Turns on the same session are
// serialized; different sessions run in parallel.
type Orchestrator struct {
	sessions   *session.Store
	memories   *memory.Registry
	classifier Classifier
	agents     *agent.Registry

	secondary  llm.SecondaryClassifier
	directory  Directory
	remoteLog  ConversationLog
	localLog   ConversationLog
	transcript Transcript
	metrics    *Metrics

	turnTimeout    time.Duration
	assistantName  string
	supportContact string
	now            func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSecondaryClassifier consults c when the keyword classifier is inconclusive.
func WithSecondaryClassifier(c llm.SecondaryClassifier) Option {
	return func(o *Orchestrator) { o.secondary = c }
}

// WithDirectory enables employee identification and agent assignment.
func WithDirectory(d Directory) Option {
	return func(o *Orchestrator) { o.directory = d }
}

// WithRemoteConversationLog logs assistant replies once both the employee
// and the assigned agent are known.
func WithRemoteConversationLog(l ConversationLog) Option {
	return func(o *Orchestrator) { o.remoteLog = l }
}

// WithLocalConversationLog records every message of every turn.
func WithLocalConversationLog(l ConversationLog) Option {
	return func(o *Orchestrator) { o.localLog = l }
}

// WithTranscript mirrors turns to t.
func WithTranscript(t Transcript) Option {
	return func(o *Orchestrator) { o.transcript = t }
}

// WithMetrics records turn metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTurnTimeout overrides DefaultTurnTimeout.
func WithTurnTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.turnTimeout = d
		}
	}
}

// WithIdentity sets the assistant name and escalation contact used in
// greetings and apologies.
func WithIdentity(assistantName, supportContact string) Option {
	return func(o *Orchestrator) {
		if assistantName != "" {
			o.assistantName = assistantName
		}
		if supportContact != "" {
			o.supportContact = supportContact
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator over the given components.
func New(sessions *session.Store, memories *memory.Registry, kc Classifier, agents *agent.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sessions:       sessions,
		memories:       memories,
		classifier:     kc,
		agents:         agents,
		transcript:     transcript.Nop{},
		turnTimeout:    DefaultTurnTimeout,
		assistantName:  agent.DefaultAssistantName,
		supportContact: agent.DefaultSupportContact,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessMessage runs one turn and returns the reply. It never returns an
// empty string; internal failures become an apology.
func (o *Orchestrator) ProcessMessage(ctx context.Context, msg, sessionID string, hints Hints) (reply string) {
	if sessionID == "" {
		sessionID = session.NewID()
	}
	start := o.now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Turn panicked", "session_id", sessionID, "panic", r)
			o.metrics.collaboratorError("panic")
			reply = agent.Apology(o.supportContact)
		}
	}()

	unlock := o.sessions.Lock(sessionID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	// RECEIVED
	sess := o.sessions.GetOrCreate(ctx, sessionID)
	mem := o.memories.Get(ctx, sessionID)
	mergeHints(sess, hints)

	// IDENTIFY
	if hints.Email != "" || hints.Phone != "" {
		o.identify(ctx, sess, mem)
	}

	// GREETING SHORT-CIRCUIT
	if !sess.Greeted && isGreeting(msg) && !o.classifier.Classify(msg).Category.IsSpecific() {
		greeting := buildGreeting(o.assistantName, sess, o.now())
		sess.MarkGreeted()
		o.metrics.greeting()
		o.record(ctx, sess, mem, msg, greeting, hints.Channel, transcript.EventGreeting)
		slog.Info("Greeting short-circuit", "session_id", sessionID, "identified", sess.Identified())
		return greeting
	}

	// CLASSIFY
	if sess.NeedsClassification() {
		decision := ResolveCategory(ctx, sess.IssueType, msg, o.classifier, o.secondary)
		o.metrics.classification(decision)
		if sess.SetIssueType(decision.Category, decision.Label) {
			slog.Info("Session classified",
				"session_id", sessionID,
				"category", decision.Category,
				"label", decision.Label,
				"source", decision.Source,
				"confidence", decision.Confidence,
			)
		}
		mem.AddSystemContext(memory.SystemContext{IssueData: map[string]any{
			"confidence": decision.Confidence,
			"source":     decision.Source,
		}})
	}
	o.assignAgent(ctx, sess)

	// ROUTE + DELEGATE
	a := o.agents.Select(sess.IssueType)
	reply = o.delegate(ctx, a, agent.Request{
		Query:   msg,
		Session: sess.Clone(),
		History: toLLMHistory(mem.LoadHistory()),
	})

	// RECORD
	o.record(ctx, sess, mem, msg, reply, hints.Channel, transcript.EventAssistantMessage)
	o.metrics.turn(sess.IssueType, o.now().Sub(start).Seconds())
	return reply
}

// GetInitialGreeting returns the opening greeting for a session and marks
// it greeted, so a later "hello" is classified like any other message.
func (o *Orchestrator) GetInitialGreeting(ctx context.Context, sessionID string, hints Hints) (greeting string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Greeting panicked", "session_id", sessionID, "panic", r)
			greeting = buildGreeting(o.assistantName, nil, o.now())
		}
	}()

	unlock := o.sessions.Lock(sessionID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	sess := o.sessions.GetOrCreate(ctx, sessionID)
	mergeHints(sess, hints)
	if hints.Email != "" || hints.Phone != "" {
		o.identify(ctx, sess, o.memories.Get(ctx, sessionID))
	}

	greeting = buildGreeting(o.assistantName, sess, o.now())
	if sess.MarkGreeted() {
		o.metrics.greeting()
	}
	o.sessions.Save(ctx, sess)
	o.transcript.Log(transcript.Event{
		UserID:     sess.EmployeeID,
		SessionID:  sess.ID,
		Channel:    hints.Channel,
		Direction:  transcript.DirectionOutbound,
		EventType:  transcript.EventGreeting,
		ContentRaw: greeting,
	})
	return greeting
}

// ExportConversation returns the memory snapshot of a session, with the
// issue data reflecting the session's current category. It reports false
// when the session is unknown. Exporting never creates a session or memory.
func (o *Orchestrator) ExportConversation(ctx context.Context, sessionID string) (memory.Snapshot, bool) {
	unlock := o.sessions.Lock(sessionID)
	defer unlock()

	sess, ok := o.sessions.Get(sessionID)
	if !ok {
		return o.memories.Snapshot(ctx, sessionID)
	}
	mem := o.memories.Get(ctx, sessionID)
	mem.AddSystemContext(memory.SystemContext{IssueData: map[string]any{"type": string(sess.IssueType)}})
	return mem.Export(), true
}

// EndSession discards a session and its memory, including persisted copies.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) bool {
	unlock := o.sessions.Lock(sessionID)
	defer unlock()

	var userID string
	if sess, ok := o.sessions.Get(sessionID); ok {
		userID = sess.EmployeeID
	}
	ended := o.sessions.End(ctx, sessionID)
	o.memories.Delete(ctx, sessionID)
	o.transcript.Log(transcript.Event{
		UserID:    userID,
		SessionID: sessionID,
		EventType: transcript.EventSessionEnded,
	})
	return ended
}

func mergeHints(sess *domain.Session, h Hints) {
	if sess.ContactEmail == "" && h.Email != "" {
		sess.ContactEmail = strings.TrimSpace(h.Email)
	}
	if sess.ContactPhone == "" && h.Phone != "" {
		sess.ContactPhone = strings.TrimSpace(h.Phone)
	}
	if sess.Language == "" && h.Language != "" {
		sess.Language = strings.TrimSpace(h.Language)
	}
	sess.SetChannel(h.Channel)
}

// identify resolves the employee from the session's contact details. A
// miss or a directory failure leaves the session anonymous.
func (o *Orchestrator) identify(ctx context.Context, sess *domain.Session, mem *memory.ConversationMemory) {
	if o.directory == nil || sess.EmployeeID != "" {
		return
	}

	var emp *domain.EmployeeRecord
	for _, c := range []struct {
		kind  domain.ContactType
		value string
	}{
		{domain.ContactEmail, sess.ContactEmail},
		{domain.ContactPhone, sess.ContactPhone},
	} {
		if c.value == "" {
			continue
		}
		found, err := o.directory.LookupEmployee(ctx, c.kind, c.value)
		if err != nil {
			slog.Warn("Employee lookup failed", "session_id", sess.ID, "contact_type", c.kind, "error", err)
			o.metrics.collaboratorError("directory")
			continue
		}
		if found != nil {
			emp = found
			break
		}
	}
	if emp == nil {
		return
	}

	sess.EmployeeID = emp.ID
	sess.Employee = emp
	mem.AddSystemContext(memory.SystemContext{UserInfo: map[string]any{
		"employee_id": emp.ID,
		"name":        emp.Name,
		"email":       emp.Email,
		"phone":       emp.Phone,
		"department":  emp.Department,
		"position":    emp.Position,
		"location":    emp.Location,
	}})
	slog.Info("Employee identified", "session_id", sess.ID, "employee_id", emp.ID)

	devices, err := o.directory.LookupDevices(ctx, emp.ID)
	if err != nil {
		slog.Warn("Device lookup failed", "session_id", sess.ID, "employee_id", emp.ID, "error", err)
		o.metrics.collaboratorError("directory")
		return
	}
	sess.Devices = append(make([]domain.DeviceRecord, 0, len(devices)), devices...)
	list := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		list = append(list, map[string]any{
			"device_id":     d.ID,
			"device_type":   d.Type,
			"model":         d.Model,
			"serial_number": d.SerialNumber,
			"os":            d.OS,
			"status":        d.Status,
		})
	}
	mem.AddSystemContext(memory.SystemContext{DeviceList: list})
}

// assignAgent picks a human agent for the session's category once.
func (o *Orchestrator) assignAgent(ctx context.Context, sess *domain.Session) {
	if o.directory == nil || sess.AgentID != "" || !sess.IssueType.IsSpecific() {
		return
	}
	a, err := o.directory.LookupAgentBySpecialization(ctx, string(sess.IssueType))
	if err != nil {
		slog.Warn("Agent lookup failed", "session_id", sess.ID, "category", sess.IssueType, "error", err)
		o.metrics.collaboratorError("directory")
		return
	}
	if a == nil {
		return
	}
	sess.AgentID = a.ID
	slog.Info("Agent assigned", "session_id", sess.ID, "agent_id", a.ID, "specialization", a.Specialization)
}

type agentResult struct {
	reply    string
	panicked bool
}

// delegate runs the agent and converts a panic or an empty reply into an
// apology. When ctx ends first the keyword fallback is returned and the
// agent's late reply is discarded.
func (o *Orchestrator) delegate(ctx context.Context, a agent.Agent, req agent.Request) string {
	done := make(chan agentResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Agent panicked", "session_id", req.Session.ID, "category", a.Category(), "panic", r)
				done <- agentResult{panicked: true}
			}
		}()
		done <- agentResult{reply: strings.TrimSpace(a.Handle(ctx, req))}
	}()

	select {
	case res := <-done:
		switch {
		case res.panicked:
			o.metrics.collaboratorError("agent")
			o.metrics.ObserveFallback(a.Category(), agent.ReasonError)
			return agent.Apology(o.supportContact)
		case res.reply == "":
			o.metrics.ObserveFallback(a.Category(), agent.ReasonError)
			return agent.Apology(o.supportContact)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			slog.Warn("Turn deadline exceeded", "session_id", req.Session.ID, "category", a.Category())
		}
		return res.reply
	case <-ctx.Done():
		slog.Warn("Agent did not reply before the turn deadline", "session_id", req.Session.ID, "category", a.Category(), "error", ctx.Err())
		o.metrics.collaboratorError("agent_timeout")
		o.metrics.ObserveFallback(a.Category(), agent.ReasonTimeout)
		return agent.FallbackReply(req.Query, req.Session, a.Category(), agent.ReasonTimeout, o.assistantName)
	}
}

// record appends the exchange to the session and memory, persists the
// session and logs the reply. Persistence and logging never fail the turn.
func (o *Orchestrator) record(ctx context.Context, sess *domain.Session, mem *memory.ConversationMemory, msg, reply, channel, eventType string) {
	sess.AppendTurn(domain.RoleUser, msg, channel)
	sess.AppendTurn(domain.RoleAssistant, reply, channel)
	mem.AddUserMessage(msg)
	mem.AddAIMessage(reply)
	if sess.IssueType != domain.IssueUnclassified {
		mem.AddSystemContext(memory.SystemContext{IssueData: map[string]any{
			"type":  string(sess.IssueType),
			"label": sess.IssueLabel,
		}})
	}
	o.sessions.Save(ctx, sess)

	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if o.localLog != nil {
		for _, e := range []domain.ConversationLogEntry{
			o.logEntry(sess, msg, domain.MessageTypeUser),
			o.logEntry(sess, reply, domain.MessageTypeAI),
		} {
			if err := o.localLog.LogConversation(logCtx, e); err != nil {
				slog.Warn("Failed to record conversation locally", "session_id", sess.ID, "error", err)
				o.metrics.collaboratorError("local_log")
				break
			}
		}
	}
	if o.remoteLog != nil && sess.EmployeeID != "" && sess.AgentID != "" {
		if err := o.remoteLog.LogConversation(logCtx, o.logEntry(sess, reply, domain.MessageTypeAI)); err != nil {
			slog.Warn("Failed to log conversation", "session_id", sess.ID, "error", err)
			o.metrics.collaboratorError("conversation_log")
		}
	}

	o.transcript.Log(transcript.Event{
		UserID:     sess.EmployeeID,
		SessionID:  sess.ID,
		Channel:    channel,
		Direction:  transcript.DirectionInbound,
		EventType:  transcript.EventUserMessage,
		ContentRaw: msg,
	})
	o.transcript.Log(transcript.Event{
		UserID:     sess.EmployeeID,
		SessionID:  sess.ID,
		Channel:    channel,
		Direction:  transcript.DirectionOutbound,
		EventType:  eventType,
		ContentRaw: reply,
		Meta:       map[string]any{"category": string(sess.IssueType), "agent_id": sess.AgentID},
	})
}

func (o *Orchestrator) logEntry(sess *domain.Session, text, messageType string) domain.ConversationLogEntry {
	return domain.ConversationLogEntry{
		ConversationID: sess.ConversationID,
		EmployeeID:     sess.EmployeeID,
		AgentID:        sess.AgentID,
		MessageText:    text,
		MessageType:    messageType,
		IssueStatus:    domain.StatusInProgress,
		Timestamp:      o.now().UTC(),
	}
}

func toLLMHistory(msgs []memory.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == memory.RoleAI {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

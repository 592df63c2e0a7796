// Package pipeline implements the Input Pipeline Engine (component E) and
// Output Pipeline Engine (component F): the two-phase staged processor
// that redacts, annotates, and short-circuits requests and streaming
// responses.
package pipeline

import (
	"sync"
	"time"

	"github.com/howard-nolan/codegate/internal/sensitive"
)

// AlertSeverity classifies an Alert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityCritical AlertSeverity = "critical"
)

// CodeSnippet is one fenced code block extracted from a message, used by
// the filename matcher, the context retriever, and the comment annotator.
type CodeSnippet struct {
	Filename string
	Language string
	Content  string
}

// Alert records one noteworthy pipeline event (a secret found, a
// malicious package referenced, a CLI command run). Critical alerts are
// also pushed to the broadcast channel for the dashboard's SSE feed.
type Alert struct {
	ID          string
	PromptID    string
	TriggerType string
	Category    AlertSeverity
	Trigger     string
	CodeSnippet *CodeSnippet
	Timestamp   time.Time
}

// Broadcaster delivers critical alerts to dashboard SSE subscribers.
// Publish must never block the request path: a full subscriber channel
// drops its oldest buffered alert rather than stalling the producer.
type Broadcaster interface {
	Publish(Alert)
}

// NopBroadcaster discards every alert. Used where no dashboard consumer
// is wired (tests, FIM-only deployments).
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(Alert) {}

// Context is created once per request and threaded through every input
// step and the resulting output stream. It is the pipeline's equivalent
// of a request-scoped struct: client identity, FIM detection, collected
// snippets, raised alerts, and the bookkeeping booleans later steps
// (SystemPrompt, in particular) branch on.
type Context struct {
	PromptID   string
	SessionID  string
	ClientType string
	IsFIM      bool

	Sensitive   *sensitive.Manager
	Broadcaster Broadcaster

	mu                sync.Mutex
	snippets          []CodeSnippet
	alerts            []Alert
	secretsFound      bool
	piiFound          bool
	badPackagesFound  bool
	redactedSecrets   int
	redactedPIIByType map[string]int
	recordedInput     string
}

// NewContext constructs a fresh per-request Context.
func NewContext(promptID, sessionID, clientType string, isFIM bool, sm *sensitive.Manager, b Broadcaster) *Context {
	if b == nil {
		b = NopBroadcaster{}
	}
	return &Context{
		PromptID: promptID, SessionID: sessionID, ClientType: clientType, IsFIM: isFIM,
		Sensitive: sm, Broadcaster: b, redactedPIIByType: map[string]int{},
	}
}

// AddAlert appends a to the context's alert list and, if it is critical,
// forwards it to the broadcaster.
func (c *Context) AddAlert(a Alert) {
	c.mu.Lock()
	c.alerts = append(c.alerts, a)
	c.mu.Unlock()

	if a.Category == SeverityCritical {
		c.Broadcaster.Publish(a)
	}
}

// Alerts returns a copy of every alert raised so far.
func (c *Context) Alerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

// AddSnippet records a code snippet extracted from the conversation.
func (c *Context) AddSnippet(s CodeSnippet) {
	c.mu.Lock()
	c.snippets = append(c.snippets, s)
	c.mu.Unlock()
}

// Snippets returns a copy of every snippet recorded so far.
func (c *Context) Snippets() []CodeSnippet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CodeSnippet, len(c.snippets))
	copy(out, c.snippets)
	return out
}

func (c *Context) SetSecretsFound()                     { c.mu.Lock(); c.secretsFound = true; c.mu.Unlock() }
func (c *Context) SetPIIFound()                          { c.mu.Lock(); c.piiFound = true; c.mu.Unlock() }
func (c *Context) SetBadPackagesFound()                  { c.mu.Lock(); c.badPackagesFound = true; c.mu.Unlock() }
func (c *Context) IncRedactedSecrets(n int)              { c.mu.Lock(); c.redactedSecrets += n; c.mu.Unlock() }
func (c *Context) IncRedactedPII(kind string, n int) {
	c.mu.Lock()
	c.redactedPIIByType[kind] += n
	c.mu.Unlock()
}

func (c *Context) SecretsFound() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.secretsFound }
func (c *Context) PIIFound() bool     { c.mu.Lock(); defer c.mu.Unlock(); return c.piiFound }
func (c *Context) BadPackagesFound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.badPackagesFound
}
func (c *Context) RedactedSecretsCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redactedSecrets
}
func (c *Context) RedactedPIIByType() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.redactedPIIByType))
	for k, v := range c.redactedPIIByType {
		out[k] = v
	}
	return out
}

// SetRecordedInput stores the final (redacted) input prompt text for
// persistence. Called by the input engine after the pipeline completes
// (or shortcuts), never with cleartext secrets/PII.
func (c *Context) SetRecordedInput(s string) { c.mu.Lock(); c.recordedInput = s; c.mu.Unlock() }

// RecordedInput returns whatever SetRecordedInput last stored.
func (c *Context) RecordedInput() string { c.mu.Lock(); defer c.mu.Unlock(); return c.recordedInput }

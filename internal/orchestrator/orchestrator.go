// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gatewayz/gatewayz-tui/internal/api"
	"github.com/gatewayz/gatewayz-tui/internal/input"
	"github.com/gatewayz/gatewayz-tui/internal/message"
	"github.com/gatewayz/gatewayz-tui/internal/session"
	"github.com/gatewayz/gatewayz-tui/internal/stream"
	"github.com/gatewayz/gatewayz-tui/internal/util"
)

// Default title length for auto-generated session titles, in runes.
const maxTitleRunes = 50

// loadTimeout bounds background message loads triggered by session switches.
const loadTimeout = 15 * time.Second

// Error variables for orchestrator operations.
var (
	// ErrNotReady is returned by operations invoked before boot completes.
	ErrNotReady = errors.New("chat is not ready yet")

	// ErrNotConfigured is returned when boot finds no usable credential.
	ErrNotConfigured = errors.New("no API key configured")

	// ErrEmptyMessage is returned when SendMessage is given nothing to send.
	ErrEmptyMessage = errors.New("nothing to send")
)

// =============================================================================
// PHASES
// =============================================================================

// Phase is the boot lifecycle state.
type Phase int

// Boot phases. Error is reachable only from CheckingAuth: a session list
// fetch failure degrades to an empty list rather than blocking the app.
const (
	PhasePending Phase = iota
	PhaseCheckingAuth
	PhaseLoadingSessions
	PhaseReady
	PhaseError
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseCheckingAuth:
		return "checking_auth"
	case PhaseLoadingSessions:
		return "loading_sessions"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// =============================================================================
// COLLABORATOR CONTRACTS
// =============================================================================

// CredentialSource resolves the API key at boot.
type CredentialSource interface {
	Credential() (string, error)
}

// ModelSource resolves the model to use when neither the launch options nor
// the active session name one.
type ModelSource interface {
	DefaultModel() string
}

// Archiver mirrors completed turns into local storage. Optional; a nil
// archiver disables mirroring.
type Archiver interface {
	UpsertSession(sess api.Session) error
	InsertMessage(m api.Message) error
}

// =============================================================================
// EVENTS
// =============================================================================

// EventType classifies orchestrator notifications to the UI layer.
type EventType int

// Event types.
const (
	EventPhaseChanged EventType = iota
	EventSessionsChanged
	EventMessagesChanged
	EventStreamChunk
	EventStreamDone
	EventStreamError
	EventNotice
)

// Event is one notification pushed to the registered handler.
type Event struct {
	Type   EventType
	Phase  Phase
	Notice string
	Err    string
}

// =============================================================================
// LAUNCH OPTIONS
// =============================================================================

// LaunchOptions carries one-shot startup behavior: a preselected model and an
// optional message to auto-send once boot reaches ready. Both are processed
// exactly once.
type LaunchOptions struct {
	Model    string
	AutoSend string
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator sequences the session store, message store, input manager, and
// streaming engine. It is the only component allowed to call across them.
type Orchestrator struct {
	sessions *session.Store
	messages *message.Store
	inputs   *input.Manager
	engine   *stream.Engine
	creds    CredentialSource
	models   ModelSource
	archive  Archiver

	mu         sync.Mutex
	phase      Phase
	phaseErr   string
	model      string
	launch     LaunchOptions
	initDone   bool
	launchDone bool
	onEvent    func(Event)
}

// New wires an orchestrator over its collaborators. archive may be nil.
func New(sessions *session.Store, messages *message.Store, inputs *input.Manager, engine *stream.Engine, creds CredentialSource, models ModelSource, archive Archiver) *Orchestrator {
	o := &Orchestrator{
		sessions: sessions,
		messages: messages,
		inputs:   inputs,
		engine:   engine,
		creds:    creds,
		models:   models,
		archive:  archive,
		phase:    PhasePending,
	}
	sessions.SetActiveHandler(o.handleActiveChange)
	return o
}

// SetEventHandler registers the UI notification callback. Events may be
// delivered from background goroutines.
func (o *Orchestrator) SetEventHandler(fn func(Event)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onEvent = fn
}

// SetLaunchOptions stages one-shot startup behavior. Must be called before
// Init; options set afterwards are ignored.
func (o *Orchestrator) SetLaunchOptions(opts LaunchOptions) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.launchDone {
		o.launch = opts
	}
}

// Phase returns the current boot phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// PhaseError returns the boot error text, empty unless phase is error.
func (o *Orchestrator) PhaseError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phaseErr
}

// Model returns the model the next send will use.
func (o *Orchestrator) Model() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentModelLocked()
}

// SetModel overrides the model for subsequent sends.
func (o *Orchestrator) SetModel(model string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.model = model
}

// currentModelLocked resolves the send model: explicit override first, then
// the active session's model, then the registry default.
func (o *Orchestrator) currentModelLocked() string {
	if o.model != "" {
		return o.model
	}
	if sess := o.sessions.Active(); sess != nil && sess.Model != "" {
		return sess.Model
	}
	return o.models.DefaultModel()
}

// =============================================================================
// BOOT
// =============================================================================

// Init runs the boot sequence: credential check, then session list load, then
// ready. Guarded by a once-latch so a second call (a re-render, a retry from
// a stale handler) cannot restart a boot already past pending. After reaching
// ready, staged launch options are processed exactly once.
func (o *Orchestrator) Init(ctx context.Context) error {
	o.mu.Lock()
	if o.initDone {
		o.mu.Unlock()
		return nil
	}
	o.initDone = true
	o.mu.Unlock()

	o.setPhase(PhaseCheckingAuth, "")

	key, err := o.creds.Credential()
	if err != nil || key == "" {
		msg := ErrNotConfigured.Error()
		if err != nil {
			msg = err.Error()
		}
		o.setPhase(PhaseError, msg)
		return ErrNotConfigured
	}

	o.setPhase(PhaseLoadingSessions, "")

	// A list failure is degraded, not fatal: the user can still start a new
	// chat, and the next refresh repairs the sidebar.
	if err := o.sessions.Refresh(ctx); err != nil {
		log.Printf("boot: session list load failed: %v", err)
		o.emit(Event{Type: EventNotice, Notice: "could not load sessions: " + err.Error()})
	}
	o.emit(Event{Type: EventSessionsChanged})

	o.setPhase(PhaseReady, "")
	o.processLaunchOptions(ctx)
	return nil
}

// processLaunchOptions applies staged startup behavior once. The auto-send is
// deferred to a goroutine so Init returns before the send begins; the UI sees
// ready first, then the send, the same order a typed message would produce.
func (o *Orchestrator) processLaunchOptions(ctx context.Context) {
	o.mu.Lock()
	if o.launchDone {
		o.mu.Unlock()
		return
	}
	o.launchDone = true
	opts := o.launch
	if opts.Model != "" {
		o.model = opts.Model
	}
	o.mu.Unlock()

	if opts.AutoSend == "" {
		return
	}
	go func() {
		o.inputs.SetText(opts.AutoSend)
		if err := o.SendMessage(ctx); err != nil {
			log.Printf("auto-send failed: %v", err)
			o.emit(Event{Type: EventNotice, Notice: "auto-send failed: " + err.Error()})
		}
	}()
}

// =============================================================================
// SEND
// =============================================================================

// SendMessage submits the staged input as a new turn in the active session,
// creating the session first when none is active. The user message and a
// streaming assistant placeholder are inserted optimistically, the input is
// cleared, and the completion stream is started against a history read taken
// after both insertions.
func (o *Orchestrator) SendMessage(ctx context.Context) error {
	if o.Phase() != PhaseReady {
		return ErrNotReady
	}
	if o.engine.Active() {
		return stream.ErrStreamActive
	}

	if !o.inputs.Validate() {
		if v := o.inputs.ValidationError(); v != "" {
			return errors.New(v)
		}
		return ErrEmptyMessage
	}
	if !o.inputs.BeginSubmit() {
		return ErrEmptyMessage
	}
	defer o.inputs.EndSubmit()

	text := strings.TrimSpace(o.inputs.Text())
	if text == "" {
		return ErrEmptyMessage
	}
	model := o.Model()

	sid := o.sessions.ActiveID()
	if sid == 0 {
		sess, err := o.sessions.Create(ctx, titleFrom(text), model)
		if err != nil {
			return err
		}
		sid = sess.ID
		if o.archive != nil {
			if aerr := o.archive.UpsertSession(*sess); aerr != nil {
				log.Printf("archive: session mirror failed: %v", aerr)
			}
		}
		o.emit(Event{Type: EventSessionsChanged})
	}

	userMsg := o.messages.Add(message.AddRequest{
		SessionID: sid,
		Role:      "user",
		Content:   text,
		Parts:     attachmentParts(o.inputs.Attachments()),
	})
	if o.archive != nil {
		o.archiveTurn(sid, userMsg)
	}
	o.messages.Add(message.AddRequest{
		SessionID: sid,
		Role:      "assistant",
		Model:     model,
		Streaming: true,
	})
	o.inputs.Reset()
	o.emit(Event{Type: EventMessagesChanged})

	// History is read here, after both insertions, never captured earlier.
	// The placeholder excludes itself by its streaming flag.
	history := o.messages.History(sid)

	// The caller's context bounds session creation and the inserts above.
	// The stream must outlive it: SendMessage returns while chunks are still
	// arriving, and mid-stream aborts go through CancelStream.
	o.engine.Reset()
	if err := o.engine.Start(context.WithoutCancel(ctx), history, model, o.streamCallback(sid)); err != nil {
		o.messages.FailLast(err.Error())
		o.emit(Event{Type: EventStreamError, Err: err.Error()})
		return err
	}

	o.sessions.Touch(sid)
	return nil
}

// streamCallback routes one send's stream events into the message store.
func (o *Orchestrator) streamCallback(sid int64) stream.Callback {
	return func(c stream.Chunk) {
		switch c.Kind {
		case stream.KindContent, stream.KindReasoning:
			o.messages.AppendToLast(c.Content, c.Reasoning)
			o.emit(Event{Type: EventStreamChunk})

		case stream.KindRateLimit:
			o.emit(Event{Type: EventNotice, Notice: "rate limited, retrying in " + c.RetryAfter.String()})

		case stream.KindDone:
			m, ok := o.messages.FinalizeLast(c.State.TokenCount)
			if ok && o.archive != nil {
				o.archiveTurn(sid, m)
			}
			o.sessions.Touch(sid)
			o.emit(Event{Type: EventStreamDone})

		case stream.KindError:
			o.messages.FailLast(c.State.ErrorText)
			o.emit(Event{Type: EventStreamError, Err: c.State.ErrorText})
		}
	}
}

// archiveTurn mirrors a completed assistant message into local storage.
func (o *Orchestrator) archiveTurn(sid int64, m message.Message) {
	id, _ := m.ID.Persisted()
	err := o.archive.InsertMessage(api.Message{
		ID:        id,
		SessionID: sid,
		Role:      m.Role,
		Content:   m.Content,
		Model:     m.Model,
		Tokens:    m.Tokens,
		CreatedAt: m.CreatedAt,
	})
	if err != nil {
		log.Printf("archive: message mirror failed: %v", err)
	}
}

// =============================================================================
// SESSION NAVIGATION
// =============================================================================

// SwitchSession cancels any live stream, marks its placeholder failed so the
// partial response stays visible, clears staged input, and activates the
// given session. Message loading runs as a side effect of the active-session
// change.
func (o *Orchestrator) SwitchSession(id int64) error {
	if o.Phase() != PhaseReady {
		return ErrNotReady
	}
	if o.engine.Active() {
		o.engine.Cancel()
		o.messages.FailLast("cancelled")
		o.emit(Event{Type: EventMessagesChanged})
	}
	o.inputs.Reset()
	if !o.sessions.Select(id) {
		return session.ErrNoSuchSession
	}
	return nil
}

// NewChat cancels any live stream and clears the active session. No session
// is created yet; the next send mints one with a title derived from its text.
func (o *Orchestrator) NewChat() {
	o.engine.Cancel()
	o.inputs.Reset()
	prior := o.sessions.ActiveID()
	o.sessions.ClearActive()
	if prior != 0 {
		o.messages.Clear(prior)
	}
	o.emit(Event{Type: EventMessagesChanged})
}

// CancelStream aborts the live stream, marking the placeholder failed so the
// partial response stays visible. Safe to call when nothing is streaming.
func (o *Orchestrator) CancelStream() {
	if !o.engine.Active() {
		return
	}
	o.engine.Cancel()
	o.messages.FailLast("cancelled")
	o.emit(Event{Type: EventMessagesChanged})
}

// handleActiveChange loads the newly active session's messages. Runs off the
// caller's goroutine with its own deadline; Select must not block on I/O.
func (o *Orchestrator) handleActiveChange(id int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		if _, err := o.messages.Load(ctx, id); err != nil {
			log.Printf("message load failed (session %d): %v", id, err)
			o.emit(Event{Type: EventNotice, Notice: "could not load messages: " + err.Error()})
		}
		o.emit(Event{Type: EventMessagesChanged})
	}()
}

// =============================================================================
// INTERNAL
// =============================================================================

func (o *Orchestrator) setPhase(p Phase, errText string) {
	o.mu.Lock()
	o.phase = p
	o.phaseErr = errText
	o.mu.Unlock()
	o.emit(Event{Type: EventPhaseChanged, Phase: p, Err: errText})
}

// emit delivers one event to the registered handler, if any.
func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	fn := o.onEvent
	o.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// titleFrom derives a session title from the first line of the message text.
func titleFrom(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "Chat " + time.Now().Format("2006-01-02 15:04")
	}
	return util.TruncateRunes(text, maxTitleRunes)
}

// attachmentParts converts staged attachments into message content parts,
// inlining file bytes as data URLs.
func attachmentParts(atts []input.Attachment) []message.ContentPart {
	if len(atts) == 0 {
		return nil
	}
	parts := make([]message.ContentPart, 0, len(atts))
	for _, a := range atts {
		kind := message.PartImage
		if strings.HasPrefix(a.MIME, "audio/") {
			kind = message.PartAudio
		}
		parts = append(parts, message.ContentPart{
			Type: kind,
			URL:  "data:" + a.MIME + ";base64," + base64.StdEncoding.EncodeToString(a.Data),
		})
	}
	return parts
}

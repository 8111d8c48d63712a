// Package session orchestrates one streaming exchange at a time: placeholder
// message lifecycle, transport wiring, cancellation, and finalization.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/youruser/appdraft/internal/api"
	"github.com/youruser/appdraft/internal/extract"
	"github.com/youruser/appdraft/internal/logging"
	"github.com/youruser/appdraft/internal/state"
)

var (
	ErrBusy        = errors.New("a generation is already in progress")
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	ErrNoProject   = errors.New("no project bound to session")

	log = logging.Get()
)

// CancelNotice is appended to the partial assistant message when the user
// stops a generation.
const CancelNotice = "\n\n[Generation stopped by user]"

// Phase is the controller's lifecycle state. Cancelling, Finalizing and
// Failed are transient: the controller passes through them and returns to
// Idle within the same call, so they are never observable from outside.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseStreaming
)

// Transport issues a generation request and streams decoded events to the
// callback. Satisfied by *api.Client.
type Transport interface {
	Generate(ctx context.Context, req api.GenerationRequest, callback api.EventCallback) error
}

// Result is what a successful exchange produces: prose, the files extracted
// from it merged with any server-supplied files, and preview metadata.
type Result struct {
	Explanation    string
	Files          map[string]string
	PreviewURL     string
	ConversationID string
}

// Callbacks are invoked per exchange in a fixed relative order: zero or more
// OnChunk, then exactly one of OnComplete or OnError. A cancelled exchange is
// terminal after the last delivered chunk, with neither. All callbacks run
// outside the controller's lock.
type Callbacks struct {
	OnChunk    func(text string)
	OnComplete func(result Result)
	OnError    func(err error)
}

// Controller owns the single active stream for a session. All exported
// methods are safe for concurrent use; the stream handle is never shared.
type Controller struct {
	mu        sync.Mutex
	transport Transport
	history   *state.History
	callbacks Callbacks

	projectID      string
	conversationID string

	phase  Phase
	gen    uint64 // bumped on submit, cancel, and dispose; stale callbacks are dropped
	handle *api.CancelHandle
}

// NewController creates an idle controller. The history is mutated only
// through the controller for the lifetime of the session.
func NewController(transport Transport, history *state.History, callbacks Callbacks) *Controller {
	return &Controller{
		transport: transport,
		history:   history,
		callbacks: callbacks,
	}
}

// BindProject sets the project identifier required before Submit.
func (c *Controller) BindProject(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projectID = projectID
}

// BindConversation sets the server conversation identifier, e.g. when
// resuming a persisted conversation. Ignored if one is already recorded.
func (c *Controller) BindConversation(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conversationID == "" {
		c.conversationID = conversationID
	}
}

// ConversationID returns the server conversation identifier, empty until the
// first exchange names one.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Phase returns the current lifecycle state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Busy reports whether an exchange is in flight.
func (c *Controller) Busy() bool {
	return c.Phase() != PhaseIdle
}

// Submit starts a new exchange. Precondition failures (empty prompt, no
// project, exchange already in flight) are returned synchronously and leave
// the history untouched. On success the user message and an empty assistant
// placeholder are appended and the stream runs in the background.
func (c *Controller) Submit(prompt string) error {
	c.mu.Lock()

	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	if strings.TrimSpace(prompt) == "" {
		c.mu.Unlock()
		return ErrEmptyPrompt
	}
	if c.projectID == "" {
		c.mu.Unlock()
		return ErrNoProject
	}

	c.gen++
	gen := c.gen
	c.phase = PhaseSending

	c.history.Append(state.SenderUser, prompt)
	c.history.OpenAssistant()

	ctx, cancel := context.WithCancel(context.Background())
	c.handle = api.NewCancelHandle(cancel)

	req := api.GenerationRequest{
		Prompt:         prompt,
		ProjectID:      c.projectID,
		ConversationID: c.conversationID,
	}
	c.mu.Unlock()

	log.Debug("Submit: starting exchange %d (project: %s, prompt: ~%d tokens)",
		gen, req.ProjectID, api.EstimateTokensSimple(prompt))
	go c.run(ctx, gen, req)
	return nil
}

// run executes one exchange on its own goroutine.
func (c *Controller) run(ctx context.Context, gen uint64, req api.GenerationRequest) {
	acc := api.NewAccumulator(func(text string) {
		c.applyChunk(gen, text)
	})

	err := c.transport.Generate(ctx, req, func(ev api.Event) {
		if !c.advanceToStreaming(gen) {
			return // stale stream, drop the event
		}
		acc.Fold(ev)
	})

	if err != nil {
		c.fail(gen, err)
		return
	}
	c.finalize(gen, acc.Result())
}

// advanceToStreaming reports whether gen is still the live exchange, moving
// the phase from Sending to Streaming on the first event.
func (c *Controller) advanceToStreaming(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.phase == PhaseIdle {
		return false
	}
	if c.phase == PhaseSending {
		c.phase = PhaseStreaming
	}
	return true
}

// applyChunk appends delta text to the open placeholder and notifies the
// chunk callback, preserving arrival order.
func (c *Controller) applyChunk(gen uint64, text string) {
	c.mu.Lock()
	if gen != c.gen || c.phase == PhaseIdle {
		c.mu.Unlock()
		return
	}
	c.history.AppendToOpen(text)
	onChunk := c.callbacks.OnChunk
	c.mu.Unlock()

	if onChunk != nil {
		onChunk(text)
	}
}

// finalize closes the exchange on the success path: extract files from the
// prose, overlay any server-supplied files, record the conversation id, and
// deliver the result.
func (c *Controller) finalize(gen uint64, result api.GenerationResult) {
	c.mu.Lock()
	if gen != c.gen || c.phase == PhaseIdle {
		c.mu.Unlock()
		return
	}

	extracted := extract.Extract(result.Explanation)
	files := extracted.Files
	for path, content := range result.Files {
		files[path] = content
	}

	if c.conversationID == "" && result.ConversationID != "" {
		c.conversationID = result.ConversationID
	}

	c.history.CloseOpen()
	c.phase = PhaseIdle
	c.handle = nil
	onComplete := c.callbacks.OnComplete
	conversationID := c.conversationID
	c.mu.Unlock()

	log.Debug("Exchange %d complete: %d chars, %d files", gen, len(result.Explanation), len(files))

	if onComplete != nil {
		onComplete(Result{
			Explanation:    result.Explanation,
			Files:          files,
			PreviewURL:     result.PreviewURL,
			ConversationID: conversationID,
		})
	}
}

// fail closes the exchange on the error path. The placeholder is rewritten
// with a user-facing explanation so it is never left blank.
func (c *Controller) fail(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.phase == PhaseIdle {
		// A cancel or dispose already finalized this exchange; the transport's
		// context error is expected residue.
		c.mu.Unlock()
		return
	}

	c.history.ReplaceOpen(fmt.Sprintf("Generation failed: %v", err))
	c.phase = PhaseIdle
	c.handle = nil
	onError := c.callbacks.OnError
	c.mu.Unlock()

	log.Error("Exchange %d failed: %v", gen, err)

	if onError != nil {
		onError(err)
	}
}

// Cancel stops the active exchange. The partial assistant message is kept
// and annotated with CancelNotice, the phase returns to Idle synchronously,
// and any residual transport callbacks for the old stream are dropped. No-op
// when idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.phase == PhaseIdle {
		c.mu.Unlock()
		return
	}

	handle := c.handle
	c.handle = nil
	c.gen++
	c.history.AppendToOpen(CancelNotice)
	c.history.CloseOpen()
	c.phase = PhaseIdle
	c.mu.Unlock()

	log.Debug("Exchange cancelled by user")

	// Fire-and-forget: teardown confirmation is not awaited.
	if handle != nil {
		handle.Cancel()
	}
}

// Dispose releases the controller on host teardown. Any in-flight stream is
// cancelled unconditionally and its open placeholder closed; no callbacks
// fire afterwards. Safe to call multiple times.
func (c *Controller) Dispose() {
	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	c.gen++
	if c.phase != PhaseIdle {
		c.history.CloseOpen()
		c.phase = PhaseIdle
	}
	c.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
}

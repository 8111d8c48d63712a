package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/youruser/appdraft/internal/logging"
)

var (
	ErrRequestFailed = errors.New("API request failed")
	log              = logging.Get()
)

const defaultRequestTimeout = 30 * time.Second

// CredentialProvider supplies the bearer token attached to each request.
// Injected rather than read from ambient state so the client is testable in
// isolation.
type CredentialProvider interface {
	Token() (string, error)
}

// StaticToken is a CredentialProvider for a fixed token.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token() (string, error) { return string(t), nil }

// Client handles communication with the generation service.
type Client struct {
	baseURL    string
	creds      CredentialProvider
	httpClient *http.Client
}

// NewClient creates a new generation service client.
func NewClient(baseURL string, creds CredentialProvider) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		creds:      creds,
		httpClient: &http.Client{},
	}
}

// EventCallback is called for each protocol event read off the stream.
type EventCallback func(event Event)

// Generate sends a generation request and streams the response. The
// callback is called for each decoded event, in wire order, on the calling
// goroutine. A non-2xx status fails fast before any frame is processed.
// Cancelling ctx aborts the connection; a stream that ends with zero bytes
// read is a valid empty result, not an error.
func (c *Client) Generate(ctx context.Context, req GenerationRequest, callback EventCallback) error {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}

	token, err := c.creds.Token()
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	log.Debug("HTTP POST %s/generate (project: %s, conversation: %q, prompt: %d chars)",
		c.baseURL, req.ProjectID, req.ConversationID, len(req.Prompt))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Error("HTTP request failed: %v", err)
		return err
	}
	defer resp.Body.Close()

	log.Debug("HTTP response status: %d", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		log.Error("API error %d: %s", resp.StatusCode, string(body))
		return fmt.Errorf("%w: %d - %s", ErrRequestFailed, resp.StatusCode, string(body))
	}

	return c.processStream(ctx, resp.Body, callback)
}

// processStream reads the response body incrementally and delivers decoded
// events to the callback.
func (c *Client) processStream(ctx context.Context, reader io.Reader, callback EventCallback) error {
	parser := &FrameParser{}
	buf := make([]byte, 32*1024)

	log.Debug("Starting stream processing")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := reader.Read(buf)
		if n > 0 {
			for _, ev := range parser.Feed(buf[:n]) {
				callback(ev)
			}
		}
		if readErr == io.EOF {
			for _, ev := range parser.Flush() {
				callback(ev)
			}
			log.Debug("Stream ended")
			return nil
		}
		if readErr != nil {
			// When the context is canceled (user abort), the HTTP body
			// closes and the read fails with an IO error. Return the context
			// error so callers can detect the cancellation.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("Stream read error: %v", readErr)
			return readErr
		}
	}
}

// FetchConversation retrieves a stored conversation's message history, used
// to hydrate a reopened session.
func (c *Client) FetchConversation(ctx context.Context, conversationID string) (*RemoteConversation, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/conversations/"+conversationID, nil)
	if err != nil {
		return nil, err
	}

	token, err := c.creds.Token()
	if err != nil {
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	log.Debug("HTTP GET %s/conversations/%s", c.baseURL, conversationID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("HTTP request failed: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Error("API error %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("%w: %d - %s", ErrRequestFailed, resp.StatusCode, string(body))
	}

	var conv RemoteConversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return nil, err
	}

	return &conv, nil
}

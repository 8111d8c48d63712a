package main

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/youruser/appdraft/internal/api"
	"github.com/youruser/appdraft/internal/config"
	"github.com/youruser/appdraft/internal/logging"
	"github.com/youruser/appdraft/internal/session"
	"github.com/youruser/appdraft/internal/state"
)

//go:embed version.txt
var version string

// buildCommit is set via -ldflags or falls back to VCS info from debug.ReadBuildInfo.
var buildCommit string

var (
	appStore   = state.NewStore()
	history    = state.NewHistory()
	appConfig  *config.Config
	apiClient  *api.Client
	controller *session.Controller
	log        = logging.Get()

	respondMu sync.Mutex
	configMu  sync.Mutex
	stateMu   sync.Mutex
)

// activeStream tracks the request id of the in-flight submit so that chunk
// and terminal responses can be tagged with it.
type streamState struct {
	mu        sync.Mutex
	requestID string
}

var activeStream streamState

func reserveActiveStream(reqID string) bool {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	if activeStream.requestID != "" {
		return false
	}
	activeStream.requestID = reqID
	return true
}

func activeStreamID() string {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	return activeStream.requestID
}

func clearActiveStream() string {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	id := activeStream.requestID
	activeStream.requestID = ""
	return id
}

// getBuildCommit returns the short commit hash, resolving from VCS build info if needed.
func getBuildCommit() string {
	if buildCommit != "" {
		return buildCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return setting.Value[:7]
		}
	}
	return ""
}

func versionString() string {
	v := strings.TrimSpace(version)
	if commit := getBuildCommit(); commit != "" {
		return v + " (" + commit + ")"
	}
	return v
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v":
			fmt.Printf("appdraft %s\n", versionString())
			return
		case "--build":
			if commit := getBuildCommit(); commit != "" {
				fmt.Println(commit)
			} else {
				fmt.Println("unknown")
			}
			return
		}
	}

	if os.Getenv("APPDRAFT_DEBUG") == "1" {
		fmt.Fprintf(os.Stderr, "appdraft: process started with APPDRAFT_DEBUG=1\n")
	}
	logBuildInfo()

	defer func() {
		if controller != nil {
			controller.Dispose()
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		handleRequest(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			respond("", map[string]any{
				"type":    "error",
				"message": "Request too large (max 1MB). Split the request.",
			})
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "stdin error: %v\n", err)
		os.Exit(1)
	}
}

func logBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		log.Info("Build info: unavailable")
		return
	}

	var revision string
	var buildTime string
	var modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			buildTime = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}

	v := info.Main.Version
	if revision != "" {
		v = revision
	}
	if modified == "true" {
		v += " (modified)"
	}

	if buildTime != "" {
		log.Info("Build: %s; go=%s; time=%s", v, runtime.Version(), buildTime)
		return
	}
	log.Info("Build: %s; go=%s", v, runtime.Version())
}

// ensureConfig loads config lazily on first use and wires the API client and
// session controller.
func ensureConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	if appConfig != nil {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	appConfig = cfg
	apiClient = api.NewClient(cfg.BaseURL, api.StaticToken(cfg.APIToken))
	controller = newController()
	return nil
}

// newController builds a controller wired to the stdio response channel.
func newController() *session.Controller {
	return session.NewController(apiClient, history, session.Callbacks{
		OnChunk: func(text string) {
			respond(activeStreamID(), map[string]any{"type": "chunk", "content": text})
		},
		OnComplete: func(result session.Result) {
			finishStream(result)
		},
		OnError: func(err error) {
			reqID := clearActiveStream()
			stateMu.Lock()
			persistActive("", "")
			stateMu.Unlock()
			respond(reqID, errorResponse(err))
		},
	})
}

// resetSession replaces the controller so a different conversation can bind
// its own remote id and stream state.
func resetSession(projectID, remoteID string) {
	if controller != nil {
		controller.Dispose()
	}
	controller = newController()
	if projectID != "" {
		controller.BindProject(projectID)
	}
	if remoteID != "" {
		controller.BindConversation(remoteID)
	}
}

// finishStream persists a completed exchange and reports it to the host.
func finishStream(result session.Result) {
	reqID := clearActiveStream()

	stateMu.Lock()
	persistActive(result.ConversationID, result.PreviewURL)
	var saved, skipped []string
	if len(result.Files) > 0 && appStore.Active != nil {
		var err error
		saved, skipped, err = appStore.SaveGeneratedFiles(result.Files)
		if err != nil {
			log.Error("Failed to save generated files: %v", err)
		}
		for _, path := range skipped {
			log.Error("Skipped generated file with invalid path: %s", path)
		}
	}
	stateMu.Unlock()

	resp := map[string]any{
		"type":            "done",
		"conversation_id": result.ConversationID,
		"files_saved":     saved,
	}
	if result.PreviewURL != "" {
		resp["preview_url"] = result.PreviewURL
	}
	respond(reqID, resp)
}

// persistActive snapshots the history into the active conversation. Must be
// called with stateMu held. Best-effort: persistence failures are logged, not
// surfaced, so a completed generation is never reported as failed.
func persistActive(remoteID, previewURL string) {
	if appStore.Active == nil {
		return
	}
	appStore.Active.Messages = history.Messages()
	if remoteID != "" && appStore.Active.RemoteID == "" {
		appStore.Active.RemoteID = remoteID
	}
	if previewURL != "" {
		appStore.Active.PreviewURL = previewURL
	}
	if err := appStore.SaveActive(); err != nil {
		log.Error("Failed to persist conversation: %v", err)
	}
}

func handleRequest(line string) {
	var req map[string]any
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		log.Error("Invalid JSON request: %s", line)
		respond("", map[string]any{"type": "error", "message": "Invalid JSON"})
		return
	}

	action, _ := req["action"].(string)
	log.Request(action, line)
	reqID := requestID(req)

	switch action {
	case "ping":
		respond(reqID, map[string]any{"type": "ok"})

	case "version":
		respond(reqID, map[string]any{"type": "version", "version": versionString()})

	case "project_init":
		projectRoot, _ := req["project_root"].(string)
		if projectRoot == "" {
			respond(reqID, map[string]any{"type": "error", "message": "Missing required field: project_root"})
			return
		}
		stateMu.Lock()
		err := appStore.ProjectInit(projectRoot)
		stateMu.Unlock()
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		respond(reqID, map[string]any{"type": "ok"})

	case "init":
		projectRoot, _ := req["project_root"].(string)
		if projectRoot == "" {
			respond(reqID, map[string]any{"type": "error", "message": "Missing required field: project_root"})
			return
		}
		if err := ensureConfig(); err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		stateMu.Lock()
		err := appStore.Init(projectRoot)
		if err == nil {
			projectID, _ := req["project_id"].(string)
			if projectID == "" {
				projectID = appConfig.DefaultProject
			}
			resetSession(projectID, "")
		}
		stateMu.Unlock()
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		respond(reqID, map[string]any{"type": "ok"})

	case "conversation_new":
		title, _ := req["title"].(string)
		projectID, _ := req["project_id"].(string)
		if projectID == "" && appConfig != nil {
			projectID = appConfig.DefaultProject
		}
		stateMu.Lock()
		conv, err := appStore.New(title, projectID)
		if err == nil {
			history.Hydrate(nil)
			resetSession(projectID, "")
		}
		stateMu.Unlock()
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		respond(reqID, map[string]any{"type": "ok", "id": conv.ID})

	case "conversation_list":
		stateMu.Lock()
		conversations, err := appStore.List()
		stateMu.Unlock()
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		respond(reqID, map[string]any{"type": "conversation_list", "conversations": conversations})

	case "conversation_select":
		id, _ := req["id"].(string)
		if id == "" {
			respond(reqID, map[string]any{"type": "error", "message": "Missing required field: id"})
			return
		}
		stateMu.Lock()
		conv, err := appStore.Select(id)
		if err == nil {
			history.Hydrate(conv.Messages)
			resetSession(conv.ProjectID, conv.RemoteID)
		}
		stateMu.Unlock()
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		respond(reqID, map[string]any{"type": "ok"})

	case "conversation_get":
		stateMu.Lock()
		if appStore.Active == nil {
			stateMu.Unlock()
			respond(reqID, errorResponse(state.ErrNoActiveConversation))
			return
		}
		resp := map[string]any{
			"type":       "conversation",
			"id":         appStore.Active.ID,
			"title":      appStore.Active.Title,
			"project_id": appStore.Active.ProjectID,
			"created":    appStore.Active.Created,
			"messages":   history.Messages(),
		}
		if appStore.Active.RemoteID != "" {
			resp["conversation_id"] = appStore.Active.RemoteID
		}
		if appStore.Active.PreviewURL != "" {
			resp["preview_url"] = appStore.Active.PreviewURL
		}
		stateMu.Unlock()
		respond(reqID, resp)

	case "conversation_delete":
		id, _ := req["id"].(string)
		if id == "" {
			respond(reqID, map[string]any{"type": "error", "message": "Missing required field: id"})
			return
		}
		stateMu.Lock()
		err := appStore.Delete(id)
		stateMu.Unlock()
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		respond(reqID, map[string]any{"type": "ok"})

	case "conversation_rename":
		id, _ := req["id"].(string)
		title, _ := req["title"].(string)
		if id == "" {
			respond(reqID, map[string]any{"type": "error", "message": "Missing required field: id"})
			return
		}
		if title == "" {
			respond(reqID, map[string]any{"type": "error", "message": "Missing required field: title"})
			return
		}
		stateMu.Lock()
		err := appStore.Rename(id, title)
		stateMu.Unlock()
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		respond(reqID, map[string]any{"type": "ok"})

	case "hydrate":
		conversationID, _ := req["conversation_id"].(string)
		if conversationID == "" {
			respond(reqID, map[string]any{"type": "error", "message": "Missing required field: conversation_id"})
			return
		}
		if err := ensureConfig(); err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		go handleHydrate(reqID, conversationID)

	case "submit":
		prompt, _ := req["prompt"].(string)
		if prompt == "" {
			respond(reqID, map[string]any{"type": "error", "message": "Missing required field: prompt"})
			return
		}
		if err := ensureConfig(); err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		if !reserveActiveStream(reqID) {
			respond(reqID, map[string]any{"type": "error", "message": "Another request is already in progress"})
			return
		}
		if err := controller.Submit(prompt); err != nil {
			clearActiveStream()
			respond(reqID, errorResponse(err))
			return
		}

	case "cancel":
		if controller == nil || !controller.Busy() {
			respond(reqID, map[string]any{"type": "error", "message": "No active request to cancel"})
			return
		}
		controller.Cancel()
		streamID := clearActiveStream()
		stateMu.Lock()
		persistActive("", "")
		stateMu.Unlock()
		if streamID != "" {
			respond(streamID, map[string]any{"type": "canceled"})
		}
		respond(reqID, map[string]any{"type": "ok"})

	case "estimate_tokens":
		textsRaw, ok := req["texts"].([]any)
		if !ok || len(textsRaw) == 0 {
			respond(reqID, map[string]any{"type": "error", "message": "Missing or empty 'texts' array"})
			return
		}
		tokens := make([]int, len(textsRaw))
		for i, v := range textsRaw {
			s, _ := v.(string)
			tokens[i] = api.EstimateTokensSimple(s)
		}
		respond(reqID, map[string]any{"type": "token_estimate", "tokens": tokens})

	case "shutdown":
		if controller != nil {
			controller.Dispose()
		}
		os.Exit(0)

	default:
		respond(reqID, map[string]any{"type": "error", "message": fmt.Sprintf("Unknown action: %s", action)})
	}
}

// handleHydrate fetches a server-side conversation and replaces the local
// history with it.
func handleHydrate(reqID, conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	remote, err := apiClient.FetchConversation(ctx, conversationID)
	if err != nil {
		respond(reqID, errorResponse(err))
		return
	}

	messages := make([]state.Message, 0, len(remote.Messages))
	for _, m := range remote.Messages {
		messages = append(messages, state.HydratedMessage(m.Role, m.Content, m.Timestamp))
	}

	stateMu.Lock()
	history.Hydrate(messages)
	if controller != nil {
		controller.BindConversation(remote.ID)
	}
	if appStore.Active != nil {
		if appStore.Active.RemoteID == "" {
			appStore.Active.RemoteID = remote.ID
		}
		persistActive("", "")
	}
	count := len(messages)
	stateMu.Unlock()

	respond(reqID, map[string]any{"type": "ok", "messages": count})
}

func errorResponse(err error) map[string]any {
	var msg string
	switch {
	case errors.Is(err, state.ErrNotInitialized):
		msg = "Not initialized"
	case errors.Is(err, state.ErrNotAppdraftProject):
		msg = "Not initialized. Run project_init first"
	case errors.Is(err, state.ErrAlreadyInit):
		msg = "Already initialized"
	case errors.Is(err, state.ErrNoActiveConversation):
		msg = "No active conversation"
	case errors.Is(err, state.ErrConversationNotFound):
		msg = "Conversation not found"
	case errors.Is(err, state.ErrFileNotFound):
		msg = "File not found"
	case errors.Is(err, config.ErrNoConfig):
		msg = "Config file not found: ~/.config/appdraft/config.json"
	case errors.Is(err, config.ErrNoAPIToken):
		msg = "API token not set in config"
	case errors.Is(err, session.ErrBusy):
		msg = "Another request is already in progress"
	case errors.Is(err, session.ErrEmptyPrompt):
		msg = "Prompt cannot be empty"
	case errors.Is(err, session.ErrNoProject):
		msg = "No project bound: pass project_id to init or set a default project"
	default:
		msg = err.Error()
	}
	return map[string]any{"type": "error", "message": msg}
}

func respond(reqID string, data map[string]any) {
	out, _ := json.Marshal(addResponseID(reqID, data))
	msgType, _ := data["type"].(string)
	respondMu.Lock()
	defer respondMu.Unlock()
	log.Response(msgType, string(out))
	fmt.Println(string(out))
}

func addResponseID(reqID string, data map[string]any) map[string]any {
	if reqID == "" {
		return data
	}
	data["request_id"] = reqID
	return data
}

func requestID(req map[string]any) string {
	switch v := req["request_id"].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}

package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for expected conditions.
var (
	ErrNotInitialized       = errors.New("appdraft not initialized: call init first")
	ErrNotAppdraftProject   = errors.New("not an appdraft project: .appdraft directory not found")
	ErrAlreadyInit          = errors.New("appdraft already initialized")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrTitleEmpty           = errors.New("conversation title cannot be empty")
	ErrFileNotFound         = errors.New("file not found")
)

// Store manages conversations persisted under <project>/.appdraft.
type Store struct {
	ProjectRoot string
	Active      *Conversation
}

// NewStore creates a Store. ProjectRoot must be set via Init.
func NewStore() *Store {
	return &Store{}
}

// ProjectInit creates the .appdraft directory structure (like git init).
// Returns ErrAlreadyInit if already initialized.
func (s *Store) ProjectInit(projectRoot string) error {
	info, err := os.Stat(projectRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("project_root must be a directory")
	}

	appdraftDir := filepath.Join(projectRoot, ".appdraft")
	if _, err := os.Stat(appdraftDir); err == nil {
		return ErrAlreadyInit
	}

	return os.MkdirAll(filepath.Join(appdraftDir, "conversations"), 0755)
}

// Init sets the project root. Requires the .appdraft directory to exist;
// call ProjectInit first to create it.
func (s *Store) Init(projectRoot string) error {
	info, err := os.Stat(projectRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("project_root must be a directory")
	}

	appdraftDir := filepath.Join(projectRoot, ".appdraft")
	if _, err := os.Stat(appdraftDir); os.IsNotExist(err) {
		return ErrNotAppdraftProject
	}

	s.ProjectRoot = projectRoot
	return nil
}

// Initialized returns true once Init has succeeded.
func (s *Store) Initialized() bool {
	return s.ProjectRoot != ""
}

// Path helpers

func (s *Store) appdraftDir() string {
	return filepath.Join(s.ProjectRoot, ".appdraft")
}

func (s *Store) conversationsDir() string {
	return filepath.Join(s.appdraftDir(), "conversations")
}

func (s *Store) conversationDir(id string) string {
	return filepath.Join(s.conversationsDir(), id)
}

func (s *Store) outputDir(id string) string {
	return filepath.Join(s.conversationDir(id), "output")
}

func (s *Store) conversationJSONPath(id string) string {
	return filepath.Join(s.conversationDir(id), "conversation.json")
}

// Guard functions

func (s *Store) requireInit() error {
	if !s.Initialized() {
		return ErrNotInitialized
	}
	return nil
}

func (s *Store) requireActive() error {
	if !s.Initialized() {
		return ErrNotInitialized
	}
	if s.Active == nil {
		return ErrNoActiveConversation
	}
	return nil
}

// New creates a conversation bound to projectID and sets it as active.
func (s *Store) New(title, projectID string) (*Conversation, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}

	created := time.Now().UTC()
	if title == "" {
		title = "Conversation " + created.Format("2006-01-02 15:04")
	}

	conv := &Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		ProjectID: projectID,
		Created:   created,
		Messages:  []Message{},
	}

	if err := os.MkdirAll(s.outputDir(conv.ID), 0755); err != nil {
		return nil, err
	}
	if err := s.save(conv); err != nil {
		os.RemoveAll(s.conversationDir(conv.ID))
		return nil, err
	}

	s.Active = conv
	return conv, nil
}

// List returns summaries of all conversations, newest first. The listing is
// rebuilt from the directory on every call; there is no index file to go
// stale.
func (s *Store) List() ([]ConversationSummary, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.conversationsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []ConversationSummary{}, nil
		}
		return nil, err
	}

	summaries := []ConversationSummary{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		summary, err := s.loadSummary(entry.Name())
		if err != nil {
			continue
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Created.After(summaries[j].Created)
	})

	return summaries, nil
}

type conversationSummaryFile struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Created time.Time `json:"created"`
}

// loadSummary reads conversation.json and extracts only summary fields.
func (s *Store) loadSummary(id string) (ConversationSummary, error) {
	file, err := os.Open(s.conversationJSONPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return ConversationSummary{}, ErrConversationNotFound
		}
		return ConversationSummary{}, err
	}
	defer file.Close()

	var summary conversationSummaryFile
	if err := json.NewDecoder(file).Decode(&summary); err != nil {
		return ConversationSummary{}, err
	}

	return ConversationSummary{
		ID:      summary.ID,
		Title:   summary.Title,
		Created: summary.Created,
	}, nil
}

// Select loads a conversation by ID and sets it as active.
func (s *Store) Select(id string) (*Conversation, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}

	conv, err := s.load(id)
	if err != nil {
		return nil, err
	}

	s.Active = conv
	return conv, nil
}

// Delete removes a conversation by ID.
func (s *Store) Delete(id string) error {
	if err := s.requireInit(); err != nil {
		return err
	}

	dir := s.conversationDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrConversationNotFound
	}

	if s.Active != nil && s.Active.ID == id {
		s.Active = nil
	}

	return os.RemoveAll(dir)
}

// Rename updates a conversation's title.
func (s *Store) Rename(id, title string) error {
	if err := s.requireInit(); err != nil {
		return err
	}
	if strings.TrimSpace(title) == "" {
		return ErrTitleEmpty
	}

	if s.Active != nil && s.Active.ID == id {
		s.Active.Title = title
		return s.SaveActive()
	}

	conv, err := s.load(id)
	if err != nil {
		return err
	}
	conv.Title = title
	return s.save(conv)
}

// load reads a conversation from disk.
func (s *Store) load(id string) (*Conversation, error) {
	data, err := os.ReadFile(s.conversationJSONPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}

	return &conv, nil
}

// save writes a conversation to disk.
func (s *Store) save(conv *Conversation) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.conversationJSONPath(conv.ID), data, 0644)
}

// SaveActive persists the current active conversation.
func (s *Store) SaveActive() error {
	if err := s.requireActive(); err != nil {
		return err
	}
	return s.save(s.Active)
}

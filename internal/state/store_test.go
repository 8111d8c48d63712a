package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func initializedStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s := NewStore()
	if err := s.ProjectInit(root); err != nil {
		t.Fatalf("ProjectInit: %v", err)
	}
	if err := s.Init(root); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestProjectInit(t *testing.T) {
	t.Run("creates structure", func(t *testing.T) {
		root := t.TempDir()
		s := NewStore()
		if err := s.ProjectInit(root); err != nil {
			t.Fatalf("ProjectInit: %v", err)
		}
		if _, err := os.Stat(filepath.Join(root, ".appdraft", "conversations")); err != nil {
			t.Errorf("conversations dir missing: %v", err)
		}
	})

	t.Run("rejects double init", func(t *testing.T) {
		root := t.TempDir()
		s := NewStore()
		if err := s.ProjectInit(root); err != nil {
			t.Fatalf("ProjectInit: %v", err)
		}
		if err := s.ProjectInit(root); !errors.Is(err, ErrAlreadyInit) {
			t.Errorf("error = %v, want ErrAlreadyInit", err)
		}
	})

	t.Run("init requires project structure", func(t *testing.T) {
		s := NewStore()
		if err := s.Init(t.TempDir()); !errors.Is(err, ErrNotAppdraftProject) {
			t.Errorf("error = %v, want ErrNotAppdraftProject", err)
		}
	})

	t.Run("operations require init", func(t *testing.T) {
		s := NewStore()
		if _, err := s.New("x", "p1"); !errors.Is(err, ErrNotInitialized) {
			t.Errorf("error = %v, want ErrNotInitialized", err)
		}
	})
}

func TestConversationCRUD(t *testing.T) {
	s := initializedStore(t)

	conv, err := s.New("My App", "p1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if conv.Title != "My App" || conv.ProjectID != "p1" {
		t.Errorf("conversation = %+v", conv)
	}
	if s.Active == nil || s.Active.ID != conv.ID {
		t.Error("new conversation not set active")
	}

	t.Run("default title", func(t *testing.T) {
		c, err := s.New("", "p1")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if c.Title == "" {
			t.Error("expected a generated default title")
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		list, err := s.List()
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("len(list) = %d, want 2", len(list))
		}
		if list[0].Created.Before(list[1].Created) {
			t.Error("list is not sorted newest first")
		}
	})

	t.Run("select round trip", func(t *testing.T) {
		s.Active.Messages = []Message{
			{ID: "m1", Sender: SenderUser, Content: "hi", Timestamp: time.Now().UTC()},
		}
		s.Active.RemoteID = "conv-remote"
		if err := s.SaveActive(); err != nil {
			t.Fatalf("SaveActive: %v", err)
		}
		id := s.Active.ID

		loaded, err := s.Select(id)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "hi" {
			t.Errorf("loaded messages = %+v", loaded.Messages)
		}
		if loaded.RemoteID != "conv-remote" {
			t.Errorf("RemoteID = %q, want %q", loaded.RemoteID, "conv-remote")
		}
	})

	t.Run("rename", func(t *testing.T) {
		if err := s.Rename(conv.ID, "Renamed"); err != nil {
			t.Fatalf("Rename: %v", err)
		}
		loaded, err := s.Select(conv.ID)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if loaded.Title != "Renamed" {
			t.Errorf("Title = %q, want %q", loaded.Title, "Renamed")
		}
		if err := s.Rename(conv.ID, "  "); !errors.Is(err, ErrTitleEmpty) {
			t.Errorf("error = %v, want ErrTitleEmpty", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Delete(conv.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if s.Active != nil && s.Active.ID == conv.ID {
			t.Error("deleted conversation still active")
		}
		if _, err := s.Select(conv.ID); !errors.Is(err, ErrConversationNotFound) {
			t.Errorf("error = %v, want ErrConversationNotFound", err)
		}
		if err := s.Delete(conv.ID); !errors.Is(err, ErrConversationNotFound) {
			t.Errorf("double delete error = %v, want ErrConversationNotFound", err)
		}
	})
}

func TestSaveGeneratedFiles(t *testing.T) {
	s := initializedStore(t)
	if _, err := s.New("files", "p1"); err != nil {
		t.Fatalf("New: %v", err)
	}

	saved, skipped, err := s.SaveGeneratedFiles(map[string]string{
		"App.js":             "export default null",
		"components/Nav.tsx": "nav",
		"../escape.js":       "evil",
		"/abs/path.js":       "evil",
	})
	if err != nil {
		t.Fatalf("SaveGeneratedFiles: %v", err)
	}
	if len(saved) != 2 {
		t.Errorf("saved = %v, want 2 entries", saved)
	}
	if len(skipped) != 2 {
		t.Errorf("skipped = %v, want 2 entries", skipped)
	}

	content, err := s.GetGeneratedFile("components/Nav.tsx")
	if err != nil {
		t.Fatalf("GetGeneratedFile: %v", err)
	}
	if content != "nav" {
		t.Errorf("content = %q, want %q", content, "nav")
	}

	if _, err := s.GetGeneratedFile("missing.js"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("error = %v, want ErrFileNotFound", err)
	}

	files, err := s.ListGeneratedFiles()
	if err != nil {
		t.Fatalf("ListGeneratedFiles: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("ListGeneratedFiles = %v, want 2 entries", files)
	}

	// Nothing may land outside the conversation's output directory.
	if _, err := os.Stat(filepath.Join(s.ProjectRoot, "..", "escape.js")); err == nil {
		t.Error("path traversal escaped the output directory")
	}
}

func TestSafeJoin(t *testing.T) {
	base := t.TempDir()

	cases := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"simple", "a.js", nil},
		{"nested", "src/components/App.tsx", nil},
		{"dot segments resolved inside", "src/../a.js", nil},
		{"empty", "", ErrInvalidPath},
		{"traversal", "../outside.js", ErrPathEscape},
		{"deep traversal", "a/../../outside.js", ErrPathEscape},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SafeJoin(base, tc.path)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("SafeJoin(%q) error = %v, want %v", tc.path, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SafeJoin(%q): %v", tc.path, err)
			}
			if !filepath.IsAbs(got) {
				t.Errorf("SafeJoin(%q) = %q, want absolute path", tc.path, got)
			}
		})
	}

	t.Run("dotdot prefix filename is not traversal", func(t *testing.T) {
		if _, err := SafeJoin(base, "..config.js"); err != nil {
			t.Errorf("SafeJoin(..config.js): %v", err)
		}
	})
}

func TestValidateRelativePath(t *testing.T) {
	if err := ValidateRelativePath("src/App.js"); err != nil {
		t.Errorf("valid path rejected: %v", err)
	}
	if err := ValidateRelativePath(""); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("empty path error = %v, want ErrInvalidPath", err)
	}
	if err := ValidateRelativePath("/etc/passwd"); !errors.Is(err, ErrAbsolutePath) {
		t.Errorf("absolute path error = %v, want ErrAbsolutePath", err)
	}
	if err := ValidateRelativePath("a\x00b"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("null byte error = %v, want ErrInvalidPath", err)
	}
}

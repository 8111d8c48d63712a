package state

import (
	"io/fs"
	"os"
	"path/filepath"
)

// SaveGeneratedFiles writes the files produced by a generation into the
// active conversation's output directory. Paths that fail validation are
// skipped and reported; the remaining files are still written.
func (s *Store) SaveGeneratedFiles(files map[string]string) (saved []string, skipped []string, err error) {
	if err := s.requireActive(); err != nil {
		return nil, nil, err
	}

	outputBase := s.outputDir(s.Active.ID)
	for path, content := range files {
		if ValidateRelativePath(path) != nil {
			skipped = append(skipped, path)
			continue
		}
		outputPath, joinErr := SafeJoin(outputBase, path)
		if joinErr != nil {
			skipped = append(skipped, path)
			continue
		}
		if mkErr := os.MkdirAll(filepath.Dir(outputPath), 0755); mkErr != nil {
			return saved, skipped, mkErr
		}
		if wErr := os.WriteFile(outputPath, []byte(content), 0644); wErr != nil {
			return saved, skipped, wErr
		}
		saved = append(saved, path)
	}

	return saved, skipped, nil
}

// GetGeneratedFile returns the content of a previously saved output file.
func (s *Store) GetGeneratedFile(path string) (string, error) {
	if err := s.requireActive(); err != nil {
		return "", err
	}

	outputPath, err := SafeJoin(s.outputDir(s.Active.ID), path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrFileNotFound
		}
		return "", err
	}

	return string(data), nil
}

// ListGeneratedFiles returns all files in the active conversation's output
// directory, as relative paths.
func (s *Store) ListGeneratedFiles() ([]string, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}

	outputBase := s.outputDir(s.Active.ID)
	var files []string

	err := filepath.WalkDir(outputBase, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil // output directory doesn't exist yet
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outputBase, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads prompt templates from user-editable files, falling
// back to built-in defaults. The directory and default files are created
// on first Load, not in the constructor.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

var defaultPrompts = map[string]string{
	driven.PromptSystem: domain.DefaultSystemPrompt,

	driven.PromptSummarize: `Summarize the conversation below for your own later reference.
Keep file names, decisions and open problems. Use at most a few short paragraphs.

%s

Summary:`,
}

// NewPromptStore creates a file-based prompt store.
// If promptDir is empty, defaults to ~/.sazid/prompts.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".sazid", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the template for name.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.initialise)

	s.mu.RLock()
	prompt, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return prompt, nil
	}

	if s.initErr == nil {
		data, err := os.ReadFile(filepath.Join(s.promptDir, name+".txt"))
		if err == nil {
			prompt = strings.TrimSpace(string(data))
		}
	}
	if prompt == "" {
		def, ok := defaultPrompts[name]
		if !ok {
			return "", fmt.Errorf("%w: prompt %q", domain.ErrNotFound, name)
		}
		prompt = def
	}

	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()
	return prompt, nil
}

// Reload clears the cache, forcing fresh reads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise writes the default templates that do not exist yet.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}
	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content+"\n"), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}
}

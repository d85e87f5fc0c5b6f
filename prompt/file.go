package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/chainlab/ai"
	"gopkg.in/yaml.v3"
)

type fileMessage struct {
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

type file struct {
	Name     string        `yaml:"name"`
	Messages []fileMessage `yaml:"messages"`
}

// LoadFile reads a YAML template definition. The file name, without
// extension, is used when the file has no name field.
func LoadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := parse(data, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a YAML template definition.
func Parse(data []byte) (*Template, error) {
	return parse(data, "prompt")
}

func parse(data []byte, fallbackName string) (*Template, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	if f.Name == "" {
		f.Name = fallbackName
	}

	messages := make([]ai.Message, 0, len(f.Messages))
	for _, m := range f.Messages {
		role, ok := ai.ParseRole(m.Role)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, m.Role)
		}
		messages = append(messages, ai.Message{Role: role, Content: m.Content})
	}
	return New(f.Name, messages...)
}

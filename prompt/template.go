package prompt

import (
	"fmt"
	"strings"

	"github.com/poiesic/chainlab/ai"
	"github.com/poiesic/chainlab/ai/langchain"
	"github.com/tmc/langchaingo/prompts"
)

// Template is a named chat prompt with {name} placeholders.
type Template struct {
	name     string
	messages []ai.Message
	vars     []string
	chat     prompts.ChatPromptTemplate
}

// New compiles messages into a Template.
func New(name string, messages ...ai.Message) (*Template, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: %s has no messages", ErrInvalidTemplate, name)
	}

	var (
		vars       []string
		seen       = map[string]bool{}
		formatters = make([]prompts.MessageFormatter, 0, len(messages))
	)
	for i, msg := range messages {
		names, err := placeholders(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: %s message %d: %w", ErrInvalidTemplate, name, i, err)
		}
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				vars = append(vars, n)
			}
		}

		formatter, err := messageFormatter(msg.Role, msg.Content, names)
		if err != nil {
			return nil, fmt.Errorf("%s message %d: %w", name, i, err)
		}
		formatters = append(formatters, formatter)
	}

	return &Template{
		name:     name,
		messages: append([]ai.Message(nil), messages...),
		vars:     vars,
		chat:     prompts.NewChatPromptTemplate(formatters),
	}, nil
}

// MustNew is New for templates known to be valid at compile time.
func MustNew(name string, messages ...ai.Message) *Template {
	t, err := New(name, messages...)
	if err != nil {
		panic(err)
	}
	return t
}

func messageFormatter(role ai.Role, content string, vars []string) (prompts.MessageFormatter, error) {
	p := prompts.NewPromptTemplate(content, vars)
	p.TemplateFormat = prompts.TemplateFormatFString

	switch role {
	case ai.RoleSystem:
		return prompts.SystemMessagePromptTemplate{Prompt: p}, nil
	case ai.RoleHuman:
		return prompts.HumanMessagePromptTemplate{Prompt: p}, nil
	case ai.RoleAI:
		return prompts.AIMessagePromptTemplate{Prompt: p}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.name
}

// Messages returns the unformatted messages.
func (t *Template) Messages() []ai.Message {
	return append([]ai.Message(nil), t.messages...)
}

// InputVariables returns the placeholder names in order of first use.
func (t *Template) InputVariables() []string {
	return append([]string(nil), t.vars...)
}

// Missing returns the placeholders that have no usable value in values.
// Empty strings count as values; nil does not.
func (t *Template) Missing(values map[string]any) []string {
	var missing []string
	for _, v := range t.vars {
		if val, ok := values[v]; !ok || val == nil {
			missing = append(missing, v)
		}
	}
	return missing
}

// Format substitutes values into every message.
func (t *Template) Format(values map[string]any) ([]ai.Message, error) {
	if missing := t.Missing(values); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", "))
	}

	formatted, err := t.chat.FormatMessages(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}

	out := make([]ai.Message, len(formatted))
	for i, msg := range formatted {
		out[i] = ai.Message{
			Role:    langchain.RoleFromMessageType(msg.GetType()),
			Content: msg.GetContent(),
		}
	}
	return out, nil
}

// placeholders extracts {name} placeholders from an f-string template.
func placeholders(text string) ([]string, error) {
	var names []string
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unclosed '{' at offset %d", i)
			}
			name := strings.TrimSpace(text[i+1 : i+1+end])
			if name == "" || strings.ContainsAny(name, "{ ") {
				return nil, fmt.Errorf("bad placeholder %q", text[i:i+2+end])
			}
			names = append(names, name)
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				i++
				continue
			}
			return nil, fmt.Errorf("single '}' at offset %d", i)
		}
	}
	return names, nil
}

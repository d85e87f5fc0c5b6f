package ai

import "strings"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
)

// ParseRole maps the role names found in prompt files onto a Role.
// "user" and "assistant" are accepted as aliases.
func ParseRole(name string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "system":
		return RoleSystem, true
	case "human", "user":
		return RoleHuman, true
	case "ai", "assistant":
		return RoleAI, true
	}
	return "", false
}

// Message is a single chat turn sent to a ChatModel.
type Message struct {
	Role    Role
	Content string
}

package types

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// AgentID identifies the owner namespace of memories. Every read and
// write scoped to an AgentID must never observe another agent's
// records. The empty AgentID means "unscoped" and is only valid for
// administrative operations (stats, all-agent cleanup).
type AgentID string

var agentIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Validate checks if the AgentID is valid
func (a AgentID) Validate() error {
	if a == "" {
		return goerr.New("agent ID cannot be empty")
	}
	if !agentIDPattern.MatchString(string(a)) {
		return goerr.New("agent ID must be alphanumeric with hyphens or underscores", goerr.V("id", a))
	}
	return nil
}

// String returns the string representation of AgentID
func (a AgentID) String() string {
	return string(a)
}

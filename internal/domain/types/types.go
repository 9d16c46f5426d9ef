// Package types contains common response types used across the application
package types

// Ack is returned for ingested samples.
type Ack struct {
	Status     string `json:"status"`
	Accepted   int    `json:"accepted"`
	Duplicates int    `json:"duplicates"`
}

// CommandResult is returned for emergency commands.
type CommandResult struct {
	Status    string `json:"status"`
	EpisodeID string `json:"episode_id,omitempty"`
}

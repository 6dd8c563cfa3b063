package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Post is a single item fetched from a content source.
type Post struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Account   string    `json:"account"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingPost is an accepted post awaiting delivery to the webhook.
type PendingPost struct {
	Post       Post      `json:"post"`
	Summary    string    `json:"summary"`
	Decision   string    `json:"decision"`
	ObservedAt time.Time `json:"observed_at"`
}

// NewPendingPost creates a pending post for an accepted classifier verdict.
func NewPendingPost(p Post, decision, summary string) (*PendingPost, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("post has no id")
	}
	if !Accepted(decision) {
		return nil, fmt.Errorf("decision %q is not an accepting decision", decision)
	}
	return &PendingPost{
		Post:       p,
		Summary:    summary,
		Decision:   decision,
		ObservedAt: time.Now().UTC(),
	}, nil
}

// AccountCursor is the per-account resume position.
type AccountCursor struct {
	Account    string    `json:"account"`
	LastSeenID *string   `json:"last_seen_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ErrorRecord is an append-only operational error entry. It is written for
// observability and never read back by control logic.
type ErrorRecord struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Account   *string   `json:"account,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Accepted reports whether a classifier decision maps to the accepted
// partition. Exactly two surface forms accept, case-insensitive; everything
// else rejects.
func Accepted(decision string) bool {
	switch strings.ToLower(strings.TrimSpace(decision)) {
	case "accept", "true":
		return true
	}
	return false
}

var handleURLRe = regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:twitter\.com|x\.com)/([A-Za-z0-9_]{1,15})`)

// ParseHandle extracts a bare account handle from the raw forms account lists
// carry: profile URLs, @-prefixed handles, or plain handles.
func ParseHandle(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if m := handleURLRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	s = strings.TrimPrefix(s, "@")
	if i := strings.IndexAny(s, "/?"); i >= 0 {
		s = s[:i]
	}
	return s
}

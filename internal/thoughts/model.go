package thoughts

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source is a reference a thought was drawn from.
type Source struct {
	Name        string   `json:"name"`
	Authors     []string `json:"authors"`
	Description string   `json:"description"`
}

// Thought is the entity read from and written to the database.
type Thought struct {
	ID         uuid.UUID
	ParentID   *uuid.UUID
	Keywords   []string
	Categories []string
	Sources    []Source
	CreatedAt  time.Time
	Content    string
}

// Thread heads a chain of thoughts: it is what a thought without parent
// opens.
type Thread struct {
	Title string `json:"title"`
}

// Node is a thought answering another one.
type Node struct {
	ParentThoughtID string `json:"parent_thought_id"`
}

// Envelope is the representation handed out by the service. Exactly one of
// Thread and Node is set.
type Envelope struct {
	ThoughtID  string    `json:"thought_id"`
	Keywords   []string  `json:"keywords"`
	Categories []string  `json:"categories"`
	Sources    []Source  `json:"sources"`
	CreatedAt  time.Time `json:"created_at"`
	Content    string    `json:"content"`
	Thread     *Thread   `json:"thread,omitempty"`
	Node       *Node     `json:"node,omitempty"`
}

const maxTitleLength = 80

// Envelope converts the entity. Root thoughts become threads titled after
// the first line of their content.
func (t Thought) Envelope() Envelope {
	env := Envelope{
		ThoughtID:  t.ID.String(),
		Keywords:   nonNil(t.Keywords),
		Categories: nonNil(t.Categories),
		Sources:    t.Sources,
		CreatedAt:  t.CreatedAt,
		Content:    t.Content,
	}
	if env.Sources == nil {
		env.Sources = []Source{}
	}
	if t.ParentID == nil {
		env.Thread = &Thread{Title: titleOf(t.Content)}
	} else {
		env.Node = &Node{ParentThoughtID: t.ParentID.String()}
	}
	return env
}

func titleOf(content string) string {
	title, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	title = strings.TrimSpace(title)
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}
	return title
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

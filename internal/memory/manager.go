// Package memory implements the Memory Manager: a bounded Tier 1
// conversational buffer backed by a Tier 2 vector store, with RAG-style
// augmented prompt construction over the session's turns collection.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loomhq/loom/internal/embedding"
	"github.com/loomhq/loom/internal/vectorstore"
)

// Turn is Tier 1's {role, content} pair.
type Turn struct {
	Role    string
	Content string
}

const (
	RoleUser            = "user"
	RoleModel           = "model"
	RoleToolObservation = "tool_observation"

	turnsCollection = "turns"
	codeCollection  = "code"

	augmentedPromptMetaKey = "augmented_prompt"
	similarityK            = 5
)

// Manager owns one session's Tier 1 buffer and Tier 2 collections.
type Manager struct {
	sessionName string
	threshold   int
	store       *vectorstore.Store
	engine      embedding.Engine
	buffer      []Turn
}

// New constructs a Manager and re-reads the last threshold turns from the
// turns collection into Tier 1, so a session picks up where it left off on
// reconstruction instead of starting with an empty buffer.
func New(ctx context.Context, sessionName string, threshold int, store *vectorstore.Store, engine embedding.Engine) (*Manager, error) {
	if threshold <= 0 {
		threshold = 20
	}
	m := &Manager{sessionName: sessionName, threshold: threshold, store: store, engine: engine}

	records, err := store.GetAllRecords(m.collectionName(turnsCollection))
	if err != nil {
		return nil, err
	}
	if len(records) > threshold {
		records = records[len(records)-threshold:]
	}
	for _, r := range records {
		m.buffer = append(m.buffer, Turn{Role: r.Metadata["role"], Content: r.Document})
	}
	return m, nil
}

func (m *Manager) collectionName(base string) string {
	return m.sessionName + "_" + base
}

// AddTurn appends to Tier 1 and writes through to the turns collection. If
// role is "user" and augmentedPrompt is non-empty, it is recorded alongside
// the raw content so save/load can reconstruct what the model actually saw.
func (m *Manager) AddTurn(ctx context.Context, role, content string, augmentedPrompt string) error {
	m.buffer = append(m.buffer, Turn{Role: role, Content: content})
	if len(m.buffer) > m.threshold {
		m.buffer = m.buffer[len(m.buffer)-m.threshold:]
	}

	vec, err := m.engine.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("memory: embed turn: %w", err)
	}

	meta := map[string]string{"role": role}
	if role == RoleUser && augmentedPrompt != "" {
		meta[augmentedPromptMetaKey] = augmentedPrompt
	}

	return m.store.AddRecord(m.collectionName(turnsCollection), vectorstore.Record{
		ID:        uuid.NewString(),
		Document:  content,
		Metadata:  meta,
		Timestamp: time.Now(),
		Embedding: vec,
	})
}

// PrepareAugmentedPrompt runs a k=5 similarity query against the turns
// collection, drops exact matches of userPrompt, and formats the rest as a
// "Relevant prior context" block prepended to the prompt. No matches means
// the raw prompt is returned unchanged.
func (m *Manager) PrepareAugmentedPrompt(ctx context.Context, userPrompt string) (string, error) {
	queryVec, err := m.engine.Embed(ctx, userPrompt)
	if err != nil {
		return "", fmt.Errorf("memory: embed query: %w", err)
	}

	matches, err := m.store.Query(m.collectionName(turnsCollection), queryVec, similarityK)
	if err != nil {
		return "", err
	}

	var snippets []string
	for _, match := range matches {
		if strings.TrimSpace(match.Record.Document) == strings.TrimSpace(userPrompt) {
			continue
		}
		snippets = append(snippets, fmt.Sprintf("- (%s) %s", match.Record.Metadata["role"], match.Record.Document))
	}

	if len(snippets) == 0 {
		return userPrompt, nil
	}

	var b strings.Builder
	b.WriteString("Relevant prior context:\n")
	b.WriteString(strings.Join(snippets, "\n"))
	b.WriteString("\n\n")
	b.WriteString(userPrompt)
	return b.String(), nil
}

// GetConversationalBuffer returns the Tier 1 list for the model host.
func (m *Manager) GetConversationalBuffer() []Turn {
	out := make([]Turn, len(m.buffer))
	copy(out, m.buffer)
	return out
}

// DeleteMemoryCollection drops both the turns and code collections.
func (m *Manager) DeleteMemoryCollection() error {
	if err := m.store.DeleteCollection(m.collectionName(turnsCollection)); err != nil {
		return err
	}
	if err := m.store.DeleteCollection(m.collectionName(codeCollection)); err != nil {
		return err
	}
	m.buffer = nil
	return nil
}

package intent

import (
	"strings"
	"time"
)

// EntitySlot declares a piece of structured data an intent expects to
// extract from the query, such as a date or an account id.
type EntitySlot struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Definition is one registered intent: a named category of user
// request backed by example phrases and their embeddings. Examples and
// ExampleEmbeddings are parallel slices; embeddings are regenerated by
// the classifier whenever examples change.
type Definition struct {
	Name              string       `json:"name"`
	Description       string       `json:"description"`
	Examples          []string     `json:"examples"`
	ExampleEmbeddings [][]float32  `json:"-"`
	Slots             []EntitySlot `json:"slots,omitempty"`

	// ParentIntents and ChildIntents name related intents used for
	// contextual boosting; they are not validated against the model.
	ParentIntents []string `json:"parent_intents,omitempty"`
	ChildIntents  []string `json:"child_intents,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// relatedTo reports whether name appears among the definition's parent
// or child intents. The comparison is case-insensitive.
func (d *Definition) relatedTo(name string) bool {
	name = normalizeName(name)
	for _, p := range d.ParentIntents {
		if normalizeName(p) == name {
			return true
		}
	}
	for _, c := range d.ChildIntents {
		if normalizeName(c) == name {
			return true
		}
	}
	return false
}

// Model holds the registered intents for one tenant: definitions keyed
// by normalized name, aliases pointing at canonical names, the
// embedding model used for its vectors, and a default similarity
// threshold.
//
// The model is read-mostly and carries no internal locking. Callers
// that mutate it concurrently with classification reads must serialize
// access themselves.
type Model struct {
	EmbeddingModel   string
	DefaultThreshold float64

	defs    map[string]*Definition
	aliases map[string]string
	order   []string
}

// NewModel creates an empty model for the given embedding model id.
func NewModel(embeddingModel string, defaultThreshold float64) *Model {
	return &Model{
		EmbeddingModel:   embeddingModel,
		DefaultThreshold: defaultThreshold,
		defs:             make(map[string]*Definition),
		aliases:          make(map[string]string),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Put registers or replaces a definition under its normalized name.
// First registration order is preserved for deterministic iteration.
func (m *Model) Put(def *Definition) {
	key := normalizeName(def.Name)
	if _, exists := m.defs[key]; !exists {
		m.order = append(m.order, key)
	}
	m.defs[key] = def
}

// Get returns the definition for a canonical name or alias.
func (m *Model) Get(name string) (*Definition, bool) {
	key, ok := m.Resolve(name)
	if !ok {
		return nil, false
	}
	def, ok := m.defs[key]
	return def, ok
}

// Resolve maps a name or alias to the canonical intent name. It
// returns false when neither a definition nor an alias matches.
func (m *Model) Resolve(name string) (string, bool) {
	key := normalizeName(name)
	if key == "" {
		return "", false
	}
	if _, ok := m.defs[key]; ok {
		return key, true
	}
	if canonical, ok := m.aliases[key]; ok {
		if _, ok := m.defs[canonical]; ok {
			return canonical, true
		}
	}
	return "", false
}

// Remove deletes a definition and every alias pointing at it. It
// returns false when the name does not resolve.
func (m *Model) Remove(name string) bool {
	key, ok := m.Resolve(name)
	if !ok {
		return false
	}
	delete(m.defs, key)
	for alias, canonical := range m.aliases {
		if canonical == key {
			delete(m.aliases, alias)
		}
	}
	for i, n := range m.order {
		if n == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// SetAlias points alias at an existing canonical intent.
func (m *Model) SetAlias(alias, canonical string) error {
	aliasKey := normalizeName(alias)
	if aliasKey == "" {
		return ErrInvalidIntentName
	}
	canonicalKey, ok := m.Resolve(canonical)
	if !ok {
		return ErrIntentNotFound
	}
	m.aliases[aliasKey] = canonicalKey
	return nil
}

// Definitions returns all registered definitions in first-registration
// order. The returned slice is fresh; the definitions are shared.
func (m *Model) Definitions() []*Definition {
	out := make([]*Definition, 0, len(m.order))
	for _, key := range m.order {
		if def, ok := m.defs[key]; ok {
			out = append(out, def)
		}
	}
	return out
}

// Aliases returns a copy of the alias table as alias to canonical
// name.
func (m *Model) Aliases() map[string]string {
	out := make(map[string]string, len(m.aliases))
	for alias, canonical := range m.aliases {
		out[alias] = canonical
	}
	return out
}

// Len returns the number of registered intents.
func (m *Model) Len() int {
	return len(m.defs)
}

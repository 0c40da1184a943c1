package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DefinitionStore persists intent definitions and aliases per tenant
// so a model can be rebuilt on startup. Embeddings are stored
// alongside the examples to avoid re-embedding the catalog on every
// boot.
type DefinitionStore struct {
	db pgxDB
}

func NewDefinitionStore(db pgxDB) *DefinitionStore {
	if db == nil {
		panic("intent: pgx pool required")
	}
	return &DefinitionStore{db: db}
}

// UpsertDefinition inserts or replaces one definition. The row's
// position column keeps first-insert order so LoadModel rebuilds the
// catalog deterministically.
func (s *DefinitionStore) UpsertDefinition(ctx context.Context, tenantID string, def *Definition) error {
	if def == nil {
		return ErrIntentNotFound
	}
	name := normalizeName(def.Name)
	if name == "" {
		return ErrInvalidIntentName
	}

	examples, err := json.Marshal(def.Examples)
	if err != nil {
		return fmt.Errorf("intent: marshal examples: %w", err)
	}
	embeddings, err := json.Marshal(def.ExampleEmbeddings)
	if err != nil {
		return fmt.Errorf("intent: marshal embeddings: %w", err)
	}
	slots, err := json.Marshal(def.Slots)
	if err != nil {
		return fmt.Errorf("intent: marshal slots: %w", err)
	}
	parents, err := json.Marshal(def.ParentIntents)
	if err != nil {
		return fmt.Errorf("intent: marshal parent intents: %w", err)
	}
	children, err := json.Marshal(def.ChildIntents)
	if err != nil {
		return fmt.Errorf("intent: marshal child intents: %w", err)
	}

	updatedAt := def.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO intent_definitions (
			tenant_id, name, description, examples, embeddings, slots,
			parent_intents, child_intents, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, name) DO UPDATE SET
			description = EXCLUDED.description,
			examples = EXCLUDED.examples,
			embeddings = EXCLUDED.embeddings,
			slots = EXCLUDED.slots,
			parent_intents = EXCLUDED.parent_intents,
			child_intents = EXCLUDED.child_intents,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.Exec(ctx, query,
		tenantID, name, def.Description, examples, embeddings, slots,
		parents, children, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("intent: upsert definition failed: %w", err)
	}
	return nil
}

// DeleteDefinition removes a definition and its aliases. It reports
// ErrIntentNotFound when no row matched.
func (s *DefinitionStore) DeleteDefinition(ctx context.Context, tenantID, name string) error {
	key := normalizeName(name)
	if key == "" {
		return ErrInvalidIntentName
	}

	tag, err := s.db.Exec(ctx,
		`DELETE FROM intent_definitions WHERE tenant_id = $1 AND name = $2`,
		tenantID, key,
	)
	if err != nil {
		return fmt.Errorf("intent: delete definition failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIntentNotFound
	}

	_, err = s.db.Exec(ctx,
		`DELETE FROM intent_aliases WHERE tenant_id = $1 AND intent_name = $2`,
		tenantID, key,
	)
	if err != nil {
		return fmt.Errorf("intent: delete aliases failed: %w", err)
	}
	return nil
}

// UpsertAlias points an alias at a canonical intent name.
func (s *DefinitionStore) UpsertAlias(ctx context.Context, tenantID, alias, canonical string) error {
	aliasKey := normalizeName(alias)
	canonicalKey := normalizeName(canonical)
	if aliasKey == "" || canonicalKey == "" {
		return ErrInvalidIntentName
	}

	query := `
		INSERT INTO intent_aliases (tenant_id, alias, intent_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, alias) DO UPDATE SET intent_name = EXCLUDED.intent_name
	`
	if _, err := s.db.Exec(ctx, query, tenantID, aliasKey, canonicalKey); err != nil {
		return fmt.Errorf("intent: upsert alias failed: %w", err)
	}
	return nil
}

// LoadModel rebuilds a tenant's model from storage. Aliases whose
// canonical intent no longer exists are skipped.
func (s *DefinitionStore) LoadModel(ctx context.Context, tenantID, embeddingModel string, defaultThreshold float64) (*Model, error) {
	model := NewModel(embeddingModel, defaultThreshold)

	rows, err := s.db.Query(ctx, `
		SELECT name, description, examples, embeddings, slots,
			   parent_intents, child_intents, updated_at
		FROM intent_definitions
		WHERE tenant_id = $1
		ORDER BY position
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("intent: load definitions failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var def Definition
		var examples, embeddings, slots, parents, children []byte
		err := rows.Scan(&def.Name, &def.Description, &examples, &embeddings,
			&slots, &parents, &children, &def.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("intent: scan definition failed: %w", err)
		}
		if err := json.Unmarshal(examples, &def.Examples); err != nil {
			return nil, fmt.Errorf("intent: decode examples for %s: %w", def.Name, err)
		}
		if err := json.Unmarshal(embeddings, &def.ExampleEmbeddings); err != nil {
			return nil, fmt.Errorf("intent: decode embeddings for %s: %w", def.Name, err)
		}
		if err := json.Unmarshal(slots, &def.Slots); err != nil {
			return nil, fmt.Errorf("intent: decode slots for %s: %w", def.Name, err)
		}
		if err := json.Unmarshal(parents, &def.ParentIntents); err != nil {
			return nil, fmt.Errorf("intent: decode parent intents for %s: %w", def.Name, err)
		}
		if err := json.Unmarshal(children, &def.ChildIntents); err != nil {
			return nil, fmt.Errorf("intent: decode child intents for %s: %w", def.Name, err)
		}
		model.Put(&def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("intent: read definitions failed: %w", err)
	}

	aliasRows, err := s.db.Query(ctx,
		`SELECT alias, intent_name FROM intent_aliases WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("intent: load aliases failed: %w", err)
	}
	defer aliasRows.Close()

	for aliasRows.Next() {
		var alias, canonical string
		if err := aliasRows.Scan(&alias, &canonical); err != nil {
			return nil, fmt.Errorf("intent: scan alias failed: %w", err)
		}
		if err := model.SetAlias(alias, canonical); err != nil {
			continue
		}
	}
	if err := aliasRows.Err(); err != nil {
		return nil, fmt.Errorf("intent: read aliases failed: %w", err)
	}

	return model, nil
}

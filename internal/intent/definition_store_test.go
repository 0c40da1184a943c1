package intent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return data
}

func TestDefinitionStore_UpsertDefinition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewDefinitionStore(mock)

	mock.ExpectExec("INSERT INTO intent_definitions").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	def := &Definition{
		Name:              "Greeting",
		Description:       "hello and small talk",
		Examples:          []string{"hi", "hello"},
		ExampleEmbeddings: [][]float32{{1, 0}, {0, 1}},
	}
	if err := store.UpsertDefinition(context.Background(), "tenant-a", def); err != nil {
		t.Fatalf("UpsertDefinition: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDefinitionStore_UpsertDefinitionValidation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewDefinitionStore(mock)

	if err := store.UpsertDefinition(context.Background(), "tenant-a", nil); err == nil {
		t.Fatal("expected nil definition to be rejected")
	}
	if err := store.UpsertDefinition(context.Background(), "tenant-a", &Definition{Name: "  "}); !errors.Is(err, ErrInvalidIntentName) {
		t.Fatalf("err = %v, want ErrInvalidIntentName", err)
	}
}

func TestDefinitionStore_DeleteDefinition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewDefinitionStore(mock)

	mock.ExpectExec("DELETE FROM intent_definitions").
		WithArgs("tenant-a", "greeting").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM intent_aliases").
		WithArgs("tenant-a", "greeting").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	if err := store.DeleteDefinition(context.Background(), "tenant-a", "Greeting"); err != nil {
		t.Fatalf("DeleteDefinition: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDefinitionStore_DeleteDefinitionMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewDefinitionStore(mock)

	mock.ExpectExec("DELETE FROM intent_definitions").
		WithArgs("tenant-a", "missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err = store.DeleteDefinition(context.Background(), "tenant-a", "missing")
	if !errors.Is(err, ErrIntentNotFound) {
		t.Fatalf("err = %v, want ErrIntentNotFound", err)
	}
}

func TestDefinitionStore_UpsertAliasNormalizes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewDefinitionStore(mock)

	mock.ExpectExec("INSERT INTO intent_aliases").
		WithArgs("tenant-a", "hey", "greeting").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.UpsertAlias(context.Background(), "tenant-a", " Hey ", "GREETING"); err != nil {
		t.Fatalf("UpsertAlias: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDefinitionStore_LoadModel(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewDefinitionStore(mock)
	now := time.Now().UTC()

	defRows := pgxmock.NewRows([]string{
		"name", "description", "examples", "embeddings", "slots",
		"parent_intents", "child_intents", "updated_at",
	}).
		AddRow("greeting", "hello and small talk",
			mustJSON(t, []string{"hi", "hello"}),
			mustJSON(t, [][]float32{{1, 0}, {0, 1}}),
			mustJSON(t, []EntitySlot(nil)),
			mustJSON(t, []string(nil)),
			mustJSON(t, []string(nil)),
			now).
		AddRow("farewell", "goodbyes",
			mustJSON(t, []string{"bye"}),
			mustJSON(t, [][]float32{{0, 1}}),
			mustJSON(t, []EntitySlot{{Name: "reason", Type: "string"}}),
			mustJSON(t, []string{"greeting"}),
			mustJSON(t, []string(nil)),
			now)
	mock.ExpectQuery("SELECT (.+) FROM intent_definitions").
		WithArgs("tenant-a").
		WillReturnRows(defRows)

	aliasRows := pgxmock.NewRows([]string{"alias", "intent_name"}).
		AddRow("hey", "greeting").
		AddRow("orphan", "deleted_intent")
	mock.ExpectQuery("SELECT alias, intent_name FROM intent_aliases").
		WithArgs("tenant-a").
		WillReturnRows(aliasRows)

	model, err := store.LoadModel(context.Background(), "tenant-a", "text-embedding-3-small", 0.5)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	if model.Len() != 2 {
		t.Fatalf("model has %d intents, want 2", model.Len())
	}
	defs := model.Definitions()
	if defs[0].Name != "greeting" || defs[1].Name != "farewell" {
		t.Fatalf("order = %q, %q", defs[0].Name, defs[1].Name)
	}
	if len(defs[0].ExampleEmbeddings) != 2 || defs[0].ExampleEmbeddings[0][0] != 1 {
		t.Fatalf("embeddings = %+v", defs[0].ExampleEmbeddings)
	}
	if len(defs[1].Slots) != 1 || defs[1].Slots[0].Name != "reason" {
		t.Fatalf("slots = %+v", defs[1].Slots)
	}
	if !defs[1].relatedTo("greeting") {
		t.Fatal("expected parent intent to survive the round trip")
	}

	if name, ok := model.Resolve("hey"); !ok || name != "greeting" {
		t.Fatalf("Resolve(hey) = %q, %v", name, ok)
	}
	if _, ok := model.Resolve("orphan"); ok {
		t.Fatal("expected orphaned alias to be skipped")
	}
	if model.EmbeddingModel != "text-embedding-3-small" || model.DefaultThreshold != 0.5 {
		t.Fatalf("model config = %q, %v", model.EmbeddingModel, model.DefaultThreshold)
	}
}

func TestDefinitionStore_LoadModelQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewDefinitionStore(mock)

	mock.ExpectQuery("SELECT (.+) FROM intent_definitions").
		WithArgs("tenant-a").
		WillReturnError(errors.New("connection refused"))

	if _, err := store.LoadModel(context.Background(), "tenant-a", "m", 0); err == nil {
		t.Fatal("expected query error to surface")
	}
}

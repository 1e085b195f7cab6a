package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alfredjeanlab/moisturizer/internal/auth"
	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/registry"
	"github.com/alfredjeanlab/moisturizer/internal/store/memory"
)

func newRegistry(t *testing.T) (*registry.Registry, *memory.Store) {
	t.Helper()
	st := memory.New()
	reg := registry.New(st, nil, registry.Options{})
	if err := reg.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return reg, st
}

// seed stores two records of type "notes", a user and a grant.
func seed(t *testing.T, reg *registry.Registry, st *memory.Store) {
	t.Helper()
	ctx := context.Background()
	for _, payload := range []map[string]any{
		{"id": "n2", "title": "second"},
		{"id": "n1", "title": "first"},
	} {
		m, err := reg.InferAndMaybeMigrate(ctx, "notes", payload)
		if err != nil {
			t.Fatalf("migrate: %v", err)
		}
		if _, err := m.Create(ctx, payload); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	u, err := auth.NewUser("alice", model.RoleUser, "")
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	if err := st.PutUser(ctx, u); err != nil {
		t.Fatalf("put user: %v", err)
	}
	g := &model.Grant{GrantKey: model.GrantKey{ResourceID: "notes", Owner: "alice"}, Capabilities: model.Capabilities{Read: true}}
	if err := st.PutGrant(ctx, g); err != nil {
		t.Fatalf("put grant: %v", err)
	}
}

func TestExportJSONL_SystemTypesOnly(t *testing.T) {
	reg, _ := newRegistry(t)
	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), reg, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	// header + the three reserved descriptors
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != "1" || h.Type != "header" || h.TypeCount != 3 || h.RecordCount != 0 || h.GrantCount != 0 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestExportJSONL_TypesRecordsUsersGrants(t *testing.T) {
	reg, st := newRegistry(t)
	seed(t, reg, st)

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), reg, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	// header + 4 types + 2 records + 1 user + 1 grant
	if len(lines) != 9 {
		t.Fatalf("expected 9 lines, got %d:\n%s", len(lines), buf.String())
	}

	var kinds []string
	var records []record
	for _, line := range lines[1:] {
		var r struct {
			Type   string          `json:"type"`
			TypeID string          `json:"type_id"`
			Data   json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		kinds = append(kinds, r.Type)
		if r.Type == "record" {
			var data map[string]any
			if err := json.Unmarshal(r.Data, &data); err != nil {
				t.Fatalf("unmarshal record: %v", err)
			}
			records = append(records, record{Type: r.Type, TypeID: r.TypeID, Data: data})
		}
		if r.Type == "user" && strings.Contains(string(r.Data), "api_key") {
			t.Fatalf("user export leaked credentials: %s", r.Data)
		}
	}

	want := []string{"type", "type", "type", "type", "record", "record", "user", "grant"}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("line order = %v, want %v", kinds, want)
	}
	for _, r := range records {
		if r.TypeID != "notes" {
			t.Fatalf("record type_id = %q, want notes", r.TypeID)
		}
	}
	if id := records[0].Data.(map[string]any)["id"]; id != "n1" {
		t.Fatalf("records not ordered by id: first is %v", id)
	}
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

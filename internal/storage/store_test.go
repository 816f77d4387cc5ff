package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "canvas-mcp-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// setupStore opens a fresh store in a temp directory and returns it along
// with the default project's id.
func setupStore(t *testing.T) (*Store, string) {
	t.Helper()
	s, err := Open(tempDir(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	tenant, err := s.GetTenant(TenantID(DefaultWorkspace))
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	proj, err := s.DefaultProject(tenant.ID)
	if err != nil {
		t.Fatalf("DefaultProject: %v", err)
	}
	return s, proj.ID
}

func rect(id string, x, y, w, h float64) map[string]any {
	return map[string]any{
		"id":     id,
		"type":   "rectangle",
		"x":      x,
		"y":      y,
		"width":  w,
		"height": h,
	}
}

func TestSetElementLifecycle(t *testing.T) {
	s, proj := setupStore(t)

	// Create
	el, op, err := s.SetElement(proj, "r1", rect("r1", 0, 0, 100, 60))
	if err != nil {
		t.Fatalf("SetElement: %v", err)
	}
	if op != "create" {
		t.Errorf("op = %q, want %q", op, "create")
	}
	if el.Version != 1 {
		t.Errorf("Version = %d, want 1", el.Version)
	}

	// Update
	payload := rect("r1", 50, 0, 100, 60)
	el, op, err = s.SetElement(proj, "r1", payload)
	if err != nil {
		t.Fatalf("SetElement update: %v", err)
	}
	if op != "update" {
		t.Errorf("op = %q, want %q", op, "update")
	}
	if el.Version != 2 {
		t.Errorf("Version = %d, want 2", el.Version)
	}

	history, err := s.ElementHistory(proj, "r1", 0)
	if err != nil {
		t.Fatalf("ElementHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d entries, want 2", len(history))
	}
	// Newest first
	if history[0].Operation != "update" || history[1].Operation != "create" {
		t.Errorf("history ops = [%s, %s], want [update, create]", history[0].Operation, history[1].Operation)
	}

	// Delete
	deleted, err := s.DeleteElement(proj, "r1")
	if err != nil {
		t.Fatalf("DeleteElement: %v", err)
	}
	if !deleted {
		t.Fatal("DeleteElement returned false")
	}
	if _, err := s.GetElement(proj, "r1"); err == nil {
		t.Error("GetElement should fail for a deleted element")
	}
	elements, err := s.ListElements(proj)
	if err != nil {
		t.Fatal(err)
	}
	if len(elements) != 0 {
		t.Errorf("ListElements returned %d elements after delete, want 0", len(elements))
	}

	history, _ = s.ElementHistory(proj, "r1", 0)
	if len(history) != 3 {
		t.Fatalf("history has %d entries after delete, want 3", len(history))
	}
	if history[0].Operation != "delete" || history[0].Version != 3 {
		t.Errorf("delete row = (%s, v%d), want (delete, v3)", history[0].Operation, history[0].Version)
	}

	// Recreating a deleted id resets the lineage
	el, op, err = s.SetElement(proj, "r1", rect("r1", 10, 10, 50, 50))
	if err != nil {
		t.Fatalf("SetElement recreate: %v", err)
	}
	if op != "create" {
		t.Errorf("op = %q, want %q", op, "create")
	}
	if el.Version != 1 {
		t.Errorf("Version after recreate = %d, want 1", el.Version)
	}
	if el.IsDeleted {
		t.Error("IsDeleted should be false after recreate")
	}
}

func TestVersionMonotonicity(t *testing.T) {
	s, proj := setupStore(t)

	var last int64
	for i := 0; i < 5; i++ {
		el, _, err := s.SetElement(proj, "e1", rect("e1", float64(i), 0, 10, 10))
		if err != nil {
			t.Fatal(err)
		}
		if el.Version <= last && i > 0 {
			t.Fatalf("version %d not greater than previous %d", el.Version, last)
		}
		last = el.Version
	}
	if last != 5 {
		t.Errorf("final version = %d, want 5", last)
	}
}

func TestAuditCompleteness(t *testing.T) {
	s, proj := setupStore(t)

	// 3 sets + 1 delete + 1 recreate = 5 version rows
	for i := 0; i < 3; i++ {
		if _, _, err := s.SetElement(proj, "e1", rect("e1", 0, 0, 10, 10)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.DeleteElement(proj, "e1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.SetElement(proj, "e1", rect("e1", 0, 0, 10, 10)); err != nil {
		t.Fatal(err)
	}

	history, err := s.ElementHistory(proj, "e1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 5 {
		t.Errorf("history has %d rows, want 5", len(history))
	}
}

func TestDeleteMissingAndTwice(t *testing.T) {
	s, proj := setupStore(t)

	deleted, err := s.DeleteElement(proj, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Error("deleting a missing element should return false")
	}

	s.SetElement(proj, "e1", rect("e1", 0, 0, 10, 10))
	if deleted, _ := s.DeleteElement(proj, "e1"); !deleted {
		t.Fatal("first delete should succeed")
	}
	if deleted, _ := s.DeleteElement(proj, "e1"); deleted {
		t.Error("second delete should return false")
	}
}

func TestSetElementRequiresType(t *testing.T) {
	s, proj := setupStore(t)

	_, _, err := s.SetElement(proj, "bad", map[string]any{"id": "bad", "x": 1.0})
	if err == nil {
		t.Fatal("expected error for payload without a type")
	}
	// No partial state
	if n, _ := s.CountElements(proj); n != 0 {
		t.Errorf("CountElements = %d after failed set, want 0", n)
	}
	if history, _ := s.ElementHistory(proj, "bad", 10); len(history) != 0 {
		t.Errorf("failed set left %d version rows", len(history))
	}
}

func TestClearElements(t *testing.T) {
	s, proj := setupStore(t)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("e%d", i)
		if _, _, err := s.SetElement(proj, id, rect(id, float64(i*10), 0, 10, 10)); err != nil {
			t.Fatal(err)
		}
	}

	count, err := s.ClearElements(proj)
	if err != nil {
		t.Fatalf("ClearElements: %v", err)
	}
	if count != 5 {
		t.Errorf("ClearElements = %d, want 5", count)
	}

	elements, _ := s.ListElements(proj)
	if len(elements) != 0 {
		t.Errorf("ListElements returned %d after clear, want 0", len(elements))
	}

	history, _ := s.ProjectHistory(proj, 100)
	var deletes int
	for _, v := range history {
		if v.Operation == "delete" {
			deletes++
		}
	}
	if deletes != 5 {
		t.Errorf("found %d delete version rows, want 5", deletes)
	}
}

func TestQueryElements(t *testing.T) {
	s, proj := setupStore(t)

	r := rect("r1", 0, 0, 10, 10)
	r["fillColor"] = "#ff0000"
	s.SetElement(proj, "r1", r)
	s.SetElement(proj, "r2", rect("r2", 0, 0, 10, 10))
	e := map[string]any{"id": "c1", "type": "ellipse", "x": 5.0, "y": 5.0, "width": 10.0, "height": 10.0}
	s.SetElement(proj, "c1", e)

	byType, err := s.QueryElements(proj, "rectangle", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(byType) != 2 {
		t.Errorf("query by type returned %d, want 2", len(byType))
	}

	byField, err := s.QueryElements(proj, "", map[string]any{"fillColor": "#ff0000"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byField) != 1 || byField[0].ID != "r1" {
		t.Errorf("query by field returned %v, want [r1]", byField)
	}

	both, err := s.QueryElements(proj, "ellipse", map[string]any{"x": 5.0})
	if err != nil {
		t.Fatal(err)
	}
	if len(both) != 1 || both[0].ID != "c1" {
		t.Errorf("query by type+field returned %v, want [c1]", both)
	}
}

func TestReplaceElements(t *testing.T) {
	s, proj := setupStore(t)

	s.SetElement(proj, "old1", rect("old1", 0, 0, 10, 10))
	s.SetElement(proj, "old2", rect("old2", 20, 0, 10, 10))

	stored, err := s.ReplaceElements(proj, []map[string]any{
		rect("new1", 0, 0, 5, 5),
		rect("new2", 10, 0, 5, 5),
		rect("new3", 20, 0, 5, 5),
	})
	if err != nil {
		t.Fatalf("ReplaceElements: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("stored %d elements, want 3", len(stored))
	}

	elements, _ := s.ListElements(proj)
	if len(elements) != 3 {
		t.Errorf("ListElements = %d, want 3", len(elements))
	}
	for _, el := range elements {
		if el.IsDeleted {
			t.Errorf("element %q is soft-deleted after replace", el.ID)
		}
		if el.Version != 1 {
			t.Errorf("element %q version = %d, want 1", el.ID, el.Version)
		}
	}
}

func TestReplaceElementsAtomicity(t *testing.T) {
	s, proj := setupStore(t)

	s.SetElement(proj, "keep1", rect("keep1", 0, 0, 10, 10))
	s.SetElement(proj, "keep2", rect("keep2", 20, 0, 10, 10))

	// Second payload has no type, which fails mid-batch.
	_, err := s.ReplaceElements(proj, []map[string]any{
		rect("new1", 0, 0, 5, 5),
		{"id": "broken"},
	})
	if err == nil {
		t.Fatal("expected mid-batch failure")
	}

	// Pre-call state must be unchanged.
	elements, _ := s.ListElements(proj)
	if len(elements) != 2 {
		t.Fatalf("ListElements = %d after failed replace, want 2", len(elements))
	}
	ids := map[string]bool{}
	for _, el := range elements {
		ids[el.ID] = true
	}
	if !ids["keep1"] || !ids["keep2"] {
		t.Errorf("surviving ids = %v, want keep1 and keep2", ids)
	}
	if history, _ := s.ElementHistory(proj, "new1", 10); len(history) != 0 {
		t.Errorf("rolled-back element left %d version rows", len(history))
	}
}

func TestSnapshots(t *testing.T) {
	s, proj := setupStore(t)

	elements := []json.RawMessage{
		json.RawMessage(`{"id":"a","type":"rectangle"}`),
		json.RawMessage(`{"id":"b","type":"ellipse"}`),
	}

	snap, err := s.SaveSnapshot(proj, "v1", elements)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if len(snap.Elements) != 2 {
		t.Errorf("snapshot has %d elements, want 2", len(snap.Elements))
	}

	// Overwrite with a different set; same name stays a single snapshot.
	if _, err := s.SaveSnapshot(proj, "v1", elements[:1]); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSnapshot(proj, "v1")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if len(got.Elements) != 1 {
		t.Errorf("overwritten snapshot has %d elements, want 1", len(got.Elements))
	}

	if _, err := s.SaveSnapshot(proj, "v2", elements); err != nil {
		t.Fatal(err)
	}
	infos, err := s.ListSnapshots(proj)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("ListSnapshots = %d, want 2", len(infos))
	}

	if _, err := s.GetSnapshot(proj, "missing"); err == nil {
		t.Error("expected error for missing snapshot")
	}
}

func TestGetElementNotFound(t *testing.T) {
	s, proj := setupStore(t)
	if _, err := s.GetElement(proj, "ghost"); err == nil {
		t.Error("expected error for missing element")
	}
}

package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"engram/internal/memory"
	"engram/internal/schema"
	"engram/internal/store"
)

func syncSchema() schema.SchemaDef {
	return schema.SchemaDef{
		Nodes: []schema.NodeDef{
			{Label: "Service", Properties: map[string]schema.PropertyDef{
				"name":    {Kind: schema.KindString, Required: true},
				"status":  {Kind: schema.KindEnum, Values: []string{"active", "deprecated"}, Default: "active"},
				"port":    {Kind: schema.KindNumber},
				"content": {Kind: schema.KindString},
			}},
			{Label: "Team", Properties: map[string]schema.PropertyDef{
				"name": {Kind: schema.KindString, Required: true},
			}},
		},
		Edges: []schema.EdgeDef{
			{Type: "OWNED_BY", From: "Service", To: "Team"},
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *memory.Pipeline, *memory.Reader, string) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg, err := schema.NewRegistry(syncSchema())
	if err != nil {
		t.Fatalf("Failed to compile schema: %v", err)
	}
	p := memory.NewPipeline(reg, st)
	r := memory.NewReader(st)
	return NewEngine(r, p, ""), p, r, t.TempDir()
}

func syncOpts(dir string) Options {
	return Options{DocsDir: dir, Actor: "sync-test"}
}

func docPath(dir, label, id string) string {
	return filepath.Join(dir, label, id+".md")
}

func readDoc(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(raw)
}

func editDoc(t *testing.T, path, old, new string) {
	t.Helper()
	raw := readDoc(t, path)
	if !strings.Contains(raw, old) {
		t.Fatalf("Doc %s does not contain %q", path, old)
	}
	if err := os.WriteFile(path, []byte(strings.Replace(raw, old, new, 1)), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func hashOf(t *testing.T, raw string) string {
	t.Helper()
	const key = "_syncHash: "
	i := strings.Index(raw, key)
	if i < 0 {
		t.Fatal("Doc has no _syncHash")
	}
	return raw[i+len(key) : i+len(key)+40]
}

// assertClean runs a follow-up sync and expects it to find nothing.
func assertClean(t *testing.T, e *Engine, opts Options) {
	t.Helper()
	res, err := e.Sync(context.Background(), opts)
	if err != nil {
		t.Fatalf("Follow-up sync failed: %v", err)
	}
	if res.Created+res.Updated+res.Deleted+len(res.Conflicts)+len(res.Errors) != 0 {
		t.Errorf("Expected converged follow-up sync, got %+v", res)
	}
}

func TestSyncEmptyBothSides(t *testing.T) {
	e, _, _, dir := newTestEngine(t)
	res, err := e.Sync(context.Background(), syncOpts(dir))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Created+res.Updated+res.Deleted != 0 {
		t.Errorf("Expected empty result, got %+v", res)
	}
}

func TestSyncSeedsDocsFromGraph(t *testing.T) {
	e, p, _, dir := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"svc-1", "svc-2"} {
		if _, err := p.Upsert(ctx, "Service", id, map[string]interface{}{"name": id}, "seed"); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	if _, err := p.Upsert(ctx, "Team", "team-1", map[string]interface{}{"name": "platform"}, "seed"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	res, err := e.Sync(ctx, syncOpts(dir))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Created != 3 || res.Updated != 0 || res.Deleted != 0 {
		t.Errorf("Result = %+v, want 3 created", res)
	}

	raw := readDoc(t, docPath(dir, "Service", "svc-1"))
	if !strings.Contains(raw, "_id: svc-1") || !strings.Contains(raw, "_syncHash: ") {
		t.Errorf("Rendered doc missing frontmatter:\n%s", raw)
	}
	if _, err := os.Stat(docPath(dir, "Team", "team-1")); err != nil {
		t.Errorf("Team doc not written: %v", err)
	}

	assertClean(t, e, syncOpts(dir))
}

func TestSyncCreatesGraphFromDoc(t *testing.T) {
	e, _, r, dir := newTestEngine(t)
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Join(dir, "Service"), 0755); err != nil {
		t.Fatal(err)
	}
	raw := "---\n_id: svc-9\n_label: Service\nname: billing\n---\n\nBilling service.\n"
	if err := os.WriteFile(docPath(dir, "Service", "svc-9"), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := e.Sync(ctx, syncOpts(dir))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Created != 1 || len(res.Errors) != 0 {
		t.Errorf("Result = %+v, want 1 created", res)
	}

	es, err := r.Current(ctx, "svc-9")
	if err != nil || es == nil {
		t.Fatalf("Entity not created: es=%v err=%v", es, err)
	}
	if es.State.Props["name"] != "billing" || es.State.Props["status"] != "active" {
		t.Errorf("Props = %v", es.State.Props)
	}
	if es.State.Props["content"] != "Billing service." {
		t.Errorf("content = %v", es.State.Props["content"])
	}

	// The doc gets re-rendered with version and hash stamped.
	after := readDoc(t, docPath(dir, "Service", "svc-9"))
	if !strings.Contains(after, "_version: 1") || !strings.Contains(after, "_syncHash: ") {
		t.Errorf("Doc not restamped:\n%s", after)
	}
	if !strings.Contains(after, "status: active") {
		t.Errorf("Default not rendered back:\n%s", after)
	}
	if !strings.Contains(after, "\nBilling service.\n") {
		t.Errorf("Body lost:\n%s", after)
	}

	assertClean(t, e, syncOpts(dir))
}

func TestSyncDocEditUpdatesGraph(t *testing.T) {
	e, p, r, dir := newTestEngine(t)
	ctx := context.Background()

	if _, err := p.Upsert(ctx, "Service", "svc-1", map[string]interface{}{"name": "auth-api"}, "seed"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := e.Sync(ctx, syncOpts(dir)); err != nil {
		t.Fatalf("Seed sync failed: %v", err)
	}

	path := docPath(dir, "Service", "svc-1")
	before := readDoc(t, path)
	editDoc(t, path, "status: active", "status: deprecated")

	res, err := e.Sync(ctx, syncOpts(dir))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Updated != 1 || res.Created != 0 || len(res.Conflicts) != 0 || len(res.Errors) != 0 {
		t.Errorf("Result = %+v, want 1 updated and no conflicts", res)
	}

	es, err := r.Current(ctx, "svc-1")
	if err != nil || es == nil {
		t.Fatalf("Current failed: %v", err)
	}
	if es.State.Props["status"] != "deprecated" {
		t.Errorf("status = %v, want deprecated", es.State.Props["status"])
	}
	if es.State.Version != 2 {
		t.Errorf("Version = %d, want 2", es.State.Version)
	}

	after := readDoc(t, path)
	if hashOf(t, before) == hashOf(t, after) {
		t.Error("Expected sync hash to change after doc-driven update")
	}
	if !strings.Contains(after, "_version: 2") {
		t.Errorf("Doc not restamped with new version:\n%s", after)
	}

	assertClean(t, e, syncOpts(dir))
}

func TestSyncGraphDriftRefreshesDoc(t *testing.T) {
	e, p, _, dir := newTestEngine(t)
	ctx := context.Background()

	if _, err := p.Upsert(ctx, "Service", "svc-1", map[string]interface{}{"name": "auth-api", "port": 8080}, "seed"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := e.Sync(ctx, syncOpts(dir)); err != nil {
		t.Fatalf("Seed sync failed: %v", err)
	}

	// Graph moves; the doc still matches its last render.
	if _, err := p.Upsert(ctx, "Service", "svc-1", map[string]interface{}{"name": "auth-api", "port": 9090}, "agent-2"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	res, err := e.Sync(ctx, syncOpts(dir))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Updated != 1 || len(res.Conflicts) != 0 {
		t.Errorf("Result = %+v, want 1 updated and no conflicts", res)
	}

	raw := readDoc(t, docPath(dir, "Service", "svc-1"))
	if !strings.Contains(raw, "port: 9090") || !strings.Contains(raw, "_version: 2") {
		t.Errorf("Doc not refreshed:\n%s", raw)
	}

	assertClean(t, e, syncOpts(dir))
}

// conflictFixture seeds one entity, syncs, then edits both sides so the
// next sync sees a genuine two-sided conflict on port.
func conflictFixture(t *testing.T) (*Engine, *memory.Pipeline, *memory.Reader, string) {
	t.Helper()
	e, p, r, dir := newTestEngine(t)
	ctx := context.Background()

	if _, err := p.Upsert(ctx, "Service", "svc-1", map[string]interface{}{"name": "auth-api", "port": 8080}, "seed"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := e.Sync(ctx, syncOpts(dir)); err != nil {
		t.Fatalf("Seed sync failed: %v", err)
	}
	if _, err := p.Upsert(ctx, "Service", "svc-1", map[string]interface{}{"name": "auth-api", "port": 9090}, "agent-2"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	editDoc(t, docPath(dir, "Service", "svc-1"), "port: 8080", "port: 1234")
	return e, p, r, dir
}

func TestSyncConflictGraphWins(t *testing.T) {
	e, _, r, dir := conflictFixture(t)
	ctx := context.Background()

	res, err := e.Sync(ctx, syncOpts(dir))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("Conflicts = %d, want 1", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if c.EntityID != "svc-1" || c.Label != "Service" || c.Resolution != GraphWins {
		t.Errorf("Conflict = %+v", c)
	}
	if c.GraphHash == "" || c.DocHash == "" || c.GraphHash == c.DocHash {
		t.Errorf("Expected distinct hashes, got %+v", c)
	}
	// A conflicted entity is counted once, under Conflicts.
	if res.Updated != 0 || res.Created != 0 {
		t.Errorf("Result = %+v, want no updates", res)
	}

	// Graph keeps its value; the doc is restored from it.
	es, _ := r.Current(ctx, "svc-1")
	if es.State.Props["port"] != int64(9090) {
		t.Errorf("port = %v, want 9090", es.State.Props["port"])
	}
	hist, _ := r.History(ctx, "svc-1")
	if len(hist) != 2 {
		t.Errorf("History length = %d, want 2 (no conflict write)", len(hist))
	}
	raw := readDoc(t, docPath(dir, "Service", "svc-1"))
	if !strings.Contains(raw, "port: 9090") {
		t.Errorf("Doc not restored from graph:\n%s", raw)
	}

	assertClean(t, e, syncOpts(dir))
}

func TestSyncConflictDocsWins(t *testing.T) {
	e, _, r, dir := conflictFixture(t)
	ctx := context.Background()

	opts := syncOpts(dir)
	opts.Strategy = DocsWins
	res, err := e.Sync(ctx, opts)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Resolution != DocsWins {
		t.Fatalf("Conflicts = %+v", res.Conflicts)
	}
	if res.Updated != 0 {
		t.Errorf("Updated = %d, conflicted entity must not double-count", res.Updated)
	}

	es, _ := r.Current(ctx, "svc-1")
	if es.State.Props["port"] != int64(1234) {
		t.Errorf("port = %v, want doc value 1234", es.State.Props["port"])
	}
	if es.State.Version != 3 {
		t.Errorf("Version = %d, want 3", es.State.Version)
	}
	raw := readDoc(t, docPath(dir, "Service", "svc-1"))
	if !strings.Contains(raw, "port: 1234") || !strings.Contains(raw, "_version: 3") {
		t.Errorf("Doc not re-rendered from resolution:\n%s", raw)
	}

	assertClean(t, e, opts)
}

func TestSyncConflictMerge(t *testing.T) {
	e, p, r, dir := newTestEngine(t)
	ctx := context.Background()

	if _, err := p.Upsert(ctx, "Service", "svc-1", map[string]interface{}{"name": "auth-api"}, "seed"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := e.Sync(ctx, syncOpts(dir)); err != nil {
		t.Fatalf("Seed sync failed: %v", err)
	}
	// Graph gains a property the doc has never seen; the doc edits
	// another one.
	if _, err := p.Upsert(ctx, "Service", "svc-1", map[string]interface{}{"name": "auth-api", "port": 9090}, "agent-2"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	editDoc(t, docPath(dir, "Service", "svc-1"), "status: active", "status: deprecated")

	opts := syncOpts(dir)
	opts.Strategy = Merge
	res, err := e.Sync(ctx, opts)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Resolution != Merge {
		t.Fatalf("Conflicts = %+v", res.Conflicts)
	}

	// Union of both sides, doc winning the contested key.
	es, _ := r.Current(ctx, "svc-1")
	if es.State.Props["port"] != int64(9090) {
		t.Errorf("port = %v, want graph value kept", es.State.Props["port"])
	}
	if es.State.Props["status"] != "deprecated" {
		t.Errorf("status = %v, want doc value", es.State.Props["status"])
	}
	raw := readDoc(t, docPath(dir, "Service", "svc-1"))
	if !strings.Contains(raw, "port: 9090") || !strings.Contains(raw, "status: deprecated") {
		t.Errorf("Doc missing merged values:\n%s", raw)
	}

	assertClean(t, e, opts)
}

func TestSyncConflictFailAborts(t *testing.T) {
	e, _, r, dir := conflictFixture(t)
	ctx := context.Background()

	path := docPath(dir, "Service", "svc-1")
	before := readDoc(t, path)

	opts := syncOpts(dir)
	opts.Strategy = Fail
	res, err := e.Sync(ctx, opts)
	if err == nil {
		t.Fatal("Expected conflict error")
	}
	var confErr *ConflictError
	if !errors.As(err, &confErr) {
		t.Fatalf("Error type = %T: %v", err, err)
	}
	if confErr.EntityID != "svc-1" || confErr.Label != "Service" {
		t.Errorf("ConflictError = %+v", confErr)
	}
	// The result still carries the full conflict list.
	if len(res.Conflicts) != 1 || res.Conflicts[0].Resolution != Fail {
		t.Errorf("Conflicts = %+v", res.Conflicts)
	}

	// Nothing was applied on either side.
	hist, _ := r.History(ctx, "svc-1")
	if len(hist) != 2 {
		t.Errorf("History length = %d, want 2", len(hist))
	}
	if after := readDoc(t, path); after != before {
		t.Error("Doc was modified despite abort")
	}
}

func TestSyncInvalidDocEditBecomesError(t *testing.T) {
	e, p, r, dir := newTestEngine(t)
	ctx := context.Background()

	if _, err := p.Upsert(ctx, "Service", "svc-1", map[string]interface{}{"name": "auth-api"}, "seed"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := e.Sync(ctx, syncOpts(dir)); err != nil {
		t.Fatalf("Seed sync failed: %v", err)
	}

	path := docPath(dir, "Service", "svc-1")
	editDoc(t, path, "status: active", "status: bogus")

	res, err := e.Sync(ctx, syncOpts(dir))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(res.Errors) != 1 || res.Updated != 0 {
		t.Fatalf("Result = %+v, want 1 error and no update", res)
	}
	var vErr *schema.ValidationError
	if !errors.As(res.Errors[0], &vErr) {
		t.Errorf("Error type = %T: %v", res.Errors[0].Err, res.Errors[0].Err)
	}

	// The bad version never lands; the doc is restored from graph truth.
	es, _ := r.Current(ctx, "svc-1")
	if es.State.Version != 1 || es.State.Props["status"] != "active" {
		t.Errorf("State = v%d %v", es.State.Version, es.State.Props)
	}
	raw := readDoc(t, path)
	if strings.Contains(raw, "bogus") || !strings.Contains(raw, "status: active") {
		t.Errorf("Doc not restored:\n%s", raw)
	}

	assertClean(t, e, syncOpts(dir))
}

func TestSyncDeletedEntityRemovesDoc(t *testing.T) {
	e, p, _, dir := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"svc-1", "svc-2"} {
		if _, err := p.Upsert(ctx, "Service", id, map[string]interface{}{"name": id}, "seed"); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	if _, err := e.Sync(ctx, syncOpts(dir)); err != nil {
		t.Fatalf("Seed sync failed: %v", err)
	}

	if err := p.Delete(ctx, "svc-1", "reaper"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	res, err := e.Sync(ctx, syncOpts(dir))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", res.Deleted)
	}
	if _, err := os.Stat(docPath(dir, "Service", "svc-1")); !os.IsNotExist(err) {
		t.Error("Doc for deleted entity still present")
	}
	if _, err := os.Stat(docPath(dir, "Service", "svc-2")); err != nil {
		t.Errorf("Live doc removed: %v", err)
	}

	assertClean(t, e, syncOpts(dir))
}

func TestSyncScopedLabels(t *testing.T) {
	e, p, _, dir := newTestEngine(t)
	ctx := context.Background()

	if _, err := p.Upsert(ctx, "Service", "svc-1", map[string]interface{}{"name": "auth-api"}, "seed"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := p.Upsert(ctx, "Team", "team-1", map[string]interface{}{"name": "platform"}, "seed"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := e.Sync(ctx, syncOpts(dir)); err != nil {
		t.Fatalf("Seed sync failed: %v", err)
	}

	// A Service-scoped pass must neither touch nor remove Team docs.
	if _, err := p.Upsert(ctx, "Team", "team-1", map[string]interface{}{"name": "platform-core"}, "agent-2"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	scoped := syncOpts(dir)
	scoped.Labels = []string{"Service"}
	res, err := e.Sync(ctx, scoped)
	if err != nil {
		t.Fatalf("Scoped sync failed: %v", err)
	}
	if res.Created+res.Updated+res.Deleted != 0 {
		t.Errorf("Scoped result = %+v, want nothing", res)
	}
	raw := readDoc(t, docPath(dir, "Team", "team-1"))
	if strings.Contains(raw, "platform-core") {
		t.Error("Scoped sync refreshed an out-of-scope doc")
	}

	// A full pass picks the Team drift up.
	res, err = e.Sync(ctx, syncOpts(dir))
	if err != nil {
		t.Fatalf("Full sync failed: %v", err)
	}
	if res.Updated != 1 {
		t.Errorf("Updated = %d, want 1", res.Updated)
	}
	raw = readDoc(t, docPath(dir, "Team", "team-1"))
	if !strings.Contains(raw, "platform-core") {
		t.Errorf("Team doc not refreshed:\n%s", raw)
	}
}

func TestSyncRendersRelationships(t *testing.T) {
	e, p, _, dir := newTestEngine(t)
	ctx := context.Background()

	if _, err := p.Upsert(ctx, "Service", "svc-1", map[string]interface{}{"name": "auth-api"}, "seed"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := p.Upsert(ctx, "Team", "team-1", map[string]interface{}{"name": "platform"}, "seed"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := p.Relate(ctx, "svc-1", "team-1", "OWNED_BY", "Service", "Team", nil, "seed"); err != nil {
		t.Fatalf("Relate failed: %v", err)
	}

	if _, err := e.Sync(ctx, syncOpts(dir)); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	raw := readDoc(t, docPath(dir, "Service", "svc-1"))
	if !strings.Contains(raw, "```mermaid") || !strings.Contains(raw, "-->|OWNED_BY|") {
		t.Errorf("Service doc missing diagram:\n%s", raw)
	}
	if raw := readDoc(t, docPath(dir, "Team", "team-1")); !strings.Contains(raw, "OWNED_BY") {
		t.Errorf("Team doc missing incoming edge:\n%s", raw)
	}

	// Closing the edge drops the diagram on the next pass.
	if err := p.Unrelate(ctx, "svc-1", "team-1", "OWNED_BY", "seed"); err != nil {
		t.Fatalf("Unrelate failed: %v", err)
	}
	if _, err := e.Sync(ctx, syncOpts(dir)); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if raw := readDoc(t, docPath(dir, "Service", "svc-1")); strings.Contains(raw, "mermaid") {
		t.Errorf("Diagram not removed:\n%s", raw)
	}
}

func TestSyncDuplicateDocsConverge(t *testing.T) {
	e, p, r, dir := newTestEngine(t)
	ctx := context.Background()

	if _, err := p.Upsert(ctx, "Service", "svc-1", map[string]interface{}{"name": "auth-api"}, "seed"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := e.Sync(ctx, syncOpts(dir)); err != nil {
		t.Fatalf("Seed sync failed: %v", err)
	}

	// A copied doc with the same id: walk order makes it win the parse,
	// so its edit lands in the graph; the copy itself is cleaned up.
	canonical := docPath(dir, "Service", "svc-1")
	dup := filepath.Join(dir, "Service", "aaa-copy.md")
	raw := strings.Replace(readDoc(t, canonical), "name: auth-api", "name: copied", 1)
	if err := os.WriteFile(dup, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := e.Sync(ctx, syncOpts(dir))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Updated != 1 || res.Deleted != 1 {
		t.Errorf("Result = %+v, want 1 updated 1 deleted", res)
	}
	es, _ := r.Current(ctx, "svc-1")
	if es.State.Props["name"] != "copied" {
		t.Errorf("name = %v, want copied", es.State.Props["name"])
	}
	if _, err := os.Stat(dup); !os.IsNotExist(err) {
		t.Error("Duplicate doc not removed")
	}
	if !strings.Contains(readDoc(t, canonical), "name: copied") {
		t.Error("Canonical doc not refreshed")
	}

	assertClean(t, e, syncOpts(dir))
}

func TestSyncUnknownStrategy(t *testing.T) {
	e, _, _, dir := newTestEngine(t)
	opts := syncOpts(dir)
	opts.Strategy = Strategy("bogus")
	if _, err := e.Sync(context.Background(), opts); err == nil {
		t.Error("Expected error for unknown strategy")
	}
}

func TestValidStrategy(t *testing.T) {
	for _, s := range []Strategy{GraphWins, DocsWins, Merge, Fail} {
		if !ValidStrategy(s) {
			t.Errorf("ValidStrategy(%s) = false", s)
		}
	}
	if ValidStrategy("theirs") {
		t.Error("ValidStrategy accepted unknown name")
	}
}

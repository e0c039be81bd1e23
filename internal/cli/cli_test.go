package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/specrepo/internal/config"
	"github.com/rshade/specrepo/internal/document"
	"github.com/rshade/specrepo/internal/expr"
	"github.com/rshade/specrepo/internal/store"
)

const fixture = `- id: p1
  kind: person
  data: {name: Alice, age: 34, tags: [admin, ops]}
- id: p2
  kind: person
  data: {name: Bob, age: 17}
---
id: r1
kind: robot
data: {name: Robo, age: 3}
`

type result struct {
	stdout string
	stderr string
}

func execute(t *testing.T, stdin string, args ...string) (result, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return result{stdout: out.String(), stderr: errOut.String()}, err
}

// isolate keeps a real ~/.specrepo/config.yaml and SPECREPO_* variables out
// of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, config.EnvPrefix) {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
}

type backend struct {
	name string
	args func(dir string) []string
}

func persistentBackends() []backend {
	return []backend{
		{name: "jsonfile", args: func(dir string) []string {
			return []string{"--backend", "jsonfile", "--store-path", filepath.Join(dir, "docs.json")}
		}},
		{name: "sqlite", args: func(dir string) []string {
			return []string{"--backend", "sqlite", "--store-path", filepath.Join(dir, "docs.db"), "--table", "docs"}
		}},
	}
}

func seeded(t *testing.T, b backend) []string {
	t.Helper()
	storeArgs := b.args(t.TempDir())
	res, err := execute(t, fixture, append([]string{"put", "--file", "-"}, storeArgs...)...)
	require.NoError(t, err)
	assert.Equal(t, "Stored 3 documents\n", res.stdout)
	return storeArgs
}

func queryIDs(t *testing.T, storeArgs []string, args ...string) ([]string, pageMeta) {
	t.Helper()
	res, err := execute(t, "", append(append([]string{"query", "-o", "json"}, args...), storeArgs...)...)
	require.NoError(t, err)

	var page struct {
		Items      []document.Document `json:"items"`
		Pagination pageMeta            `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &page))
	ids := make([]string, len(page.Items))
	for i, d := range page.Items {
		ids[i] = d.ID
	}
	return ids, page.Pagination
}

type pageMeta struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	TotalItems  int  `json:"total_items"`
	HasNext     bool `json:"has_next"`
}

func TestQuery(t *testing.T) {
	isolate(t)
	for _, b := range persistentBackends() {
		t.Run(b.name, func(t *testing.T) {
			storeArgs := seeded(t, b)

			tests := []struct {
				name     string
				args     []string
				wantIDs  []string
				wantMeta pageMeta
			}{
				{
					name:     "all in storage order",
					wantIDs:  []string{"p1", "p2", "r1"},
					wantMeta: pageMeta{CurrentPage: 1, TotalPages: 1, TotalItems: 3},
				},
				{
					name:     "single condition",
					args:     []string{"--where", "data.age>=18"},
					wantIDs:  []string{"p1"},
					wantMeta: pageMeta{CurrentPage: 1, TotalPages: 1, TotalItems: 1},
				},
				{
					name:     "all conditions",
					args:     []string{"--where", "kind=person", "--where", "data.name^=B"},
					wantIDs:  []string{"p2"},
					wantMeta: pageMeta{CurrentPage: 1, TotalPages: 1, TotalItems: 1},
				},
				{
					name:     "any condition",
					args:     []string{"--where", "kind=robot", "--where", "data.age>30", "--any", "--sort", "id"},
					wantIDs:  []string{"p1", "r1"},
					wantMeta: pageMeta{CurrentPage: 1, TotalPages: 1, TotalItems: 2},
				},
				{
					name:     "sorted descending",
					args:     []string{"--sort", "data.age:desc"},
					wantIDs:  []string{"p1", "p2", "r1"},
					wantMeta: pageMeta{CurrentPage: 1, TotalPages: 1, TotalItems: 3},
				},
				{
					name:     "multi-key sort",
					args:     []string{"--sort", "kind:desc", "--sort", "data.age"},
					wantIDs:  []string{"r1", "p2", "p1"},
					wantMeta: pageMeta{CurrentPage: 1, TotalPages: 1, TotalItems: 3},
				},
				{
					name:     "second page",
					args:     []string{"--sort", "id", "--page", "2", "--page-size", "2"},
					wantIDs:  []string{"r1"},
					wantMeta: pageMeta{CurrentPage: 2, TotalPages: 2, TotalItems: 3},
				},
				{
					name:     "first page has next",
					args:     []string{"--sort", "id", "--page-size", "2"},
					wantIDs:  []string{"p1", "p2"},
					wantMeta: pageMeta{CurrentPage: 1, TotalPages: 2, TotalItems: 3, HasNext: true},
				},
				{
					name:     "created after a date",
					args:     []string{"--where", "created_at>2024-01-01"},
					wantIDs:  []string{"p1", "p2", "r1"},
					wantMeta: pageMeta{CurrentPage: 1, TotalPages: 1, TotalItems: 3},
				},
				{
					name:     "created before a date",
					args:     []string{"--where", "created_at<2024-01-01T12:00"},
					wantIDs:  []string{},
					wantMeta: pageMeta{CurrentPage: 1, TotalPages: 0, TotalItems: 0},
				},
				{
					name:     "no match",
					args:     []string{"--where", "kind=alien"},
					wantIDs:  []string{},
					wantMeta: pageMeta{CurrentPage: 1, TotalPages: 0, TotalItems: 0},
				},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					ids, meta := queryIDs(t, storeArgs, tt.args...)
					assert.Equal(t, tt.wantIDs, ids)
					assert.Equal(t, tt.wantMeta, meta)
				})
			}
		})
	}
}

func TestQuery_TableOutput(t *testing.T) {
	isolate(t)
	storeArgs := seeded(t, persistentBackends()[0])

	res, err := execute(t, "", append([]string{"query", "--where", "kind=person", "--sort", "id"}, storeArgs...)...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[0], "KIND")
	assert.True(t, strings.HasPrefix(lines[2], "p1"))
	assert.Contains(t, lines[2], `"name":"Alice"`)
	assert.True(t, strings.HasPrefix(lines[3], "p2"))
	assert.Equal(t, "Page 1 of 1 (2 documents)", lines[5])
}

func TestQuery_YAMLOutput(t *testing.T) {
	isolate(t)
	storeArgs := seeded(t, persistentBackends()[0])

	res, err := execute(t, "", append([]string{"query", "--where", "id=r1", "-o", "yaml"}, storeArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, res.stdout, "id: r1")
	assert.Contains(t, res.stdout, "kind: robot")
	assert.Contains(t, res.stdout, "total_items: 1")
}

func TestQuery_MemoryBackendStartsEmpty(t *testing.T) {
	isolate(t)
	res, err := execute(t, "", "query")
	require.NoError(t, err)
	assert.Equal(t, "No documents found.\n\nPage 1 of 1 (0 documents)\n", res.stdout)
}

func TestQuery_Errors(t *testing.T) {
	isolate(t)
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "bad condition", args: []string{"query", "--where", "data.age"}, wantErr: expr.ErrInvalidCondition},
		{name: "bad output", args: []string{"query", "-o", "xml"}, wantErr: ErrInvalidOutput},
		{name: "page zero", args: []string{"query", "--page", "0"}},
		{name: "page size above max", args: []string{"query", "--page-size", "5000"}},
		{name: "bad sort order", args: []string{"query", "--sort", "id:sideways"}},
		{name: "unknown backend", args: []string{"query", "--backend", "tape"}, wantErr: config.ErrUnknownBackend},
		{name: "backend without path", args: []string{"query", "--backend", "sqlite"}, wantErr: config.ErrMissingStorePath},
		{name: "missing config file", args: []string{"query", "--config", "/nonexistent/specrepo.yaml"}},
		{name: "browse without terminal", args: []string{"browse"}, wantErr: ErrNotTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", tt.args...)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestGet(t *testing.T) {
	isolate(t)
	storeArgs := seeded(t, persistentBackends()[1])

	res, err := execute(t, "", append([]string{"get", "p2", "-o", "yaml"}, storeArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, res.stdout, "id: p2")
	assert.Contains(t, res.stdout, "name: Bob")

	_, err = execute(t, "", append([]string{"get", "nobody"}, storeArgs...)...)
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDelete(t *testing.T) {
	isolate(t)
	for _, b := range persistentBackends() {
		t.Run(b.name, func(t *testing.T) {
			storeArgs := seeded(t, b)

			res, err := execute(t, "", append([]string{"delete", "p2"}, storeArgs...)...)
			require.NoError(t, err)
			assert.Equal(t, "Deleted p2\n", res.stdout)

			ids, _ := queryIDs(t, storeArgs)
			assert.Equal(t, []string{"p1", "r1"}, ids)

			_, err = execute(t, "", append([]string{"delete", "p2"}, storeArgs...)...)
			require.ErrorIs(t, err, ErrDocumentNotFound)
		})
	}
}

func TestPut(t *testing.T) {
	isolate(t)

	t.Run("from file in batches", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "docs.yaml")
		require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))
		storeArgs := []string{"--backend", "jsonfile", "--store-path", filepath.Join(dir, "docs.json")}

		res, err := execute(t, "", append([]string{"put", "--file", path, "--batch-size", "1"}, storeArgs...)...)
		require.NoError(t, err)
		assert.Equal(t, "Stored 3 documents\n", res.stdout)
	})

	t.Run("several files keep their order", func(t *testing.T) {
		dir := t.TempDir()
		first := filepath.Join(dir, "people.yaml")
		second := filepath.Join(dir, "robots.yaml")
		require.NoError(t, os.WriteFile(first, []byte("- {id: a1, kind: person}\n- {id: a2, kind: person}\n"), 0o600))
		require.NoError(t, os.WriteFile(second, []byte("id: b1\nkind: robot\n"), 0o600))
		storeArgs := []string{"--backend", "jsonfile", "--store-path", filepath.Join(dir, "docs.json")}

		res, err := execute(t, "id: c1\nkind: note\n",
			append([]string{"put", "-f", second, "-f", "-", "-f", first, "--workers", "3"}, storeArgs...)...)
		require.NoError(t, err)
		assert.Equal(t, "Stored 4 documents\n", res.stdout)

		ids, _ := queryIDs(t, storeArgs)
		assert.Equal(t, []string{"b1", "c1", "a1", "a2"}, ids)
	})

	t.Run("every bad file is reported", func(t *testing.T) {
		dir := t.TempDir()
		good := filepath.Join(dir, "good.yaml")
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(good, []byte("id: g1\n"), 0o600))
		require.NoError(t, os.WriteFile(bad, []byte("- 1\n"), 0o600))
		missing := filepath.Join(dir, "missing.yaml")
		storeArgs := []string{"--backend", "jsonfile", "--store-path", filepath.Join(dir, "docs.json")}

		_, err := execute(t, "", append([]string{"put", "-f", good, "-f", bad, "-f", missing}, storeArgs...)...)
		require.ErrorIs(t, err, document.ErrInvalidDocument)
		assert.Contains(t, err.Error(), "bad.yaml")
		assert.Contains(t, err.Error(), "missing.yaml")

		ids, _ := queryIDs(t, storeArgs)
		assert.Empty(t, ids, "nothing is stored when a file fails")
	})

	t.Run("stdin twice", func(t *testing.T) {
		_, err := execute(t, fixture, "put", "-f", "-", "-f", "-")
		require.ErrorIs(t, err, ErrStdinTwice)
	})

	t.Run("generates ids", func(t *testing.T) {
		storeArgs := []string{"--backend", "jsonfile", "--store-path", filepath.Join(t.TempDir(), "docs.json")}
		_, err := execute(t, "kind: note\ndata: {text: hi}\n", append([]string{"put", "-f", "-"}, storeArgs...)...)
		require.NoError(t, err)

		ids, _ := queryIDs(t, storeArgs, "--where", "kind=note")
		require.Len(t, ids, 1)
		assert.Len(t, ids[0], 26, "ULID")
	})

	t.Run("duplicate id stops the import", func(t *testing.T) {
		storeArgs := seeded(t, persistentBackends()[1])
		_, err := execute(t, "id: p1\nkind: person\n", append([]string{"put", "-f", "-"}, storeArgs...)...)
		require.ErrorIs(t, err, store.ErrDuplicateID)
	})

	t.Run("missing file flag", func(t *testing.T) {
		_, err := execute(t, "", "put")
		require.ErrorIs(t, err, ErrMissingFile)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := execute(t, "- 1\n- 2\n", "put", "-f", "-")
		require.ErrorIs(t, err, document.ErrInvalidDocument)
	})

	t.Run("invalid batch size", func(t *testing.T) {
		_, err := execute(t, fixture, "put", "-f", "-", "--batch-size", "0")
		require.Error(t, err)
	})
}

func TestCheck(t *testing.T) {
	isolate(t)
	storeArgs := seeded(t, persistentBackends()[0])

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "satisfied",
			args: []string{"check", "p1", "--where", "data.age>=18", "--where", "kind=person"},
			want: "Document p1 satisfies the specification.\n",
		},
		{
			name: "single unmet leaf",
			args: []string{"check", "p2", "--where", "data.age>=18"},
			want: "Document p2 does not satisfy the specification.\nUnmet conditions:\n  - data.age>=18\n",
		},
		{
			name: "unmet leaves of a conjunction",
			args: []string{"check", "r1", "--where", "data.age>=18", "--where", "kind=person", "--where", "data.name~Rob"},
			want: "Document r1 does not satisfy the specification.\nUnmet conditions:\n  - data.age>=18\n  - kind=person\n",
		},
		{
			name: "any still lists failures",
			args: []string{"check", "p2", "--where", "data.age>=18", "--where", "kind=person", "--any"},
			want: "Document p2 satisfies the specification.\nUnmet conditions:\n  - data.age>=18\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := execute(t, "", append(tt.args, storeArgs...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.stdout)
		})
	}

	_, err := execute(t, "", append([]string{"check", "p1"}, storeArgs...)...)
	require.ErrorIs(t, err, ErrNoConditions)
}

func TestMetricsFlag(t *testing.T) {
	isolate(t)
	storeArgs := seeded(t, persistentBackends()[0])

	res, err := execute(t, "", append([]string{"query", "--metrics"}, storeArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, res.stderr, `specrepo_repository_operations_total{entity="document",operation="find_page",outcome="ok"} 1`)
}

func TestConfigFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := config.Default()
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.Path = filepath.Join(dir, "docs.db")
	cfg.Query.DefaultPageSize = 2
	require.NoError(t, cfg.Save(cfgPath))

	_, err := execute(t, fixture, "put", "-f", "-", "--config", cfgPath)
	require.NoError(t, err)

	ids, meta := queryIDs(t, []string{"--config", cfgPath}, "--sort", "id")
	assert.Equal(t, []string{"p1", "p2"}, ids, "default page size comes from the config file")
	assert.Equal(t, 3, meta.TotalItems)
}

func TestBuildSpecification(t *testing.T) {
	alice := &document.Document{Kind: "person", Data: map[string]any{"name": "Alice", "age": 34}}

	all, err := buildSpecification(nil, false)
	require.NoError(t, err)
	assert.True(t, all.IsSatisfiedBy(alice))

	and, err := buildSpecification([]string{"kind=person", "data.age<30"}, false)
	require.NoError(t, err)
	assert.False(t, and.IsSatisfiedBy(alice))
	satisfied, unmet := evaluate(and, alice)
	assert.False(t, satisfied)
	assert.Equal(t, []string{"data.age<30"}, unmet)

	or, err := buildSpecification([]string{"kind=robot", "data.name^=Al"}, true)
	require.NoError(t, err)
	assert.True(t, or.IsSatisfiedBy(alice))
}

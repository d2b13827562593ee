package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "skills-registry.json")
	r, err := Open(path)
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return r, path
}

func externalEntry(name string) Entry {
	return Entry{
		Name:          name,
		Source:        &SourceRef{URL: "https://example.com/" + name + ".git", BranchOrTag: "main"},
		InstalledPath: "/opt/skills/" + name,
	}
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	r, path := newTestRegistry(t)
	assert.Empty(t, r.List())
	assert.Equal(t, path, r.Path())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "opening must not create the file")
}

func TestRegister_PersistsAndReloads(t *testing.T) {
	r, path := newTestRegistry(t)

	require.NoError(t, r.Register(externalEntry("Kalshi_Markets")))

	entry, ok := r.Get("kalshi-markets")
	require.True(t, ok)
	assert.Equal(t, "Kalshi_Markets", entry.Name)
	assert.Equal(t, "kalshi-markets", entry.NameCanonical)
	assert.False(t, entry.Trusted)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), entry.InstalledAt)

	reopened, err := Open(path)
	require.NoError(t, err)
	again, ok := reopened.Get("KALSHI-MARKETS")
	require.True(t, ok)
	assert.Equal(t, entry.InstalledPath, again.InstalledPath)
	assert.Equal(t, "main", again.Source.BranchOrTag)
	assert.True(t, again.InstalledAt.Equal(entry.InstalledAt))

	var doc map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.EqualValues(t, SchemaVersion, doc["version"])
}

func TestRegister_Duplicate(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Register(externalEntry("kalshi-markets")))

	err := r.Register(externalEntry("Kalshi_Markets"))
	require.Error(t, err)
	assert.Equal(t, KindDuplicate, KindOf(err))

	replacement := externalEntry("Kalshi_Markets")
	replacement.InstalledPath = "/srv/kalshi"
	require.NoError(t, r.Register(replacement, WithReplace()))

	entry, ok := r.Get("kalshi-markets")
	require.True(t, ok)
	assert.Equal(t, "/srv/kalshi", entry.InstalledPath)
	assert.Len(t, r.List(), 1)
}

func TestRegister_InvalidEntries(t *testing.T) {
	r, _ := newTestRegistry(t)

	tests := []struct {
		name  string
		entry Entry
	}{
		{"traversal name", Entry{Name: "../evil", InstalledPath: "/x"}},
		{"empty name", Entry{Name: "", InstalledPath: "/x"}},
		{"relative path", Entry{Name: "ok", InstalledPath: "skills/ok"}},
		{"mismatched canonical", Entry{Name: "ok", NameCanonical: "other", InstalledPath: "/x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.entry)
			assert.Equal(t, KindInvalidEntry, KindOf(err))
		})
	}
	assert.Empty(t, r.List())
}

func TestList_SortedByCanonicalName(t *testing.T) {
	r, _ := newTestRegistry(t)
	for _, name := range []string{"zeta", "Alpha", "mid_way", "beta"} {
		require.NoError(t, r.Register(externalEntry(name)))
	}

	var names []string
	for _, e := range r.List() {
		names = append(names, e.NameCanonical)
	}
	assert.Equal(t, []string{"alpha", "beta", "mid-way", "zeta"}, names)
}

func TestUnregister(t *testing.T) {
	r, path := newTestRegistry(t)
	require.NoError(t, r.Register(externalEntry("demo")))

	require.NoError(t, r.Unregister("DEMO"))
	_, ok := r.Get("demo")
	assert.False(t, ok)

	err := r.Unregister("demo")
	assert.Equal(t, KindNotFound, KindOf(err))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, reopened.List())
}

func TestUpdatePinnedRevision(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Register(externalEntry("demo")))
	require.NoError(t, r.Register(Entry{Name: "hello-extended", InstalledPath: "/bundled/hello-extended", Trusted: true}))

	require.NoError(t, r.UpdatePinnedRevision("demo", "abc123"))
	entry, _ := r.Get("demo")
	assert.Equal(t, "abc123", entry.Source.PinnedRevision)

	err := r.UpdatePinnedRevision("missing", "abc")
	assert.Equal(t, KindNotFound, KindOf(err))

	err = r.UpdatePinnedRevision("hello-extended", "abc")
	assert.Equal(t, KindInvalidEntry, KindOf(err))
}

func TestSetTrusted(t *testing.T) {
	r, path := newTestRegistry(t)
	require.NoError(t, r.Register(externalEntry("demo")))

	require.NoError(t, r.SetTrusted("demo", true))
	reopened, err := Open(path)
	require.NoError(t, err)
	entry, _ := reopened.Get("demo")
	assert.True(t, entry.Trusted)

	assert.Equal(t, KindNotFound, KindOf(r.SetTrusted("nope", true)))
	assert.Equal(t, KindNotFound, KindOf(r.SetTrusted("../nope", true)))
}

func TestPersist_CrashBeforeRenameKeepsPreviousDocument(t *testing.T) {
	r, path := newTestRegistry(t)
	require.NoError(t, r.Register(externalEntry("first")))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	var tmpSeen string
	r.beforeRename = func(tmpPath string) error {
		tmpSeen = tmpPath
		// the new document is complete on disk at this point
		data, err := os.ReadFile(tmpPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "second")
		return errors.New("simulated crash")
	}

	err = r.Register(externalEntry("second"))
	require.Error(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Len(t, reopened.List(), 1)
	assert.Equal(t, "first", reopened.List()[0].NameCanonical)

	// in-memory state was not advanced either
	_, ok := r.Get("second")
	assert.False(t, ok)

	_, err = os.Stat(tmpSeen)
	assert.True(t, os.IsNotExist(err))
}

func TestOpen_IgnoresLeftoverTempFiles(t *testing.T) {
	r, path := newTestRegistry(t)
	require.NoError(t, r.Register(externalEntry("first")))

	stray := filepath.Join(filepath.Dir(path), ".skills-registry.json.123.tmp")
	require.NoError(t, os.WriteFile(stray, []byte(`{"version":1,"skills":[{"na`), 0o644))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, reopened.List(), 1)
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
	_, err := Open(corrupt)
	assert.Error(t, err)

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version":99,"skills":[]}`), 0o644))
	_, err = Open(future)
	assert.Error(t, err)
}

func TestOpen_SkipsInvalidNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	doc := `{"version":1,"skills":[
		{"name":"../evil","installed_path":"/x"},
		{"name":"Good_One","name_canonical":"stale","installed_path":"/y"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	entries := r.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "good-one", entries[0].NameCanonical)
}

func TestConcurrentMutations(t *testing.T) {
	r, path := newTestRegistry(t)

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			assert.NoError(t, r.Register(externalEntry(name)))
		}(name)
	}
	wg.Wait()

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, reopened.List(), 6)
}

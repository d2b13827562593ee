// Package registry persists metadata about installed skills as a single JSON
// document. Every mutation rewrites the whole document through a temporary
// file and an atomic rename, so readers only ever see a complete version.
// Concurrent writers in different processes are not merged: the last rename
// wins.
package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/security"
	"github.com/pkg/errors"
)

// SchemaVersion is written into every registry document.
const SchemaVersion = 1

// SourceRef records where an externally installed skill came from.
type SourceRef struct {
	URL            string `json:"url"`
	PinnedRevision string `json:"pinned_revision,omitempty"`
	BranchOrTag    string `json:"branch_or_tag,omitempty"`
}

// Entry is the durable record of one installed skill.
type Entry struct {
	Name          string     `json:"name"`
	NameCanonical string     `json:"name_canonical"`
	Source        *SourceRef `json:"source_ref,omitempty"`
	InstalledPath string     `json:"installed_path"`
	Trusted       bool       `json:"trusted"`
	InstalledAt   time.Time  `json:"installed_at"`
}

// Bundled reports whether the entry has no external source.
func (e Entry) Bundled() bool {
	return e.Source == nil
}

type document struct {
	Version int     `json:"version"`
	Skills  []Entry `json:"skills"`
}

// Registry is an explicitly owned handle on one registry document. It is
// safe for concurrent use within a process.
type Registry struct {
	path string

	mu      sync.RWMutex
	entries map[string]Entry

	now func() time.Time
	// beforeRename runs after the temporary file is fully written and
	// before it replaces the registry. Tests use it to simulate a crash.
	beforeRename func(tmpPath string) error
}

// Open loads the registry at path. A missing file yields an empty registry;
// the file is created on the first mutation.
func Open(path string) (*Registry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve registry path %s", path)
	}

	r := &Registry{
		path:    abs,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the absolute location of the registry document.
func (r *Registry) Path() string {
	return r.path
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read skill registry")
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrapf(err, "failed to parse skill registry %s", r.path)
	}
	if doc.Version > SchemaVersion {
		return errors.Errorf("skill registry %s has unsupported version %d", r.path, doc.Version)
	}

	for _, entry := range doc.Skills {
		canonical, err := security.NormalizeName(entry.Name)
		if err != nil {
			logger.G(context.Background()).
				WithError(err).
				WithField("name", entry.Name).
				Warn("ignoring invalid skill registry entry")
			continue
		}
		entry.NameCanonical = canonical
		r.entries[canonical] = entry
	}
	return nil
}

// RegisterOption adjusts Register behaviour.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	replace bool
}

// WithReplace allows Register to overwrite an existing entry.
func WithReplace() RegisterOption {
	return func(o *registerOptions) {
		o.replace = true
	}
}

// Register adds entry to the registry. The canonical name is derived from
// entry.Name. An existing entry with the same canonical name is a duplicate
// error unless WithReplace is given.
func (r *Registry) Register(entry Entry, opts ...RegisterOption) error {
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	canonical, err := security.NormalizeName(entry.Name)
	if err != nil {
		return &Error{Kind: KindInvalidEntry, Name: entry.Name, Err: err}
	}
	if entry.NameCanonical != "" && entry.NameCanonical != canonical {
		return &Error{Kind: KindInvalidEntry, Name: entry.Name,
			Err: errors.Errorf("name_canonical %q does not match %q", entry.NameCanonical, canonical)}
	}
	if !filepath.IsAbs(entry.InstalledPath) {
		return &Error{Kind: KindInvalidEntry, Name: entry.Name,
			Err: errors.Errorf("installed_path %q must be absolute", entry.InstalledPath)}
	}

	entry.NameCanonical = canonical
	entry.InstalledPath = filepath.Clean(entry.InstalledPath)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[canonical]; exists && !o.replace {
		return &Error{Kind: KindDuplicate, Name: canonical}
	}
	if entry.InstalledAt.IsZero() {
		entry.InstalledAt = r.now().UTC()
	}

	return r.mutate(func(entries map[string]Entry) {
		entries[canonical] = entry
	})
}

// Unregister removes the entry for name.
func (r *Registry) Unregister(name string) error {
	canonical, err := r.lookupKey(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[canonical]; !exists {
		return &Error{Kind: KindNotFound, Name: canonical}
	}
	return r.mutate(func(entries map[string]Entry) {
		delete(entries, canonical)
	})
}

// Get returns the entry for name, matched on its canonical form.
func (r *Registry) Get(name string) (Entry, bool) {
	canonical, err := security.NormalizeName(name)
	if err != nil {
		return Entry{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[canonical]
	return entry, ok
}

// List returns every entry ordered by canonical name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedEntries(r.entries)
}

// UpdatePinnedRevision records a new pinned revision for an externally
// sourced skill.
func (r *Registry) UpdatePinnedRevision(name, revision string) error {
	return r.update(name, func(entry *Entry) error {
		if entry.Source == nil {
			return &Error{Kind: KindInvalidEntry, Name: entry.NameCanonical,
				Err: errors.New("bundled skills have no source to pin")}
		}
		source := *entry.Source
		source.PinnedRevision = revision
		entry.Source = &source
		return nil
	})
}

// SetTrusted records an operator trust decision.
func (r *Registry) SetTrusted(name string, trusted bool) error {
	return r.update(name, func(entry *Entry) error {
		entry.Trusted = trusted
		return nil
	})
}

func (r *Registry) update(name string, fn func(*Entry) error) error {
	canonical, err := r.lookupKey(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[canonical]
	if !exists {
		return &Error{Kind: KindNotFound, Name: canonical}
	}
	if err := fn(&entry); err != nil {
		return err
	}
	return r.mutate(func(entries map[string]Entry) {
		entries[canonical] = entry
	})
}

func (r *Registry) lookupKey(name string) (string, error) {
	canonical, err := security.NormalizeName(name)
	if err != nil {
		return "", &Error{Kind: KindNotFound, Name: name, Err: err}
	}
	return canonical, nil
}

// mutate applies fn to a copy of the entries, persists the copy and only
// then swaps it in. Callers hold r.mu.
func (r *Registry) mutate(fn func(map[string]Entry)) error {
	next := make(map[string]Entry, len(r.entries)+1)
	for k, v := range r.entries {
		next[k] = v
	}
	fn(next)

	if err := r.persist(next); err != nil {
		return err
	}
	r.entries = next
	return nil
}

func sortedEntries(entries map[string]Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NameCanonical < out[j].NameCanonical
	})
	return out
}

func (r *Registry) persist(entries map[string]Entry) error {
	doc := document{Version: SchemaVersion, Skills: sortedEntries(entries)}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal skill registry")
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create registry directory")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary registry file")
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write temporary registry file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync temporary registry file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temporary registry file")
	}

	if r.beforeRename != nil {
		if err := r.beforeRename(tmpPath); err != nil {
			return errors.Wrap(err, "registry write interrupted")
		}
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		return errors.Wrap(err, "failed to replace skill registry")
	}
	committed = true
	return nil
}

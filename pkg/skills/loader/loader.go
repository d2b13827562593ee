// Package loader turns skill directories on disk into loaded toolsets and a
// catalog of runnable scripts.
//
// A load pass has two phases. The scan phase reads and validates every
// manifest in parallel; it has no side effects and each skill only writes to
// its own slot. The resolve phase then walks the slots in root order and
// applies the enabled list, trust, version gating, toolset construction and
// script discovery one skill at a time.
package loader

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ipdelete/agent-base-sub000/pkg/config"
	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/manifest"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/registry"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/security"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/toolset"
	"github.com/ipdelete/agent-base-sub000/pkg/telemetry"
	tooltypes "github.com/ipdelete/agent-base-sub000/pkg/types/tools"
	"github.com/ipdelete/agent-base-sub000/pkg/version"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Root is a directory whose immediate subdirectories are skills.
type Root struct {
	Path string
	// Bundled roots ship with the host. Their skills are trusted and get a
	// registry entry stamped on first sight.
	Bundled bool
}

// LoadedToolset is an instantiated toolset together with where it came from.
type LoadedToolset struct {
	Skill   string
	Ref     string
	Toolset toolset.Toolset
}

// Source is the fully qualified origin used in collision warnings.
func (t LoadedToolset) Source() string {
	return t.Skill + "/" + t.Ref
}

// LoadResult is everything a load pass produced.
type LoadResult struct {
	Toolsets []LoadedToolset
	Scripts  *ScriptCatalog
	// Outcomes has one entry per skill directory, sorted by skill name.
	Outcomes []Outcome

	tools []tooltypes.Tool
}

// Tools returns the tools of every loaded toolset. When two toolsets expose
// the same tool name only the first loaded one is present.
func (r *LoadResult) Tools() []tooltypes.Tool {
	return r.tools
}

// Outcome returns the outcome for a skill by any spelling of its name.
func (r *LoadResult) Outcome(name string) (Outcome, bool) {
	canonical, err := security.NormalizeName(name)
	if err != nil {
		canonical = name
	}
	for _, o := range r.Outcomes {
		if o.Skill == canonical {
			return o, true
		}
	}
	return Outcome{}, false
}

// Failed returns the outcomes with StatusFailed.
func (r *LoadResult) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// Loader performs load passes. It holds no state between passes.
type Loader struct {
	cfg         *config.Config
	registry    *registry.Registry
	catalog     *toolset.Catalog
	hostVersion string
	maxParallel int
	now         func() time.Time
}

type Option func(*Loader)

// WithRegistry lets the loader consult trust flags and stamp bundled skills.
func WithRegistry(r *registry.Registry) Option {
	return func(l *Loader) { l.registry = r }
}

// WithCatalog supplies the toolset constructors manifests may reference.
func WithCatalog(c *toolset.Catalog) Option {
	return func(l *Loader) { l.catalog = c }
}

// WithHostVersion overrides the version used for min/max version gating.
func WithHostVersion(v string) Option {
	return func(l *Loader) { l.hostVersion = v }
}

func WithMaxParallel(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxParallel = n
		}
	}
}

func New(cfg *config.Config, opts ...Option) *Loader {
	if cfg == nil {
		cfg = config.Default()
	}
	l := &Loader{
		cfg:         cfg,
		hostVersion: version.Version,
		maxParallel: cfg.Skills.MaxParallel,
		now:         time.Now,
	}
	if l.maxParallel <= 0 {
		l.maxParallel = config.DefaultMaxParallel
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// scanSlot is the scan-phase result for one skill directory.
type scanSlot struct {
	root      Root
	dir       string
	canonical string
	manifest  *manifest.Manifest
	err       error
	// notSkill is set for directories without a manifest file.
	notSkill bool
}

// LoadEnabled loads the skills under roots selected by enabled. enabled holds
// skill names or one of the sentinels "all" (trusted skills only),
// "all-untrusted" and "none". A problem with an individual skill is reported
// in its Outcome and never fails the call; only an unreadable root does.
func (l *Loader) LoadEnabled(ctx context.Context, roots []Root, enabled []string) (*LoadResult, error) {
	var result *LoadResult
	err := telemetry.WithSpan(ctx, "skills.load_enabled", func(ctx context.Context) error {
		var err error
		result, err = l.loadEnabled(ctx, roots, enabled)
		return err
	}, attribute.Int("skills.roots", len(roots)), attribute.StringSlice("skills.enabled", enabled))
	return result, err
}

func (l *Loader) loadEnabled(ctx context.Context, roots []Root, enabled []string) (*LoadResult, error) {
	sel := parseSelection(ctx, enabled)

	slots, err := l.scan(ctx, roots)
	if err != nil {
		return nil, err
	}
	telemetry.AddEvent(ctx, "skills.scanned", attribute.Int("skills.candidates", len(slots)))

	result := &LoadResult{Scripts: newScriptCatalog()}
	seen := make(map[string]string)
	toolOwners := make(map[string]string)
	loaded, untrusted := 0, 0

	for _, slot := range slots {
		if slot.notSkill {
			continue
		}
		outcome := l.resolve(ctx, slot, sel, seen, toolOwners, result)
		switch outcome.Status {
		case StatusLoaded:
			loaded++
		case StatusSkippedUntrusted:
			untrusted++
		}
		logger.G(ctx).WithFields(logrus.Fields{
			"skill":  outcome.Skill,
			"dir":    outcome.Dir,
			"status": outcome.Status,
			"reason": outcome.Reason,
		}).Debug("skill load outcome")
		result.Outcomes = append(result.Outcomes, outcome)
	}

	sort.SliceStable(result.Outcomes, func(i, j int) bool {
		return result.Outcomes[i].Skill < result.Outcomes[j].Skill
	})

	if sel.mode == selectAllTrusted && loaded == 0 && untrusted > 0 {
		logger.G(ctx).Warn("skills enabled as \"all\" but no skill is trusted; use \"all-untrusted\" or trust skills in the registry")
	}
	return result, nil
}

// scan enumerates skill directories and parses their manifests in parallel.
func (l *Loader) scan(ctx context.Context, roots []Root) ([]*scanSlot, error) {
	var (
		slots   []*scanSlot
		rootErr *multierror.Error
	)
	for _, root := range roots {
		entries, err := os.ReadDir(root.Path)
		if err != nil {
			if os.IsNotExist(err) {
				logger.G(ctx).WithField("root", root.Path).Debug("skill root does not exist")
				continue
			}
			rootErr = multierror.Append(rootErr, errors.Wrapf(err, "failed to read skill root %s", root.Path))
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if len(name) > 0 && name[0] == '.' {
				continue
			}
			dir := filepath.Join(root.Path, name)
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				continue
			}
			slots = append(slots, &scanSlot{root: root, dir: dir})
		}
	}
	if err := rootErr.ErrorOrNil(); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxParallel)
	for _, slot := range slots {
		slot := slot
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scanSkill(slot)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "skill scan cancelled")
	}
	return slots, nil
}

func scanSkill(slot *scanSlot) {
	manifestPath := filepath.Join(slot.dir, manifest.FileName)
	if _, err := os.Lstat(manifestPath); os.IsNotExist(err) {
		slot.notSkill = true
		return
	}

	if err := security.ValidateManifestFile(slot.root.Path, manifestPath); err != nil {
		slot.err = err
		return
	}

	m, err := manifest.Parse(manifestPath)
	if err != nil {
		slot.err = err
		return
	}
	slot.manifest = m

	canonical, err := security.NormalizeName(m.Name)
	if err != nil {
		slot.err = err
		return
	}
	slot.canonical = canonical
}

// resolve runs the sequential phase for one slot and records its toolsets,
// tools and scripts into result.
func (l *Loader) resolve(ctx context.Context, slot *scanSlot, sel selection, seen, toolOwners map[string]string, result *LoadResult) Outcome {
	outcome := Outcome{
		Skill:    slot.canonical,
		Dir:      slot.dir,
		Bundled:  slot.root.Bundled,
		Manifest: slot.manifest,
	}
	if outcome.Skill == "" {
		outcome.Skill = filepath.Base(slot.dir)
	}
	fail := func(err error) Outcome {
		outcome.Status = StatusFailed
		outcome.Reason = reasonFor(err)
		outcome.Message = err.Error()
		return outcome
	}

	if slot.err != nil {
		return fail(slot.err)
	}

	if first, dup := seen[slot.canonical]; dup {
		return fail(failure(ReasonDuplicate, errors.Errorf("skill %s already loaded from %s", slot.canonical, first)))
	}
	seen[slot.canonical] = slot.dir

	if !sel.enabled(slot.canonical) {
		outcome.Status = StatusSkippedDisabled
		return outcome
	}

	ctx = logger.WithSkill(ctx, slot.canonical)
	m := slot.manifest

	trusted := l.trusted(ctx, slot)
	_, named := sel.names[slot.canonical]
	if sel.mode == selectAllTrusted && !named && !trusted {
		outcome.Status = StatusSkippedUntrusted
		return outcome
	}

	if !version.IsRelease(l.hostVersion) && (m.MinVersion != "" || m.MaxVersion != "") {
		logger.G(ctx).WithField("host_version", l.hostVersion).Debug("development build, version bounds not enforced")
	}
	ok, err := version.Compatible(l.hostVersion, m.MinVersion, m.MaxVersion)
	if err != nil {
		return fail(failure(ReasonIncompatibleVersion, err))
	}
	if !ok {
		return fail(failure(ReasonIncompatibleVersion,
			errors.Errorf("host version %s outside [%s, %s]", l.hostVersion, m.MinVersion, m.MaxVersion)))
	}

	loaded, err := l.instantiateToolsets(ctx, slot)
	if err != nil {
		return fail(failure(ReasonToolsetLoadError, err))
	}

	scripts, err := l.discoverScripts(ctx, slot.canonical, slot.dir, m)
	if err != nil {
		return fail(err)
	}

	for _, ts := range loaded {
		for _, tool := range ts.Toolset.Tools() {
			if owner, exists := toolOwners[tool.Name()]; exists {
				logger.G(ctx).WithFields(logrus.Fields{
					"tool":     tool.Name(),
					"kept":     owner,
					"rejected": ts.Source(),
				}).Warn("tool name collision between toolsets, keeping the first")
				continue
			}
			toolOwners[tool.Name()] = ts.Source()
			result.tools = append(result.tools, tool)
		}
	}
	result.Toolsets = append(result.Toolsets, loaded...)

	absDir, err := filepath.Abs(slot.dir)
	if err != nil {
		absDir = slot.dir
	}
	result.Scripts.add(&SkillScripts{
		Skill:       slot.canonical,
		Dir:         absDir,
		EnvPatterns: m.Permissions.Env,
		Scripts:     scripts,
	})

	outcome.Status = StatusLoaded
	outcome.Toolsets = len(loaded)
	outcome.Scripts = len(scripts)
	return outcome
}

// trusted reports whether the skill may load under "all". Bundled skills
// missing from the registry are stamped into it here.
func (l *Loader) trusted(ctx context.Context, slot *scanSlot) bool {
	if l.registry == nil {
		return slot.root.Bundled
	}

	entry, exists := l.registry.Get(slot.canonical)
	if exists {
		return entry.Trusted || slot.root.Bundled
	}
	if !slot.root.Bundled {
		return false
	}

	absDir, err := filepath.Abs(slot.dir)
	if err != nil {
		absDir = slot.dir
	}
	err = l.registry.Register(registry.Entry{
		Name:          slot.manifest.Name,
		InstalledPath: absDir,
		Trusted:       true,
		InstalledAt:   l.now().UTC(),
	})
	if err != nil {
		logger.G(ctx).WithError(err).Warn("failed to record bundled skill in registry")
	}
	return true
}

func (l *Loader) instantiateToolsets(ctx context.Context, slot *scanSlot) ([]LoadedToolset, error) {
	m := slot.manifest
	if len(m.Toolsets) == 0 {
		return nil, nil
	}
	if l.catalog == nil {
		return nil, errors.New("no toolset catalog configured")
	}

	env := toolset.Env{
		Config:  l.cfg,
		Skill:   slot.canonical,
		Dir:     slot.dir,
		Options: mergeOptions(m.ToolsetConfig, l.cfg.ToolsetOptions(slot.canonical)),
	}

	loaded := make([]LoadedToolset, 0, len(m.Toolsets))
	for _, ref := range m.Toolsets {
		ts, err := l.catalog.Instantiate(ctx, ref, env)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, LoadedToolset{Skill: slot.canonical, Ref: ref, Toolset: ts})
	}
	return loaded, nil
}

func mergeOptions(defaults, overrides map[string]any) map[string]any {
	if len(defaults) == 0 && len(overrides) == 0 {
		return nil
	}
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Package bundled ships the skills compiled into the host binary. Their
// files are embedded and written into the bundled skill root, and their
// toolset constructors are registered with a toolset catalog.
package bundled

import (
	"context"
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/ipdelete/agent-base-sub000/pkg/skills/toolset"
	"github.com/pkg/errors"
)

//go:embed all:data
var dataFS embed.FS

const dataRoot = "data"

// Names lists the embedded skill directories.
func Names() []string {
	entries, err := fs.ReadDir(dataFS, dataRoot)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Materialize writes every embedded skill into dir. A skill directory that
// already exists is left alone unless force is set, so operator edits to a
// bundled skill survive restarts. It returns the skills it wrote.
func Materialize(ctx context.Context, dir string, force bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create bundled skill root %s", dir)
	}

	var written []string
	for _, name := range Names() {
		target := filepath.Join(dir, name)
		if _, err := os.Stat(target); err == nil && !force {
			logger.G(ctx).WithField("skill", name).Debug("bundled skill already present")
			continue
		}
		if force {
			if err := os.RemoveAll(target); err != nil {
				return written, errors.Wrapf(err, "failed to replace bundled skill %s", name)
			}
		}
		if err := copyTree(path.Join(dataRoot, name), target); err != nil {
			return written, errors.Wrapf(err, "failed to write bundled skill %s", name)
		}
		written = append(written, name)
	}
	return written, nil
}

func copyTree(src, dst string) error {
	return fs.WalkDir(dataFS, src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(filepath.FromSlash(src), filepath.FromSlash(p))
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		data, err := dataFS.ReadFile(p)
		if err != nil {
			return err
		}
		mode := os.FileMode(0o644)
		if path.Base(path.Dir(p)) == "scripts" {
			mode = 0o755
		}
		return os.WriteFile(target, data, mode)
	})
}

// Register adds the constructors of every bundled toolset to catalog.
func Register(catalog *toolset.Catalog) error {
	return catalog.Register(HelloExtendedSkill, HelloExtendedRef, toolset.EnvConstructor(NewHelloExtendedToolset))
}

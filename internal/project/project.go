// Package project loads per-project configuration overrides from the
// sitepack.yaml file at the root of a front-end project.
package project

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/fragment"
	"github.com/wolfeidau/sitepack/internal/mode"
	"gopkg.in/yaml.v3"
)

// FileName is the project override file looked up in the project directory.
const FileName = "sitepack.yaml"

// ErrInvalidOverride indicates the override file could not be decoded
var ErrInvalidOverride = errors.New("invalid project override")

// File is the decoded form of sitepack.yaml. Common applies to every mode
// and is merged before the mode specific fragment.
type File struct {
	Common    fragment.Fragment `yaml:"common,omitempty"`
	Dev       fragment.Fragment `yaml:"dev,omitempty"`
	BuildSite fragment.Fragment `yaml:"build-site,omitempty"`
	BuildLib  fragment.Fragment `yaml:"build-lib,omitempty"`
}

// ForMode returns the fragment to merge for m.
func (f File) ForMode(m mode.BuildMode) (fragment.Fragment, error) {
	var specific fragment.Fragment
	switch mode.Parse(string(m)) {
	case mode.BuildSite:
		specific = f.BuildSite
	case mode.BuildLib:
		specific = f.BuildLib
	default:
		specific = f.Dev
	}
	return fragment.Merge(f.Common, specific)
}

// Provider supplies a partial override keyed by build mode.
type Provider interface {
	Override(m mode.BuildMode) (fragment.Fragment, error)
}

// Decode reads an override file from r, rejecting unknown keys.
func Decode(r io.Reader) (File, error) {
	var f File

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("%w: %w", ErrInvalidOverride, err)
	}
	return f, nil
}

// Path resolves p against the project directory unless it is absolute.
func Path(projectDir, p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(projectDir, p)
	}
	return filepath.Abs(p)
}

// Dir is a Provider reading FileName from a project directory. The file is
// read on every call so edits are picked up between builds.
type Dir struct {
	Root string
}

// ConfigPath is the absolute path of the override file.
func (d Dir) ConfigPath() string {
	p, err := Path(d.Root, FileName)
	if err != nil {
		return filepath.Join(d.Root, FileName)
	}
	return p
}

// Load reads and decodes the override file. A missing file yields an
// empty File.
func (d Dir) Load() (File, error) {
	path := d.ConfigPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("path", path).Msg("No project override file")
			return File{}, nil
		}
		return File{}, fmt.Errorf("failed to read project override: %w", err)
	}

	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (d Dir) Override(m mode.BuildMode) (fragment.Fragment, error) {
	f, err := d.Load()
	if err != nil {
		return fragment.Fragment{}, err
	}
	return f.ForMode(m)
}

// Apply returns the composition chain stage merging p's override for the
// invocation's mode onto the accumulator.
func Apply(p Provider) func(acc fragment.Fragment, inv mode.Invocation) (fragment.Fragment, error) {
	return func(acc fragment.Fragment, inv mode.Invocation) (fragment.Fragment, error) {
		override, err := p.Override(inv.Mode)
		if err != nil {
			return fragment.Fragment{}, err
		}
		return fragment.Merge(acc, override)
	}
}

// Static is a Provider backed by an in-memory File.
type Static File

func (s Static) Override(m mode.BuildMode) (fragment.Fragment, error) {
	return File(s).ForMode(m)
}

// Watcher reports changes to a project's override file.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	changes chan struct{}
}

// Watch starts watching the directory holding the override file. Watching
// the directory catches files that are created later or replaced by an
// editor's rename.
func (d Dir) Watch() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	path := d.ConfigPath()
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:    path,
		fsw:     fsw,
		changes: make(chan struct{}, 1),
	}, nil
}

// Changes receives a value after the override file changes. Bursts of
// events are coalesced.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run forwards file events until ctx is done, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("Project override changed")
			select {
			case w.changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Project watcher error")
		}
	}
}

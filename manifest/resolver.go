package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ResolvedDep is a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string
	LocalPath string
	Manifest  *Manifest // the dependency's own manifest (may be nil)
}

// Resolver manages dependency resolution.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
}

// NewResolver creates a dependency resolver for m.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order
// (dependencies before dependents), then rewrites the lock file.
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	if len(r.manifest.Dependencies) == 0 {
		return nil, nil
	}

	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	resolved := make(map[string]*ResolvedDep)
	order, err := r.resolveAll(r.manifest.Dir, r.manifest.Dependencies, resolved)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(order); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return order, nil
}

// resolveAll resolves deps declared by the project in baseDir, recursing
// into each dependency's own manifest. Names are visited in sorted order
// so the result is stable.
func (r *Resolver) resolveAll(baseDir string, deps map[string]Dependency, resolved map[string]*ResolvedDep) ([]ResolvedDep, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue
		}

		rd, err := r.resolveOne(baseDir, name, deps[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(rd.LocalPath, rd.Manifest.Dependencies, resolved)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		order = append(order, *rd)
	}
	return order, nil
}

func (r *Resolver) resolveOne(baseDir, name string, dep Dependency) (*ResolvedDep, error) {
	switch {
	case dep.Path != "":
		localPath := dep.Path
		if !filepath.IsAbs(localPath) {
			localPath = filepath.Join(baseDir, localPath)
		}
		localPath, err := filepath.Abs(localPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}
		if _, err := os.Stat(localPath); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, localPath, err)
		}
		depManifest, _ := Load(localPath)
		return &ResolvedDep{Name: name, LocalPath: localPath, Manifest: depManifest}, nil

	case dep.Git != "":
		depDir := filepath.Join(r.manifest.DepsDir(), name)
		if _, err := os.Stat(depDir); os.IsNotExist(err) {
			if err := os.MkdirAll(r.manifest.DepsDir(), 0755); err != nil {
				return nil, fmt.Errorf("creating deps dir: %w", err)
			}
			log.Infof("cloning %s from %s", name, dep.Git)
			if err := gitClone(dep.Git, depDir); err != nil {
				return nil, err
			}
		} else if locked := r.lock.FindLockedDep(name); locked == nil || locked.Tag != dep.Tag {
			log.Infof("fetching %s", name)
			if err := gitFetch(depDir); err != nil {
				return nil, err
			}
		}
		if dep.Tag != "" {
			if err := gitCheckout(depDir, dep.Tag); err != nil {
				return nil, err
			}
		}
		depManifest, _ := Load(depDir)
		return &ResolvedDep{Name: name, LocalPath: depDir, Manifest: depManifest}, nil
	}

	return nil, fmt.Errorf("dependency %q has no git or path specified", name)
}

func (r *Resolver) writeLock(order []ResolvedDep) error {
	lf := &LockFile{}
	for _, rd := range order {
		ld := LockedDep{Name: rd.Name}
		if dep, ok := r.manifest.Dependencies[rd.Name]; ok && dep.Git != "" {
			ld.Git, ld.Tag = dep.Git, dep.Tag
			if commit, err := gitCurrentCommit(rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		} else {
			ld.Path = rd.LocalPath
		}
		lf.Deps = append(lf.Deps, ld)
	}

	if err := os.MkdirAll(filepath.Dir(r.manifest.LockFilePath()), 0755); err != nil {
		return err
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}

// Source is one classpath entry: a class directory or an image file.
type Source struct {
	Path  string
	Image bool
}

// ClassSources lists the class directories and images of a project and
// its resolved dependencies, in load order. Each dependency contributes
// its directories then its images; the project's own sources come last,
// so a project class replaces a dependency class of the same name.
// Dependencies without a manifest contribute their default class directory.
func ClassSources(m *Manifest, deps []ResolvedDep) []Source {
	var sources []Source
	for _, rd := range deps {
		if rd.Manifest == nil {
			sources = append(sources, Source{Path: filepath.Join(rd.LocalPath, DefaultClassDir)})
			continue
		}
		sources = appendSources(sources, rd.Manifest)
	}
	return appendSources(sources, m)
}

func appendSources(sources []Source, m *Manifest) []Source {
	for _, d := range m.ClassDirPaths() {
		sources = append(sources, Source{Path: d})
	}
	for _, p := range m.ImagePaths() {
		sources = append(sources, Source{Path: p, Image: true})
	}
	return sources
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/ristretto/asm"
	"github.com/chazu/ristretto/classfile"
	"github.com/chazu/ristretto/vm"
	"github.com/chazu/ristretto/vm/image"
)

// classpath accumulates class definitions in load order. A later class
// with the same name replaces an earlier one when the registry is built.
type classpath struct {
	defs  []vm.ClassDef
	entry string // entry recorded by the last image read
	files int
}

// addPath loads a .class file, an assembly source, an image, or every
// such file in a directory. "dir/..." descends recursively.
func (cp *classpath) addPath(path string) error {
	recursive := false
	if strings.HasSuffix(path, "/...") {
		recursive = true
		path = strings.TrimSuffix(path, "/...")
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %q: %w", path, err)
	}
	if !info.IsDir() {
		return cp.addFile(path)
	}

	files, err := collectFiles(path, recursive)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := cp.addFile(f); err != nil {
			return err
		}
	}
	return nil
}

// addOptionalDir loads a configured class directory, skipping it when it
// does not exist yet.
func (cp *classpath) addOptionalDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Debugf("class directory %s does not exist, skipped", dir)
		return nil
	}
	return cp.addPath(dir + "/...")
}

func (cp *classpath) addFile(path string) error {
	switch {
	case isClassFile(path):
		return cp.addClassFile(path)
	case isSourceFile(path):
		return cp.addSource(path)
	case isImageFile(path):
		return cp.addImage(path)
	}
	return fmt.Errorf("%s: not a .class, %s or %s file", path, asm.FileExt, image.FileExt)
}

func (cp *classpath) addSource(path string) error {
	defs, err := asm.AssembleFile(path)
	if err != nil {
		return err
	}
	cp.defs = append(cp.defs, defs...)
	cp.files++
	log.Debugf("assembled %s (%d classes)", path, len(defs))
	return nil
}

func (cp *classpath) addClassFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cf, err := classfile.Parse(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	def, err := vm.DefFromClassFile(cf)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	cp.defs = append(cp.defs, def)
	cp.files++
	log.Debugf("read %s (%s, %d methods)", path, def.Name, len(def.Methods))
	return nil
}

func (cp *classpath) addImage(path string) error {
	img, err := image.ReadFile(path)
	if err != nil {
		return err
	}
	cp.defs = append(cp.defs, img.Classes...)
	if img.Entry != "" {
		cp.entry = img.Entry
	}
	cp.files++
	log.Debugf("read image %s (%d classes)", path, len(img.Classes))
	return nil
}

// mainClasses returns the classes that declare a conventional main method.
func (cp *classpath) mainClasses() []string {
	var names []string
	for _, def := range cp.defs {
		for _, m := range def.Methods {
			if m.Name == "main" && m.Descriptor == vm.MainDescriptor {
				names = append(names, def.Name)
				break
			}
		}
	}
	return names
}

// collectFiles lists the loadable files under dir in lexical order.
func collectFiles(dir string, recursive bool) ([]string, error) {
	var files []string
	if recursive {
		err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && loadable(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %q: %w", dir, err)
		}
		return files, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && loadable(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func loadable(name string) bool {
	return isClassFile(name) || isSourceFile(name) || isImageFile(name)
}

func isClassFile(name string) bool { return strings.HasSuffix(name, ".class") }

func isSourceFile(name string) bool { return strings.HasSuffix(name, asm.FileExt) }

func isImageFile(name string) bool { return strings.HasSuffix(name, image.FileExt) }

// resolveEntry picks the method to run. An explicit entry wins, then the
// manifest's, then the last image's, then the single class with a main
// method. A bare class name means that class's main method.
func resolveEntry(explicit, configured string, cp *classpath) (string, error) {
	for _, e := range []string{explicit, configured, cp.entry} {
		if e != "" {
			return expandEntry(e), nil
		}
	}

	mains := cp.mainClasses()
	switch len(mains) {
	case 1:
		return vm.DefaultEntry(mains[0]), nil
	case 0:
		return "", fmt.Errorf("no entry point: no class declares main%s; use -m", vm.MainDescriptor)
	}
	return "", fmt.Errorf("ambiguous entry point: %s all declare main; use -m", strings.Join(mains, ", "))
}

func expandEntry(e string) string {
	if !strings.Contains(e, ":") && !strings.Contains(e, ".") {
		return vm.DefaultEntry(e)
	}
	return e
}

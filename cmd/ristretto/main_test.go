package main

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/chazu/ristretto/manifest"
	"github.com/chazu/ristretto/store"
	"github.com/chazu/ristretto/vm"
	"github.com/chazu/ristretto/vm/image"
)

const counterClass = "testdata/Counter.class"

func loadCounter(t *testing.T) *classpath {
	t.Helper()
	cp := &classpath{}
	if err := cp.addPath(counterClass); err != nil {
		t.Fatalf("addPath: %v", err)
	}
	return cp
}

// ---------------------------------------------------------------------------
// Class path and entry selection
// ---------------------------------------------------------------------------

func TestAddPathClassFile(t *testing.T) {
	cp := loadCounter(t)
	if len(cp.defs) != 1 || cp.defs[0].Name != "Counter" {
		t.Fatalf("defs = %+v", cp.defs)
	}
	if got := len(cp.defs[0].Methods); got != 3 {
		t.Errorf("methods = %d, want 3", got)
	}
	if !slices.Equal(cp.mainClasses(), []string{"Counter"}) {
		t.Errorf("mainClasses = %v", cp.mainClasses())
	}
}

func TestAddPathDirectory(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "sub")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(counterClass)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "Counter.class"), data, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	flat := &classpath{}
	if err := flat.addPath(dir); err != nil {
		t.Fatalf("addPath: %v", err)
	}
	if len(flat.defs) != 0 {
		t.Errorf("flat load found %d classes, want 0", len(flat.defs))
	}

	deep := &classpath{}
	if err := deep.addPath(dir + "/..."); err != nil {
		t.Fatalf("addPath: %v", err)
	}
	if len(deep.defs) != 1 {
		t.Errorf("recursive load found %d classes, want 1", len(deep.defs))
	}
}

func TestAddPathErrors(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "Bogus.class")
	if err := os.WriteFile(bogus, []byte("not a class"), 0644); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(dir, "readme.md")
	if err := os.WriteFile(other, nil, 0644); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{filepath.Join(dir, "missing.class"), bogus, other} {
		if err := (&classpath{}).addPath(p); err == nil {
			t.Errorf("addPath(%s) succeeded, want error", filepath.Base(p))
		}
	}

	cp := &classpath{}
	if err := cp.addOptionalDir(filepath.Join(dir, "classes")); err != nil {
		t.Errorf("addOptionalDir on a missing dir: %v", err)
	}
}

func TestResolveEntry(t *testing.T) {
	counter := loadCounter(t)
	twoMains := &classpath{defs: []vm.ClassDef{
		{Name: "A", Methods: []vm.MethodDef{{Name: "main", Descriptor: vm.MainDescriptor}}},
		{Name: "B", Methods: []vm.MethodDef{{Name: "main", Descriptor: vm.MainDescriptor}}},
	}}

	tests := []struct {
		name       string
		explicit   string
		configured string
		cp         *classpath
		want       string
		wantErr    string
	}{
		{"explicit wins", "Counter.sum:(I)I", "Other.x:()V", counter, "Counter.sum:(I)I", ""},
		{"configured", "", "Counter.sum:(I)I", counter, "Counter.sum:(I)I", ""},
		{"bare class name", "Counter", "", counter, "Counter.main:([Ljava/lang/String;)V", ""},
		{"single main", "", "", counter, "Counter.main:([Ljava/lang/String;)V", ""},
		{"image entry", "", "", &classpath{entry: "A.run:()I"}, "A.run:()I", ""},
		{"no main", "", "", &classpath{}, "", "no entry point"},
		{"two mains", "", "", twoMains, "", "ambiguous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveEntry(tt.explicit, tt.configured, tt.cp)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("resolveEntry = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	got, err := parseArgs("1, -2,,3")
	if err != nil || !slices.Equal(got, []int32{1, -2, 3}) {
		t.Errorf("parseArgs = %v, %v", got, err)
	}
	if _, err := parseArgs("1,x"); err == nil {
		t.Error("parseArgs accepted a non-integer")
	}
	if _, err := parseArgs("3000000000"); err == nil {
		t.Error("parseArgs accepted a value outside int32")
	}
}

// ---------------------------------------------------------------------------
// Running
// ---------------------------------------------------------------------------

func TestRunLocalCounter(t *testing.T) {
	cp := loadCounter(t)
	r, err := runLocal(&options{}, nil, cp, "Counter.sum:(I)I", []int32{10}, false)
	if err != nil {
		t.Fatalf("runLocal: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if err := report(&stdout, &stderr, r); err != nil {
		t.Fatalf("report: %v (%s)", err, stderr.String())
	}
	if got := strings.TrimSpace(stdout.String()); got != "45" {
		t.Errorf("stdout = %q, want 45", got)
	}
}

func TestRunLocalMainCallsSum(t *testing.T) {
	cp := loadCounter(t)
	r, err := runLocal(&options{}, nil, cp, vm.DefaultEntry("Counter"), nil, false)
	if err != nil {
		t.Fatalf("runLocal: %v", err)
	}
	if r.Status != "Completed" || r.HasResult {
		t.Errorf("run = %+v, want Completed with no result", r)
	}
	if r.Stats.Invocations != 1 || r.Stats.MaxDepth != 2 {
		t.Errorf("stats = %+v", r.Stats)
	}
}

func TestReportFault(t *testing.T) {
	cp := loadCounter(t)
	r, err := runLocal(&options{}, nil, cp, "Counter.nope:()V", nil, false)
	if err != nil {
		t.Fatalf("runLocal: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if err := report(&stdout, &stderr, r); err != errFaulted {
		t.Errorf("report = %v, want errFaulted", err)
	}
	if !strings.HasPrefix(stderr.String(), "RegistryLookupError:") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", stdout.String())
	}
}

func TestRunLocalRecords(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	cp := loadCounter(t)

	r, err := runLocal(&options{record: true, storePath: dbPath}, nil, cp, "Counter.sum:(I)I", []int32{4}, false)
	if err != nil {
		t.Fatalf("runLocal: %v", err)
	}
	if r.ID == "" || len(r.Image) != 64 {
		t.Errorf("recorded run = %+v", r)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	got, err := st.Run(r.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.Result != 6 || !got.HasResult {
		t.Errorf("stored result = %d (has %v), want 6", got.Result, got.HasResult)
	}

	var out bytes.Buffer
	if err := listRuns(&out, &options{runs: 5, storePath: dbPath}, nil); err != nil {
		t.Fatalf("listRuns: %v", err)
	}
	if !strings.Contains(out.String(), r.ID) || !strings.Contains(out.String(), "Counter.sum:(I)I") {
		t.Errorf("listRuns output:\n%s", out.String())
	}
}

// ---------------------------------------------------------------------------
// Command line
// ---------------------------------------------------------------------------

func TestRunSaveImage(t *testing.T) {
	out := filepath.Join(t.TempDir(), "counter"+image.FileExt)

	if code := run([]string{"-v", "0", "-save-image", out, counterClass}); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	img, err := image.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if img.Entry != vm.DefaultEntry("Counter") || len(img.Classes) != 1 {
		t.Errorf("image = entry %q, %d classes", img.Entry, len(img.Classes))
	}

	cp := &classpath{}
	if err := cp.addPath(out); err != nil {
		t.Fatalf("addPath(image): %v", err)
	}
	if cp.entry != img.Entry || len(cp.defs) != 1 {
		t.Errorf("image classpath = entry %q, %d defs", cp.entry, len(cp.defs))
	}
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want int
	}{
		{"help", []string{"-h"}, 0},
		{"bad flag", []string{"-nope"}, 2},
		{"missing file", []string{"-v", "0", "missing.class"}, 1},
		{"returns", []string{"-v", "0", "-m", "Counter.sum:(I)I", "-args", "3", counterClass}, 0},
		{"faults", []string{"-v", "0", "-m", "Counter.nope:()V", counterClass}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.argv); got != tt.want {
				t.Errorf("exit code = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadClasspathFromManifest(t *testing.T) {
	dir := t.TempDir()
	classes := filepath.Join(dir, manifest.DefaultClassDir)
	if err := os.MkdirAll(classes, 0755); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(counterClass)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(classes, "Counter.class"), data, 0644); err != nil {
		t.Fatal(err)
	}
	toml := "[run]\nentry = \"Counter.sum:(I)I\"\nargs = [5]\n"
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := manifest.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cp, err := loadClasspath(&options{}, m)
	if err != nil {
		t.Fatalf("loadClasspath: %v", err)
	}
	if len(cp.defs) != 1 {
		t.Fatalf("defs = %d, want 1", len(cp.defs))
	}

	args, err := entryArgs(&options{}, m)
	if err != nil || !slices.Equal(args, []int32{5}) {
		t.Errorf("entryArgs = %v, %v", args, err)
	}
	entry, err := resolveEntry("", m.Run.Entry, cp)
	if err != nil || entry != "Counter.sum:(I)I" {
		t.Errorf("resolveEntry = %q, %v", entry, err)
	}
}

func TestLoadClasspathProjectOverridesDependencyImage(t *testing.T) {
	root := t.TempDir()
	dep := filepath.Join(root, "dep")
	app := filepath.Join(root, "app")

	// The dependency ships a stale Counter in an image.
	stale := loadCounter(t).defs[0]
	stale.Methods = slices.Clone(stale.Methods)
	for i := range stale.Methods {
		stale.Methods[i].MaxStack = 99
	}
	if err := os.MkdirAll(dep, 0755); err != nil {
		t.Fatal(err)
	}
	if err := image.WriteFile(filepath.Join(dep, "lib.rimg"), image.New("", []vm.ClassDef{stale})); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dep, manifest.FileName), []byte("[classpath]\nimages = [\"lib.rimg\"]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	classes := filepath.Join(app, manifest.DefaultClassDir)
	if err := os.MkdirAll(classes, 0755); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(counterClass)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(classes, "Counter.class"), data, 0644); err != nil {
		t.Fatal(err)
	}
	toml := "[dependencies]\ndep = { path = \"../dep\" }\n"
	if err := os.WriteFile(filepath.Join(app, manifest.FileName), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := manifest.Load(app)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cp, err := loadClasspath(&options{}, m)
	if err != nil {
		t.Fatalf("loadClasspath: %v", err)
	}
	reg, err := vm.Load(cp.defs)
	if err != nil {
		t.Fatalf("vm.Load: %v", err)
	}
	sum, err := reg.LookupMethod("Counter.sum:(I)I")
	if err != nil {
		t.Fatalf("LookupMethod: %v", err)
	}
	if sum.MaxStack != 2 {
		t.Errorf("Counter.sum MaxStack = %d, want 2 from the project's class file", sum.MaxStack)
	}
}

func TestRunAssemblySource(t *testing.T) {
	cp := &classpath{}
	if err := cp.addPath("testdata/Calc.rasm"); err != nil {
		t.Fatalf("addPath: %v", err)
	}
	r, err := runLocal(&options{}, nil, cp, "Calc.twice:(I)I", []int32{21}, false)
	if err != nil {
		t.Fatalf("runLocal: %v", err)
	}
	if r.Status != "Completed" || r.Result != 42 {
		t.Errorf("twice(21) = %+v, want 42", r)
	}

	// A directory load picks up both the class file and the source.
	all := &classpath{}
	if err := all.addPath("testdata"); err != nil {
		t.Fatalf("addPath(testdata): %v", err)
	}
	if len(all.defs) != 2 {
		t.Errorf("testdata holds %d classes, want 2", len(all.defs))
	}
}

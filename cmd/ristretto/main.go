// Ristretto CLI - loads class files and images, runs an entry method
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/ristretto/manifest"
)

var log = commonlog.GetLogger("ristretto.cli")

func main() {
	os.Exit(run(os.Args[1:]))
}

// options holds parsed command-line flags.
type options struct {
	entry     string
	args      string
	trace     bool
	verbosity int
	images    []string

	saveImage string
	disasm    bool
	record    bool
	storePath string
	runs      int

	serve   bool
	addr    string
	workers int
	remote  string

	paths []string
}

func parseFlags(argv []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("ristretto", flag.ContinueOnError)

	fs.StringVar(&o.entry, "m", "", "Entry method (e.g. 'Main' or 'Main.run:(I)I')")
	fs.StringVar(&o.args, "args", "", "Comma-separated int arguments for the entry method")
	fs.BoolVar(&o.trace, "trace", false, "Log every executed instruction at debug level")
	fs.IntVar(&o.verbosity, "v", -1, "Log verbosity (default from ristretto.toml, else 1)")
	fs.Func("image", "Load a class image (repeatable)", func(s string) error {
		o.images = append(o.images, s)
		return nil
	})
	fs.StringVar(&o.saveImage, "save-image", "", "Write the loaded classes to an image file")
	fs.BoolVar(&o.disasm, "disasm", false, "Print the loaded classes and exit")
	fs.BoolVar(&o.record, "record", false, "Save the image and run history in the store")
	fs.StringVar(&o.storePath, "store", "", "Store database (default from ristretto.toml)")
	fs.IntVar(&o.runs, "runs", 0, "List the N most recent recorded runs and exit")
	fs.BoolVar(&o.serve, "serve", false, "Start the execution server")
	fs.StringVar(&o.addr, "addr", "", "Server address (default "+manifest.DefaultServerAddr+")")
	fs.IntVar(&o.workers, "workers", 0, "Concurrent runs when serving (default GOMAXPROCS)")
	fs.StringVar(&o.remote, "remote", "", "Run on a server instead (e.g. http://localhost:4568)")

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: ristretto [options] [paths...]\n\n")
		fmt.Fprintf(out, "Loads .class files, .rasm sources and .rimg images from the given paths\nand runs an entry method.\n\n")
		fmt.Fprintf(out, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nExamples:\n")
		fmt.Fprintf(out, "  ristretto Counter.class                 # Run Counter.main\n")
		fmt.Fprintf(out, "  ristretto -m Calc.add:(II)I -args 2,3 ./out/...\n")
		fmt.Fprintf(out, "  ristretto Calc.rasm                     # Assemble and run\n")
		fmt.Fprintf(out, "  ristretto -save-image app.rimg ./out    # Bundle classes into an image\n")
		fmt.Fprintf(out, "  ristretto -image app.rimg -disasm       # Print a listing\n")
		fmt.Fprintf(out, "  ristretto -serve -addr :4568            # Start the execution server\n")
		fmt.Fprintf(out, "  ristretto -remote http://localhost:4568 app.rimg\n")
	}

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	o.paths = fs.Args()
	return o, nil
}

func run(argv []string) int {
	o, err := parseFlags(argv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	m, err := loadManifest()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	configureLogging(o, m)

	if err := dispatch(o, m); err != nil {
		if !errors.Is(err, errFaulted) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func loadManifest() (*manifest.Manifest, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return manifest.FindAndLoad(cwd)
}

func configureLogging(o *options, m *manifest.Manifest) {
	verbosity := manifest.DefaultVerbosity
	var path *string
	if m != nil {
		verbosity = m.Verbosity()
		if f := m.LogFile(); f != "" {
			path = &f
		}
	}
	if o.verbosity >= 0 {
		verbosity = o.verbosity
	}
	commonlog.Configure(verbosity, path)
}

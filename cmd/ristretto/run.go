package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/chazu/ristretto/manifest"
	"github.com/chazu/ristretto/server"
	"github.com/chazu/ristretto/store"
	"github.com/chazu/ristretto/vm"
	"github.com/chazu/ristretto/vm/image"
)

// errFaulted is returned after a faulted run has been reported.
var errFaulted = errors.New("run faulted")

func dispatch(o *options, m *manifest.Manifest) error {
	if o.serve {
		return serve(o, m)
	}
	if o.runs > 0 {
		return listRuns(os.Stdout, o, m)
	}

	cp, err := loadClasspath(o, m)
	if err != nil {
		return err
	}
	if len(cp.defs) == 0 {
		return fmt.Errorf("no classes loaded")
	}
	log.Infof("loaded %d classes from %d files", len(cp.defs), cp.files)

	if o.disasm {
		reg, err := vm.Load(cp.defs)
		if err != nil {
			return err
		}
		fmt.Print(reg.Disassemble())
		return nil
	}

	var configured string
	if m != nil {
		configured = m.Run.Entry
	}
	entry, entryErr := resolveEntry(o.entry, configured, cp)

	if o.saveImage != "" {
		if err := image.WriteFile(o.saveImage, image.New(entry, cp.defs)); err != nil {
			return err
		}
		log.Infof("wrote %s (%d classes)", o.saveImage, len(cp.defs))
		if o.entry == "" {
			return nil
		}
	}

	if entryErr != nil {
		return entryErr
	}
	args, err := entryArgs(o, m)
	if err != nil {
		return err
	}
	trace := o.trace || (m != nil && m.Run.Trace)

	var r store.Run
	if o.remote != "" {
		r, err = runRemote(o.remote, cp, entry, args, trace)
	} else {
		r, err = runLocal(o, m, cp, entry, args, trace)
	}
	if err != nil {
		return err
	}
	return report(os.Stdout, os.Stderr, r)
}

// loadClasspath reads the paths and images named on the command line.
// Without any, it falls back to the manifest's classpath and its
// dependencies.
func loadClasspath(o *options, m *manifest.Manifest) (*classpath, error) {
	cp := &classpath{}

	if len(o.paths) > 0 || len(o.images) > 0 {
		for _, p := range o.paths {
			if err := cp.addPath(p); err != nil {
				return nil, err
			}
		}
		for _, p := range o.images {
			if err := cp.addImage(p); err != nil {
				return nil, err
			}
		}
		return cp, nil
	}

	if m == nil {
		return nil, fmt.Errorf("no class paths given and no %s found", manifest.FileName)
	}

	deps, err := manifest.NewResolver(m).Resolve()
	if err != nil {
		return nil, err
	}
	for _, src := range manifest.ClassSources(m, deps) {
		add := cp.addOptionalDir
		if src.Image {
			add = cp.addImage
		}
		if err := add(src.Path); err != nil {
			return nil, err
		}
	}
	return cp, nil
}

func entryArgs(o *options, m *manifest.Manifest) ([]int32, error) {
	if o.args == "" {
		if m != nil {
			return m.Run.Args, nil
		}
		return nil, nil
	}
	return parseArgs(o.args)
}

// parseArgs parses "1,-2,3" into int32 values.
func parseArgs(s string) ([]int32, error) {
	var args []int32
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseInt(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad argument %q: %w", field, err)
		}
		args = append(args, int32(v))
	}
	return args, nil
}

func storePath(o *options, m *manifest.Manifest) string {
	switch {
	case o.storePath != "":
		return o.storePath
	case m != nil:
		return m.StorePath()
	}
	return manifest.DefaultStorePath
}

// ---------------------------------------------------------------------------
// Running
// ---------------------------------------------------------------------------

func runLocal(o *options, m *manifest.Manifest, cp *classpath, entry string, args []int32, trace bool) (store.Run, error) {
	reg, err := vm.Load(cp.defs)
	if err != nil {
		return store.Run{}, err
	}

	started := time.Now()
	status := vm.Execute(reg, entry, vm.WithTrace(trace), vm.WithArgs(args...))

	if !o.record {
		return store.NewRun("", entry, started, status), nil
	}

	st, err := store.Open(storePath(o, m))
	if err != nil {
		return store.Run{}, err
	}
	defer st.Close()

	digest, err := st.SaveImage(image.New(entry, cp.defs))
	if err != nil {
		return store.Run{}, err
	}
	r, err := st.RecordRun(store.NewRun(digest, entry, started, status))
	if err != nil {
		return store.Run{}, err
	}
	log.Infof("recorded run %s", r.ID)
	return r, nil
}

func runRemote(baseURL string, cp *classpath, entry string, args []int32, trace bool) (store.Run, error) {
	data, err := image.Marshal(image.New(entry, cp.defs))
	if err != nil {
		return store.Run{}, err
	}

	client := server.NewClient(nil, baseURL)
	resp, err := client.Execute(context.Background(), &server.ExecuteRequest{
		Image: data,
		Entry: entry,
		Args:  args,
		Trace: trace,
	})
	if err != nil {
		return store.Run{}, fmt.Errorf("remote execute: %w", err)
	}
	log.Infof("remote run %s", resp.RunID)

	return store.Run{
		ID:        resp.RunID,
		Image:     resp.ImageDigest,
		Entry:     resp.Entry,
		Status:    resp.Status,
		FaultKind: resp.FaultKind,
		Fault:     resp.Fault,
		Result:    resp.Result,
		HasResult: resp.HasResult,
		Stats:     resp.Stats,
	}, nil
}

// report prints a returned value on stdout and a fault on stderr.
func report(stdout, stderr io.Writer, r store.Run) error {
	log.Infof("%s %s: %d instructions, %d invocations, depth %d",
		r.Entry, r.Status, r.Stats.Instructions, r.Stats.Invocations, r.Stats.MaxDepth)

	if r.Status != vm.Completed.String() {
		fmt.Fprintf(stderr, "%s: %s\n", r.FaultKind, r.Fault)
		return errFaulted
	}
	if r.HasResult {
		fmt.Fprintln(stdout, r.Result)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Store and server commands
// ---------------------------------------------------------------------------

func listRuns(w io.Writer, o *options, m *manifest.Manifest) error {
	st, err := store.Open(storePath(o, m))
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs(o.runs)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tENTRY\tSTATUS\tRESULT\tINSTRUCTIONS")
	for _, r := range runs {
		result := "-"
		switch {
		case r.FaultKind != "":
			result = r.FaultKind
		case r.HasResult:
			result = strconv.Itoa(int(r.Result))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.StartedAt.Format(time.DateTime), r.Entry, r.Status, result, r.Stats.Instructions)
	}
	return tw.Flush()
}

func serve(o *options, m *manifest.Manifest) error {
	addr := o.addr
	if addr == "" {
		addr = manifest.DefaultServerAddr
		if m != nil {
			addr = m.Server.Addr
		}
	}

	st, err := store.Open(storePath(o, m))
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []server.Option{server.WithStore(st)}
	if o.workers > 0 {
		opts = append(opts, server.WithWorkers(o.workers))
	}
	srv := server.New(opts...)
	defer srv.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warningf("shutdown: %v", err)
		}
	}()

	return srv.ListenAndServe(addr)
}

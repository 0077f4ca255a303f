// Package server exposes the interpreter over Connect. Messages are plain
// Go structs carried by a CBOR codec.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"runtime"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/ristretto/store"
)

var log = commonlog.GetLogger("ristretto.server")

// Server serves ExecutionService on a single mux.
type Server struct {
	pool  *WorkerPool
	store *store.Store
	mux   *http.ServeMux
	http  *http.Server
}

// Option configures a Server.
type Option func(*config)

type config struct {
	store   *store.Store
	workers int
}

// WithStore persists runs and enables SaveImage, ListRuns and
// digest-addressed requests.
func WithStore(st *store.Store) Option {
	return func(c *config) { c.store = st }
}

// WithWorkers sets how many runs may execute at once.
// The default is GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// New creates a Server. Call Stop to release its workers.
func New(opts ...Option) *Server {
	cfg := &config{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		pool:  NewWorkerPool(cfg.workers),
		store: cfg.store,
		mux:   http.NewServeMux(),
	}
	s.http = &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}

	svc := NewExecutionService(s.pool, s.store)
	codec := connect.WithCodec(cborCodec{})

	s.mux.Handle(ExecuteProcedure, connect.NewUnaryHandler(ExecuteProcedure, svc.Execute, codec))
	s.mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, svc.Disassemble, codec))
	s.mux.Handle(SaveImageProcedure, connect.NewUnaryHandler(SaveImageProcedure, svc.SaveImage, codec))
	s.mux.Handle(ListRunsProcedure, connect.NewUnaryHandler(ListRunsProcedure, svc.ListRuns, codec))

	return s
}

// Handler returns the HTTP handler serving every procedure.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr ("host:port" or ":port") until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Infof("listening on %s", ln.Addr())
	log.Infof("  Connect (CBOR): http://%s%s", ln.Addr(), ExecuteProcedure)

	err = s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Stop shuts down the worker pool.
func (s *Server) Stop() {
	s.pool.Stop()
}

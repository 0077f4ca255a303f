package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/ristretto/store"
	"github.com/chazu/ristretto/vm"
	"github.com/chazu/ristretto/vm/image"
	"github.com/google/uuid"
)

// DefaultRunLimit caps ListRuns when the request gives no limit.
const DefaultRunLimit = 20

// ExecutionService implements the ristretto.v1.ExecutionService handlers.
type ExecutionService struct {
	pool  *WorkerPool
	store *store.Store // nil when runs are not persisted
}

// NewExecutionService creates an ExecutionService. st may be nil.
func NewExecutionService(pool *WorkerPool, st *store.Store) *ExecutionService {
	return &ExecutionService{pool: pool, store: st}
}

// Execute loads the requested image and runs its entry method.
func (s *ExecutionService) Execute(
	ctx context.Context,
	req *connect.Request[ExecuteRequest],
) (*connect.Response[ExecuteResponse], error) {
	img, digest, err := s.resolveImage(req.Msg.Image, req.Msg.Digest)
	if err != nil {
		return nil, err
	}

	entry := req.Msg.Entry
	if entry == "" {
		entry = img.Entry
	}
	if entry == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("entry is required"))
	}

	opts := []vm.Option{vm.WithTrace(req.Msg.Trace), vm.WithArgs(req.Msg.Args...)}
	result, err := s.pool.Do(ctx, func() (any, error) {
		started := time.Now()
		reg, err := img.Load()
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return store.NewRun(digest, entry, started, vm.Execute(reg, entry, opts...)), nil
	})
	if err != nil {
		return nil, asConnect(err)
	}

	run := result.(store.Run)
	if s.store != nil {
		if run, err = s.store.RecordRun(run); err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
	} else {
		run.ID = uuid.New().String()
	}

	log.Infof("execute %s: %s (%d instructions)", entry, run.Status, run.Stats.Instructions)
	return connect.NewResponse(executeResponse(run)), nil
}

// Disassemble returns the listing of every class in an image, or of one.
func (s *ExecutionService) Disassemble(
	ctx context.Context,
	req *connect.Request[DisassembleRequest],
) (*connect.Response[DisassembleResponse], error) {
	img, _, err := s.resolveImage(req.Msg.Image, req.Msg.Digest)
	if err != nil {
		return nil, err
	}

	reg, err := img.Load()
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	resp := &DisassembleResponse{}
	for _, c := range reg.Classes() {
		resp.Classes = append(resp.Classes, c.Name)
	}

	if name := req.Msg.Class; name != "" {
		class, err := reg.LookupClass(name)
		if err != nil {
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		resp.Listing = class.Disassemble()
	} else {
		resp.Listing = reg.Disassemble()
	}
	return connect.NewResponse(resp), nil
}

// SaveImage stores an encoded image and returns its digest.
func (s *ExecutionService) SaveImage(
	ctx context.Context,
	req *connect.Request[SaveImageRequest],
) (*connect.Response[SaveImageResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("server has no store"))
	}
	if len(req.Msg.Image) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("image is required"))
	}

	img, err := image.Unmarshal(req.Msg.Image)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	// Reject images that would not load before they reach the store.
	if _, err := img.Load(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	digest, err := s.store.SaveImage(img)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&SaveImageResponse{Digest: digest, Classes: len(img.Classes)}), nil
}

// ListRuns returns recorded runs, newest first.
func (s *ExecutionService) ListRuns(
	ctx context.Context,
	req *connect.Request[ListRunsRequest],
) (*connect.Response[ListRunsResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("server has no store"))
	}

	limit := req.Msg.Limit
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	runs, err := s.store.Runs(limit)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	resp := &ListRunsResponse{Runs: make([]RunInfo, 0, len(runs))}
	for _, r := range runs {
		resp.Runs = append(resp.Runs, runInfo(r))
	}
	return connect.NewResponse(resp), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// resolveImage decodes an inline image or fetches a stored one. The digest is
// returned in hex.
func (s *ExecutionService) resolveImage(data []byte, digest string) (*image.Image, string, error) {
	switch {
	case len(data) > 0:
		img, err := image.Unmarshal(data)
		if err != nil {
			return nil, "", connect.NewError(connect.CodeInvalidArgument, err)
		}
		root, err := image.Digest(img)
		if err != nil {
			return nil, "", connect.NewError(connect.CodeInvalidArgument, err)
		}
		return img, hex.EncodeToString(root[:]), nil

	case digest != "":
		if s.store == nil {
			return nil, "", connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("server has no store"))
		}
		img, err := s.store.LoadImage(digest)
		if errors.Is(err, store.ErrImageNotFound) {
			return nil, "", connect.NewError(connect.CodeNotFound, err)
		}
		if err != nil {
			return nil, "", connect.NewError(connect.CodeInternal, err)
		}
		return img, digest, nil
	}

	return nil, "", connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("image or digest is required"))
}

// asConnect maps worker errors onto Connect codes.
func asConnect(err error) error {
	var ce *connect.Error
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, ErrStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

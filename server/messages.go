package server

import (
	"time"

	"github.com/chazu/ristretto/store"
	"github.com/chazu/ristretto/vm"
)

// Procedure paths served by ExecutionService.
const (
	ServiceName          = "ristretto.v1.ExecutionService"
	ExecuteProcedure     = "/" + ServiceName + "/Execute"
	DisassembleProcedure = "/" + ServiceName + "/Disassemble"
	SaveImageProcedure   = "/" + ServiceName + "/SaveImage"
	ListRunsProcedure    = "/" + ServiceName + "/ListRuns"
)

// ExecuteRequest runs an entry method. The classes come either from
// Image (an encoded image) or from Digest (an image already in the store).
// Entry defaults to the image's own entry.
type ExecuteRequest struct {
	Image  []byte  `cbor:"1,keyasint,omitempty"`
	Digest string  `cbor:"2,keyasint,omitempty"`
	Entry  string  `cbor:"3,keyasint,omitempty"`
	Args   []int32 `cbor:"4,keyasint,omitempty"`
	Trace  bool    `cbor:"5,keyasint,omitempty"`
}

// ExecuteResponse reports a finished run. A faulted run is still a
// successful call; Status and Fault describe what went wrong.
type ExecuteResponse struct {
	RunID       string   `cbor:"1,keyasint"`
	ImageDigest string   `cbor:"2,keyasint"`
	Entry       string   `cbor:"3,keyasint"`
	Status      string   `cbor:"4,keyasint"`
	FaultKind   string   `cbor:"5,keyasint,omitempty"`
	Fault       string   `cbor:"6,keyasint,omitempty"`
	Result      int32    `cbor:"7,keyasint"`
	HasResult   bool     `cbor:"8,keyasint"`
	Stats       vm.Stats `cbor:"9,keyasint"`
}

// DisassembleRequest lists an image's classes. Class narrows the output
// to one class.
type DisassembleRequest struct {
	Image  []byte `cbor:"1,keyasint,omitempty"`
	Digest string `cbor:"2,keyasint,omitempty"`
	Class  string `cbor:"3,keyasint,omitempty"`
}

type DisassembleResponse struct {
	Classes []string `cbor:"1,keyasint"`
	Listing string   `cbor:"2,keyasint"`
}

type SaveImageRequest struct {
	Image []byte `cbor:"1,keyasint"`
}

type SaveImageResponse struct {
	Digest  string `cbor:"1,keyasint"`
	Classes int    `cbor:"2,keyasint"`
}

// ListRunsRequest asks for the most recent runs, newest first.
type ListRunsRequest struct {
	Limit int `cbor:"1,keyasint,omitempty"`
}

type ListRunsResponse struct {
	Runs []RunInfo `cbor:"1,keyasint"`
}

// RunInfo is the wire form of a recorded run.
type RunInfo struct {
	ID          string        `cbor:"1,keyasint"`
	ImageDigest string        `cbor:"2,keyasint,omitempty"`
	Entry       string        `cbor:"3,keyasint"`
	Status      string        `cbor:"4,keyasint"`
	FaultKind   string        `cbor:"5,keyasint,omitempty"`
	Fault       string        `cbor:"6,keyasint,omitempty"`
	Result      int32         `cbor:"7,keyasint"`
	HasResult   bool          `cbor:"8,keyasint"`
	Stats       vm.Stats      `cbor:"9,keyasint"`
	StartedAt   time.Time     `cbor:"10,keyasint"`
	Duration    time.Duration `cbor:"11,keyasint"`
}

func runInfo(r store.Run) RunInfo {
	return RunInfo{
		ID:          r.ID,
		ImageDigest: r.Image,
		Entry:       r.Entry,
		Status:      r.Status,
		FaultKind:   r.FaultKind,
		Fault:       r.Fault,
		Result:      r.Result,
		HasResult:   r.HasResult,
		Stats:       r.Stats,
		StartedAt:   r.StartedAt,
		Duration:    r.Duration,
	}
}

func executeResponse(r store.Run) *ExecuteResponse {
	return &ExecuteResponse{
		RunID:       r.ID,
		ImageDigest: r.Image,
		Entry:       r.Entry,
		Status:      r.Status,
		FaultKind:   r.FaultKind,
		Fault:       r.Fault,
		Result:      r.Result,
		HasResult:   r.HasResult,
		Stats:       r.Stats,
	}
}

package server

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a remote ExecutionService.
type Client struct {
	execute     *connect.Client[ExecuteRequest, ExecuteResponse]
	disassemble *connect.Client[DisassembleRequest, DisassembleResponse]
	saveImage   *connect.Client[SaveImageRequest, SaveImageResponse]
	listRuns    *connect.Client[ListRunsRequest, ListRunsResponse]
}

// NewClient creates a client for the server at baseURL
// (for example "http://localhost:4568"). A nil httpClient uses
// http.DefaultClient.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(cborCodec{})}, opts...)

	return &Client{
		execute:     connect.NewClient[ExecuteRequest, ExecuteResponse](httpClient, baseURL+ExecuteProcedure, opts...),
		disassemble: connect.NewClient[DisassembleRequest, DisassembleResponse](httpClient, baseURL+DisassembleProcedure, opts...),
		saveImage:   connect.NewClient[SaveImageRequest, SaveImageResponse](httpClient, baseURL+SaveImageProcedure, opts...),
		listRuns:    connect.NewClient[ListRunsRequest, ListRunsResponse](httpClient, baseURL+ListRunsProcedure, opts...),
	}
}

func (c *Client) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	resp, err := c.execute.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Disassemble(ctx context.Context, req *DisassembleRequest) (*DisassembleResponse, error) {
	resp, err := c.disassemble.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) SaveImage(ctx context.Context, req *SaveImageRequest) (*SaveImageResponse, error) {
	resp, err := c.saveImage.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) ListRuns(ctx context.Context, req *ListRunsRequest) (*ListRunsResponse, error) {
	resp, err := c.listRuns.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

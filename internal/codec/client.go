// Package codec is the gRPC client for the inference sidecar that serves
// generation and web search. Payloads travel as google.protobuf.Struct.
package codec

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
	"github.com/danielpatrickdp/agent-boss/internal/llm"
	"github.com/danielpatrickdp/agent-boss/internal/websearch"
)

// #region methods
const (
	serviceName     = "agentboss.inference.v1.InferenceService"
	generateMethod  = "/" + serviceName + "/Generate"
	webSearchMethod = "/" + serviceName + "/WebSearch"
)
// #endregion methods

// #region client-struct
// CodecClient wraps the gRPC connection to the inference service.
type CodecClient struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}
// #endregion client-struct

// #region constructor
// NewCodecClient connects to the inference gRPC server.
func NewCodecClient(addr string) (*CodecClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &CodecClient{conn: conn, cc: conn}, nil
}

// NewCodecClientWithConn creates a CodecClient over an injected connection.
// Used for testing without a real gRPC server.
func NewCodecClientWithConn(cc grpc.ClientConnInterface) *CodecClient {
	return &CodecClient{cc: cc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *CodecClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
// #endregion close

// #region generate
// Generate sends a prompt to the inference service.
func (c *CodecClient) Generate(ctx context.Context, prompt string, p llm.Params) (string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"prompt":      prompt,
		"max_tokens":  p.MaxTokens,
		"temperature": p.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, generateMethod, req, resp); err != nil {
		return "", classify("codec.Generate", fmt.Errorf("generate rpc: %w", err))
	}
	text, ok := resp.GetFields()["text"]
	if !ok {
		return "", errs.New(errs.KindModel, "codec.Generate", "response has no text field")
	}
	return text.GetStringValue(), nil
}
// #endregion generate

// #region web-search
// WebSearch queries the web via the inference service.
func (c *CodecClient) WebSearch(ctx context.Context, query string, maxResults int) ([]websearch.Result, error) {
	req, err := structpb.NewStruct(map[string]any{
		"query":       query,
		"max_results": maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("build web search request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, webSearchMethod, req, resp); err != nil {
		return nil, classify("codec.WebSearch", fmt.Errorf("web search rpc: %w", err))
	}

	items := resp.GetFields()["results"].GetListValue().GetValues()
	results := make([]websearch.Result, 0, len(items))
	for _, item := range items {
		f := item.GetStructValue().GetFields()
		results = append(results, websearch.Result{
			Title:   f["title"].GetStringValue(),
			Snippet: f["snippet"].GetStringValue(),
			URL:     f["url"].GetStringValue(),
		})
	}
	return results, nil
}
// #endregion web-search

// #region classify
func classify(op string, err error) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return errs.Wrap(errs.KindRateLimit, op, err)
	case codes.DeadlineExceeded:
		return errs.Wrap(errs.KindTimeout, op, err)
	}
	return llm.Classify(op, err)
}
// #endregion classify

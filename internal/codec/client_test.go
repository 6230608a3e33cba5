package codec

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
	"github.com/danielpatrickdp/agent-boss/internal/llm"
)

// #region mock
type mockConn struct {
	grpc.ClientConnInterface

	responses map[string]*structpb.Struct
	err       error

	lastMethod string
	lastReq    *structpb.Struct
}

func (m *mockConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	m.lastMethod = method
	m.lastReq, _ = args.(*structpb.Struct)
	if m.err != nil {
		return m.err
	}
	if resp, ok := m.responses[method]; ok {
		proto.Merge(reply.(proto.Message), resp)
	}
	return nil
}

func mustStruct(t *testing.T, v map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(v)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

// #endregion mock

// #region constructor-tests
func TestNewCodecClientInvalidAddr(t *testing.T) {
	client, err := NewCodecClient("localhost:0")
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	defer client.Close()
}

func TestNewCodecClientWithConn(t *testing.T) {
	c := NewCodecClientWithConn(&mockConn{})
	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.cc == nil {
		t.Fatal("expected non-nil internal connection")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close without conn: %v", err)
	}
}

// #endregion constructor-tests

// #region generate-tests
func TestGenerate_Success(t *testing.T) {
	mock := &mockConn{responses: map[string]*structpb.Struct{
		generateMethod: mustStruct(t, map[string]any{"text": "hello world"}),
	}}
	c := NewCodecClientWithConn(mock)

	text, err := c.Generate(context.Background(), "prompt", llm.Params{MaxTokens: 10, Temperature: 0.3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello world" {
		t.Errorf("expected text 'hello world', got %q", text)
	}
	if mock.lastMethod != generateMethod {
		t.Errorf("expected method %s, got %s", generateMethod, mock.lastMethod)
	}
	f := mock.lastReq.GetFields()
	if f["prompt"].GetStringValue() != "prompt" {
		t.Errorf("expected prompt in request, got %v", f["prompt"])
	}
	if f["max_tokens"].GetNumberValue() != 10 {
		t.Errorf("expected max_tokens 10, got %v", f["max_tokens"])
	}
}

func TestGenerate_MissingText(t *testing.T) {
	c := NewCodecClientWithConn(&mockConn{})
	_, err := c.Generate(context.Background(), "prompt", llm.Params{})
	if !errors.Is(err, errs.ErrModel) {
		t.Fatalf("expected model error, got %v", err)
	}
}

func TestGenerate_Error(t *testing.T) {
	mock := &mockConn{err: errors.New("rpc failed")}
	c := NewCodecClientWithConn(mock)

	_, err := c.Generate(context.Background(), "prompt", llm.Params{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, mock.err) {
		t.Errorf("expected wrapped rpc error, got: %v", err)
	}
	if !errors.Is(err, errs.ErrModel) {
		t.Errorf("expected model kind, got: %v", err)
	}
}

func TestGenerate_StatusCodes(t *testing.T) {
	tests := []struct {
		code codes.Code
		want *errs.Error
	}{
		{codes.ResourceExhausted, errs.ErrRateLimited},
		{codes.DeadlineExceeded, errs.ErrTimeout},
		{codes.Unavailable, errs.ErrModel},
	}
	for _, tt := range tests {
		c := NewCodecClientWithConn(&mockConn{err: status.Error(tt.code, "nope")})
		_, err := c.Generate(context.Background(), "p", llm.Params{})
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.code, tt.want.Kind, err)
		}
	}
}

// #endregion generate-tests

// #region web-search-tests
func TestWebSearch_Success(t *testing.T) {
	mock := &mockConn{responses: map[string]*structpb.Struct{
		webSearchMethod: mustStruct(t, map[string]any{
			"results": []any{
				map[string]any{"title": "Result 1", "snippet": "Snippet 1", "url": "https://example.com/1"},
				map[string]any{"title": "Result 2", "snippet": "Snippet 2", "url": "https://example.com/2"},
			},
		}),
	}}
	c := NewCodecClientWithConn(mock)

	results, err := c.WebSearch(context.Background(), "test query", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "Result 1" {
		t.Errorf("expected title 'Result 1', got %q", results[0].Title)
	}
	if results[0].Snippet != "Snippet 1" {
		t.Errorf("expected snippet 'Snippet 1', got %q", results[0].Snippet)
	}
	if results[0].URL != "https://example.com/1" {
		t.Errorf("expected URL 'https://example.com/1', got %q", results[0].URL)
	}
	if mock.lastReq.GetFields()["max_results"].GetNumberValue() != 3 {
		t.Error("expected max_results in request")
	}
}

func TestWebSearch_EmptyResponse(t *testing.T) {
	c := NewCodecClientWithConn(&mockConn{})
	results, err := c.WebSearch(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestWebSearch_Error(t *testing.T) {
	mock := &mockConn{err: errors.New("web search failed")}
	c := NewCodecClientWithConn(mock)

	_, err := c.WebSearch(context.Background(), "test", 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, mock.err) {
		t.Errorf("expected wrapped web search error, got: %v", err)
	}
}

// #endregion web-search-tests

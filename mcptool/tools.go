// Package mcptool exposes extraction and chunking as MCP tools.
package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"docsift/chunk"
	"docsift/extract"
)

// Processor is the extraction entry point the tools call.
type Processor interface {
	Process(ctx context.Context, up extract.Upload) extract.Result
}

type handler func(ctx context.Context, raw json.RawMessage) (any, error)

// NewServer builds an MCP server with the extract_document and chunk_text
// tools registered. chunkDefaults fill in size and overlap the caller omits.
func NewServer(proc Processor, chunkDefaults chunk.Options, version string, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := mcp.NewServer(&mcp.Implementation{Name: "docsift", Version: version}, nil)
	t := &tools{proc: proc, chunk: chunkDefaults, logger: logger}

	t.register(srv, &mcp.Tool{
		Name:        "extract_document",
		Description: "Extract plain text from a base64-encoded document (pdf, doc, docx, txt, eml, mbox).",
		InputSchema: inputSchema(map[string]any{
			"name":    map[string]any{"type": "string", "description": "File name; the extension selects the format"},
			"content": map[string]any{"type": "string", "description": "Base64 document bytes, optionally as a data URL"},
			"type":    map[string]any{"type": "string", "description": "Declared MIME type"},
		}, []string{"name", "content"}),
	}, t.extractDocument)

	t.register(srv, &mcp.Tool{
		Name:        "chunk_text",
		Description: "Split text into overlapping chunks for indexing.",
		InputSchema: inputSchema(map[string]any{
			"text":    map[string]any{"type": "string", "description": "Text to split"},
			"size":    map[string]any{"type": "integer", "description": "Maximum characters per chunk"},
			"overlap": map[string]any{"type": "integer", "description": "Characters shared with the previous chunk"},
		}, []string{"text"}),
	}, t.chunkText)

	return srv
}

// Serve runs the tools over stdio until ctx is cancelled or the client hangs up.
func Serve(ctx context.Context, srv *mcp.Server) error {
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type tools struct {
	proc   Processor
	chunk  chunk.Options
	logger *slog.Logger
}

func (t *tools) register(srv *mcp.Server, tool *mcp.Tool, h handler) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := h(ctx, req.Params.Arguments)
		if err != nil {
			t.logger.Warn("tool call failed", "tool", tool.Name, "error", err)
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

type extractReq struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

type extractResp struct {
	Text        string            `json:"text"`
	Status      extract.Status    `json:"status"`
	Diagnostics []extract.Attempt `json:"diagnostics"`
}

func (t *tools) extractDocument(ctx context.Context, raw json.RawMessage) (any, error) {
	var r extractReq
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if r.Name == "" {
		return nil, errors.New("name is required")
	}
	res := t.proc.Process(ctx, extract.Upload{Name: r.Name, Type: r.Type, Content: r.Content})
	return extractResp{Text: res.String(), Status: res.Status, Diagnostics: res.Diagnostics}, nil
}

type chunkReq struct {
	Text    string `json:"text"`
	Size    int    `json:"size"`
	Overlap *int   `json:"overlap"`
}

type chunkResp struct {
	Chunks []chunk.Chunk `json:"chunks"`
}

func (t *tools) chunkText(_ context.Context, raw json.RawMessage) (any, error) {
	var r chunkReq
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	opts := t.chunk
	if r.Size > 0 {
		opts = opts.WithSize(r.Size)
	}
	if r.Overlap != nil {
		opts.Overlap = *r.Overlap
	}
	chunks, err := chunk.Split(r.Text, opts)
	if err != nil {
		return nil, err
	}
	if chunks == nil {
		chunks = []chunk.Chunk{}
	}
	return chunkResp{Chunks: chunks}, nil
}

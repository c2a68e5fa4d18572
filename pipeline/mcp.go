package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the pipeline's control operations as MCP tools:
// translate_page, translate_stop, translate_undo, toggle_bilingual, and
// translate_status. These are the same entry points the extension UI
// triggers; the RPC endpoint for the translations themselves stays behind
// the Translator boundary.
func (c *Controller) RegisterMCP(srv *mcp.Server) {
	c.registerTranslatePageTool(srv)
	c.registerStopTool(srv)
	c.registerUndoTool(srv)
	c.registerToggleBilingualTool(srv)
	c.registerStatusTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
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

// addTool wires decode → endpoint → JSON text result, the same glue every
// tool shares.
func addTool[Req any](srv *mcp.Server, tool *mcp.Tool, endpoint func(context.Context, *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r Req
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}
		resp, err := endpoint(ctx, &r)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
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

type translatePageRequest struct {
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Strategy   string `json:"strategy,omitempty"`
	Provider   string `json:"provider,omitempty"`
}

func (c *Controller) registerTranslatePageTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "translate_page",
		Description: "Translate the page. No-op when a translation session is already active.",
		InputSchema: inputSchema(map[string]any{
			"source_lang": map[string]any{"type": "string", "description": "Source language code (e.g. en)"},
			"target_lang": map[string]any{"type": "string", "description": "Target language code (e.g. fr)"},
			"strategy":    map[string]any{"type": "string", "description": "Translation strategy hint"},
			"provider":    map[string]any{"type": "string", "description": "Provider override"},
		}, []string{"source_lang", "target_lang"}),
	}
	addTool(srv, tool, func(ctx context.Context, r *translatePageRequest) (any, error) {
		return c.TranslatePage(ctx, Settings{
			SourceLang: r.SourceLang,
			TargetLang: r.TargetLang,
			Strategy:   r.Strategy,
			Provider:   r.Provider,
		})
	})
}

func (c *Controller) registerStopTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "translate_stop",
		Description: "End the translation session, leaving translations in place.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, _ *struct{}) (any, error) {
		c.Stop()
		return map[string]string{"status": "stopped"}, nil
	})
}

func (c *Controller) registerUndoTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "translate_undo",
		Description: "Restore original text everywhere and tear down observers.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, _ *struct{}) (any, error) {
		return map[string]int{"restored": c.Undo()}, nil
	})
}

func (c *Controller) registerToggleBilingualTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "toggle_bilingual",
		Description: "Toggle the bilingual annotation mode on every translated element.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, _ *struct{}) (any, error) {
		return map[string]bool{"bilingual": c.ToggleBilingual()}, nil
	})
}

type statusResponse struct {
	SessionActive bool   `json:"session_active"`
	SourceLang    string `json:"source_lang,omitempty"`
	TargetLang    string `json:"target_lang,omitempty"`
	Translated    int    `json:"translated_elements"`
	Bilingual     bool   `json:"bilingual"`
}

func (c *Controller) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "translate_status",
		Description: "Report the current translation session and element counts.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, _ *struct{}) (any, error) {
		st := statusResponse{
			Translated: c.states.Len(),
			Bilingual:  c.writer.Bilingual(),
		}
		if sess := c.Session(); sess != nil {
			st.SessionActive = true
			st.SourceLang = sess.SourceLang
			st.TargetLang = sess.TargetLang
		}
		return st, nil
	})
}

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/singleflight"

	logx "github.com/Chative-triage/server/pkg/logger"
)

const (
	DefaultMCPTimeout = 15 * time.Second
	maxToolPages      = 10
)

// MCPSession is the subset of an MCP client the tool adapter needs.
type MCPSession interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// MCPDialer opens an initialised session to the server at uri.
type MCPDialer func(ctx context.Context, uri string) (MCPSession, error)

type mcpEntry struct {
	session MCPSession
	tools   []tool.BaseTool
}

// MCPToolCache discovers MCP tools once per server URI and shares them across
// runs. Concurrent first loads of the same URI are collapsed into one dial.
type MCPToolCache struct {
	dial    MCPDialer
	timeout time.Duration

	mu      sync.RWMutex
	entries map[string]*mcpEntry
	group   singleflight.Group
}

// NewMCPToolCache builds a cache. A nil dialer uses the streamable HTTP transport.
func NewMCPToolCache(dial MCPDialer, timeout time.Duration) *MCPToolCache {
	if dial == nil {
		dial = DialStreamableHTTP
	}
	if timeout <= 0 {
		timeout = DefaultMCPTimeout
	}
	return &MCPToolCache{
		dial:    dial,
		timeout: timeout,
		entries: make(map[string]*mcpEntry),
	}
}

// Tools returns the tools of the server at uri, loading them on first use.
// An empty uri yields no tools.
func (c *MCPToolCache) Tools(ctx context.Context, uri string) ([]tool.BaseTool, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, nil
	}

	c.mu.RLock()
	e, ok := c.entries[uri]
	c.mu.RUnlock()
	if ok {
		return e.tools, nil
	}

	v, err, _ := c.group.Do(uri, func() (any, error) {
		c.mu.RLock()
		e, ok := c.entries[uri]
		c.mu.RUnlock()
		if ok {
			return e, nil
		}

		// waiters share this load, so one caller's cancellation must not fail the rest
		e, err := c.load(context.WithoutCancel(ctx), uri)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[uri] = e
		c.mu.Unlock()
		logx.Info().Str("mcp_uri", uri).Int("tools", len(e.tools)).Msg("mcp tools loaded")
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mcpEntry).tools, nil
}

func (c *MCPToolCache) load(ctx context.Context, uri string) (*mcpEntry, error) {
	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	session, err := c.dial(dctx, uri)
	if err != nil {
		return nil, fmt.Errorf("mcp dial %s: %w", uri, err)
	}
	list, err := session.ListTools(dctx)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("mcp list tools %s: %w", uri, err)
	}

	out := make([]tool.BaseTool, 0, len(list))
	for _, t := range list {
		out = append(out, &mcpTool{
			info:    toolInfoFromMCP(t),
			session: session,
			timeout: c.timeout,
			broken:  func() { c.drop(uri, session) },
		})
	}
	return &mcpEntry{session: session, tools: out}, nil
}

// Invalidate drops the cached entry for uri so the next call re-dials.
func (c *MCPToolCache) Invalidate(uri string) {
	c.mu.Lock()
	e, ok := c.entries[uri]
	delete(c.entries, uri)
	c.mu.Unlock()
	if ok {
		_ = e.session.Close()
	}
}

// drop evicts uri only while it still holds session, so a broken tool from
// an old session cannot evict a fresh one.
func (c *MCPToolCache) drop(uri string, session MCPSession) {
	c.mu.Lock()
	e, ok := c.entries[uri]
	if ok && e.session == session {
		delete(c.entries, uri)
	}
	c.mu.Unlock()
	if ok && e.session == session {
		_ = session.Close()
		logx.Warn().Str("mcp_uri", uri).Msg("mcp session dropped, next run re-dials")
	}
}

// Close closes every cached session.
func (c *MCPToolCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for uri, e := range c.entries {
		if err := e.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", uri, err))
		}
		delete(c.entries, uri)
	}
	return errors.Join(errs...)
}

// ===================================
// Tool adapter
// ===================================

type mcpTool struct {
	info    *schema.ToolInfo
	session MCPSession
	timeout time.Duration
	broken  func()
}

var _ tool.InvokableTool = (*mcpTool)(nil)

func (t *mcpTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *mcpTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	args := map[string]any{}
	if err := decodeArgs(argumentsInJSON, &args); err != nil {
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	res, err := t.session.CallTool(cctx, t.info.Name, args)
	if err != nil {
		logx.Warn().Err(err).Str("tool", t.info.Name).Msg("mcp tool call failed")
		// transport failures poison the session; a cancelled caller does not
		if ctx.Err() == nil && t.broken != nil {
			t.broken()
		}
		return fmt.Sprintf("Tool %s failed: %v", t.info.Name, err), nil
	}

	text := resultText(res)
	if res.IsError {
		return fmt.Sprintf("Tool %s returned an error: %s", t.info.Name, text), nil
	}
	return text, nil
}

func resultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// toolInfoFromMCP maps the MCP JSON schema onto Eino parameter infos. Only the
// top-level properties are described in detail; nested objects keep their type.
func toolInfoFromMCP(t mcp.Tool) *schema.ToolInfo {
	in := t.InputSchema
	if len(t.RawInputSchema) > 0 {
		var raw mcp.ToolInputSchema
		if err := json.Unmarshal(t.RawInputSchema, &raw); err == nil {
			in = raw
		}
	}

	required := make(map[string]bool, len(in.Required))
	for _, r := range in.Required {
		required[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(in.Properties))
	names := make([]string, 0, len(in.Properties))
	for name := range in.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop, _ := in.Properties[name].(map[string]any)
		p := paramFromSchema(prop)
		p.Required = required[name]
		params[name] = p
	}

	return &schema.ToolInfo{
		Name:        t.Name,
		Desc:        t.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

func paramFromSchema(prop map[string]any) *schema.ParameterInfo {
	p := &schema.ParameterInfo{Type: schema.String}
	if prop == nil {
		return p
	}
	if d, ok := prop["description"].(string); ok {
		p.Desc = d
	}
	switch prop["type"] {
	case "integer":
		p.Type = schema.Integer
	case "number":
		p.Type = schema.Number
	case "boolean":
		p.Type = schema.Boolean
	case "object":
		p.Type = schema.Object
	case "array":
		p.Type = schema.Array
		items, _ := prop["items"].(map[string]any)
		p.ElemInfo = paramFromSchema(items)
	}
	if enum, ok := prop["enum"].([]any); ok {
		for _, v := range enum {
			if s, ok := v.(string); ok {
				p.Enum = append(p.Enum, s)
			}
		}
	}
	return p
}

// ===================================
// Streamable HTTP session
// ===================================

type streamableSession struct {
	c *client.Client
}

// DialStreamableHTTP connects and initialises an MCP client over streamable HTTP.
func DialStreamableHTTP(ctx context.Context, uri string) (MCPSession, error) {
	c, err := client.NewStreamableHttpClient(uri)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "triage-server", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, req); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return &streamableSession{c: c}, nil
}

func (s *streamableSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var out []mcp.Tool
	req := mcp.ListToolsRequest{}
	for page := 0; page < maxToolPages; page++ {
		res, err := s.c.ListTools(ctx, req)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		req.Params.Cursor = res.NextCursor
	}
	return out, nil
}

func (s *streamableSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return s.c.CallTool(ctx, req)
}

func (s *streamableSession) Close() error {
	return s.c.Close()
}

// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes skill discovery tools and skill resources via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joshrotenberg/skillet/internal/models"
	"github.com/joshrotenberg/skillet/internal/registry"
	"github.com/joshrotenberg/skillet/internal/search"
	"github.com/joshrotenberg/skillet/internal/service"
	"github.com/joshrotenberg/skillet/internal/storage"
	"github.com/joshrotenberg/skillet/internal/trust"
)

// Server wraps the MCP server with registry tools.
type Server struct {
	mcp *server.MCPServer
	reg *service.Registry
}

// New creates a new MCP server with all tools and resources registered.
func New(reg *service.Registry, version string) *Server {
	s := &Server{reg: reg}

	s.mcp = server.NewMCPServer(
		"skillet",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_skills",
		mcp.WithDescription("Search skills by relevance. Use * or omit the query to list everything. "+
			"Filters narrow the ranked list without reordering it."),
		mcp.WithString("query", mcp.Description("Search query (default *)")),
		mcp.WithString("category", mcp.Description("Only skills in this category")),
		mcp.WithString("tag", mcp.Description("Only skills with this tag")),
		mcp.WithString("verified_with", mcp.Description("Only skills verified with this model")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 100, 0 for all)")),
	), s.searchSkills)

	s.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List skill categories with the number of skills in each."),
	), s.listCategories)

	s.mcp.AddTool(mcp.NewTool("list_skills_by_owner",
		mcp.WithDescription("List every skill published by an owner."),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Owner, e.g. acme")),
	), s.listByOwner)

	s.mcp.AddTool(mcp.NewTool("info_skill",
		mcp.WithDescription("Show metadata and the full version history of a skill. "+
			"Read the body through the skillet://skills/{owner}/{name} resource."),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Owner")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Skill name")),
		mcp.WithString("version", mcp.Description("Version (default latest)")),
	), s.infoSkill)

	s.mcp.AddTool(mcp.NewTool("verify_integrity",
		mcp.WithDescription("Recompute content hashes of a skill and compare them with its MANIFEST.sha256."),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Owner")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Skill name")),
		mcp.WithString("version", mcp.Description("Version (default latest)")),
	), s.verifyIntegrity)

	s.mcp.AddTool(mcp.NewTool("trust_status",
		mcp.WithDescription("Report whether a skill comes from a trusted registry and whether it matches its pin."),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Owner")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Skill name")),
	), s.trustStatus)

	s.mcp.AddTool(mcp.NewTool("audit_skills",
		mcp.WithDescription("Compare every pinned skill with the current registry content."),
		mcp.WithString("owner", mcp.Description("Only audit this owner")),
		mcp.WithString("name", mcp.Description("Only audit this skill name")),
	), s.auditSkills)

	s.mcp.AddTool(mcp.NewTool("compare_skills",
		mcp.WithDescription("Compare two skills side-by-side: description, categories, tags, files and a diff of their SKILL.md."),
		mcp.WithString("owner_a", mcp.Required(), mcp.Description("First skill owner")),
		mcp.WithString("name_a", mcp.Required(), mcp.Description("First skill name")),
		mcp.WithString("owner_b", mcp.Required(), mcp.Description("Second skill owner")),
		mcp.WithString("name_b", mcp.Required(), mcp.Description("Second skill name")),
	), s.compareSkills)

	s.mcp.AddTool(mcp.NewTool("validate_skill",
		mcp.WithDescription("Validate a skill directory on this machine before publishing: skill.toml fields, "+
			"SKILL.md presence, content hashes and MANIFEST.sha256."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the skill directory")),
	), s.validateSkill)

	s.mcp.AddTool(mcp.NewTool("refresh_registry",
		mcp.WithDescription("Pull registry sources now and rebuild the index if they changed."),
		mcp.WithString("source", mcp.Description("Source id (default all sources)")),
	), s.refreshRegistry)

	s.registerResources()
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func skillArgs(req mcp.CallToolRequest) (owner, name string, err error) {
	if owner, err = req.RequireString("owner"); err != nil {
		return "", "", err
	}
	if name, err = req.RequireString("name"); err != nil {
		return "", "", err
	}
	return owner, name, nil
}

func (s *Server) searchSkills(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", search.Wildcard)
	f := search.Filters{
		Category:     req.GetString("category", ""),
		Tag:          req.GetString("tag", ""),
		VerifiedWith: req.GetString("verified_with", ""),
	}
	limit := req.GetInt("limit", search.DefaultTopK)
	results := s.reg.Search(ctx, query, f, limit)
	if len(results) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no skills match %q", query)), nil
	}
	return jsonResult(results)
}

func (s *Server) listCategories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.reg.ListCategories(ctx))
}

func (s *Server) listByOwner(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := req.RequireString("owner")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	skills := s.reg.ListByOwner(ctx, owner)
	if len(skills) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("no skills found for owner %q", owner)), nil
	}
	return jsonResult(skills)
}

func (s *Server) infoSkill(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, name, err := skillArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.reg.Lookup(ctx, owner, name, req.GetString("version", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) verifyIntegrity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, name, err := skillArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.reg.VerifyIntegrity(ctx, owner, name, req.GetString("version", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep)
}

func (s *Server) trustStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, name, err := skillArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.reg.TrustStatus(ctx, owner, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep)
}

func (s *Server) auditSkills(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	results, err := s.reg.Audit(ctx, trust.AuditFilter{
		Owner: req.GetString("owner", ""),
		Name:  req.GetString("name", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no skills to audit"), nil
	}
	return jsonResult(results)
}

func (s *Server) refreshRegistry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.reg.Refresh(ctx, req.GetString("source", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("refresh failed, still serving snapshot %s: %v", stats.Snapshot, err)), nil
	}
	return jsonResult(stats)
}

func (s *Server) compareSkills(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var keys [2]models.Key
	for i, side := range []string{"a", "b"} {
		owner, err := req.RequireString("owner_" + side)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		name, err := req.RequireString("name_" + side)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		keys[i] = models.Key{Owner: owner, Name: name}
	}
	c, err := s.reg.Compare(ctx, keys[0], keys[1])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(c)
}

func (s *Server) validateSkill(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dir, err := storage.NewFS(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := registry.Validate(dir, ".", slog.Default())
	if err != nil {
		return mcp.NewToolResultError("validation failed: " + err.Error()), nil
	}
	return jsonResult(res)
}

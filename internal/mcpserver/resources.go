package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// URIScheme prefixes every skill resource.
const URIScheme = "skillet://"

const categoriesURI = URIScheme + "categories"

func (s *Server) registerResources() {
	s.mcp.AddResource(
		mcp.NewResource(categoriesURI, "Skill categories",
			mcp.WithResourceDescription("Every category with its skill count."),
			mcp.WithMIMEType("application/json"),
		),
		s.readCategories,
	)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(URIScheme+"skills/{owner}/{name}", "Skill body",
			mcp.WithTemplateDescription("SKILL.md of the latest version."),
			mcp.WithTemplateMIMEType("text/markdown"),
		),
		s.readSkill,
	)
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(URIScheme+"skills/{owner}/{name}/{version}", "Skill body at version",
			mcp.WithTemplateDescription("SKILL.md of a specific version. Historical versions may not retain content."),
			mcp.WithTemplateMIMEType("text/markdown"),
		),
		s.readSkill,
	)
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(URIScheme+"metadata/{owner}/{name}", "Skill metadata",
			mcp.WithTemplateDescription("Metadata and version history as JSON."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.readMetadata,
	)
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(URIScheme+"files/{owner}/{name}/{+path}", "Skill file",
			mcp.WithTemplateDescription("An auxiliary file such as scripts/run.sh."),
		),
		s.readFile,
	)
}

// resourceURI is a parsed skillet:// URI.
type resourceURI struct {
	kind    string
	owner   string
	name    string
	version string
	path    string
}

// parseURI splits skillet://<kind>/<owner>/<name>[/<rest>]. For files the
// rest is a path that may contain slashes; for skills it is a version.
func parseURI(uri string) (resourceURI, error) {
	rest, ok := strings.CutPrefix(uri, URIScheme)
	if !ok {
		return resourceURI{}, fmt.Errorf("unsupported resource uri %q", uri)
	}
	parts := strings.SplitN(rest, "/", 4)
	if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
		return resourceURI{}, fmt.Errorf("malformed resource uri %q", uri)
	}
	u := resourceURI{kind: parts[0], owner: parts[1], name: parts[2]}
	var tail string
	if len(parts) == 4 {
		tail = parts[3]
	}
	switch u.kind {
	case "skills":
		if strings.Contains(tail, "/") {
			return resourceURI{}, fmt.Errorf("malformed resource uri %q", uri)
		}
		u.version = tail
	case "metadata":
		if tail != "" {
			return resourceURI{}, fmt.Errorf("malformed resource uri %q", uri)
		}
	case "files":
		if tail == "" {
			return resourceURI{}, fmt.Errorf("resource uri %q has no file path", uri)
		}
		u.path = tail
	default:
		return resourceURI{}, fmt.Errorf("unknown resource kind %q", u.kind)
	}
	return u, nil
}

func (s *Server) readCategories(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.MarshalIndent(s.reg.ListCategories(ctx), "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: categoriesURI, MIMEType: "application/json", Text: string(out)},
	}, nil
}

func (s *Server) readSkill(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	u, err := parseURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	body, err := s.reg.Content(ctx, u.owner, u.name, u.version)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/markdown", Text: body},
	}, nil
}

func (s *Server) readMetadata(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	u, err := parseURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	d, err := s.reg.Lookup(ctx, u.owner, u.name, "")
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(out)},
	}, nil
}

func (s *Server) readFile(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	u, err := parseURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	f, err := s.reg.File(ctx, u.owner, u.name, "", u.path)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: req.Params.URI, MIMEType: f.MIMEType, Text: f.Content},
	}, nil
}

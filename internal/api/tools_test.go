package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/joshrotenberg/skillet/internal/trust"
)

func TestCompareEndpoint(t *testing.T) {
	env := newTestEnv(t, "", trust.PolicyWarn, nil)

	w := do(t, env.router, http.MethodGet, "/skills/compare?a=acme/git-conventions&b=acme/docker-workflow", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("compare = %d, body = %s", w.Code, w.Body.String())
	}
	c := decode[Comparison](t, w)
	if c.A.Name != "git-conventions" || c.B.Name != "docker-workflow" {
		t.Errorf("sides = %s, %s", c.A.Name, c.B.Name)
	}
	if len(c.Categories.OnlyA) != 1 || c.Categories.OnlyA[0] != "vcs" {
		t.Errorf("categories only in a = %v", c.Categories.OnlyA)
	}
	if len(c.Files.OnlyA) != 1 || c.Files.OnlyA[0] != "scripts/lint.sh" {
		t.Errorf("files only in a = %v", c.Files.OnlyA)
	}
	if c.SameContent || !strings.Contains(c.ContentDiff, "@@") {
		t.Errorf("expected a content diff, got %q", c.ContentDiff)
	}

	if w := do(t, env.router, http.MethodGet, "/skills/compare?a=acme&b=acme/legacy", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad key = %d, want 400", w.Code)
	}
	if w := do(t, env.router, http.MethodGet, "/skills/compare?a=acme/legacy&b=acme/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing skill = %d, want 404", w.Code)
	}
}

func TestValidateEndpoint(t *testing.T) {
	env := newTestEnv(t, "", trust.PolicyWarn, nil)

	body := ValidateRequest{Files: map[string]string{
		"skill.toml": "[skill]\nname = \"fmt\"\nowner = \"acme\"\nversion = \"1.0.0\"\ndescription = \"Formatting\"\n",
		"SKILL.md":   "---\nname: fmt\n---\n# Fmt\n",
	}}
	w := do(t, env.router, http.MethodPost, "/skills/validate", body)
	if w.Code != http.StatusOK {
		t.Fatalf("validate = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[Validation](t, w)
	if res.Owner != "acme" || res.Name != "fmt" || res.ContentHash == "" || len(res.Warnings) != 0 {
		t.Errorf("validation = %+v", res)
	}

	body.Files["skill.toml"] = "[skill]\nname = \"fmt\"\nowner = \"acme\"\nversion = \"1.0.0\"\n"
	if w := do(t, env.router, http.MethodPost, "/skills/validate", body); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing description = %d, want 422", w.Code)
	}
	if w := do(t, env.router, http.MethodPost, "/skills/validate", ValidateRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty body = %d, want 400", w.Code)
	}
}

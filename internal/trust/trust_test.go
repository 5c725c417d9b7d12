package trust

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshrotenberg/skillet/internal/apperr"
	"github.com/joshrotenberg/skillet/internal/models"
)

const repo = "https://github.com/owner/repo.git"

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "trust.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Registries(t *testing.T) {
	s := testStore(t)

	ok, err := s.IsTrusted(repo)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.TrustRegistry(repo, "my registry"))
	require.NoError(t, s.TrustRegistry(repo, "second call is ignored"))
	require.NoError(t, s.TrustRegistry("local:/srv/skills", ""))

	ok, err = s.IsTrusted(repo)
	require.NoError(t, err)
	assert.True(t, ok)

	regs, err := s.ListRegistries()
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, repo, regs[0].Registry)
	assert.Equal(t, "my registry", regs[0].Note)
	assert.False(t, regs[0].TrustedAt.IsZero())
	assert.Equal(t, "local:/srv/skills", regs[1].Registry)

	require.NoError(t, s.UntrustRegistry(repo))
	assert.ErrorIs(t, s.UntrustRegistry(repo), apperr.ErrNotFound)
}

func TestStore_Pins(t *testing.T) {
	s := testStore(t)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	pin, err := s.FindPin("owner", "skill")
	require.NoError(t, err)
	assert.Nil(t, pin)

	_, err = s.Pin(PinnedSkill{Owner: "owner", Name: "skill", Version: "1.0.0", Registry: repo, ContentHash: "sha256:old"})
	require.NoError(t, err)
	_, err = s.Pin(PinnedSkill{Owner: "owner", Name: "skill", Version: "1.1.0", Registry: repo, ContentHash: "sha256:new"})
	require.NoError(t, err)

	pins, err := s.ListPins()
	require.NoError(t, err)
	require.Len(t, pins, 1, "a second pin replaces the first")
	assert.Equal(t, "sha256:new", pins[0].ContentHash)
	assert.Equal(t, "1.1.0", pins[0].Version)
	assert.True(t, pins[0].PinnedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

	require.NoError(t, s.Unpin("owner", "skill"))
	assert.ErrorIs(t, s.Unpin("owner", "skill"), apperr.ErrNotFound)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.TrustRegistry(repo, ""))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	ok, err := s.IsTrusted(repo)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheck(t *testing.T) {
	s := testStore(t)

	st, err := s.Check(repo, "owner", "skill", "sha256:abc")
	require.NoError(t, err)
	assert.Equal(t, TierUnknown, st.Tier)
	assert.Equal(t, PinUnpinned, st.Pin)
	assert.Equal(t, "registry '"+repo+"' is not trusted and owner/skill is not pinned", st.Reason)

	_, err = s.Pin(PinnedSkill{Owner: "owner", Name: "skill", Version: "1.0.0", Registry: repo, ContentHash: "sha256:abc"})
	require.NoError(t, err)

	st, err = s.Check(repo, "owner", "skill", "sha256:abc")
	require.NoError(t, err)
	assert.Equal(t, TierReviewed, st.Tier)
	assert.Equal(t, PinMatch, st.Pin)
	assert.Equal(t, "owner/skill pinned hash matches (v1.0.0)", st.Reason)

	st, err = s.Check(repo, "owner", "skill", "sha256:changed")
	require.NoError(t, err)
	assert.Equal(t, TierReviewed, st.Tier)
	assert.Equal(t, PinMismatch, st.Pin)
	assert.Equal(t, "sha256:abc", st.PinnedHash)
	assert.Equal(t, "owner/skill content changed since pinned (was v1.0.0)", st.Reason)

	require.NoError(t, s.TrustRegistry(repo, ""))
	st, err = s.Check(repo, "owner", "skill", "sha256:changed")
	require.NoError(t, err)
	assert.Equal(t, TierTrusted, st.Tier)
	assert.True(t, st.SourceTrusted)
	assert.Equal(t, PinMismatch, st.Pin, "pin status is reported independently of source trust")
}

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyWarn, false},
		{"warn", PolicyWarn, false},
		{"PROMPT", PolicyPrompt, false},
		{" block ", PolicyBlock, false},
		{"deny", "", true},
	}
	for _, tc := range cases {
		got, err := ParsePolicy(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestPolicy_Decide(t *testing.T) {
	unknown := Classify(false, nil, "r", "o", "n", "h")
	matched := Classify(false, &PinnedSkill{ContentHash: "h"}, "r", "o", "n", "h")
	drifted := Classify(false, &PinnedSkill{ContentHash: "old"}, "r", "o", "n", "h")
	trusted := Classify(true, nil, "r", "o", "n", "h")
	trustedDrift := Classify(true, &PinnedSkill{ContentHash: "old"}, "r", "o", "n", "h")

	cases := []struct {
		policy Policy
		status Status
		want   Decision
	}{
		{PolicyBlock, unknown, DecisionBlock},
		{PolicyPrompt, unknown, DecisionPrompt},
		{PolicyWarn, unknown, DecisionWarn},
		{PolicyBlock, matched, DecisionAllow},
		{PolicyBlock, drifted, DecisionBlock},
		{PolicyBlock, trusted, DecisionAllow},
		{PolicyBlock, trustedDrift, DecisionWarn},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.policy.Decide(tc.status), "%s %s/%s", tc.policy, tc.status.Tier, tc.status.Pin)
	}
}

func auditIndex(hashes map[string]string) *models.SkillIndex {
	idx := models.NewSkillIndex()
	for name, hash := range hashes {
		e := &models.SkillEntry{Owner: "acme", Name: name, Source: repo, Versions: []models.SkillVersion{{
			Version: "2.0.0", ContentHash: hash, HasContent: true,
		}}}
		idx.Skills[e.Key()] = e
	}
	return idx
}

func TestAudit(t *testing.T) {
	idx := auditIndex(map[string]string{
		"same":     "sha256:1",
		"changed":  "sha256:2",
		"unpinned": "sha256:3",
	})
	pins := []PinnedSkill{
		{Owner: "acme", Name: "same", Version: "2.0.0", ContentHash: "sha256:1"},
		{Owner: "acme", Name: "changed", Version: "1.0.0", ContentHash: "sha256:old"},
		{Owner: "acme", Name: "gone", Version: "1.0.0", ContentHash: "sha256:9"},
	}

	res := Audit(pins, idx, AuditFilter{})
	got := map[string]AuditStatus{}
	var order []string
	for _, r := range res {
		got[r.Name] = r.Status
		order = append(order, r.Name)
	}
	assert.Equal(t, []string{"changed", "gone", "same", "unpinned"}, order)
	assert.Equal(t, map[string]AuditStatus{
		"same":     AuditOK,
		"changed":  AuditModified,
		"gone":     AuditMissing,
		"unpinned": AuditUnpinned,
	}, got)
	assert.True(t, HasProblems(res))

	filtered := Audit(pins, idx, AuditFilter{Owner: "acme", Name: "same"})
	require.Len(t, filtered, 1)
	assert.False(t, HasProblems(filtered))

	assert.Empty(t, Audit(pins, idx, AuditFilter{Owner: "other"}))
}

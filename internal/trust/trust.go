package trust

import (
	"fmt"
	"strings"
)

// Tier is the trust classification of a skill.
type Tier string

const (
	TierTrusted  Tier = "trusted"
	TierReviewed Tier = "reviewed"
	TierUnknown  Tier = "unknown"
)

// PinStatus compares a skill's current content hash against its pin.
type PinStatus string

const (
	PinMatch    PinStatus = "match"
	PinMismatch PinStatus = "mismatch"
	PinUnpinned PinStatus = "unpinned"
)

// Status is the result of classifying one skill. Source trust and pinning
// are independent: a trusted registry still reports a pin mismatch.
type Status struct {
	Registry      string    `json:"registry"`
	SourceTrusted bool      `json:"source_trusted"`
	Tier          Tier      `json:"tier"`
	Pin           PinStatus `json:"pin"`
	PinnedHash    string    `json:"pinned_hash,omitempty"`
	PinnedVersion string    `json:"pinned_version,omitempty"`
	CurrentHash   string    `json:"current_hash,omitempty"`
	Reason        string    `json:"reason"`
}

// Classify derives a Status from already fetched trust state.
func Classify(trusted bool, pin *PinnedSkill, registry, owner, name, contentHash string) Status {
	st := Status{
		Registry:      registry,
		SourceTrusted: trusted,
		Pin:           PinUnpinned,
		CurrentHash:   contentHash,
	}
	if pin != nil {
		st.PinnedHash = pin.ContentHash
		st.PinnedVersion = pin.Version
		st.Pin = PinMismatch
		if pin.ContentHash == contentHash {
			st.Pin = PinMatch
		}
	}

	switch {
	case trusted:
		st.Tier = TierTrusted
		st.Reason = fmt.Sprintf("registry '%s' is trusted", registry)
	case pin != nil && st.Pin == PinMatch:
		st.Tier = TierReviewed
		st.Reason = fmt.Sprintf("%s/%s pinned hash matches (v%s)", owner, name, pin.Version)
	case pin != nil:
		st.Tier = TierReviewed
		st.Reason = fmt.Sprintf("%s/%s content changed since pinned (was v%s)", owner, name, pin.Version)
	default:
		st.Tier = TierUnknown
		st.Reason = fmt.Sprintf("registry '%s' is not trusted and %s/%s is not pinned", registry, owner, name)
	}
	return st
}

// Check classifies owner/name from registry with its current content hash.
func (s *Store) Check(registry, owner, name, contentHash string) (Status, error) {
	trusted, err := s.IsTrusted(registry)
	if err != nil {
		return Status{}, err
	}
	pin, err := s.FindPin(owner, name)
	if err != nil {
		return Status{}, err
	}
	return Classify(trusted, pin, registry, owner, name, contentHash), nil
}

// Policy is the configured handling of skills that are neither trusted nor
// matching a pin. The store only classifies; callers enforce.
type Policy string

const (
	PolicyWarn   Policy = "warn"
	PolicyPrompt Policy = "prompt"
	PolicyBlock  Policy = "block"
)

// Policies lists every valid policy.
var Policies = []Policy{PolicyWarn, PolicyPrompt, PolicyBlock}

// ParsePolicy accepts warn, prompt or block, case-insensitively. Empty means
// warn.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyWarn, nil
	case PolicyWarn, PolicyPrompt, PolicyBlock:
		return p, nil
	}
	return "", fmt.Errorf("unknown trust policy %q (expected warn, prompt or block)", s)
}

// Decision is what a caller should do with a classified skill.
type Decision string

const (
	DecisionAllow  Decision = "allow"
	DecisionWarn   Decision = "warn"
	DecisionPrompt Decision = "prompt"
	DecisionBlock  Decision = "block"
)

// Decide maps a status to a decision. Trusted sources and matching pins are
// allowed, though a trusted source with a drifted pin still warns. Unknown
// skills and drifted pins follow the policy.
func (p Policy) Decide(st Status) Decision {
	switch {
	case st.Tier == TierTrusted && st.Pin == PinMismatch:
		return DecisionWarn
	case st.Tier == TierTrusted, st.Pin == PinMatch:
		return DecisionAllow
	}
	switch p {
	case PolicyBlock:
		return DecisionBlock
	case PolicyPrompt:
		return DecisionPrompt
	default:
		return DecisionWarn
	}
}

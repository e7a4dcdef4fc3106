package domain

import "strings"

// Built-in row keys, in canonical display order. Custom rows slot in wherever
// the journey's RowOrder places their ids.
const (
	RowDescription       = "description"
	RowPhaseHealth       = "phaseHealth"
	RowCustomerActions   = "customerActions"
	RowCustomerStruggles = "customerStruggles"
	RowInternalStruggles = "internalStruggles"
	RowJobs              = "jobs"
	RowOpportunities     = "opportunities"
	RowSystems           = "systems"
	RowDepartments       = "departments"
	RowRelatedDocuments  = "relatedDocuments"
)

var builtinRowKeys = []string{
	RowDescription,
	RowPhaseHealth,
	RowCustomerActions,
	RowCustomerStruggles,
	RowInternalStruggles,
	RowJobs,
	RowOpportunities,
	RowSystems,
	RowDepartments,
	RowRelatedDocuments,
}

// BuiltinRowKeys returns the built-in row keys in canonical order.
func BuiltinRowKeys() []string {
	return append([]string(nil), builtinRowKeys...)
}

// IsBuiltinRowKey reports whether key names a built-in row.
func IsBuiltinRowKey(key string) bool {
	for _, k := range builtinRowKeys {
		if k == key {
			return true
		}
	}
	return false
}

// OrderedRows resolves a journey's display row sequence. The persisted
// RowOrder is a merge input, not a pure permutation: ids that no longer name
// a built-in row or an existing custom row are discarded, duplicates are
// dropped, and any built-in key missing from the filtered list is appended in
// canonical definition order. RowPhaseHealth is the exception: when absent it
// is inserted immediately after RowDescription, so journeys persisted before
// the health row existed show it where current journeys do.
func OrderedRows(j Journey) []string {
	customRows := make(map[string]struct{}, len(j.CustomRows))
	for _, row := range j.CustomRows {
		customRows[row.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(j.RowOrder))
	ordered := make([]string, 0, len(builtinRowKeys)+len(j.CustomRows))
	for _, key := range j.RowOrder {
		if _, dup := seen[key]; dup {
			continue
		}
		if !IsBuiltinRowKey(key) {
			if _, ok := customRows[key]; !ok {
				continue
			}
		}
		seen[key] = struct{}{}
		ordered = append(ordered, key)
	}

	if _, ok := seen[RowPhaseHealth]; !ok {
		ordered = insertAfter(ordered, RowDescription, RowPhaseHealth)
		seen[RowPhaseHealth] = struct{}{}
	}
	for _, key := range builtinRowKeys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		ordered = append(ordered, key)
	}
	for _, row := range j.CustomRows {
		if _, ok := seen[row.ID]; ok {
			continue
		}
		seen[row.ID] = struct{}{}
		ordered = append(ordered, row.ID)
	}
	return ordered
}

func insertAfter(keys []string, anchor, key string) []string {
	for i, k := range keys {
		if k == anchor {
			out := make([]string, 0, len(keys)+1)
			out = append(out, keys[:i+1]...)
			out = append(out, key)
			return append(out, keys[i+1:]...)
		}
	}
	return append(keys, key)
}

// commentKeySeparator joins the phase id and row key of a cell comment. The
// legacy encoding used a bare "-", which is ambiguous because ids contain
// dashes; see SplitLegacyCommentKey.
const commentKeySeparator = "::"

// CommentKey builds the composite map key for a cell comment.
func CommentKey(phaseID, rowKey string) string {
	return phaseID + commentKeySeparator + rowKey
}

// SplitCommentKey decomposes a composite comment key.
func SplitCommentKey(key string) (phaseID, rowKey string, ok bool) {
	i := strings.LastIndex(key, commentKeySeparator)
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+len(commentKeySeparator):], true
}

// SplitLegacyCommentKey decomposes a legacy "<phaseID>-<rowKey>" comment key.
// Detection is heuristic: the key must end with a dash followed by a known
// row key (built-in or one of the supplied custom row ids). The heuristic is
// deliberately isolated here so a schema-version tag can replace it without
// touching callers.
func SplitLegacyCommentKey(key string, customRowIDs map[string]struct{}) (phaseID, rowKey string, ok bool) {
	if strings.Contains(key, commentKeySeparator) {
		return "", "", false
	}
	for _, candidate := range builtinRowKeys {
		if rest, found := strings.CutSuffix(key, "-"+candidate); found && rest != "" {
			return rest, candidate, true
		}
	}
	for candidate := range customRowIDs {
		if candidate == "" {
			continue
		}
		if rest, found := strings.CutSuffix(key, "-"+candidate); found && rest != "" {
			return rest, candidate, true
		}
	}
	return "", "", false
}

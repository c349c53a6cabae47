// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// SplitSkills turns a comma separated list into sanitized, de-duplicated
// skill names. Duplicates are detected case-insensitively; the first
// spelling wins.
func SplitSkills(s string) []string {
	return NormalizeSkills(strings.Split(s, ","))
}

// NormalizeSkills sanitizes each entry, drops empties and removes
// case-insensitive duplicates while keeping order.
func NormalizeSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.Join(strings.Fields(SanitizeText(s)), " ")
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

// CanonicalSkill returns the entry of skills equal to tag ignoring case and
// surrounding space. If none matches, the trimmed tag is returned as is.
func CanonicalSkill(tag string, skills []string) string {
	tag = strings.TrimSpace(tag)
	for _, s := range skills {
		if strings.EqualFold(s, tag) {
			return s
		}
	}
	return tag
}

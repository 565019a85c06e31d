// Package sympath derives canonical hierarchical paths from raw qualified
// symbol names. The mapping is many-to-one by design: collisions are
// acceptable because the path is used only to build a prefix-queryable
// hierarchy and is never part of symbol identity.
package sympath

import "strings"

// Unknown is the sentinel path for names that yield no tokens.
const Unknown = "unknown"

// Sep joins the tokens of a normalized path.
const Sep = "."

// stripped is the fixed punctuation set removed before tokenization.
const stripped = "*[]{},@-() "

func isSeparator(r rune) bool {
	return r == '.' || r == '/' || r == ':'
}

func isTokenChar(r rune) bool {
	return r >= 'a' && r <= 'z' ||
		r >= 'A' && r <= 'Z' ||
		r >= '0' && r <= '9' ||
		r == '_'
}

// Tokens splits a raw qualified name into its ordered path tokens:
// strip the fixed punctuation set, split on any of `. / :`, drop every
// character outside [A-Za-z0-9_] within each token, drop tokens that
// become empty. The result may be empty.
func Tokens(name string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripped, r) {
			return -1
		}
		return r
	}, name)

	var tokens []string
	for _, raw := range strings.FieldsFunc(cleaned, isSeparator) {
		tok := strings.Map(func(r rune) rune {
			if isTokenChar(r) {
				return r
			}
			return -1
		}, raw)
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Normalize turns a raw qualified name into its canonical dot-joined path.
// The function is pure, deterministic and idempotent; names with no
// surviving tokens map to the sentinel "unknown".
func Normalize(name string) string {
	tokens := Tokens(name)
	if len(tokens) == 0 {
		return Unknown
	}
	return strings.Join(tokens, Sep)
}

// Split returns the tokens of an already normalized path.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, Sep)
}

// IsAncestor reports whether prefix equals path or is a token-boundary
// prefix of it ("a.b" is an ancestor of "a.b.c" but not of "a.bc").
func IsAncestor(prefix, path string) bool {
	if prefix == path {
		return true
	}
	return strings.HasPrefix(path, prefix+Sep)
}

// Similarity scores how alike two strings are, in [0, 1], using trigram
// overlap over the lowercased inputs. It mirrors the ranking behavior of a
// trigram index well enough for ordering fuzzy matches; exact equality
// always scores 1.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ta := trigrams(strings.ToLower(a))
	tb := trigrams(strings.ToLower(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// trigrams pads the string with two leading and one trailing space, the
// way pg_trgm does, and collects the distinct 3-grams.
func trigrams(s string) map[string]struct{} {
	if s == "" {
		return nil
	}
	padded := "  " + s + " "
	grams := make(map[string]struct{}, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		grams[padded[i:i+3]] = struct{}{}
	}
	return grams
}

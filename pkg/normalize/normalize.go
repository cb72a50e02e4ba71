// Package normalize canonicalises material and client names so that surface
// variations of one entity compare equal.
package normalize

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/vocab"
)

// Kind selects the normalization rules.
type Kind int

const (
	Material Kind = iota
	Client
)

var (
	dashes = strings.NewReplacer("–", "-", "—", "-", "‐", "-")
	// 230*114, 230 × 114
	multiply = regexp.MustCompile(`(\d)\s*[×*]\s*(\d)`)
	// "30 % - 35 %", "30% TO 35%"
	percentRange = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s*(?:-|TO)\s*(\d+(?:\.\d+)?)\s*%`)
	percentSpace = regexp.MustCompile(`(\d+(?:\.\d+)?)\s+%`)
	// "230 X 114 X 65"
	dimension = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*X\s*(\d+(?:\.\d+)?)(?:\s*X\s*(\d+(?:\.\d+)?))?`)
	spaces    = regexp.MustCompile(`\s+`)
)

// Normalizer applies the vocabulary-driven rules. It is safe for concurrent use.
type Normalizer struct {
	makeWords     map[string]struct{}
	legalSuffixes []string
	honorifics    []string
}

// New builds a Normalizer from v. Vocabulary entries are passed through the
// same character rules as names so that stripping is stable.
func New(v *vocab.Vocabulary) *Normalizer {
	n := &Normalizer{makeWords: make(map[string]struct{})}
	for _, p := range v.MakePrefixes {
		for _, w := range strings.Fields(materialChars(strings.ToUpper(p))) {
			if w = strings.Trim(w, "-"); w != "" {
				n.makeWords[w] = struct{}{}
			}
		}
	}
	n.legalSuffixes = clientList(v.LegalSuffixes)
	n.honorifics = clientList(v.Honorifics)
	return n
}

func clientList(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		s = collapse(clientChars(strings.ToUpper(s)))
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	// longest first so "PVT LTD" is removed as one unit
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

var defaultNormalizer = New(vocab.Default())

// Normalize applies the default vocabulary. See (*Normalizer).Normalize.
func Normalize(kind Kind, text string) string {
	return defaultNormalizer.Normalize(kind, text)
}

// Normalize is total, deterministic and idempotent:
// Normalize(k, Normalize(k, s)) == Normalize(k, s).
func (n *Normalizer) Normalize(kind Kind, text string) string {
	s := collapse(foldCase(strings.ToValidUTF8(text, " ")))
	if kind == Client {
		return n.client(s)
	}
	return n.material(s)
}

func (n *Normalizer) material(s string) string {
	s = dashes.Replace(s)
	for {
		next := multiply.ReplaceAllString(s, "${1}X${2}")
		if next == s {
			break
		}
		s = next
	}

	s = materialChars(s)

	// Every fold step only shortens the string, so this reaches a fixpoint.
	for {
		next := n.fold(s)
		if next == s {
			return s
		}
		s = next
	}
}

func (n *Normalizer) fold(s string) string {
	s = percentRange.ReplaceAllString(s, "$1%-$2%")
	s = percentSpace.ReplaceAllString(s, "$1%")
	s = dimension.ReplaceAllStringFunc(s, func(m string) string {
		parts := dimension.FindStringSubmatch(m)
		out := parts[1] + "X" + parts[2]
		if parts[3] != "" {
			out += "X" + parts[3]
		}
		return out
	})

	// hyphens only survive inside a token, e.g. 30%-35% or IS-8
	tokens := strings.Fields(s)
	out := tokens[:0]
	for _, tok := range tokens {
		if tok = strings.Trim(tok, "-"); tok != "" {
			out = append(out, tok)
		}
	}
	for len(out) > 1 {
		if _, ok := n.makeWords[out[0]]; !ok {
			break
		}
		out = out[1:]
	}
	return strings.Join(out, " ")
}

// foldCase upper-cases and applies NFKC until neither changes the text.
// Either step can undo the other ("ǆ" upper-cases to "Ǆ", which NFKC
// decomposes; "㎏" decomposes to lower case "kg").
func foldCase(s string) string {
	for i := 0; i < 4; i++ {
		next := norm.NFKC.String(strings.ToUpper(s))
		if next == s {
			break
		}
		s = next
	}
	return s
}

// materialChars keeps letters, digits, '%' and '-'. A '.' is kept only
// between two ASCII digits (a decimal point); everything else becomes a space.
func materialChars(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '%', r == '-':
			b.WriteRune(r)
		case r == '.' && i > 0 && i < len(rs)-1 && isASCIIDigit(rs[i-1]) && isASCIIDigit(rs[i+1]):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func (n *Normalizer) client(s string) string {
	s = collapse(clientChars(s))

	for changed := true; changed; {
		changed = false
		for _, h := range n.honorifics {
			if strings.HasPrefix(s, h+" ") {
				s = strings.TrimSpace(s[len(h):])
				changed = true
			}
		}
		for _, suf := range n.legalSuffixes {
			if strings.HasSuffix(s, " "+suf) {
				s = strings.TrimSpace(s[:len(s)-len(suf)])
				changed = true
			}
		}
	}
	return s
}

func clientChars(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '&', r == '/':
			return r
		default:
			return ' '
		}
	}, s)
}

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// Tokens splits a normalized string into words.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

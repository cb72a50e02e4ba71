package extraction

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/shopspring/decimal"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/vocab"
)

// DefaultUnit is used when a unit is missing or unknown. It is always
// flagged on the item so the confidence penalty is visible.
const DefaultUnit = "MT"

var (
	numberPattern   = regexp.MustCompile(`\d+(?:\.\d+)?`)
	leadingQuantity = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*(.*)$`)
)

// valueParser turns cell text into rates, quantities and units.
type valueParser struct {
	v          *vocab.Vocabulary
	currencies []currencyPattern
}

type currencyPattern struct {
	code    string
	pattern *regexp.Regexp
}

func newValueParser(v *vocab.Vocabulary) *valueParser {
	p := &valueParser{v: v}
	codes := make([]string, 0, len(v.Currencies))
	for code := range v.Currencies {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		markers := append([]string(nil), v.Currencies[code]...)
		sort.Slice(markers, func(i, j int) bool { return len(markers[i]) > len(markers[j]) })
		alts := make([]string, 0, len(markers))
		for _, m := range markers {
			alts = append(alts, markerPattern(strings.ToLower(m)))
		}
		if len(alts) == 0 {
			continue
		}
		p.currencies = append(p.currencies, currencyPattern{
			code:    strings.ToUpper(code),
			pattern: regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)`),
		})
	}
	return p
}

// markerPattern anchors alphabetic markers on word boundaries so "rs" does not
// match inside other words.
func markerPattern(m string) string {
	q := regexp.QuoteMeta(m)
	if m == "" {
		return q
	}
	if isASCIILetter(m[0]) {
		q = `\b` + q
	}
	if isASCIILetter(m[len(m)-1]) {
		q += `\b`
	}
	return q
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// parseAmount reads a rate cell such as "Rs. 1,250.00/-" or "$45.5".
// currency is empty when the cell names none.
func (p *valueParser) parseAmount(text string) (amount decimal.Decimal, currency string, ok bool) {
	s := text
	for _, c := range p.currencies {
		if c.pattern.MatchString(s) {
			if currency == "" {
				currency = c.code
			}
			s = c.pattern.ReplaceAllString(s, " ")
		}
	}
	s = strings.ReplaceAll(s, ",", "")
	m := numberPattern.FindString(s)
	if m == "" {
		return decimal.Zero, currency, false
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero, currency, false
	}
	return d, currency, true
}

// parseQuantity reads a quantity cell. Trailing text ("500 nos") is returned
// as a unit hint.
func parseQuantity(text string) (*decimal.Decimal, string) {
	m := leadingQuantity.FindStringSubmatch(strings.ReplaceAll(text, ",", ""))
	if m == nil {
		return nil, ""
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return nil, ""
	}
	return &d, strings.TrimSpace(m[2])
}

// canonicalUnit maps a unit cell to a canonical unit. Plural forms are folded
// before lookup; multi-word cells are tried whole and then word by word.
func (p *valueParser) canonicalUnit(raw string) (unit string, defaulted bool) {
	form := strings.ToLower(strings.TrimSpace(raw))
	form = strings.TrimRight(form, ".")
	if form == "" {
		return DefaultUnit, true
	}
	if u, ok := p.lookupUnit(form); ok {
		return u, false
	}
	for _, word := range strings.FieldsFunc(form, func(r rune) bool { return r == ' ' || r == '/' || r == '(' || r == ')' }) {
		if word == "per" {
			continue
		}
		if u, ok := p.lookupUnit(strings.TrimRight(word, ".")); ok {
			return u, false
		}
	}
	return DefaultUnit, true
}

func (p *valueParser) lookupUnit(form string) (string, bool) {
	if form == "" {
		return "", false
	}
	if u, ok := p.v.CanonicalUnit(form); ok {
		return u, true
	}
	if singular := inflection.Singular(form); singular != form {
		return p.v.CanonicalUnit(singular)
	}
	return "", false
}

// cleanTaxCode strips the spaces and dots people put inside HSN codes.
func cleanTaxCode(text string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '.' {
			return -1
		}
		return r
	}, strings.TrimSpace(text))
}

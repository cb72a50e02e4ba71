// Package vocab loads the domain vocabulary used by the normalizer, the
// structured extractor and the resolver.
package vocab

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Column identifies a quotation table column.
type Column string

const (
	ColumnMaterial Column = "material"
	ColumnRate     Column = "rate"
	ColumnQuantity Column = "quantity"
	ColumnUnit     Column = "unit"
	ColumnTaxCode  Column = "tax_code"
	ColumnDelivery Column = "delivery"
	ColumnCurrency Column = "currency"
)

// Vocabulary is the parsed vocabulary file.
type Vocabulary struct {
	Headers           map[Column][]string `yaml:"headers"`
	HeaderExclusions  map[Column][]string `yaml:"header_exclusions"`
	Units             map[string][]string `yaml:"units"`
	Categories        map[string][]string `yaml:"categories"`
	MakePrefixes      []string            `yaml:"make_prefixes"`
	LegalSuffixes     []string            `yaml:"legal_suffixes"`
	Honorifics        []string            `yaml:"honorifics"`
	PublicMailDomains []string            `yaml:"public_mail_domains"`
	Currencies        map[string][]string `yaml:"currencies"`

	unitIndex   map[string]string
	publicMail  map[string]struct{}
	categoryKWs []categoryKeyword
}

type categoryKeyword struct {
	category string
	keyword  string
}

// Default returns the embedded vocabulary.
func Default() *Vocabulary {
	v, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded vocabulary is invalid: %v", err))
	}
	return v
}

// Load reads a vocabulary file, or returns Default when path is empty.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return Parse(data)
}

// Parse decodes and indexes a vocabulary document.
func Parse(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if len(v.Headers[ColumnMaterial]) == 0 || len(v.Headers[ColumnRate]) == 0 {
		return nil, fmt.Errorf("vocabulary must define material and rate header keywords")
	}

	v.unitIndex = make(map[string]string)
	for canonical, forms := range v.Units {
		canonical = strings.ToUpper(canonical)
		v.unitIndex[strings.ToLower(canonical)] = canonical
		for _, f := range forms {
			v.unitIndex[strings.ToLower(f)] = canonical
		}
	}

	v.publicMail = make(map[string]struct{}, len(v.PublicMailDomains))
	for _, d := range v.PublicMailDomains {
		v.publicMail[strings.ToLower(d)] = struct{}{}
	}

	for category, kws := range v.Categories {
		for _, kw := range kws {
			v.categoryKWs = append(v.categoryKWs, categoryKeyword{category: category, keyword: strings.ToUpper(kw)})
		}
	}
	// Longest keyword first so "RAMMING MASS" is preferred to "RAMMING".
	sort.Slice(v.categoryKWs, func(i, j int) bool {
		a, b := v.categoryKWs[i], v.categoryKWs[j]
		if len(a.keyword) != len(b.keyword) {
			return len(a.keyword) > len(b.keyword)
		}
		return a.keyword < b.keyword
	})

	return &v, nil
}

// CanonicalUnit looks up a lower-case unit form. ok is false for unknown units.
func (v *Vocabulary) CanonicalUnit(form string) (string, bool) {
	u, ok := v.unitIndex[strings.ToLower(strings.TrimSpace(form))]
	return u, ok
}

// IsPublicMailDomain reports whether domain is a webmail provider.
func (v *Vocabulary) IsPublicMailDomain(domain string) bool {
	_, ok := v.publicMail[strings.ToLower(domain)]
	return ok
}

// CategoriesOf returns the product categories named in an upper-case normalized
// material name, in a stable order.
func (v *Vocabulary) CategoriesOf(normalized string) []string {
	padded := " " + normalized + " "
	seen := make(map[string]bool)
	var out []string
	for _, ck := range v.categoryKWs {
		if seen[ck.category] {
			continue
		}
		if strings.Contains(padded, " "+ck.keyword+" ") {
			seen[ck.category] = true
			out = append(out, ck.category)
		}
	}
	sort.Strings(out)
	return out
}

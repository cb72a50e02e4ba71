package extraction

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/vocab"
)

const (
	maxColspan       = 10
	headerSearchRows = 3
	headerColumnHit  = 10
	maxRowBonus      = 50
)

// table is one <table> element flattened to cell text. Nested tables are
// separate tables; their text is not repeated in the outer table's rows.
type table struct {
	rows [][]string
}

// collectTables walks the document in order and returns every table with at least one row.
func collectTables(doc *html.Node) []table {
	var tables []table
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			if t := readTable(n); len(t.rows) > 0 {
				tables = append(tables, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return tables
}

func readTable(tn *html.Node) table {
	var t table
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				// nested table: handled by collectTables
			case atom.Tr:
				if row := readRow(c); hasText(row) {
					t.rows = append(t.rows, row)
				}
			default:
				walk(c) // thead, tbody, tfoot
			}
		}
	}
	walk(tn)
	return t
}

func readRow(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		text := cellText(c)
		span := 1
		for _, a := range c.Attr {
			if a.Key == "colspan" {
				if n, err := strconv.Atoi(strings.TrimSpace(a.Val)); err == nil && n > 1 {
					span = min(n, maxColspan)
				}
			}
		}
		cells = append(cells, text)
		for i := 1; i < span; i++ {
			cells = append(cells, "")
		}
	}
	return cells
}

func cellText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Table:
			return
		case n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.P || n.DataAtom == atom.Div):
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(strings.ReplaceAll(sb.String(), " ", " ")), " ")
}

func hasText(row []string) bool {
	for _, c := range row {
		if c != "" {
			return true
		}
	}
	return false
}

// columnMap maps a column to its cell index in the header row.
type columnMap map[vocab.Column]int

func (m columnMap) has(c vocab.Column) bool {
	_, ok := m[c]
	return ok
}

// headerMatcher assigns header cells to columns. Each cell goes to the column
// with the longest matching keyword; the first cell to claim a column keeps it.
type headerMatcher struct {
	keywords   []columnKeyword
	exclusions map[vocab.Column][]string
}

type columnKeyword struct {
	column  vocab.Column
	keyword string
}

func newHeaderMatcher(v *vocab.Vocabulary) *headerMatcher {
	m := &headerMatcher{exclusions: make(map[vocab.Column][]string)}
	for col, kws := range v.Headers {
		for _, kw := range kws {
			m.keywords = append(m.keywords, columnKeyword{column: col, keyword: strings.ToLower(kw)})
		}
	}
	sort.Slice(m.keywords, func(i, j int) bool {
		a, b := m.keywords[i], m.keywords[j]
		if len(a.keyword) != len(b.keyword) {
			return len(a.keyword) > len(b.keyword)
		}
		if a.keyword != b.keyword {
			return a.keyword < b.keyword
		}
		return a.column < b.column
	})
	for col, words := range v.HeaderExclusions {
		for _, w := range words {
			m.exclusions[col] = append(m.exclusions[col], strings.ToLower(w))
		}
	}
	return m
}

func (m *headerMatcher) columnFor(cell string) (vocab.Column, bool) {
	text := strings.ToLower(cell)
	if text == "" {
		return "", false
	}
	for _, ck := range m.keywords {
		if !containsWord(text, ck.keyword) {
			continue
		}
		if m.excluded(ck.column, text) {
			continue
		}
		return ck.column, true
	}
	return "", false
}

func (m *headerMatcher) excluded(col vocab.Column, text string) bool {
	for _, w := range m.exclusions[col] {
		if containsWord(text, w) {
			return true
		}
	}
	return false
}

func (m *headerMatcher) mapRow(row []string) columnMap {
	cols := make(columnMap)
	for i, cell := range row {
		col, ok := m.columnFor(cell)
		if ok && !cols.has(col) {
			cols[col] = i
		}
	}
	return cols
}

// tableScore is the header row choice and score of one table.
type tableScore struct {
	score     int
	headerRow int
	columns   columnMap
}

// score rates a table by header keyword hits and data row count.
// A table without any header hit scores zero.
func (m *headerMatcher) score(t table) tableScore {
	best := tableScore{headerRow: -1}
	for i := 0; i < len(t.rows) && i < headerSearchRows; i++ {
		cols := m.mapRow(t.rows[i])
		if len(cols) > len(best.columns) {
			best = tableScore{headerRow: i, columns: cols}
		}
	}
	if len(best.columns) == 0 {
		return tableScore{headerRow: -1}
	}
	dataRows := len(t.rows) - best.headerRow - 1
	best.score = headerColumnHit*len(best.columns) + min(dataRows, maxRowBonus)
	return best
}

// containsWord reports whether kw occurs in text with non-alphanumeric
// characters (or the string boundary) on both sides.
func containsWord(text, kw string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], kw)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(kw)
		if boundaryBefore(text, i) && boundaryAfter(text, end) {
			return true
		}
		start = i + 1
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r := rune(s[i-1])
	return r < 0x80 && !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r := rune(s[i])
	return r < 0x80 && !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

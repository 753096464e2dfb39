// Package naming classifies identifier conventions and reports symbols that
// break the dominant convention for their type.
package naming

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

// Convention names.
const (
	SnakeCase          = "snake_case"
	CamelCase          = "camelCase"
	PascalCase         = "PascalCase"
	ScreamingSnakeCase = "SCREAMING_SNAKE_CASE"
	Unknown            = "unknown"
)

// conventions is checked in order; the first match wins. The same order
// breaks ties when picking a dominant convention.
var conventions = []struct {
	name string
	re   *regexp.Regexp
}{
	{SnakeCase, regexp.MustCompile(`^[a-z][a-z0-9_]*$`)},
	{CamelCase, regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`)},
	{PascalCase, regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`)},
	{ScreamingSnakeCase, regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)},
}

// order ranks convention names for tie-breaking.
var order = map[string]int{
	SnakeCase:          0,
	CamelCase:          1,
	PascalCase:         2,
	ScreamingSnakeCase: 3,
	Unknown:            4,
}

// AnalyzedTypes are the symbol types whose names are checked. Methods are
// checked too, as part of the Function population.
var AnalyzedTypes = []symbols.Type{
	symbols.Function,
	symbols.Struct,
	symbols.Variable,
	symbols.Constant,
}

func population(t symbols.Type) symbols.Type {
	if t == symbols.Method {
		return symbols.Function
	}
	return t
}

// Classify returns the first convention name matches, or Unknown. Leading
// and trailing underscores are privacy markers and are ignored.
func Classify(name string) string {
	name = strings.Trim(name, "_")
	for _, c := range conventions {
		if c.re.MatchString(name) {
			return c.name
		}
	}
	return Unknown
}

// Matches reports whether name satisfies convention's pattern on its own,
// ignoring classification order.
func Matches(name, convention string) bool {
	name = strings.Trim(name, "_")
	for _, c := range conventions {
		if c.name == convention {
			return c.re.MatchString(name)
		}
	}
	return false
}

// Words splits an identifier at underscores, hyphens, lower-to-upper case
// changes and the end of an acronym: "HTTPServer" gives [HTTP Server] and
// "parse_JSON2Doc" gives [parse JSON2 Doc].
func Words(name string) []string {
	var words []string
	rs := []rune(name)
	start := -1
	flush := func(end int) {
		if start >= 0 && end > start {
			words = append(words, string(rs[start:end]))
		}
		start = -1
	}
	for i, r := range rs {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := rs[i-1]
		switch {
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush(i)
			start = i
		case unicode.IsUpper(r) && unicode.IsUpper(prev):
			// End of an acronym: "HTTPServer" splits before the S.
			if i+1 < len(rs) && unicode.IsLower(rs[i+1]) {
				flush(i)
				start = i
			}
		case unicode.IsUpper(r) && unicode.IsDigit(prev):
			flush(i)
			start = i
		}
	}
	flush(len(rs))
	return words
}

// Convert rewrites name into convention, keeping any leading and trailing
// underscores. Unknown conventions return name unchanged.
func Convert(name, convention string) string {
	core := strings.Trim(name, "_")
	words := Words(core)
	if len(words) == 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name[:strings.Index(name, core)])
	switch convention {
	case SnakeCase:
		b.WriteString(strings.ToLower(strings.Join(words, "_")))
	case ScreamingSnakeCase:
		b.WriteString(strings.ToUpper(strings.Join(words, "_")))
	case CamelCase:
		b.WriteString(strings.ToLower(words[0]))
		for _, w := range words[1:] {
			b.WriteString(capitalize(w))
		}
	case PascalCase:
		for _, w := range words {
			b.WriteString(capitalize(w))
		}
	default:
		return name
	}
	b.WriteString(name[strings.Index(name, core)+len(core):])
	return b.String()
}

func capitalize(w string) string {
	rs := []rune(strings.ToLower(w))
	if len(rs) == 0 {
		return ""
	}
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}

// Analyze tallies conventions for every analyzed symbol in files, picks the
// dominant convention per type and overall, and lists every symbol that
// diverges from its type's dominant convention. Inconsistencies are sorted
// by file, then line.
func Analyze(files []model.FileContext) model.NamingInsights {
	sorted := model.SortFiles(files)

	global := make(map[string]int)
	perType := make(map[symbols.Type]map[string]int)
	total := 0
	for _, t := range AnalyzedTypes {
		perType[t] = make(map[string]int)
	}
	for _, f := range sorted {
		for _, s := range f.Symbols {
			counts, ok := perType[population(s.Type)]
			if !ok {
				continue
			}
			c := Classify(s.Name)
			counts[c]++
			global[c]++
			total++
		}
	}

	insights := model.NamingInsights{
		ConsistencyScore: 1.0,
		ConventionByType: make(map[symbols.Type]string),
		Analyzed:         total,
	}
	for t, counts := range perType {
		if d, _ := dominant(counts); d != "" {
			insights.ConventionByType[t] = d
		}
	}
	if d, n := dominant(global); d != "" {
		insights.DominantConvention = d
		insights.ConsistencyScore = float64(n) / float64(total)
	}

	for _, f := range sorted {
		for _, s := range f.Symbols {
			expected, ok := insights.ConventionByType[population(s.Type)]
			if !ok || expected == Unknown {
				continue
			}
			actual := Classify(s.Name)
			if actual == expected {
				continue
			}
			insights.Inconsistencies = append(insights.Inconsistencies, model.NamingInconsistency{
				SymbolName: s.Name,
				SymbolType: s.Type,
				FilePath:   f.Path,
				Line:       s.Line,
				Convention: actual,
				Expected:   expected,
				Suggestion: Convert(s.Name, expected),
			})
		}
	}
	sort.SliceStable(insights.Inconsistencies, func(i, j int) bool {
		a, b := insights.Inconsistencies[i], insights.Inconsistencies[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.Line < b.Line
	})
	return insights
}

// dominant returns the most frequent convention in counts and its count,
// breaking ties by the fixed convention order.
func dominant(counts map[string]int) (string, int) {
	best, bestN := "", 0
	for c, n := range counts {
		if n == 0 {
			continue
		}
		if n > bestN || n == bestN && order[c] < order[best] {
			best, bestN = c, n
		}
	}
	return best, bestN
}

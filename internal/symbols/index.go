package symbols

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hbollon/go-edlib"

	"github.com/phobologic/codectx/internal/errs"
)

// Index maps symbol names to definitions and files to the names they define.
//
// After every mutation, each name listed under a file has at least one
// symbol in the name map stamped with that file, and every symbol stamped
// with a file is reachable through that file's name list.
type Index struct {
	mu     sync.RWMutex
	byName map[string][]Symbol
	byFile map[string][]string
	total  int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		byName: make(map[string][]Symbol),
		byFile: make(map[string][]string),
	}
}

// Add inserts sym. Symbols without a file path are rejected.
func (ix *Index) Add(sym Symbol) error {
	if sym.FilePath == "" {
		return errs.New(errs.IndexingFailed, "", fmt.Sprintf("symbol %q has no file path", sym.Name), nil)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.addLocked(sym)
	return nil
}

func (ix *Index) addLocked(sym Symbol) {
	if ix.byName == nil {
		ix.byName = make(map[string][]Symbol)
		ix.byFile = make(map[string][]string)
	}
	ix.byName[sym.Name] = append(ix.byName[sym.Name], sym)
	names := ix.byFile[sym.FilePath]
	if !contains(names, sym.Name) {
		ix.byFile[sym.FilePath] = append(names, sym.Name)
	}
	ix.total++
}

// RemoveFile drops every symbol defined in path.
func (ix *Index) RemoveFile(path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(path)
}

func (ix *Index) removeLocked(path string) {
	for _, name := range ix.byFile[path] {
		syms := ix.byName[name]
		kept := syms[:0]
		for _, s := range syms {
			if s.FilePath == path {
				ix.total--
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(ix.byName, name)
		} else {
			// Clear the tail so dropped symbols are not retained.
			clear(syms[len(kept):])
			ix.byName[name] = kept
		}
	}
	delete(ix.byFile, path)
}

// UpdateFile replaces every symbol of path with syms, stamping each with
// path. Readers never observe a mix of old and new entries.
func (ix *Index) UpdateFile(path string, syms []Symbol) error {
	if path == "" {
		return errs.New(errs.IndexingFailed, "", "update with empty file path", nil)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(path)
	for _, s := range syms {
		s.FilePath = path
		ix.addLocked(s)
	}
	return nil
}

// Find returns all definitions named name.
func (ix *Index) Find(name string) []Symbol {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]Symbol(nil), ix.byName[name]...)
}

// FindByType returns all symbols of type t ordered by name, file and line.
func (ix *Index) FindByType(t Type) []Symbol {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Symbol
	for _, syms := range ix.byName {
		for _, s := range syms {
			if s.Type == t {
				out = append(out, s)
			}
		}
	}
	sortSymbols(out)
	return out
}

// FileSymbols returns the symbols defined in path ordered by position.
func (ix *Index) FileSymbols(path string) []Symbol {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Symbol
	for _, name := range ix.byFile[path] {
		for _, s := range ix.byName[name] {
			if s.FilePath == path {
				out = append(out, s)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Column < out[j].Column
	})
	return out
}

// Search returns symbols whose name contains query, ignoring case. When
// types is non-empty only those types are returned. Exact name matches
// come first, then names in lexicographic order.
func (ix *Index) Search(query string, types ...Type) []Symbol {
	lower := strings.ToLower(query)
	var allowed map[Type]struct{}
	if len(types) > 0 {
		allowed = make(map[Type]struct{}, len(types))
		for _, t := range types {
			allowed[t] = struct{}{}
		}
	}

	ix.mu.RLock()
	var out []Symbol
	for name, syms := range ix.byName {
		if !strings.Contains(strings.ToLower(name), lower) {
			continue
		}
		for _, s := range syms {
			if allowed != nil {
				if _, ok := allowed[s.Type]; !ok {
					continue
				}
			}
			out = append(out, s)
		}
	}
	ix.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		ei := strings.EqualFold(out[i].Name, query)
		ej := strings.EqualFold(out[j].Name, query)
		if ei != ej {
			return ei
		}
		return lessSymbol(out[i], out[j])
	})
	return out
}

// Suggestion is a symbol name close to a query that matched nothing.
type Suggestion struct {
	Name  string
	Score float32
}

// minSuggestScore is the Jaro-Winkler similarity floor for suggestions.
const minSuggestScore = 0.75

// Suggest returns up to limit names most similar to query by Jaro-Winkler
// similarity.
func (ix *Index) Suggest(query string, limit int) []Suggestion {
	if query == "" || limit <= 0 {
		return nil
	}
	lower := strings.ToLower(query)

	ix.mu.RLock()
	var out []Suggestion
	for name := range ix.byName {
		score, err := edlib.StringsSimilarity(lower, strings.ToLower(name), edlib.JaroWinkler)
		if err != nil || score < minSuggestScore {
			continue
		}
		out = append(out, Suggestion{Name: name, Score: score})
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Total returns the number of indexed symbols.
func (ix *Index) Total() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.total
}

// Names returns all indexed names, sorted.
func (ix *Index) Names() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return sortedKeys(ix.byName)
}

// Files returns all files with indexed symbols, sorted.
func (ix *Index) Files() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return sortedKeys(ix.byFile)
}

// CheckConsistency verifies the name and file maps agree with each other
// and with the running count.
func (ix *Index) CheckConsistency() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	count := 0
	for name, syms := range ix.byName {
		if len(syms) == 0 {
			return fmt.Errorf("name %q has an empty symbol list", name)
		}
		for _, s := range syms {
			count++
			if s.Name != name {
				return fmt.Errorf("symbol %q filed under name %q", s.Name, name)
			}
			if !contains(ix.byFile[s.FilePath], name) {
				return fmt.Errorf("symbol %q in %s missing from file map", name, s.FilePath)
			}
		}
	}
	if count != ix.total {
		return fmt.Errorf("total is %d but %d symbols are indexed", ix.total, count)
	}

	for path, names := range ix.byFile {
		seen := make(map[string]struct{}, len(names))
		for _, name := range names {
			if _, dup := seen[name]; dup {
				return fmt.Errorf("file %s lists %q twice", path, name)
			}
			seen[name] = struct{}{}
			found := false
			for _, s := range ix.byName[name] {
				if s.FilePath == path {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("file %s lists %q with no matching symbol", path, name)
			}
		}
	}
	return nil
}

type indexJSON struct {
	Symbols     map[string][]Symbol `json:"symbols" yaml:"symbols"`
	FileSymbols map[string][]string `json:"file_symbols" yaml:"file_symbols"`
	Total       int                 `json:"total" yaml:"total"`
}

func (ix *Index) snapshot() indexJSON {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s := indexJSON{
		Symbols:     make(map[string][]Symbol, len(ix.byName)),
		FileSymbols: make(map[string][]string, len(ix.byFile)),
		Total:       ix.total,
	}
	for k, v := range ix.byName {
		s.Symbols[k] = append([]Symbol(nil), v...)
	}
	for k, v := range ix.byFile {
		s.FileSymbols[k] = append([]string(nil), v...)
	}
	return s
}

// MarshalJSON encodes both maps and the running count.
func (ix *Index) MarshalJSON() ([]byte, error) {
	return json.Marshal(ix.snapshot())
}

// MarshalYAML encodes the same shape as MarshalJSON.
func (ix *Index) MarshalYAML() (any, error) {
	return ix.snapshot(), nil
}

// UnmarshalJSON rebuilds the index from the encoded name map. The file map
// and count are recomputed rather than trusted.
func (ix *Index) UnmarshalJSON(data []byte) error {
	var s indexJSON
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byName = make(map[string][]Symbol, len(s.Symbols))
	ix.byFile = make(map[string][]string)
	ix.total = 0
	for _, name := range sortedKeys(s.Symbols) {
		for _, sym := range s.Symbols[name] {
			if sym.FilePath == "" {
				return errs.New(errs.IndexingFailed, "", fmt.Sprintf("symbol %q has no file path", sym.Name), nil)
			}
			sym.Name = name
			ix.addLocked(sym)
		}
	}
	return nil
}

func sortSymbols(syms []Symbol) {
	sort.Slice(syms, func(i, j int) bool { return lessSymbol(syms[i], syms[j]) })
}

func lessSymbol(a, b Symbol) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	if a.FilePath != b.FilePath {
		return a.FilePath < b.FilePath
	}
	return a.Line < b.Line
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// Package deps reads third-party dependencies declared in project manifests.
package deps

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"

	"github.com/phobologic/codectx/internal/logging"
	"github.com/phobologic/codectx/internal/model"
)

// parser decodes one manifest format.
type parser struct {
	file    string
	manager string
	parse   func(data []byte) ([]model.Dependency, error)
}

var parsers = []parser{
	{"Cargo.toml", "cargo", parseCargo},
	{"package.json", "npm", parseNPM},
	{"requirements.txt", "pip", parseRequirements},
	{"pyproject.toml", "pip", parsePyproject},
	{"go.mod", "go", parseGoMod},
}

// Scan reads every recognized manifest at root. A missing manifest is
// skipped; a malformed one is logged and skipped. Results are sorted by
// manager, then name.
func Scan(root string, log *slog.Logger) []model.Dependency {
	log = logging.OrDiscard(log)

	var out []model.Dependency
	for _, p := range parsers {
		path := filepath.Join(root, p.file)
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Warn("reading manifest", "path", path, "error", err)
			}
			continue
		}
		found, err := p.parse(data)
		if err != nil {
			log.Warn("parsing manifest", "path", path, "error", err)
			continue
		}
		for i := range found {
			found[i].Source = model.DependencySource{Kind: model.PackageManager, Manager: p.manager}
		}
		log.Debug("scanned manifest", "path", path, "dependencies", len(found))
		out = append(out, found...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Source.Manager != out[j].Source.Manager {
			return out[i].Source.Manager < out[j].Source.Manager
		}
		return out[i].Name < out[j].Name
	})
	return dedupe(out)
}

// dedupe drops repeated (manager, name, type) entries, keeping the first.
func dedupe(in []model.Dependency) []model.Dependency {
	type key struct {
		manager, name string
		typ           model.DependencyType
	}
	seen := make(map[key]struct{}, len(in))
	out := in[:0]
	for _, d := range in {
		k := key{d.Source.Manager, d.Name, d.Type}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}

type cargoManifest struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
	Workspace         struct {
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"workspace"`
}

func parseCargo(data []byte) ([]model.Dependency, error) {
	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding Cargo.toml: %w", err)
	}
	var out []model.Dependency
	out = append(out, cargoTable(m.Dependencies, model.Runtime)...)
	out = append(out, cargoTable(m.Workspace.Dependencies, model.Runtime)...)
	out = append(out, cargoTable(m.DevDependencies, model.Development)...)
	out = append(out, cargoTable(m.BuildDependencies, model.Build)...)
	return out, nil
}

// cargoTable handles both `name = "1.0"` and `name = { version = "1.0",
// optional = true }` forms.
func cargoTable(table map[string]any, typ model.DependencyType) []model.Dependency {
	var out []model.Dependency
	for name, v := range table {
		d := model.Dependency{Name: name, Type: typ}
		switch val := v.(type) {
		case string:
			d.Version = val
		case map[string]any:
			if s, ok := val["version"].(string); ok {
				d.Version = s
			}
			if opt, ok := val["optional"].(bool); ok && opt {
				d.Type = model.Optional
			}
			if pkg, ok := val["package"].(string); ok && pkg != "" {
				d.Name = pkg
			}
		}
		out = append(out, d)
	}
	return out
}

type npmManifest struct {
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func parseNPM(data []byte) ([]model.Dependency, error) {
	var m npmManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding package.json: %w", err)
	}
	var out []model.Dependency
	for _, group := range []struct {
		deps map[string]string
		typ  model.DependencyType
	}{
		{m.Dependencies, model.Runtime},
		{m.PeerDependencies, model.Runtime},
		{m.DevDependencies, model.Development},
		{m.OptionalDependencies, model.Optional},
	} {
		for name, version := range group.deps {
			out = append(out, model.Dependency{Name: name, Version: version, Type: group.typ})
		}
	}
	return out, nil
}

// pep508Re splits a requirement into name, extras and version specifier.
var pep508Re = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[[^\]]*\])?\s*(.*)$`)

// parseRequirement parses one PEP 508 requirement line. ok is false for
// blank lines, comments and pip options.
func parseRequirement(line string) (model.Dependency, bool) {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, ";"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "-") {
		return model.Dependency{}, false
	}
	m := pep508Re.FindStringSubmatch(line)
	if m == nil {
		return model.Dependency{}, false
	}
	d := model.Dependency{Name: m[1], Type: model.Runtime}
	spec := strings.TrimSpace(m[3])
	if v, ok := strings.CutPrefix(spec, "=="); ok {
		d.Version = strings.TrimSpace(v)
	} else if spec != "" && !strings.HasPrefix(spec, "@") {
		d.Version = spec
	}
	return d, true
}

func parseRequirements(data []byte) ([]model.Dependency, error) {
	var out []model.Dependency
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if d, ok := parseRequirement(sc.Text()); ok {
			out = append(out, d)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading requirements.txt: %w", err)
	}
	return out, nil
}

type pyprojectManifest struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies    map[string]any `toml:"dependencies"`
			DevDependencies map[string]any `toml:"dev-dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func parsePyproject(data []byte) ([]model.Dependency, error) {
	var m pyprojectManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding pyproject.toml: %w", err)
	}
	var out []model.Dependency
	for _, req := range m.Project.Dependencies {
		if d, ok := parseRequirement(req); ok {
			out = append(out, d)
		}
	}
	groups := make([]string, 0, len(m.Project.OptionalDependencies))
	for g := range m.Project.OptionalDependencies {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		for _, req := range m.Project.OptionalDependencies[g] {
			if d, ok := parseRequirement(req); ok {
				d.Type = model.Optional
				out = append(out, d)
			}
		}
	}
	for _, d := range cargoTable(m.Tool.Poetry.Dependencies, model.Runtime) {
		if d.Name != "python" {
			out = append(out, d)
		}
	}
	out = append(out, cargoTable(m.Tool.Poetry.DevDependencies, model.Development)...)
	return out, nil
}

func parseGoMod(data []byte) ([]model.Dependency, error) {
	f, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		return nil, fmt.Errorf("decoding go.mod: %w", err)
	}
	out := make([]model.Dependency, 0, len(f.Require))
	for _, r := range f.Require {
		typ := model.Runtime
		if r.Indirect {
			typ = model.Build
		}
		out = append(out, model.Dependency{Name: r.Mod.Path, Version: r.Mod.Version, Type: typ})
	}
	return out, nil
}

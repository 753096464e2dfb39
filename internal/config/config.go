// Package config holds the analysis configuration and its loader.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
)

// Parser backends.
const (
	BackendHeuristic  = "heuristic"
	BackendTreeSitter = "treesitter"
)

// EnvPrefix prefixes environment overrides, e.g. CODECTX_DEEP_ANALYSIS=true.
const EnvPrefix = "CODECTX"

// AnalysisConfig controls discovery and the optional pipeline stages.
type AnalysisConfig struct {
	IncludePatterns     []string `mapstructure:"include_patterns" json:"include_patterns" yaml:"include_patterns"`
	ExcludePatterns     []string `mapstructure:"exclude_patterns" json:"exclude_patterns" yaml:"exclude_patterns"`
	MaxFileSizeMB       int      `mapstructure:"max_file_size_mb" json:"max_file_size_mb" yaml:"max_file_size_mb"`
	FollowSymlinks      bool     `mapstructure:"follow_symlinks" json:"follow_symlinks" yaml:"follow_symlinks"`
	AnalyzeDependencies bool     `mapstructure:"analyze_dependencies" json:"analyze_dependencies" yaml:"analyze_dependencies"`
	DeepAnalysis        bool     `mapstructure:"deep_analysis" json:"deep_analysis" yaml:"deep_analysis"`
	CacheResults        bool     `mapstructure:"cache_results" json:"cache_results" yaml:"cache_results"`
	RespectGitignore    bool     `mapstructure:"respect_gitignore" json:"respect_gitignore" yaml:"respect_gitignore"`
	ParserBackend       string   `mapstructure:"parser_backend" json:"parser_backend" yaml:"parser_backend"`
	// Workers bounds per-file extraction concurrency; 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers" json:"workers" yaml:"workers"`
}

// DefaultExcludePatterns skips build output, dependency trees, VCS and IDE
// metadata, editor swap files and logs.
var DefaultExcludePatterns = []string{
	"**/target/**",
	"**/build/**",
	"**/dist/**",
	"**/out/**",
	"**/bin/**",
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/venv/**",
	"**/env/**",
	"**/.git/**",
	"**/.svn/**",
	"**/.hg/**",
	"**/.cache/**",
	"**/.tmp/**",
	"**/tmp/**",
	"**/.idea/**",
	"**/.vscode/**",
	"**/.vs/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
	"**/Thumbs.db",
	"**/*.log",
	"**/logs/**",
}

// Default returns the stock configuration.
func Default() AnalysisConfig {
	return AnalysisConfig{
		IncludePatterns:     []string{"**/*"},
		ExcludePatterns:     append([]string(nil), DefaultExcludePatterns...),
		MaxFileSizeMB:       5,
		FollowSymlinks:      false,
		AnalyzeDependencies: true,
		DeepAnalysis:        false,
		CacheResults:        true,
		RespectGitignore:    true,
		ParserBackend:       BackendHeuristic,
	}
}

// MaxFileSizeBytes returns the size ceiling in bytes; 0 means unlimited.
func (c AnalysisConfig) MaxFileSizeBytes() int64 {
	if c.MaxFileSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// Validate reports configuration errors.
func (c AnalysisConfig) Validate() error {
	var errs []error
	if c.MaxFileSizeMB < 0 {
		errs = append(errs, fmt.Errorf("max_file_size_mb must be >= 0, got %d", c.MaxFileSizeMB))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	switch c.ParserBackend {
	case "", BackendHeuristic, BackendTreeSitter:
	default:
		errs = append(errs, fmt.Errorf("unknown parser_backend %q", c.ParserBackend))
	}
	for _, p := range c.IncludePatterns {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("invalid include pattern %q", p))
		}
	}
	for _, p := range c.ExcludePatterns {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("invalid exclude pattern %q", p))
		}
	}
	return errors.Join(errs...)
}

// Load reads configuration from path, or from .codectx.{yaml,toml,json} in
// dir when path is empty, then applies CODECTX_* environment overrides on
// top of Default(). A missing config file is not an error.
func Load(path, dir string) (AnalysisConfig, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		if dir == "" {
			dir = "."
		}
		v.SetConfigName(".codectx")
		v.AddConfigPath(filepath.Clean(dir))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return AnalysisConfig{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg AnalysisConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AnalysisConfig{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.ParserBackend == "" {
		cfg.ParserBackend = BackendHeuristic
	}
	if err := cfg.Validate(); err != nil {
		return AnalysisConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d AnalysisConfig) {
	v.SetDefault("include_patterns", d.IncludePatterns)
	v.SetDefault("exclude_patterns", d.ExcludePatterns)
	v.SetDefault("max_file_size_mb", d.MaxFileSizeMB)
	v.SetDefault("follow_symlinks", d.FollowSymlinks)
	v.SetDefault("analyze_dependencies", d.AnalyzeDependencies)
	v.SetDefault("deep_analysis", d.DeepAnalysis)
	v.SetDefault("cache_results", d.CacheResults)
	v.SetDefault("respect_gitignore", d.RespectGitignore)
	v.SetDefault("parser_backend", d.ParserBackend)
	v.SetDefault("workers", d.Workers)
}

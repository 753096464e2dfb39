package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const (
	sentinelStart = "<!-- codectx:start -->"
	sentinelEnd   = "<!-- codectx:end -->"
)

// newInitCmd implements `codectx init`, which writes (or updates) a codectx
// usage section in an agent instructions file.
func newInitCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "init [path-to-file]",
		Short: "Write a codectx usage section to an instructions file",
		Long: `Write a codectx usage section to an instructions file. The section is wrapped
in sentinel comments so it can be updated in place on subsequent runs without
touching surrounding content. Creates the file if it does not exist.

path-to-file defaults to ./AGENTS.md.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section := generateSection()
			stdout := cmd.OutOrStdout()

			// --dry-run with no path: just print the section itself.
			if dryRun && len(args) == 0 {
				_, _ = fmt.Fprintln(stdout, section)
				return nil
			}

			path := "AGENTS.md"
			if len(args) > 0 {
				path = args[0]
			}

			existing, _ := os.ReadFile(path)
			updated := applySection(string(existing), section)

			if dryRun {
				_, _ = fmt.Fprint(stdout, updated)
				return nil
			}

			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}

			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "wrote codectx section to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}

// generateSection returns the full sentinel-wrapped codectx documentation block.
func generateSection() string {
	body := `## codectx: Codebase Context

Run ` + "`codectx analyze`" + ` at the start of any task on an unfamiliar codebase. It
prints a ranked map of files, symbols, relationships and dependencies.

**Availability:** Check with ` + "`codectx --version`" + ` first; skip gracefully if
not found.

**Run it:**
` + "```" + `bash
codectx analyze                              # current directory
codectx analyze /path/to/repo                # explicit path
codectx analyze -n 20                        # top 20 files by rank
codectx analyze --deep                       # add patterns and suggestions
codectx analyze -s Parser                    # symbols matching Parser, with related files
codectx analyze --cache .codectx-cache       # reuse the analysis while nothing changed
codectx search parse -t function             # find definitions
codectx related src/lib.rs -t imports        # files a file depends on
codectx suggest test                         # suggestions mentioning "test"
` + "```" + `

**Caching:** ` + "`--cache <file>`" + ` stores a compressed snapshot and reuses it until a
source file changes. Add the cache file to ` + "`.gitignore`" + `.

**All flags:** ` + "`codectx --help`" + `

**How to use the output:**

1. **Read files in ranked order.** The ` + "`files`" + ` table is sorted by PageRank
   over file relationships, most central first.

2. **Use ` + "`symbols`" + ` or ` + "`codectx search`" + ` to find definitions** before
   searching the tree by hand.

3. **Use ` + "`relationships`" + ` to trace imports and tests** before opening a file to
   see what it depends on.`

	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/phobologic/codectx/internal/manager"
	"github.com/phobologic/codectx/internal/watch"
)

func newWatchCmd(g *globals) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Analyze a directory and keep the analysis current as files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd, args)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cc, err := s.mgr.AnalyzeCodebase(ctx, s.root, s.cfg)
			if err != nil {
				return err
			}
			w, err := watch.New(s.mgr, cc, s.cfg, s.log)
			if err != nil {
				return fmt.Errorf("watching %s: %w", s.root, err)
			}
			w.Debounce = debounce

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "watching %s (%d files, %d symbols)\n", s.root, cc.Metadata.TotalFiles, cc.Metadata.IndexedSymbols)
			w.OnUpdate = func(changed []string, res manager.UpdateResult, err error) {
				if err != nil {
					return
				}
				fmt.Fprintf(out, "updated=%d added=%d removed=%d skipped=%d files=%d symbols=%d\n",
					res.Updated, res.Added, res.Removed, res.Skipped,
					cc.Metadata.TotalFiles, cc.Metadata.IndexedSymbols)
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before applying changes")
	return cmd
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tether/internal/orchestrator"
)

type statsResult orchestrator.Stats

func (s statsResult) Text() string {
	var b strings.Builder
	if s.Store != nil {
		fmt.Fprintf(&b, "Store: %s\n", s.Store.TotalSize())
		for _, c := range s.Store.Collections {
			fmt.Fprintf(&b, "  %-18s %6d records\n", c.Collection, c.Records)
		}
	} else {
		b.WriteString("Store: disabled\n")
	}
	fmt.Fprintf(&b, "Peer sync: enabled=%t auto_sync=%t interval=%s",
		s.Config.EnablePeerSync, s.Config.AutoSync, s.Config.SyncInterval)
	if s.Config.EnableContentAnchor {
		b.WriteString("\nContent anchor: enabled")
	}
	return b.String()
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage statistics and configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.orch.Stats(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "stats failed", err)
			}
			return a.out.Success(statsResult(st))
		},
	}
}

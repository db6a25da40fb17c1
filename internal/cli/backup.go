package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tether/internal/model"
	"github.com/roach88/tether/internal/orchestrator"
)

// NewBackupCommand creates the backup command group.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list and restore backups",
	}

	cmd.AddCommand(newBackupCreateCommand(rootOpts))
	cmd.AddCommand(newBackupListCommand(rootOpts))
	cmd.AddCommand(newBackupRestoreCommand(rootOpts))

	return cmd
}

type backupCreated struct {
	ID string `json:"id"`
}

func (b backupCreated) Text() string { return "Created backup " + b.ID }

func newBackupCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Back up the full state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.orch.CreateBackup(cmd.Context(), typ)
			if err != nil {
				return WrapExitError(ExitFailure, "backup failed", err)
			}
			return a.out.Success(backupCreated{ID: id})
		},
	}

	cmd.Flags().StringVar(&typ, "type", orchestrator.DefaultBackupType, "backup type tag")

	return cmd
}

type backupEntry struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Bytes     int    `json:"bytes"`
}

type backupList []backupEntry

func (l backupList) Text() string {
	if len(l) == 0 {
		return "No backups"
	}
	var b strings.Builder
	for i, e := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		ts := time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339)
		fmt.Fprintf(&b, "%s  %-6s  %s  %d bytes", e.ID, e.Type, ts, e.Bytes)
	}
	return b.String()
}

func newBackupListCommand(rootOpts *RootOptions) *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			backups, err := a.orch.ListBackups(cmd.Context(), typ)
			if err != nil {
				return WrapExitError(ExitFailure, "list backups failed", err)
			}
			return a.out.Success(listEntries(backups))
		},
	}

	cmd.Flags().StringVar(&typ, "type", "", `only list this type ("full", "player", ...)`)

	return cmd
}

func listEntries(backups []model.BackupRecord) backupList {
	out := make(backupList, 0, len(backups))
	for _, b := range backups {
		out = append(out, backupEntry{ID: b.ID, Type: b.Type, Timestamp: b.Timestamp, Bytes: len(b.Data)})
	}
	return out
}

type backupRestored struct {
	ID string `json:"id"`
}

func (b backupRestored) Text() string { return "Restored backup " + b.ID }

func newBackupRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ok, err := a.orch.RestoreFromBackup(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "restore failed", err)
			}
			if !ok {
				return NewExitError(ExitFailure, fmt.Sprintf("backup %q not found or not restorable", args[0]))
			}
			return a.out.Success(backupRestored{ID: args[0]})
		},
	}
}

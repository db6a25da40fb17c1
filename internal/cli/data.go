package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tether/internal/model"
	"github.com/roach88/tether/internal/orchestrator"
)

// SaveOptions holds flags for the save command.
type SaveOptions struct {
	*RootOptions
	Data string
	File string
}

type saveResult struct {
	ID    string `json:"id"`
	Bytes int    `json:"bytes"`
}

func (r saveResult) Text() string {
	return fmt.Sprintf("Saved %s (%d bytes)", r.ID, r.Bytes)
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save [id]",
		Short: "Save a player record",
		Long: `Save a JSON player record and broadcast it to connected peers.

The id defaults to "current". The payload comes from --data, --file or stdin.
The previous value is kept as a "player" backup.

Example:
  tether save --data '{"name":"Ada","level":3}'
  tether save current --file player.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := model.PlayerKey
			if len(args) == 1 {
				id = args[0]
			}
			return runSave(opts, id, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "JSON payload")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the payload from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("data", "file")

	return cmd
}

func runSave(opts *SaveOptions, id string, cmd *cobra.Command) error {
	data := []byte(opts.Data)
	if opts.Data == "" {
		var err error
		if data, err = readInput(cmd, opts.File); err != nil {
			return WrapExitError(ExitCommandError, "failed to read payload", err)
		}
	}
	data = []byte(strings.TrimSpace(string(data)))
	if !json.Valid(data) {
		return NewExitError(ExitCommandError, "payload is not valid JSON")
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.Save(cmd.Context(), id, data); err != nil {
		return WrapExitError(ExitFailure, "save failed", err)
	}
	return a.out.Success(saveResult{ID: id, Bytes: len(data)})
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load [id]",
		Short: "Print a player record",
		Long: `Print a player record as JSON. The id defaults to "current".

Exits with status 1 if the record does not exist.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := model.PlayerKey
			if len(args) == 1 {
				id = args[0]
			}

			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := a.orch.Load(cmd.Context(), id)
			if err != nil {
				return WrapExitError(ExitFailure, "load failed", err)
			}
			if data == nil {
				return NewExitError(ExitFailure, fmt.Sprintf("no record %q", id))
			}
			return a.out.Success(data)
		},
	}
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output         string
	Encrypt        bool
	Password       string
	NoSessions     bool
	NoAchievements bool
}

type exportResult struct {
	Path      string `json:"path"`
	Bytes     int    `json:"bytes"`
	Encrypted bool   `json:"encrypted"`
}

func (r exportResult) Text() string {
	kind := "plain"
	if r.Encrypted {
		kind = "encrypted"
	}
	return fmt.Sprintf("Exported %d bytes (%s) to %s", r.Bytes, kind, r.Path)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all data as a snapshot",
		Long: `Export the player, recent sessions, achievements and sync metadata.

Without --output the snapshot is written to stdout. With --encrypt (or
export.encrypt in the config) the snapshot is sealed with the password from
--password or $TETHER_PASSWORD.

Example:
  tether export --output backup.json
  TETHER_PASSWORD=secret tether export --encrypt --output backup.enc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&opts.Encrypt, "encrypt", false, "encrypt the snapshot")
	cmd.Flags().StringVar(&opts.Password, "password", "", "encryption password (default $TETHER_PASSWORD)")
	cmd.Flags().BoolVar(&opts.NoSessions, "no-sessions", false, "leave out study sessions")
	cmd.Flags().BoolVar(&opts.NoAchievements, "no-achievements", false, "leave out achievements")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	exportOpts := orchestrator.ExportOptions{
		IncludeSessions:     !opts.NoSessions,
		IncludeAchievements: !opts.NoAchievements,
		Encrypt:             opts.Encrypt,
	}
	encrypted := opts.Encrypt || a.cfg.Export.Encrypt

	data, err := a.orch.ExportData(cmd.Context(), exportOpts, password(opts.Password))
	if err != nil {
		return WrapExitError(ExitFailure, "export failed", err)
	}

	if opts.Output == "" || opts.Output == "-" {
		return writeOutput(cmd, "", []byte(data+"\n"))
	}
	if err := writeOutput(cmd, opts.Output, []byte(data)); err != nil {
		return WrapExitError(ExitCommandError, "failed to write export", err)
	}
	return a.out.Success(exportResult{Path: opts.Output, Bytes: len(data), Encrypted: encrypted})
}

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Password string
}

type importResult orchestrator.ImportResult

func (r importResult) Text() string {
	return fmt.Sprintf("Imported %d records", r.RecordsImported)
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a snapshot",
		Long: `Import a snapshot written by export. Reads stdin when no file is given.

An encrypted snapshot needs the password from --password or $TETHER_PASSWORD.
Nothing is written unless the whole snapshot is accepted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runImport(opts, path, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Password, "password", "", "decryption password (default $TETHER_PASSWORD)")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	payload, err := readInput(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	payload = []byte(strings.TrimSpace(string(payload)))
	result := a.orch.ImportData(cmd.Context(), payload, password(opts.Password))
	if !result.Success {
		return &ExitError{
			Code:    ExitFailure,
			Message: "import failed: " + strings.Join(result.Errors, "; "),
			Details: result.Errors,
		}
	}
	return a.out.Success(importResult(result))
}

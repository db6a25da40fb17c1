package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// maxCodeSize bounds a pasted connection code. Codes carry a full SDP and
// run to a few kilobytes.
const maxCodeSize = 1 << 20

type shareCode struct {
	PeerID string `json:"peerId"`
	Code   string `json:"code"`
}

func (s shareCode) Text() string {
	return fmt.Sprintf("Share this code with the other device (peer %s):\n\n%s\n", s.PeerID, s.Code)
}

type answerCode struct {
	PeerID string `json:"peerId"`
	Code   string `json:"code"`
}

func (s answerCode) Text() string {
	return fmt.Sprintf("Send this answer code back to the sharing device (peer %s):\n\n%s\n", s.PeerID, s.Code)
}

type connected struct {
	PeerID   string `json:"peerId"`
	RemoteID string `json:"remoteId"`
}

func (c connected) Text() string {
	return fmt.Sprintf("Connected to %s. Syncing until interrupted.", c.RemoteID)
}

// NewShareCommand creates the share command.
func NewShareCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "share",
		Short: "Offer a peer connection and sync until interrupted",
		Long: `Print a connection code for another device, read its answer code from
stdin, then keep the connection open and sync until Ctrl-C.

On the other device run "tether connect <code>" and paste the answer it
prints back here.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShare(rootOpts, cmd)
		},
	}
}

func runShare(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context(), a.logger)
	defer cancel()

	if err := a.orch.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "start failed", err)
	}

	code, pendingID, err := a.orch.GenerateShareCode(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create share code", err)
	}
	if err := a.out.Success(shareCode{PeerID: a.orch.PeerID(), Code: code}); err != nil {
		return err
	}

	fmt.Fprintln(a.out.GetErrWriter(), "Paste the answer code:")
	answer, err := readCode(cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read answer code", err)
	}

	remoteID, err := a.orch.CompleteConnection(ctx, answer, pendingID)
	if err != nil {
		return WrapExitError(ExitFailure, "connection failed", err)
	}
	if err := a.out.Success(connected{PeerID: a.orch.PeerID(), RemoteID: remoteID}); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("share stopped", "peers", a.orch.ConnectedPeers())
	return nil
}

// NewConnectCommand creates the connect command.
func NewConnectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <code>",
		Short: "Answer a share code and sync until interrupted",
		Long: `Accept a connection code printed by "tether share", print the answer code
to send back, then keep the connection open and sync until Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(rootOpts, strings.TrimSpace(args[0]), cmd)
		},
	}
}

func runConnect(opts *RootOptions, code string, cmd *cobra.Command) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context(), a.logger)
	defer cancel()

	if err := a.orch.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "start failed", err)
	}

	answer, err := a.orch.ConnectWithCode(ctx, code)
	if err != nil {
		return WrapExitError(ExitFailure, "connection failed", err)
	}
	if err := a.out.Success(answerCode{PeerID: a.orch.PeerID(), Code: answer}); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("connect stopped", "peers", a.orch.ConnectedPeers())
	return nil
}

// readCode reads the first non-empty line from r.
func readCode(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCodeSize)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.New("no code given")
}

type syncStatus struct {
	LastSyncTime       int64    `json:"lastSyncTime"`
	SyncedPeers        []string `json:"syncedPeers"`
	ConflictResolution string   `json:"conflictResolution"`
}

func (s syncStatus) Text() string {
	if s.LastSyncTime == 0 {
		return "Never synced"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Last sync: %s\n", time.UnixMilli(s.LastSyncTime).UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Conflict resolution: %s\n", s.ConflictResolution)
	fmt.Fprintf(&b, "Synced peers (%d):", len(s.SyncedPeers))
	for _, p := range s.SyncedPeers {
		b.WriteString("\n  " + p)
	}
	return b.String()
}

// NewPeersCommand creates the peers command.
func NewPeersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "Show the peers this device has synced with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			meta, err := a.orch.SyncMetadata(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read sync metadata", err)
			}
			status := syncStatus{SyncedPeers: []string{}}
			if meta != nil {
				status = syncStatus(*meta)
			}
			return a.out.Success(status)
		},
	}
}

type serving struct {
	PeerID string `json:"peerId"`
}

func (s serving) Text() string {
	return fmt.Sprintf("Serving as %s. Press Ctrl-C to stop.", s.PeerID)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run heartbeat and auto-sync until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context(), a.logger)
			defer cancel()

			if err := a.out.Success(serving{PeerID: a.orch.PeerID()}); err != nil {
				return err
			}
			if err := a.orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return WrapExitError(ExitFailure, "serve failed", err)
			}
			a.logger.Info("stopped gracefully")
			return nil
		},
	}
}

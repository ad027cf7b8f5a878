package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpggio/rollcall/internal/broadcast"
	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/snapshot"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rollcallctl",
		Short:         "Work with rollcall share links and broadcasts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newEncodeCmd(), newDecodeCmd(), newShareCmd(), newWatchCmd())
	return root
}

type countFlags struct {
	total int
	boys  int
	girls int
	at    string
}

func (f *countFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.total, "total", -1, "total students (default boys+girls)")
	cmd.Flags().IntVar(&f.boys, "boys", 0, "boys")
	cmd.Flags().IntVar(&f.girls, "girls", 0, "girls")
	cmd.Flags().StringVar(&f.at, "at", "", "lastUpdated as RFC 3339 (default now)")
}

func (f *countFlags) record(now time.Time) (stats.Record, error) {
	rec := stats.Record{Total: f.total, Boys: f.boys, Girls: f.girls, LastUpdated: now.UTC()}
	if rec.Total < 0 {
		rec.Total = rec.Boys + rec.Girls
	}
	if f.at != "" {
		ts, err := time.Parse(time.RFC3339Nano, f.at)
		if err != nil {
			return stats.Record{}, fmt.Errorf("invalid --at: %w", err)
		}
		rec.LastUpdated = ts.UTC()
	}
	if err := stats.ValidateConsistent(rec); err != nil {
		return stats.Record{}, err
	}
	return rec, nil
}

func newEncodeCmd() *cobra.Command {
	var flags countFlags
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the snapshot token for the given counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := flags.record(time.Now())
			if err != nil {
				return err
			}
			token, err := snapshot.Encode(rec)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func newShareCmd() *cobra.Command {
	var flags countFlags
	var base string
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Print a public share link for the given counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if base == "" {
				return errors.New("--base is required")
			}
			rec, err := flags.record(time.Now())
			if err != nil {
				return err
			}
			token, err := snapshot.Encode(rec)
			if err != nil {
				return err
			}
			link, err := snapshot.ShareURL(base, token)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), link)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&base, "base", "", "public dashboard URL")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <token|share-url>",
		Short: "Decode a snapshot token or share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := snapshot.Decode(tokenFrom(args[0]))
			if err != nil {
				return err
			}
			return writeRecord(cmd.OutOrStdout(), rec, "  ")
		},
	}
}

func newWatchCmd() *cobra.Command {
	var wsURL string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print every stats update broadcast by a rollcall server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if wsURL == "" {
				return errors.New("--url is required")
			}
			updates := make(chan stats.Record, 16)
			client := broadcast.NewClient(wsURL)
			defer client.Close()

			if _, err := client.Subscribe(func(rec stats.Record) {
				select {
				case updates <- rec:
				default:
				}
			}); err != nil {
				return err
			}
			client.OnConnect(func() {
				fmt.Fprintf(cmd.ErrOrStderr(), "connected to %s\n", wsURL)
			})

			ctx := cmd.Context()
			client.Start(ctx)
			for {
				select {
				case <-ctx.Done():
					return nil
				case rec := <-updates:
					if err := writeRecord(cmd.OutOrStdout(), rec, ""); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&wsURL, "url", "ws://localhost:8080/ws", "broadcast endpoint")
	return cmd
}

// tokenFrom accepts a bare token or any URL carrying it in the d parameter.
func tokenFrom(arg string) string {
	arg = strings.TrimSpace(arg)
	if !strings.Contains(arg, "://") {
		return arg
	}
	u, err := url.Parse(arg)
	if err != nil {
		return arg
	}
	if d := u.Query().Get(snapshot.QueryParam); d != "" {
		return d
	}
	return arg
}

func writeRecord(w io.Writer, rec stats.Record, indent string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", indent)
	return enc.Encode(rec)
}

package main

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joelkehle/valuation-wizard/internal/sharelink"
)

func newShareCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Encode and decode results share links",
	}
	cmd.AddCommand(newShareEncodeCmd(a), newShareDecodeCmd(a))
	return cmd
}

func newShareEncodeCmd(a *app) *cobra.Command {
	var (
		file    string
		baseURL string
		at      string
	)
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the legacy and robust share links for a record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := readRecord(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			when := time.Now()
			if at != "" {
				if when, err = time.Parse(time.RFC3339, at); err != nil {
					return err
				}
			}
			base := baseURL
			if base == "" {
				base = a.cfg.Server.ShareBaseURL
			}
			if base == "" {
				base = localResultsURL(a.cfg.Server.Addr)
			}
			links, err := sharelink.BuildLinks(base, sharelink.NewSnapshot(r, when))
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), links)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Record file (default: stdin)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Results page URL (default: server.share_base_url)")
	cmd.Flags().StringVar(&at, "at", "", "Generation time, RFC3339 (default: now)")
	return cmd
}

type decodedLink struct {
	Source   sharelink.Source   `json:"source"`
	Snapshot sharelink.Snapshot `json:"snapshot"`
}

func newShareDecodeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <link-or-value>",
		Short: "Decode a share link, or a bare d/data value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := shareQuery(args[0])
			snap, source, ok := sharelink.Resolve(q, sharelink.DefaultDecoders(a.logger), nil)
			if !ok {
				return errors.New("no results found in link")
			}
			return writeIndented(cmd.OutOrStdout(), decodedLink{Source: source, Snapshot: snap})
		},
	}
}

// shareQuery returns the query of a full link, or offers a bare value to
// every decoder.
func shareQuery(arg string) url.Values {
	arg = strings.TrimSpace(arg)
	if strings.Contains(arg, "?") {
		if u, err := url.Parse(arg); err == nil {
			return u.Query()
		}
	}
	return url.Values{
		sharelink.ParamRobust: {arg},
		sharelink.ParamLegacy: {arg},
	}
}

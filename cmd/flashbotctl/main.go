// Command flashbotctl is an operator tool for the dashboard: it decodes action
// text offline, reads the live push feed and maintains the history store.
package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/flashback-dashboard/internal/config"
	"github.com/tbourn/flashback-dashboard/internal/parser"
	"github.com/tbourn/flashback-dashboard/internal/pushapi"
	"github.com/tbourn/flashback-dashboard/internal/sysutil"
)

func main() {
	_ = godotenv.Load()
	sysutil.ConfigureLogger(os.Stderr, true, "")
	sysutil.SetLogLevel(os.Getenv("LOG_LEVEL"))

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("flashbotctl")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flashbotctl",
		Short:         "Inspect FlashbackBot actions and the dashboard history store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newParseCmd(), newFeedCmd(), newHistoryCmd())
	return root
}

func knownKeys(flag string) []string {
	var keys []string
	for _, k := range strings.Split(sysutil.FirstNonEmpty(flag, os.Getenv("PUSH_KNOWN_KEYS"), config.DefaultKnownKeys), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newParseCmd() *cobra.Command {
	var keys string
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Decode the action blocks of a push body read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrap(err, "open body")
				}
				defer f.Close()
				in = f
			}
			body, err := io.ReadAll(in)
			if err != nil {
				return errors.Wrap(err, "read body")
			}
			return writeJSON(cmd.OutOrStdout(), parser.New(knownKeys(keys)).ParseBody(string(body)))
		},
	}
	cmd.Flags().StringVar(&keys, "keys", "", "comma separated field names (default: PUSH_KNOWN_KEYS or the bot's list)")
	return cmd
}

func newFeedCmd() *cobra.Command {
	var (
		url, token, keys string
		all              bool
		timeout          time.Duration
	)
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Fetch the push feed and print the parsed actions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token = sysutil.FirstNonEmpty(token, os.Getenv("PUSH_TOKEN"))
			client := pushapi.NewClient(url, timeout)
			feed, err := client.FetchPage(cmd.Context(), token, all, nil)
			if err != nil && feed == nil {
				return err
			}
			if err != nil {
				log.Warn().Err(err).Int("pushes", len(feed.Pushes)).Msg("feed is partial")
			}
			return writeJSON(cmd.OutOrStdout(), parser.New(knownKeys(keys)).ParseFeed(feed.Pushes))
		},
	}
	cmd.Flags().StringVar(&url, "url", sysutil.FirstNonEmpty(os.Getenv("PUSH_API_URL"), "https://api.pushbullet.com/v2/pushes"), "pushes endpoint")
	cmd.Flags().StringVar(&token, "token", "", "access token (default: PUSH_TOKEN)")
	cmd.Flags().StringVar(&keys, "keys", "", "comma separated field names")
	cmd.Flags().BoolVar(&all, "all", true, "follow cursors until the last page")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "per request timeout")
	return cmd
}

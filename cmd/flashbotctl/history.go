package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/flashback-dashboard/internal/domain"
	"github.com/tbourn/flashback-dashboard/internal/repo"
	"github.com/tbourn/flashback-dashboard/internal/sysutil"
)

func openStore(path string) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	return db, nil
}

func newHistoryCmd() *cobra.Command {
	var dbPath, user string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Read or append post-history documents",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", sysutil.FirstNonEmpty(os.Getenv("DB_PATH"), "dashboard.db"), "SQLite database path")
	cmd.PersistentFlags().StringVar(&user, "user", "demo-user", "owner of the documents")
	cmd.AddCommand(newHistoryAddCmd(&dbPath, &user), newHistoryListCmd(&dbPath, &user))
	return cmd
}

func newHistoryAddCmd(dbPath, user *string) *cobra.Command {
	var (
		rec       domain.HistoryRecord
		postedAt  string
		quoteUser string
		quoteText []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append one decided action to the history store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rec.ActionID <= 0 {
				return errors.New("--action-id must be positive")
			}
			if rec.Status != domain.StatusPosted && rec.Status != domain.StatusSkipped {
				return errors.Errorf("--status must be %s or %s", domain.StatusPosted, domain.StatusSkipped)
			}
			rec.TimeOfPost = time.Now()
			if postedAt != "" {
				t, err := time.Parse(time.RFC3339, postedAt)
				if err != nil {
					return errors.Wrap(err, "--time")
				}
				rec.TimeOfPost = t
			}
			if quoteUser != "" || len(quoteText) > 0 {
				rec.OriginalPost.Quote = &domain.Quote{QuotedUser: quoteUser, QuotedPost: quoteText}
			}
			rec.UserID = *user

			db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			if err := repo.CreateHistory(cmd.Context(), db, &rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added action %d as %s (%s)\n", rec.ActionID, rec.Status, rec.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.Int64Var(&rec.ActionID, "action-id", 0, "action id assigned by the bot")
	f.StringVar(&rec.Status, "status", domain.StatusPosted, "posted or skipped")
	f.StringVar(&rec.GeneratedAnswer, "answer", "", "generated answer text")
	f.Int64Var(&rec.OriginalPostID, "post-id", 0, "original post id")
	f.Int64Var(&rec.OriginalPost.UniqueID, "unique-id", 0, "original post unique id")
	f.StringVar(&rec.OriginalPost.Username, "username", "", "original post author")
	f.StringVar(&rec.OriginalPost.Post, "post", "", "original post text")
	f.StringVar(&quoteUser, "quote-user", "", "quoted author")
	f.StringArrayVar(&quoteText, "quote-post", nil, "quoted paragraph, repeatable")
	f.StringVar(&postedAt, "time", "", "time of post, RFC3339 (default: now)")
	return cmd
}

func newHistoryListCmd(dbPath, user *string) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the newest history documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			recs, err := repo.QueryHistory(cmd.Context(), db, repo.HistoryQuery{UserID: *user, Status: status, Limit: limit})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only posted or skipped documents")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum documents")
	return cmd
}

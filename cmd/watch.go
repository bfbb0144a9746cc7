/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/core/feed"
	"github.com/seckatie/arkive/internal/core/view"
	"github.com/seckatie/arkive/internal/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// watchCmd prints an owner's bookmarks and reprints them on every change.
// With a redis relay configured it also sees changes made through a
// running server.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow an owner's bookmarks live",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runWatch(cmd); err != nil {
			fail(cmd, err)
		}
	},
}

func init() {
	watchCmd.Flags().String("owner", "", "Owner id to follow")
	watchCmd.Flags().String("filter", "all", "Quick filter (all, starred, unread, recent)")
	watchCmd.Flags().String("collection", "", "Only show this collection")
	watchCmd.Flags().StringP("search", "s", "", "Only show bookmarks matching this text")
	_ = watchCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	owner, _ := cmd.Flags().GetString("owner")
	rawFilter, _ := cmd.Flags().GetString("filter")
	filter, err := db.ParseFilter(rawFilter)
	if err != nil {
		return err
	}
	collection, _ := cmd.Flags().GetString("collection")
	term, _ := cmd.Flags().GetString("search")
	q := view.Query{Search: term, CollectionID: collection, Filter: filter}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()

	changes := feed.New(cfg.FeedBuffer, log)
	defer changes.Close()
	changes.Attach(database)

	session := view.NewSession(owner, database, changes, view.WithLogger(log))
	defer session.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if err := startRelay(gctx, g, changes, cfg, log); err != nil {
		return err
	}
	g.Go(func() error {
		defer cancel()
		return follow(gctx, cmd.OutOrStdout(), session, q)
	})
	return g.Wait()
}

// follow runs the session and redraws until the session stops or ctx ends.
func follow(ctx context.Context, out io.Writer, s *view.Session, q view.Query) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.Run(gctx)
	})
	g.Go(func() error {
		render(gctx, out, s, q)
		return nil
	})
	return g.Wait()
}

// render reprints the projection whenever the session changes.
func render(ctx context.Context, out io.Writer, s *view.Session, q view.Query) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.Notices():
			fmt.Fprintf(out, "! %s: %s\n", n.Action, n.Message)
		case <-s.Changed():
			printBookmarks(out, s.Bookmarks.Project(q), s.Collections.WithCounts(s.Bookmarks.Snapshot()))
		}
	}
}

func printBookmarks(out io.Writer, bookmarks []db.Bookmark, collections []db.Collection) {
	names := make(map[string]string, len(collections))
	fmt.Fprint(out, "\033[H\033[2J")
	for _, c := range collections {
		names[c.ID] = c.Name
		fmt.Fprintf(out, "[%s %d] ", c.Name, c.Count)
	}
	if len(collections) > 0 {
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "%d bookmarks\n\n", len(bookmarks))

	for _, b := range bookmarks {
		star, unread := " ", " "
		if b.Starred {
			star = "★"
		}
		if b.Unread {
			unread = "●"
		}
		line := fmt.Sprintf("%s%s %s  (%s)", star, unread, b.Title, b.Domain)
		if b.CollectionID != nil {
			line += "  #" + names[*b.CollectionID]
		}
		fmt.Fprintln(out, line)
	}
}

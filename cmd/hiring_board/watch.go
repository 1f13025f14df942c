package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/hiring-board/internal/board"
	"github.com/jonathan/hiring-board/internal/db"
	"github.com/jonathan/hiring-board/internal/observability"
	"github.com/jonathan/hiring-board/internal/views"
)

var (
	watchQuery  string
	watchStatus string
)

var watchCmd = &cobra.Command{
	Use:   "watch <user-id>",
	Short: "Print a recruiter's candidate board as it changes",
	Long: `Open a board session for the user directly against the database and print
the grouped candidate view every time an application or job changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchQuery, "query", "q", "", "Only show candidates matching this name, email or job title")
	watchCmd.Flags().StringVar(&watchStatus, "status", views.StatusAll, "Only show applications with this status")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	principal, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", args[0], err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	sess, err := board.Open(ctx, board.Deps{Store: database, Source: database.Listener()}, principal, boardOptions(cfg))
	if err != nil {
		return err
	}
	defer sess.Close()

	return watchBoard(ctx, cmd.OutOrStdout(), sess, views.Filter{Query: watchQuery, Status: watchStatus})
}

// watchBoard prints the view on start and after every change until ctx is done
func watchBoard(ctx context.Context, out io.Writer, sess *board.Session, filter views.Filter) error {
	live := sess.Watch(filter)
	defer live.Close()

	printer := observability.NewPrinter(out)
	printer.PrintBoard(time.Now(), live.View(), sess.JobStats())
	for {
		select {
		case <-ctx.Done():
			return nil
		case view, ok := <-live.Updates():
			if !ok {
				return nil
			}
			printer.PrintBoard(time.Now(), view, sess.JobStats())
		}
	}
}

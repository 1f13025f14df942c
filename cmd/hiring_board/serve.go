package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/hiring-board/internal/board"
	"github.com/jonathan/hiring-board/internal/config"
	"github.com/jonathan/hiring-board/internal/db"
	"github.com/jonathan/hiring-board/internal/server"
	"github.com/jonathan/hiring-board/internal/server/ratelimit"
)

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that accepts job and application writes and serves
each caller's live board, kept current through Postgres LISTEN/NOTIFY.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT and the config file)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply the schema before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return err
	}
	limits, err := ratelimit.LoadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if serveMigrate {
		if err := database.Migrate(ctx); err != nil {
			return err
		}
	}

	boards := board.NewManager(board.Deps{Store: database, Source: database.Listener()}, boardOptions(cfg))
	srv, err := server.New(server.Config{
		Port:           cfg.Port,
		Store:          database,
		Boards:         boards,
		JWT:            server.NewJWTService(jwtConfig),
		RateLimit:      limits,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dataponto/dataponto-backend/config"
	"github.com/dataponto/dataponto-backend/database"
	"github.com/dataponto/dataponto-backend/services"
	"github.com/dataponto/dataponto-backend/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "dataponto",
		Short: "DATAPONTO notification and deadline backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "Directory holding an optional .env file")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live sessions and change monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "vapid-keys",
		Short: "Print a new VAPID key pair as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := services.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(keys)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the tables and change-log triggers, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			db, err := config.InitDB(conf)
			if err != nil {
				return err
			}
			return database.Migrate(db)
		},
	})

	return cmd
}

func loadConfig(path string) (config.Config, error) {
	// Load .env di awal sebelum apapun
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config.Config{}, fmt.Errorf("load .env: %w", err)
	}
	utils.InitLogger()

	conf, err := config.LoadConfig(path)
	if err != nil {
		return conf, err
	}
	utils.SetDebug(!conf.IsProduction())
	utils.SetJWTSecret(conf.JWTSecret)
	return conf, nil
}

func serve(configPath string) error {
	conf, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if conf.GinMode != "" {
		gin.SetMode(conf.GinMode)
	} else if conf.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(conf)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if conf.DBAutoMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	if len(conf.FunctionKeys()) == 0 {
		utils.ErrorLogger.Warn("No SUPABASE_ANON_KEY or SUPABASE_SERVICE_ROLE_KEY set, /functions/v1 will reject every request")
	}

	app := NewApp(conf, db)
	app.Start()

	srv := &http.Server{
		Addr:              ":" + conf.Port,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.InfoLogger.Printf("Listening on port %s", conf.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		app.Shutdown()
		return err
	case sig := <-quit:
		utils.InfoLogger.Printf("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown
	app.Shutdown()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	utils.InfoLogger.Println("Server stopped")
	return nil
}

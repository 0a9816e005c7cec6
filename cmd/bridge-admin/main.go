package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge/config"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bridge-admin",
		Short: "S3-IPFS bridge admin CLI",
		Long: `Admin tool for the S3-IPFS bridge.

Reads the same environment variables as the server (DATABASE_URL,
S3_BUCKET_NAME, PINATA_JWT, ...). Configuration can be loaded from a
.env file in the current directory.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewTransferInCommand())
	rootCmd.AddCommand(NewSyncCommand())
	rootCmd.AddCommand(NewTransferOutCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewGetCommand())

	return rootCmd
}

// loadRuntime builds the bridge from environment configuration
func loadRuntime(ctx context.Context) (*config.Runtime, error) {
	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg.BuildService(ctx, nil)
}

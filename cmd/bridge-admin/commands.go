package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge/config"
	repopg "github.com/tendant/s3-ipfs-bridge/pkg/bridge/repo/postgres"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge/scan"
	"golang.org/x/sync/errgroup"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the mapping tables",
		Long:  `Create the mapping tables in the schema named by DB_SCHEMA. Requires a postgres DATABASE_URL.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.WithEnv())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.DatabaseType != "postgres" {
				return errors.New("migrate requires a postgres DATABASE_URL")
			}

			pool, err := config.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.DBSchema)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repopg.NewWithPool(pool).EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

// NewTransferInCommand creates the transfer-in command
func NewTransferInCommand() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "transfer-in <s3-key>...",
		Short: "Copy S3 objects to IPFS",
		Long:  `Copy one or more S3 objects to IPFS. Keys that are already mapped are reported as existing.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			results := make([]*bridge.TransferInResult, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(concurrency)
			for i, key := range args {
				g.Go(func() error {
					result, err := rt.Service.TransferIn(ctx, bridge.TransferInRequest{BlobKey: key})
					if err != nil {
						return fmt.Errorf("%s: %w", key, err)
					}
					results[i] = result
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), results)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "S3 KEY\tCID\tSIZE\tSTATUS")
			for _, result := range results {
				status := "transferred"
				if result.Existing {
					status = "existing"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					result.Record.BlobKey, result.Record.ContentID, result.Record.Size, status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "maximum transfers in flight")

	return cmd
}

// NewSyncCommand creates the sync command
func NewSyncCommand() *cobra.Command {
	var (
		prefix      string
		batchSize   int
		concurrency int
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy every S3 object under a prefix to IPFS",
		Long: `Walk the bucket under --prefix and transfer each object to IPFS.
Objects that are already mapped are counted as existing. Failed keys are
reported at the end and do not stop the scan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := scan.New(rt.Service).Scan(cmd.Context(), scan.Options{
				Prefix:      prefix,
				BatchSize:   batchSize,
				Concurrency: concurrency,
				DryRun:      dryRun,
			})
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Found:       %d\n", result.TotalFound)
			fmt.Fprintf(out, "Transferred: %d\n", result.TotalTransferred)
			fmt.Fprintf(out, "Existing:    %d\n", result.TotalExisting)
			fmt.Fprintf(out, "Failed:      %d\n", result.TotalFailed)
			for _, key := range result.FailedKeys {
				fmt.Fprintf(out, "  %s\n", key)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "only keys starting with this prefix")
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "objects listed per request")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "maximum transfers in flight")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be transferred")

	return cmd
}

// NewTransferOutCommand creates the transfer-out command
func NewTransferOutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer-out <cid> <s3-key>",
		Short: "Copy IPFS content to S3",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Service.TransferOut(cmd.Context(), bridge.TransferOutRequest{
				ContentID: args[0],
				BlobKey:   args[1],
			})
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "CID:      %s\n", result.Record.ContentID)
			fmt.Fprintf(out, "S3 key:   %s\n", result.Record.BlobKey)
			fmt.Fprintf(out, "Size:     %d\n", result.Size)
			fmt.Fprintf(out, "ETag:     %s\n", result.ETag)
			fmt.Fprintf(out, "Location: %s\n", result.Location)
			return nil
		},
	}
}

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mappings, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Service.ListMappings(cmd.Context(), bridge.ListMappingsRequest{Page: page, Limit: limit})
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			return writeMappings(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().IntVar(&page, "page", bridge.DefaultPage, "page number")
	cmd.Flags().IntVar(&limit, "limit", bridge.DefaultPageLimit, "records per page")

	return cmd
}

// NewGetCommand creates the get command
func NewGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <mapping-id>",
		Short: "Show one mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			record, err := rt.Service.GetMapping(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), record)
		},
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeMappings(out io.Writer, page *bridge.MappingPage) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tS3 KEY\tCID\tSIZE\tCREATED")
	for _, record := range page.Records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			record.ID, record.BlobKey, record.ContentID, record.Size,
			record.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "\nPage %d of %d (%d total)\n", page.Page, page.Pages, page.Total)
	return w.Flush()
}

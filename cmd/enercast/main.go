package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/enercast/enercast/internal/runner"
	"github.com/enercast/enercast/internal/silver"
)

var (
	// Global flags
	postgresConn string
	redisAddr    string
	sentinel     float64
	verbose      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "enercast",
		Short: "Monthly energy consumption prediction over silver-zone data",
		Long: `Operational CLI for the prediction service: run the modeling
pipeline for a building, inspect the latest persisted results, and manage
the results schema.`,
	}

	rootCmd.PersistentFlags().StringVar(&postgresConn, "postgres", "", "Postgres connection string (required)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address for the shared run lock and degree-day cache")
	rootCmd.PersistentFlags().Float64Var(&sentinel, "sentinel", silver.DefaultSentinel, "Consumption value meaning 'no reading'")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (*silver.PostgresStore, error) {
	if postgresConn == "" {
		return nil, fmt.Errorf("--postgres is required")
	}
	return silver.NewPostgresStore(ctx, postgresConn, sentinel)
}

// runCmd trains and persists one building run.
func runCmd() *cobra.Command {
	var (
		buildingID string
		refStart   string
		refEnd     string
		predStart  string
		predEnd    string
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the prediction pipeline for one building and persist the snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			params := runner.Params{BuildingID: buildingID}
			for _, d := range []struct {
				dst  *time.Time
				flag string
				val  string
			}{
				{&params.RefStart, "ref-start", refStart},
				{&params.RefEnd, "ref-end", refEnd},
				{&params.PredStart, "pred-start", predStart},
				{&params.PredEnd, "pred-end", predEnd},
			} {
				t, err := time.Parse("2006-01-02", d.val)
				if err != nil {
					return fmt.Errorf("--%s must be YYYY-MM-DD: %w", d.flag, err)
				}
				*d.dst = t
			}

			var lock silver.RunLock = silver.NewMemoryLock()
			var dju silver.DegreeDayReader = store
			var rdb *redis.Client
			if redisAddr != "" {
				rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
				defer rdb.Close()
				lock = silver.NewRedisLock(rdb)
				cached, err := silver.NewDegreeDayCache(store, 256, time.Hour, rdb)
				if err != nil {
					return err
				}
				dju = cached
			}

			r := runner.New(store, dju, store, lock, runner.Options{Workers: workers})
			results, err := r.Run(ctx, params)
			if err != nil {
				return err
			}

			fmt.Printf("run %s: %d models, %d prediction rows\n",
				results.RunID, len(results.Models), len(results.Predictions))
			if verbose {
				return printJSON(results)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&buildingID, "building", "", "Building id (required)")
	cmd.Flags().StringVar(&refStart, "ref-start", "", "Reference window start, YYYY-MM-DD")
	cmd.Flags().StringVar(&refEnd, "ref-end", "", "Reference window end, YYYY-MM-DD")
	cmd.Flags().StringVar(&predStart, "pred-start", "", "Prediction window start, YYYY-MM-DD")
	cmd.Flags().StringVar(&predEnd, "pred-end", "", "Prediction window end, YYYY-MM-DD")
	cmd.Flags().IntVar(&workers, "workers", 4, "Training worker pool size")
	cmd.MarkFlagRequired("building")
	cmd.MarkFlagRequired("ref-start")
	cmd.MarkFlagRequired("ref-end")
	cmd.MarkFlagRequired("pred-start")
	cmd.MarkFlagRequired("pred-end")
	return cmd
}

// showCmd prints the latest persisted run of a building.
func showCmd() *cobra.Command {
	var buildingID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the latest persisted run for a building",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := store.LatestRun(ctx, buildingID)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}

	cmd.Flags().StringVar(&buildingID, "building", "", "Building id (required)")
	cmd.MarkFlagRequired("building")
	return cmd
}

// migrateCmd creates or updates the silver results schema.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the silver and results tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("schema up to date")
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

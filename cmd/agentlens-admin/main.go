// agentlens-admin is the operator CLI for tenant data portability
// (§4.6): export a tenant's data as a checksummed NDJSON bundle, or
// import one back. Neither operation is HTTP-exposed — both read
// Postgres directly, the same way cmd/agentlens does, since an
// operator running this already has database access by definition.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentlensio/agentlens/pkg/config"
	"github.com/agentlensio/agentlens/pkg/exportimport"
	"github.com/agentlensio/agentlens/pkg/store/postgres"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func openStore(ctx context.Context, configDir string) (*postgres.Store, error) {
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	dsn := os.Getenv(cfg.Database.DSNEnv)
	if dsn == "" {
		return nil, fmt.Errorf("environment variable %s is required", cfg.Database.DSNEnv)
	}
	return postgres.NewFromDSN(ctx, dsn, cfg.Database.MaxConns, cfg.Database.ConnMaxLifetime.Duration)
}

func parseTimeFlag(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: must be RFC3339: %w", v, err)
	}
	return &t, nil
}

func main() {
	var configDir string

	root := &cobra.Command{
		Use:   "agentlens-admin",
		Short: "Operator tooling for AgentLens tenant data export and import",
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")

	var (
		tenantID   string
		outputPath string
		fromFlag   string
		toFlag     string
	)
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export one tenant's data as a checksummed NDJSON bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			from, err := parseTimeFlag(fromFlag)
			if err != nil {
				return err
			}
			to, err := parseTimeFlag(toFlag)
			if err != nil {
				return err
			}

			st, err := openStore(ctx, configDir)
			if err != nil {
				return err
			}
			defer st.Close()

			lines, err := exportimport.Export(ctx, st, tenantID, exportimport.ExportOptions{From: from, To: to})
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			out := os.Stdout
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				out = f
			}
			w := bufio.NewWriter(out)
			for _, line := range lines {
				if _, err := w.WriteString(line + "\n"); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("flush output: %w", err)
			}
			fmt.Fprintf(os.Stderr, "exported %d lines for tenant %s\n", len(lines), tenantID)
			return nil
		},
	}
	exportCmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID to export (required)")
	exportCmd.Flags().StringVar(&outputPath, "out", "", "Output file path (default: stdout)")
	exportCmd.Flags().StringVar(&fromFlag, "from", "", "Restrict sessions/events to this RFC3339 start time")
	exportCmd.Flags().StringVar(&toFlag, "to", "", "Restrict sessions/events to this RFC3339 end time")
	_ = exportCmd.MarkFlagRequired("tenant")

	var inputPath string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import an NDJSON bundle into a tenant, re-stamping every row with its ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if inputPath == "" {
				return fmt.Errorf("--in is required")
			}
			f, err := os.Open(inputPath)
			if err != nil {
				return fmt.Errorf("open input file: %w", err)
			}
			defer f.Close()

			var lines []string
			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
			for scanner.Scan() {
				line := scanner.Text()
				if line == "" {
					continue
				}
				lines = append(lines, line)
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input file: %w", err)
			}

			st, err := openStore(ctx, configDir)
			if err != nil {
				return err
			}
			defer st.Close()

			result, err := exportimport.Import(ctx, st, tenantID, lines)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			if result.ChecksumValid != nil && !*result.ChecksumValid {
				fmt.Fprintln(os.Stderr, "warning: checksum line did not match bundle contents")
			}
			for recordType, count := range result.Imported {
				fmt.Fprintf(os.Stderr, "%s: %d imported\n", recordType, count)
			}
			for _, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "error: %s\n", e)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("import completed with %d error(s)", len(result.Errors))
			}
			return nil
		},
	}
	importCmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID to import into (required)")
	importCmd.Flags().StringVar(&inputPath, "in", "", "Input NDJSON bundle path (required)")
	_ = importCmd.MarkFlagRequired("tenant")
	_ = importCmd.MarkFlagRequired("in")

	root.AddCommand(exportCmd, importCmd)
	root.SetContext(context.Background())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

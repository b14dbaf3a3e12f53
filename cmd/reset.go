package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/config"
	"github.com/Atyanta/VideoFaceDLFromYt/internal/utils"
)

var (
	resetCatalog   bool
	resetOutput    bool
	resetDownloads bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset pipeline state (catalog, clips and ledger, leftover downloads)",
	Long:  "Clears generated data. By default, it resets everything. Use flags to clear specific components.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetCatalog && !resetOutput && !resetDownloads {
			resetCatalog = true
			resetOutput = true
			resetDownloads = true
		}

		cfg, err := config.Load()
		if err != nil {
			utils.Die("Invalid configuration", err, nil)
		}

		reader := bufio.NewReader(os.Stdin)

		if resetCatalog && cfg.DatabaseURL != "" {
			if confirm(reader, os.Stdout, "⚠️  Are you sure you want to delete all catalogued clips?") {
				fmt.Println("🗑️  Clearing Catalog...")
				s, err := openCatalog(cmd.Context())
				if err != nil {
					utils.Die("Failed to open catalog", err, nil)
				}
				err = s.Reset(cmd.Context())
				s.Close(context.Background())
				if err != nil {
					utils.Die("Failed to reset catalog", err, nil)
				}
			}
		}

		if resetOutput {
			if confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete all clips and the ledger in %s?", cfg.OutputDir)) {
				fmt.Println("🗑️  Clearing Output (Clips, Ledger)...")
				removeDir(cfg.OutputDir)
				removeDir(cfg.LedgerPath)
			}
		}

		if resetDownloads {
			if confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete leftover downloads in %s?", cfg.TempDir)) {
				fmt.Println("🗑️  Clearing Downloads...")
				removeDir(cfg.TempDir)
			}
		}

		fmt.Println("✨ Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetCatalog, "catalog", false, "Clear the PostgreSQL clip catalog")
	resetCmd.Flags().BoolVar(&resetOutput, "output", false, "Clear generated clips and the ledger")
	resetCmd.Flags().BoolVar(&resetDownloads, "downloads", false, "Clear downloads kept by an interrupted run")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/proctor/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB        bool
	resetArtifacts bool
	resetReport    string
	resetShot      string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (enrollment registry, report, screenshot)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetArtifacts {
			resetDB = true
			resetArtifacts = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP the enrollment registry?") {
				db, err := openDB(cmd.Context(), dbURL)
				if err != nil {
					utils.ShowError("Failed to open enrollment registry", err, nil)
					return err
				}
				fmt.Println("🗑️  Clearing Database...")
				err = db.Reset(cmd.Context())
				closeDB(db)
				if err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		if resetArtifacts {
			if confirm(reader, os.Stdout, "⚠️  Are you sure you want to delete the report and screenshot?") {
				fmt.Println("🗑️  Clearing Session Artifacts...")
				removeFile(resetReport)
				removeFile(resetShot)
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "registry", false, "Clear the PostgreSQL enrollment registry")
	resetCmd.Flags().BoolVar(&resetArtifacts, "artifacts", false, "Delete the report and screenshot")
	resetCmd.Flags().StringVar(&resetReport, "report", "report.txt", "Report file to delete")
	resetCmd.Flags().StringVar(&resetShot, "screenshot", "screenshot.png", "Screenshot file to delete")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}

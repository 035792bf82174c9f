package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/andresmejia3/proctor/internal/store"
	"github.com/andresmejia3/proctor/internal/utils"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label <identity_id> <name>",
	Short: "Rename an enrolled identity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		id, err := strconv.Atoi(args[0])
		if err != nil {
			utils.ShowError("Invalid identity ID", err, nil)
			return err
		}
		return runLabel(cmd.Context(), id, args[1])
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func runLabel(ctx context.Context, id int, name string) error {
	db, err := openDB(ctx, dbURL)
	if err != nil {
		utils.ShowError("Failed to open enrollment registry", err, nil)
		return err
	}
	defer closeDB(db)

	if err := db.RenameIdentity(ctx, id, name); err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			utils.ShowError(fmt.Sprintf("No identity with ID %d", id), err, nil)
		} else {
			utils.ShowError("Failed to label identity", err, nil)
		}
		return err
	}

	fmt.Printf("✅ Identity %d labeled as '%s'\n", id, name)
	return nil
}

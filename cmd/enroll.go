package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/proctor/internal/utils"
	"github.com/andresmejia3/proctor/internal/worker"
	"github.com/spf13/cobra"
)

var (
	enrollAs      string
	enrollScript  string
	enrollTimeout time.Duration
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <image_path>",
	Short: "Register a candidate's reference face in the enrollment registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEnroll(cmd.Context(), args[0], enrollAs)
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollAs, "name", "n", "", "Name to store the identity under (default: image file name)")
	enrollCmd.Flags().StringVar(&enrollScript, "worker-script", "python/worker.py", "Path to the inference sidecar")
	enrollCmd.Flags().DurationVar(&enrollTimeout, "worker-timeout", 60*time.Second, "Maximum time to wait for the sidecar")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(ctx context.Context, imagePath, name string) error {
	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		utils.ShowError("Input file does not exist", err, nil)
		return err
	}
	if name == "" {
		name = enrollName(imagePath)
	}

	db, err := openDB(ctx, dbURL)
	if err != nil {
		utils.ShowError("Failed to open enrollment registry", err, nil)
		return err
	}
	defer closeDB(db)

	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	// Encoding never touches the object detector, so no model files are passed
	w, err := worker.NewPythonWorker(ctx, 0, worker.Config{
		Script:      enrollScript,
		ReadTimeout: enrollTimeout,
	})
	if err != nil {
		utils.ShowError("Failed to start AI worker", err, nil)
		return err
	}
	defer w.Close()

	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Encoding face...")
	vec, err := w.Encode(imgData)
	if err != nil {
		utils.ShowError("AI processing failed", err, w.Cmd)
		return err
	}

	id, err := db.CreateIdentity(ctx, name, vec)
	if err != nil {
		utils.ShowError("Failed to store identity", err, nil)
		return err
	}
	fmt.Printf("✅ Enrolled '%s' (ID: %d)\n", name, id)
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/proctor/internal/config"
	"github.com/andresmejia3/proctor/internal/detect"
	"github.com/andresmejia3/proctor/internal/types"
	"github.com/andresmejia3/proctor/internal/utils"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image_path>",
	Short: "Run face identification on a still image against the enrolled set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			utils.ShowError("Invalid configuration", err, nil)
			return err
		}
		return runIdentify(cmd.Context(), args[0], cfg)
	},
}

func init() {
	f := identifyCmd.Flags()
	f.StringSliceP("enroll", "e", nil, "Reference image of an allowed candidate (repeatable)")
	f.Bool("from-db", false, "Also load enrolled identities from the registry")
	f.Float64P("tolerance", "t", 0.6, "Face matching tolerance (lower is stricter)")
	f.String("metric", "euclidean", "Embedding distance metric (euclidean, cosine)")
	f.String("worker-script", "python/worker.py", "Path to the inference sidecar")
	f.Duration("worker-timeout", 60*time.Second, "Maximum time to wait for the sidecar")
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(ctx context.Context, imagePath string, cfg *config.Config) error {
	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		utils.ShowError("Input file does not exist", err, nil)
		return err
	}
	dist, err := detect.Metric(cfg.Metric)
	if err != nil {
		utils.ShowError("Invalid metric", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	// Identification only needs the face models
	cfg.ModelCfg, cfg.ModelWeights = "", ""
	w, err := newWorker(ctx, cfg)
	if err != nil {
		utils.ShowError("Failed to start AI worker", err, nil)
		return err
	}
	defer w.Close()

	var reg enrollmentSource
	if cfg.FromDB {
		db, err := openDB(ctx, cfg.DBURL)
		if err != nil {
			utils.ShowError("Failed to open enrollment registry", err, nil)
			return err
		}
		defer closeDB(db)
		reg = db
	}
	enrolled, err := loadEnrolled(ctx, w, cfg.Enroll, reg)
	if err != nil {
		utils.ShowError("Enrollment failed", err, w.Cmd)
		return err
	}

	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing faces...")
	det := detect.NewIdentityDetector(w, enrolled, cfg.Tolerance, dist)
	faces, err := det.Detect(types.Frame{Data: imgData})
	if err != nil {
		utils.ShowError("AI processing failed", err, w.Cmd)
		return err
	}

	if len(faces) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}

	printMatches(os.Stdout, faces, enrolled, dist)
	return nil
}

// printMatches writes one row per face with its label and the distance to the closest enrolled identity.
func printMatches(out io.Writer, faces []types.FaceObservation, enrolled []types.Identity, dist detect.DistanceFunc) {
	wOut := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(wOut, "FACE\tBOX\tIDENTITY\tCLOSEST DISTANCE")
	fmt.Fprintln(wOut, "----\t---\t--------\t----------------")
	for i, f := range faces {
		fmt.Fprintf(wOut, "%d\t%v\t%s\t%.3f\n", i+1, f.Box, f.Label, closest(f.Embedding, enrolled, dist))
	}
	wOut.Flush()
}

func closest(vec []float64, enrolled []types.Identity, dist detect.DistanceFunc) float64 {
	best := -1.0
	for _, id := range enrolled {
		if d := dist(vec, id.Embedding); best < 0 || d < best {
			best = d
		}
	}
	return best
}

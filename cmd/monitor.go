package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresmejia3/proctor/internal/camera"
	"github.com/andresmejia3/proctor/internal/config"
	"github.com/andresmejia3/proctor/internal/desktop"
	"github.com/andresmejia3/proctor/internal/detect"
	"github.com/andresmejia3/proctor/internal/display"
	"github.com/andresmejia3/proctor/internal/proctor"
	"github.com/andresmejia3/proctor/internal/types"
	"github.com/andresmejia3/proctor/internal/utils"
	"github.com/andresmejia3/proctor/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var errNoEnrollment = errors.New("no enrolled identities: pass --enroll <image> or --from-db")

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start a proctored exam session",
	Long: `Streams the webcam through face identification and prohibited-object detection while
watching the foreground window. The session ends on the first violation and a report is written.
Close the viewer window or press Ctrl+C to stop without a report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			utils.ShowError("Invalid configuration", err, nil)
			return err
		}
		return runMonitor(cmd.Context(), cfg)
	},
}

func init() {
	f := monitorCmd.Flags()
	f.StringSliceP("enroll", "e", nil, "Reference image of an allowed candidate (repeatable)")
	f.Bool("from-db", false, "Also load enrolled identities from the registry")
	f.StringP("camera", "c", "0", "Capture device (index, /dev/videoN or device name)")
	f.String("cfg", "models/yolov3.cfg", "Object detector network configuration")
	f.String("weights", "models/yolov3.weights", "Object detector weights")
	f.String("names", "models/coco.names", "Class names file, one per line")
	f.String("worker-script", "python/worker.py", "Path to the inference sidecar")
	f.Duration("worker-timeout", 30*time.Second, "Maximum time to wait for the sidecar per request")
	f.Float64P("tolerance", "t", 0.6, "Face matching tolerance (lower is stricter)")
	f.String("metric", "euclidean", "Embedding distance metric (euclidean, cosine)")
	f.Float64("confidence", 0.5, "Minimum object detection confidence")
	f.StringSlice("watch", []string{"cell phone"}, "Prohibited object classes")
	f.Duration("phone-delay", 5*time.Second, "How long the disqualification frame is shown before the screenshot")
	f.String("report", "report.txt", "Where the violation report is written")
	f.String("screenshot", "screenshot.png", "Where the phone evidence screenshot is written")
	f.Bool("terminate-on-no-user", false, "End the session when nobody is in front of the camera")
	f.Bool("no-display", false, "Run without the viewer window")
	f.Bool("fullscreen", true, "Show the viewer fullscreen")
	f.Bool("no-progress", false, "Hide the frame counter")
	rootCmd.AddCommand(monitorCmd)
}

// Encoder computes a reference embedding from an enrollment image.
type Encoder interface {
	Encode(image []byte) ([]float64, error)
}

// enrollmentSource is the read side of the registry used at session start.
type enrollmentSource interface {
	LoadEnrollments(ctx context.Context) ([]types.Identity, error)
}

// loadEnrolled builds the enrolled set: images first, in the given order, then registry entries.
// reg may be nil.
func loadEnrolled(ctx context.Context, enc Encoder, paths []string, reg enrollmentSource) ([]types.Identity, error) {
	var out []types.Identity
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read enrollment image %s: %w", p, err)
		}
		vec, err := enc.Encode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode enrollment image %s: %w", p, err)
		}
		out = append(out, types.Identity{ID: i + 1, Name: enrollName(p), Embedding: vec})
	}
	if reg != nil {
		known, err := reg.LoadEnrollments(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, known...)
	}
	if len(out) == 0 {
		return nil, errNoEnrollment
	}
	return out, nil
}

// enrollName turns "photos/jane_doe.jpg" into "jane_doe".
func enrollName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func newWorker(ctx context.Context, cfg *config.Config) (*worker.PythonWorker, error) {
	return worker.NewPythonWorker(ctx, 0, worker.Config{
		Script:      cfg.WorkerScript,
		ModelCfg:    cfg.ModelCfg,
		ModelWeight: cfg.ModelWeights,
		ReadTimeout: cfg.WorkerTimeout,
		Debug:       strings.EqualFold(cfg.LogLevel, "debug"),
	})
}

func runMonitor(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.LogLevel)

	classes, err := detect.LoadClassNames(cfg.ClassNames)
	if err != nil {
		utils.ShowError("Failed to load class names", err, nil)
		return err
	}
	dist, err := detect.Metric(cfg.Metric)
	if err != nil {
		utils.ShowError("Invalid metric", err, nil)
		return err
	}

	// Child processes outlive Ctrl+C so the loop can finish its tick and quit cleanly.
	// They also run in their own process group, so the terminal's SIGINT reaches only us.
	procCtx := context.WithoutCancel(ctx)

	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	w, err := newWorker(procCtx, cfg)
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

	fmt.Fprintln(os.Stderr, "🧑 Loading enrolled identities...")
	enrolled, err := loadEnrolled(ctx, w, cfg.Enroll, reg)
	if err != nil {
		utils.ShowError("Enrollment failed", err, w.Cmd)
		return err
	}

	fmt.Fprintf(os.Stderr, "📷 Opening camera %s...\n", cfg.Camera)
	cam, err := camera.Open(procCtx, cfg.Camera)
	if err != nil {
		utils.ShowError("Failed to open camera", err, nil)
		return err
	}

	var renderer proctor.Renderer = display.Headless{}
	if !cfg.NoDisplay {
		v, err := display.Open(procCtx, "Proctor", cfg.Fullscreen)
		if err != nil {
			cam.Close()
			utils.ShowError("Failed to open viewer", err, nil)
			return err
		}
		renderer = v
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("👁️  Monitoring"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetVisibility(!cfg.NoProgress),
	)

	dt := desktop.New()
	m := proctor.New(proctor.Deps{
		Frames:   cam,
		Faces:    detect.NewIdentityDetector(w, enrolled, cfg.Tolerance, dist),
		Objects:  detect.NewObjectDetector(w, classes, cfg.Watch, cfg.Confidence),
		Titles:   dt,
		Shots:    dt,
		Renderer: renderer,
	}, enrolled, proctor.Options{
		ReportPath:        cfg.ReportPath,
		ScreenshotPath:    cfg.ScreenshotPath,
		PhoneDelay:        cfg.PhoneDelay,
		TerminateOnNoUser: cfg.TerminateOnNoUser,
		Logger:            logger,
		OnTick:            func(proctor.TickOutcome) { _ = bar.Add(1) },
	})
	fmt.Fprintf(os.Stderr, "📼 Session ID: %s (%d enrolled)\n", m.Session().ID, len(enrolled))

	res, err := m.Run(ctx)
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		switch {
		case errors.Is(err, proctor.ErrReportWrite):
			utils.ShowError("Session terminated but the report could not be written", err, nil)
		case errors.Is(err, proctor.ErrCameraFailure):
			utils.ShowError("Failed to grab frame from camera", err, nil)
		default:
			utils.ShowError("Monitoring failed", err, w.Cmd)
		}
		return err
	}

	switch res.Reason {
	case proctor.EndedByViolation:
		fmt.Fprintf(os.Stderr, "⛔ Session terminated: %s\n", res.Cause)
		fmt.Fprintf(os.Stderr, "📝 Report written to %s\n", res.Report)
	case proctor.EndedByQuit:
		fmt.Fprintf(os.Stderr, "👋 Monitoring stopped after %d frames.\n", res.Ticks)
	}
	return nil
}

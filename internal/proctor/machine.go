package proctor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andresmejia3/proctor/internal/detect"
	"github.com/andresmejia3/proctor/internal/display"
	"github.com/andresmejia3/proctor/internal/logging"
	"github.com/andresmejia3/proctor/internal/types"
)

// ErrCameraFailure is fatal: the session ends without a report.
var ErrCameraFailure = errors.New("failed to grab frame from camera")

// FrameSource yields camera frames in capture order.
type FrameSource interface {
	Next() (types.Frame, error)
	Close() error
}

// FaceDetector localizes and identifies faces in a frame.
type FaceDetector interface {
	Detect(frame types.Frame) ([]types.FaceObservation, error)
}

// ObjectDetector returns the watch-listed objects present in a frame.
type ObjectDetector interface {
	Detect(frame types.Frame) ([]types.ObjectDetection, error)
}

// TitleSource reads the title of the foreground window.
type TitleSource interface {
	ActiveTitle(ctx context.Context) (string, error)
}

// Screenshotter captures the foreground window to an image file.
type Screenshotter interface {
	Screenshot(ctx context.Context, path string) error
}

// Renderer shows annotated frames to the candidate.
type Renderer interface {
	Show(frame []byte, ov display.Overlay) error
	Closed() bool
	Close() error
}

// Deps are the collaborators a Machine drives. All of them are required.
type Deps struct {
	Frames   FrameSource
	Faces    FaceDetector
	Objects  ObjectDetector
	Titles   TitleSource
	Shots    Screenshotter
	Renderer Renderer
}

// Options tune the machine. Zero values fall back to sensible defaults.
type Options struct {
	ReportPath        string
	ScreenshotPath    string
	PhoneDelay        time.Duration
	TerminateOnNoUser bool

	Logger *slog.Logger
	Now    func() time.Time
	Sleep  func(time.Duration)
	// OnTick is called after every tick that did not fail.
	OnTick func(TickOutcome)
}

const (
	DefaultReportPath     = "report.txt"
	DefaultScreenshotPath = "screenshot.png"
	DefaultPhoneDelay     = 5 * time.Second
)

// TickOutcome is the result of a single monitoring iteration.
type TickOutcome int

const (
	Continue TickOutcome = iota
	Skipped
	Terminated
)

func (o TickOutcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Terminated:
		return "terminated"
	default:
		return "continue"
	}
}

// EndReason says why Run returned without an error.
type EndReason int

const (
	EndedByViolation EndReason = iota
	EndedByQuit
)

// Result summarises a finished session.
type Result struct {
	Reason EndReason
	Cause  Violation
	Ticks  int
	Report string
}

// Machine is the violation-detection state machine for one session.
type Machine struct {
	deps    Deps
	opts    Options
	session *Session
	log     *slog.Logger
	ticks   int
}

// New wires a machine around a fresh session. enrolled is kept for the session record only,
// matching is done by deps.Faces.
func New(deps Deps, enrolled []types.Identity, opts Options) *Machine {
	if opts.ReportPath == "" {
		opts.ReportPath = DefaultReportPath
	}
	if opts.ScreenshotPath == "" {
		opts.ScreenshotPath = DefaultScreenshotPath
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	s := NewSession(enrolled)
	return &Machine{
		deps:    deps,
		opts:    opts,
		session: s,
		log:     opts.Logger.With("session", s.ID),
	}
}

// Session exposes the machine's session for inspection.
func (m *Machine) Session() *Session {
	return m.session
}

// Run performs the baseline title read and then ticks until the session terminates,
// the user quits, or a fatal error occurs. The frame source and renderer are released
// on every path.
func (m *Machine) Run(ctx context.Context) (Result, error) {
	defer m.release()

	m.Start(ctx)
	m.log.Info("monitoring started", "enrolled", len(m.session.enrolled), "baseline_title", m.session.lastKnownTitle)

	for {
		outcome, err := m.Tick(ctx)
		if err != nil {
			m.log.Error("monitoring aborted", "error", err, "ticks", m.ticks)
			return Result{Ticks: m.ticks}, err
		}
		if m.opts.OnTick != nil {
			m.opts.OnTick(outcome)
		}
		if outcome == Terminated {
			return Result{
				Reason: EndedByViolation,
				Cause:  m.session.cause,
				Ticks:  m.ticks,
				Report: m.opts.ReportPath,
			}, nil
		}
		if m.quitRequested(ctx) {
			m.log.Info("monitoring stopped by user", "ticks", m.ticks)
			return Result{Reason: EndedByQuit, Ticks: m.ticks}, nil
		}
	}
}

// Start records the baseline window title so the first tick does not count the
// terminal that launched us as a switch.
func (m *Machine) Start(ctx context.Context) {
	m.session.lastKnownTitle = m.readTitle(ctx)
}

// Tick runs one iteration. Once the session is terminated every further call reports Terminated.
func (m *Machine) Tick(ctx context.Context) (TickOutcome, error) {
	s := m.session
	if s.state == StateTerminated {
		return Terminated, nil
	}

	frame, err := m.deps.Frames.Next()
	if err != nil {
		return Continue, fmt.Errorf("%w: %v", ErrCameraFailure, err)
	}
	m.ticks++
	log := m.log.With("frame", frame.Seq)

	faces, err := m.deps.Faces.Detect(frame)
	if errors.Is(err, detect.ErrSkipFrame) {
		log.Debug("frame skipped", "error", err)
		return Skipped, nil
	}
	if err != nil {
		return Continue, fmt.Errorf("identity detection: %w", err)
	}

	var fired []Violation
	now := m.opts.Now()

	if len(faces) == 0 {
		s.flags.Set(NoUserDetected)
		if m.opts.TerminateOnNoUser {
			fired = append(fired, NoUserDetected)
		}
	}
	if len(faces) > 1 || (len(faces) == 1 && !faces[0].Matched) {
		s.flags.Set(MultipleOrUnknownUser)
		fired = append(fired, MultipleOrUnknownUser)
		for _, f := range faces {
			if !f.Matched {
				s.recordUnknown(f.Embedding, now)
			}
		}
		log.Warn("multiple or unknown user", "faces", len(faces))
	}

	objects, err := m.deps.Objects.Detect(frame)
	if err != nil {
		return Continue, fmt.Errorf("object detection: %w", err)
	}
	phone := len(objects) > 0
	if phone {
		s.flags.Set(PhoneDetected)
		fired = append(fired, PhoneDetected)
		log.Warn("prohibited object detected", "label", objects[0].Label, "confidence", objects[0].Confidence)
	}

	if ev, changed := s.observeTitle(m.readTitle(ctx)); changed {
		s.flags.Set(WindowSwitched)
		fired = append(fired, WindowSwitched)
		log.Warn("window switched", "from", ev.Previous, "to", ev.Current)
	}

	ov := display.Overlay{Faces: faces, Objects: objects}
	if len(fired) == 0 {
		if err := m.deps.Renderer.Show(frame.Data, ov); err != nil {
			log.Debug("render failed", "error", err)
		}
		return Continue, nil
	}

	return Terminated, m.terminate(ctx, frame, ov, firstInOrder(fired), phone)
}

// terminate is the single exit path for a violation. It ends the session, collects
// phone evidence when needed and writes the report.
func (m *Machine) terminate(ctx context.Context, frame types.Frame, ov display.Overlay, cause Violation, phone bool) error {
	s := m.session
	if !s.terminate(cause) {
		return nil
	}
	m.log.Warn("session terminated", "cause", cause.String())

	if phone {
		ov.Banner = display.PhoneBanner
		if err := m.deps.Renderer.Show(frame.Data, ov); err != nil {
			m.log.Debug("render failed", "error", err)
		}
		m.opts.Sleep(m.opts.PhoneDelay)
		if err := m.deps.Shots.Screenshot(context.WithoutCancel(ctx), m.opts.ScreenshotPath); err != nil {
			m.log.Warn("screenshot failed", "error", err)
		} else {
			m.log.Info("screenshot saved", "path", m.opts.ScreenshotPath)
		}
	}

	report := RenderReport(s.flags, s.unknownUsers, m.opts.Now())
	if err := WriteReport(m.opts.ReportPath, report); err != nil {
		return err
	}
	m.log.Info("report written", "path", m.opts.ReportPath, "violations", len(s.flags.Active()), "unknown_users", len(s.unknownUsers))
	return nil
}

// readTitle never fails: an unreadable title is the empty string. It ignores
// cancellation so that a quit request cannot masquerade as a window switch.
func (m *Machine) readTitle(ctx context.Context) string {
	title, err := m.deps.Titles.ActiveTitle(context.WithoutCancel(ctx))
	if err != nil {
		m.log.Debug("active window title unavailable", "error", err)
		return ""
	}
	return title
}

func (m *Machine) quitRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return m.deps.Renderer.Closed()
}

func (m *Machine) release() {
	if err := m.deps.Frames.Close(); err != nil {
		m.log.Debug("camera close failed", "error", err)
	}
	if err := m.deps.Renderer.Close(); err != nil {
		m.log.Debug("display close failed", "error", err)
	}
}

func firstInOrder(vs []Violation) Violation {
	first := vs[0]
	for _, v := range vs[1:] {
		if v < first {
			first = v
		}
	}
	return first
}

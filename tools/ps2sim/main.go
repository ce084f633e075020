// Command ps2sim runs the kernel's PIC, timer and PS/2 drivers against a
// simulated machine on the host.
//
// With -scenario it replays a YAML script and checks its expectations. With
// -interactive it puts the terminal in raw mode and turns host keystrokes
// into keyboard scancodes and arrow keys into mouse packets, drawing the
// pointer grid after every step. -record saves an interactive session as a
// scenario.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/CodeDestroyer19/universeK/internal/klogparse"
	"github.com/CodeDestroyer19/universeK/internal/render"
	"github.com/CodeDestroyer19/universeK/internal/scenario"
	"github.com/CodeDestroyer19/universeK/kernel/hal/bootcfg"
	"github.com/CodeDestroyer19/universeK/kernel/kfmt"
)

var (
	scenarioFlag    = flag.String("scenario", "", "replay the YAML scenario at this path")
	interactiveFlag = flag.Bool("interactive", false, "drive the simulated devices from the terminal")
	recordFlag      = flag.String("record", "", "write the interactive session to this scenario file")
	progressFlag    = flag.Bool("progress", false, "show a progress bar while replaying")
	drawFlag        = flag.Bool("draw", false, "draw the pointer grid after every replayed step")
	delayFlag       = flag.Duration("delay", 0, "pause between replayed steps")
	stepFlag        = flag.Int("step", 1, "pointer cells moved per arrow key")
	gridFlag        = flag.String("grid", "", "pointer grid as WxH (overrides the scenario)")
	levelFlag       = flag.String("loglevel", "info", "kernel log level: error, warn, info, debug or trace")
	verboseFlag     = flag.Bool("v", false, "log at debug level")
)

var errExpectations = errors.New("scenario expectations not met")

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verboseFlag {
		level = klogparse.LevelTrace
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("ps2sim failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	kernelLevel, ok := kfmt.ParseLevel(*levelFlag)
	if !ok {
		return fmt.Errorf("unknown log level %q", *levelFlag)
	}
	kfmt.SetLevel(kernelLevel)

	fwd := &klogparse.Forwarder{Log: logger.With("source", "kernel")}
	kfmt.SetOutputSink(fwd)
	defer fwd.Flush()

	switch {
	case *scenarioFlag != "" && *interactiveFlag:
		return errors.New("-scenario and -interactive are mutually exclusive")
	case *scenarioFlag != "":
		return replay(logger, fwd, *scenarioFlag)
	case *interactiveFlag:
		return interactive(logger, fwd)
	default:
		flag.Usage()
		return errors.New("one of -scenario or -interactive is required")
	}
}

func cmdLine(sc *scenario.Scenario) map[string]string {
	args := make(map[string]string, len(sc.CmdLine)+1)
	for k, v := range sc.CmdLine {
		args[k] = v
	}
	if *gridFlag != "" {
		args["mouse.grid"] = *gridFlag
	}
	return args
}

func frame(s *scenario.Session, status string) render.Frame {
	r := s.Snapshot()
	f := render.Frame{
		Width:   s.Config.GridWidth,
		Height:  s.Config.GridHeight,
		X:       r.Pointer.X,
		Y:       r.Pointer.Y,
		Buttons: r.Buttons,
		Text:    r.Text,
		Status:  status,
	}
	if s.Mouse == nil {
		f.X = -1
	}
	return f
}

func replay(logger *slog.Logger, log io.Writer, path string) error {
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}
	sc.CmdLine = cmdLine(sc)

	logger.Info("replaying scenario", "name", sc.Name, "steps", len(sc.Steps))

	var bar *progressbar.ProgressBar
	if *progressFlag {
		bar = progressbar.Default(int64(len(sc.Steps)), sc.Name)
	}

	s, err := scenario.Run(sc, log, func(i int, s *scenario.Session) {
		if bar != nil {
			_ = bar.Add(1)
		}
		if *drawFlag {
			f := frame(s, fmt.Sprintf("%s: step %d/%d", sc.Name, i+1, len(sc.Steps)))
			_ = render.Draw(os.Stdout, f)
		}
		if *delayFlag > 0 {
			time.Sleep(*delayFlag)
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if *drawFlag && s != nil {
		_ = render.Restore(os.Stdout, frame(s, "").Rows())
	}
	if err != nil {
		return err
	}

	result := s.Snapshot()
	failures := sc.Expect.Check(result)
	for _, failure := range failures {
		logger.Error("expectation failed", "scenario", sc.Name, "detail", failure)
	}
	if len(failures) != 0 {
		return errExpectations
	}

	logger.Info("scenario passed", "name", sc.Name,
		"pointer_x", result.Pointer.X, "pointer_y", result.Pointer.Y,
		"text", result.Text, "ticks", result.Ticks)
	return nil
}

func interactive(logger *slog.Logger, log io.Writer) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("-interactive requires a terminal on stdin")
	}

	args := map[string]string{}
	if *gridFlag != "" {
		args["mouse.grid"] = *gridFlag
	} else if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && h > 2 {
		args["mouse.grid"] = fmt.Sprintf("%dx%d", w, h-2)
	}

	s, err := scenario.Boot(bootcfg.Parse(args), log)
	if err != nil {
		return err
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enable raw mode: %w", err)
	}

	recorded, loopErr := inputLoop(s, os.Stdin, os.Stdout)

	_ = render.Restore(os.Stdout, frame(s, "").Rows())
	if err := term.Restore(fd, oldState); err != nil {
		logger.Warn("could not restore terminal", "error", err)
	}
	if loopErr != nil {
		return loopErr
	}

	logger.Info("session ended", "steps", len(recorded))
	if *recordFlag == "" || len(recorded) == 0 {
		return nil
	}
	return record(s, args, recorded, *recordFlag)
}

// inputLoop applies host input to s until the user quits or in is closed.
// It returns the applied steps.
func inputLoop(s *scenario.Session, in io.Reader, out io.Writer) ([]scenario.Step, error) {
	const help = "arrows move, ^B clicks, ^L caps lock, ^C quits"

	var (
		recorded []scenario.Step
		pending  []byte
		buf      = make([]byte, 64)
	)

	if err := render.Draw(out, frame(s, help)); err != nil {
		return nil, err
	}

	for {
		n, err := in.Read(buf)
		if n > 0 {
			steps, rest, quit := decodeHostInput(append(pending, buf[:n]...), *stepFlag)
			pending = append(pending[:0], rest...)

			// one frame per step so that a click shows the pressed
			// pointer before the release
			for _, st := range steps {
				if err := s.Apply(st); err != nil {
					return recorded, err
				}
				recorded = append(recorded, st)

				r := s.Snapshot()
				status := fmt.Sprintf("(%d, %d) leds 0x%02x | %s", r.Pointer.X, r.Pointer.Y, r.LEDs, help)
				if err := render.Draw(out, frame(s, status)); err != nil {
					return recorded, err
				}
			}
			if quit {
				return recorded, nil
			}
		}
		if errors.Is(err, io.EOF) {
			return recorded, nil
		}
		if err != nil {
			return recorded, err
		}
	}
}

// record writes the steps as a scenario whose expectations are the state
// reached at the end of the session.
func record(s *scenario.Session, args map[string]string, steps []scenario.Step, path string) error {
	r := s.Snapshot()
	sc := &scenario.Scenario{
		Name:        "recorded",
		Description: "recorded with ps2sim -interactive on " + time.Now().Format(time.RFC3339),
		CmdLine:     args,
		Steps:       steps,
		Expect: scenario.Expectation{
			Pointer: &r.Pointer,
			Text:    &r.Text,
			LEDs:    &r.LEDs,
		},
	}

	data, err := sc.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}

	slog.Info("recorded scenario", "path", path, "steps", len(steps))
	return nil
}

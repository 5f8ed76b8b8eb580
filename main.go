package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"lid/cmd"
	"lid/internal/audio"
	"lid/internal/classifier"
	"lid/internal/config"
	applog "lid/internal/log"
	"lid/internal/metrics"
	"lid/internal/pipeline"
	"lid/internal/transport"
	"lid/internal/transport/udp"
	"lid/internal/tui"
	"lid/pkg/build"
)

// main is the entry point of the language identifier.
// The program flow is divided into three phases:
//
// 1. Startup:
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Load the model, open devices, build the pipeline and its sinks
//
// 2. Running:
//   - The TUI (or, headless, detection started at once) drives the controller
//   - Capture, inference and playback run on their own goroutines
//
// 3. Shutdown:
//   - Quit key, termination signal or end of file input
//   - Close the pipeline, the sinks and PortAudio
func main() {
	// ==================== STARTUP ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("build info incomplete: %v", err)
	}

	cfg, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if cfg == nil {
		return // help or version
	}
	setupLogging(cfg)

	// One-off commands don't need the pipeline.
	switch cfg.Command {
	case "list":
		err = runList()
	case "classify":
		err = runClassify(cfg, cfg.Args[0])
	default:
		err = run(cfg)
	}
	if err != nil {
		applog.Fatalf("%v", err)
	}
}

func setupLogging(cfg *config.Config) {
	level, ok := applog.ParseLevel(cfg.LogLevel)
	if !ok {
		applog.Warnf("unknown log level %q, using info", cfg.LogLevel)
	}
	applog.SetLevel(level)
}

func runList() error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices(os.Stdout)
}

func classifierOptions(cfg *config.Config) (classifier.Options, error) {
	device, err := classifier.ParseDevice(cfg.Model.Device)
	if err != nil {
		return classifier.Options{}, err
	}
	return classifier.Options{
		Device:       device,
		Threads:      cfg.Threads(runtime.NumCPU()),
		Labels:       cfg.Model.Labels,
		SampleRate:   int(cfg.Audio.SampleRate),
		InputSeconds: cfg.Model.InputSeconds,
	}, nil
}

// runClassify scores the first model window of a WAV file, zero-padded when
// the file is shorter.
func runClassify(cfg *config.Config, path string) error {
	opts, err := classifierOptions(cfg)
	if err != nil {
		return err
	}
	clf, err := classifier.Load(cfg.Model.Path, opts)
	if err != nil {
		return err
	}
	defer clf.Close()

	samples, rate, err := audio.ReadWAV(path)
	if err != nil {
		return err
	}
	if rate != int(cfg.Audio.SampleRate) {
		applog.Warnf("%s is %d Hz, model expects %.0f Hz", filepath.Base(path), rate, cfg.Audio.SampleRate)
	}

	input := make([]float32, clf.InputLength())
	copy(input, samples)
	scores, err := clf.Classify(context.Background(), input)
	if err != nil {
		return err
	}
	ranked, err := classifier.Rank(clf.Labels(), scores)
	if err != nil {
		return err
	}
	fmt.Print(ranked.String())
	return nil
}

// openDevices returns the capture and playback devices. A file input replaces
// the microphone and renders playback into WAV files, so PortAudio is not
// needed; closeFn releases PortAudio when it was initialized.
func openDevices(cfg *config.Config) (in audio.Input, out audio.Output, closeFn func(), err error) {
	closeFn = func() {}

	if cfg.InputFile != "" {
		in, err = audio.OpenWAVInput(cfg.InputFile, int(cfg.Audio.SampleRate), audio.WAVInputOptions{Realtime: true})
		if err != nil {
			return nil, nil, closeFn, err
		}
		out = audio.NewWAVOutput(cfg.Recording.OutputDir, int(cfg.Audio.SampleRate), cfg.Recording.BitDepth)
		return in, out, closeFn, nil
	}

	if err := audio.Initialize(); err != nil {
		return nil, nil, closeFn, err
	}
	closeFn = func() {
		if err := audio.Terminate(); err != nil {
			applog.Warnf("%v", err)
		}
	}

	stream := audio.StreamConfig{
		DeviceID:        cfg.Audio.InputDevice,
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.ChunkLen(),
		LowLatency:      cfg.Audio.LowLatency,
	}
	pin, err := audio.OpenInput(stream)
	if err != nil {
		closeFn()
		return nil, nil, func() {}, err
	}

	stream.DeviceID = cfg.Audio.OutputDevice
	pout, err := audio.OpenOutput(stream)
	if err != nil {
		pin.Close()
		closeFn()
		return nil, nil, func() {}, err
	}
	return pin, pout, closeFn, nil
}

// openTransports builds the optional result outputs.
func openTransports(cfg *config.Config, labels []string) (*transport.Fanout, error) {
	fanout := transport.NewFanout()
	if cfg.Headless {
		fanout.Add(transport.NewLoggingTransport())
	}

	if cfg.Transport.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress)
		if err != nil {
			fanout.Close()
			return nil, err
		}
		fanout.Add(ws)
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			fanout.Close()
			return nil, err
		}
		pub, err := udp.NewResultPublisher(sender, labels)
		if err != nil {
			sender.Close()
			fanout.Close()
			return nil, err
		}
		fanout.Add(pub)
	}
	return fanout, nil
}

func run(cfg *config.Config) (err error) {
	m := metrics.NewMetrics()
	if cfg.Metrics.Enabled {
		srv := m.Serve(cfg.Metrics.Address)
		defer srv.Close()
	}

	// A model that fails to load is not fatal: the pipeline still records,
	// plays back and saves, and the error is shown when detection starts.
	var (
		clf      classifier.Classifier
		modelErr error
		labels   = cfg.Model.Labels
	)
	opts, err := classifierOptions(cfg)
	if err != nil {
		return err
	}
	policy, err := pipeline.ParsePolicy(cfg.Inference.Policy)
	if err != nil {
		return err
	}
	if spectral, err := classifier.Load(cfg.Model.Path, opts); err != nil {
		modelErr = err
		applog.Errorf("%v", err)
	} else {
		clf = spectral
		labels = spectral.Labels()
	}

	in, out, closeDevices, err := openDevices(cfg)
	if err != nil {
		if clf != nil {
			clf.Close()
		}
		return err
	}
	defer closeDevices()

	sinks, err := openTransports(cfg, labels)
	if err != nil {
		in.Close()
		out.Close()
		if clf != nil {
			clf.Close()
		}
		return err
	}
	defer sinks.Close()

	ctrl, err := pipeline.NewController(pipeline.Deps{
		Input:      in,
		Output:     out,
		Classifier: clf,
		ModelErr:   modelErr,
		Labels:     labels,
		Sink:       sinks,
		Policy:     policy,
		Gate:       audio.NewGate(cfg.Inference.GateThreshold),
		Metrics:    m,
		ChunkLen:   cfg.ChunkLen(),
		MaxChunks:  cfg.MaxChunks(),
		ModelLen:   cfg.ModelLen(),
		SampleRate: int(cfg.Audio.SampleRate),
		BitDepth:   cfg.Recording.BitDepth,
		OutputDir:  cfg.Recording.OutputDir,
	})
	if err != nil {
		in.Close()
		out.Close()
		if clf != nil {
			clf.Close()
		}
		return err
	}
	defer func() {
		err = errors.Join(err, ctrl.Close())
	}()

	// ==================== RUNNING ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Headless {
		return runHeadless(ctx, cfg, ctrl)
	}
	return runTUI(ctx, cfg, ctrl, sinks)
}

func runHeadless(ctx context.Context, cfg *config.Config, ctrl *pipeline.Controller) error {
	// A file input ends the session; the microphone runs until a signal.
	ended := make(chan struct{})
	if cfg.InputFile != "" {
		ctrl.Subscribe(func(st pipeline.Status) {
			if st.Session != "" && st.Capture == audio.Stopped && !st.InferenceEnabled {
				select {
				case <-ended:
				default:
					close(ended)
				}
			}
		})
	}
	ctrl.OnPlaybackDone(func(err error) {
		if err != nil {
			applog.Errorf("%v", err)
		}
	})

	if err := ctrl.StartCapture(); err != nil {
		return err
	}
	applog.Infof("detecting, press Ctrl+C to stop")

	select {
	case <-ctx.Done():
		applog.Infof("received termination signal, shutting down")
	case <-ended:
		applog.Infof("input file finished")
	}
	return ctrl.StopCapture()
}

func runTUI(ctx context.Context, cfg *config.Config, ctrl *pipeline.Controller, sinks *transport.Fanout) error {
	// Log lines would corrupt the screen; send them to a file instead.
	if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
		return err
	}
	logFile, err := tea.LogToFile(filepath.Join(cfg.Recording.OutputDir, "lid.log"), "")
	if err != nil {
		return err
	}
	defer logFile.Close()
	applog.SetOutput(logFile)
	defer applog.SetOutput(os.Stderr)

	info := build.GetBuildFlags()
	p := tea.NewProgram(
		tui.NewModel(ctrl, fmt.Sprintf("%s %s", info.Name, info.Version)),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	sinks.Add(tui.NewSink(p))
	ctrl.Subscribe(tui.StatusListener(p))
	ctrl.OnPlaybackDone(tui.PlaybackListener(p))

	// A signal cancels ctx, which kills the program; that is a normal exit.
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

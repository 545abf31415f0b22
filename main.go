package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/mode"
	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/pipeline"
	"github.com/khaledhikmat/vs-sentry/service/alert"
	"github.com/khaledhikmat/vs-sentry/service/capture"
	"github.com/khaledhikmat/vs-sentry/service/config"
	"github.com/khaledhikmat/vs-sentry/service/data"
	"github.com/khaledhikmat/vs-sentry/service/inference"
	"github.com/khaledhikmat/vs-sentry/service/lgr"
	"github.com/khaledhikmat/vs-sentry/service/live"
	"github.com/khaledhikmat/vs-sentry/service/opencv"
	"github.com/khaledhikmat/vs-sentry/service/storage"
)

const (
	// WARNING: this has to be bigger than the mode processor shutdown time
	waitOnShutdown = 8 * time.Second

	replayPrefix = "dir:"
)

var modeProcessors = map[string]mode.Processor{
	"watch": mode.Watch,
	"probe": mode.NewProbe(os.Stdout),
	"chime": mode.Chime,
}

func main() {
	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			lgr.Logger.Warn("error loading .env file", slog.Any("error", xerrors.New(err.Error())))
		}
	}

	app := &cli.App{
		Name:      "vs-sentry",
		Usage:     "watch a camera and react whenever more people show up",
		ArgsUsage: "[watch|probe|chime]",
		Flags:     flags(),
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		lgr.Logger.Error("vs-sentry exited with an error", slog.Any("error", err))
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "beep", Aliases: []string{"b"}, Usage: "alert when someone new is detected", EnvVars: []string{"VS_BEEP"}},
		&cli.BoolFlag{Name: "save", Aliases: []string{"s"}, Usage: "save each frame with a new detection", EnvVars: []string{"VS_SAVE"}},
		&cli.StringFlag{Name: "camera", Aliases: []string{"c"}, Usage: "camera index, stream URL, video file or dir:<folder> of images", EnvVars: []string{"VS_CAMERA"}},
		&cli.IntFlag{Name: "delay", Aliases: []string{"d"}, Usage: "seconds between checks", EnvVars: []string{"VS_DELAY"}},
		&cli.IntFlag{Name: "rotate", Aliases: []string{"r"}, Usage: "number of anticlockwise quarter turns (0..3)", EnvVars: []string{"VS_ROTATE"}},
		&cli.Float64Flag{Name: "threshold", Aliases: []string{"t"}, Usage: "detection threshold, higher is stricter", EnvVars: []string{"VS_THRESHOLD"}},
		&cli.StringFlag{Name: "config", Usage: "YAML settings file", EnvVars: []string{"VS_CONFIG"}},
		&cli.StringFlag{Name: "detector", Usage: "hog or dnn", EnvVars: []string{"VS_DETECTOR"}},
		&cli.StringFlag{Name: "model", Usage: "dnn model weights", EnvVars: []string{"VS_MODEL"}},
		&cli.StringFlag{Name: "model-config", Usage: "dnn model config", EnvVars: []string{"VS_MODEL_CONFIG"}},
		&cli.BoolFlag{Name: "display", Usage: "show frames in a window, q stops", EnvVars: []string{"VS_DISPLAY"}},
		&cli.StringFlag{Name: "record", Usage: "record annotated frames to this AVI file", EnvVars: []string{"VS_RECORD"}},
		&cli.StringFlag{Name: "serve-addr", Usage: "serve live frames over websockets on this address", EnvVars: []string{"VS_SERVE_ADDR"}},
		&cli.StringFlag{Name: "webhook-url", Usage: "POST every transition to this URL", EnvVars: []string{"VS_WEBHOOK_URL"}},
		&cli.StringFlag{Name: "mqtt-broker", Usage: "publish every transition to this MQTT broker", EnvVars: []string{"VS_MQTT_BROKER"}},
		&cli.StringFlag{Name: "events-db", Usage: "sqlite journal of transitions, stats and errors", EnvVars: []string{"VS_EVENTS_DB"}},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", EnvVars: []string{"VS_LOG_LEVEL"}},
	}
}

// loadSettings layers defaults, the optional YAML file and the flags that
// were actually given.
func loadSettings(c *cli.Context) (config.Settings, error) {
	s := config.Defaults()

	if path := c.String("config"); path != "" {
		if err := config.LoadFile(path, &s); err != nil {
			return s, err
		}
	}

	if c.IsSet("beep") {
		s.Alert = c.Bool("beep")
	}
	if c.IsSet("save") {
		s.Save = c.Bool("save")
	}
	if c.IsSet("camera") {
		s.Camera = c.String("camera")
	}
	if c.IsSet("delay") {
		s.DelaySeconds = c.Int("delay")
	}
	if c.IsSet("rotate") {
		r, err := model.RotationFromQuarterTurns(c.Int("rotate"))
		if err != nil {
			return s, err
		}
		s.Rotation = r
	}
	if c.IsSet("threshold") {
		s.Threshold = c.Float64("threshold")
	}
	if c.IsSet("detector") {
		s.Detector.Kind = c.String("detector")
	}
	if c.IsSet("model") {
		s.Detector.ModelPath = c.String("model")
	}
	if c.IsSet("model-config") {
		s.Detector.ConfigPath = c.String("model-config")
	}
	if c.IsSet("display") {
		s.Live.Display = c.Bool("display")
	}
	if c.IsSet("record") {
		s.Live.RecordPath = c.String("record")
	}
	if c.IsSet("serve-addr") {
		s.Live.ServeAddr = c.String("serve-addr")
	}
	if c.IsSet("webhook-url") {
		s.Notifier.WebhookURL = c.String("webhook-url")
	}
	if c.IsSet("mqtt-broker") {
		s.Notifier.MQTTBroker = c.String("mqtt-broker")
	}
	if c.IsSet("events-db") {
		s.EventsDB = c.String("events-db")
	}
	if c.IsSet("log-level") {
		s.Log.Level = c.String("log-level")
	}

	return s, nil
}

func run(c *cli.Context) error {
	modeType := "watch"
	if c.Args().Len() > 0 {
		modeType = c.Args().First()
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		return xerrors.Errorf("invalid mode %q", modeType)
	}

	settings, err := loadSettings(c)
	if err != nil {
		return err
	}

	logCfg := settings.Log
	logCloser := lgr.Init(lgr.Options{
		Level:      logCfg.Level,
		File:       logCfg.File,
		MaxSizeMB:  logCfg.MaxSizeMB,
		MaxBackups: logCfg.MaxBackups,
		MaxAgeDays: logCfg.MaxAgeDays,
	})
	defer logCloser.Close()

	cfgSvc, err := config.New(settings)
	if err != nil {
		return err
	}

	canxCtx, canxFn := context.WithCancel(c.Context)
	defer canxFn()

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			lgr.Logger.Info(
				"received kill signal",
				slog.Any("signal", sig),
			)
			canxFn()
		case <-canxCtx.Done():
		}
	}()

	svcs, opts, closer, err := newServices(modeType, cfgSvc)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer(); err != nil {
			lgr.Logger.Error("error closing services", slog.Any("error", err))
		}
	}()

	// Start the mode processor
	modeProcResult := make(chan error, 1)
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, opts...)
	}()

	select {
	case err := <-modeProcResult:
		return modeExit(modeType, err)

	case <-canxCtx.Done():
		lgr.Logger.Info(
			"vs-sentry context cancelled",
		)
	}

	// Give the mode processor a bounded time to wrap up
	lgr.Logger.Info(
		"vs-sentry is waiting for the mode processor to exit",
	)

	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Info(
			"vs-sentry shutdown waiting period expired. Exiting now",
			slog.Duration("period", waitOnShutdown),
		)
		return xerrors.Errorf("%s mode did not exit within %s", modeType, waitOnShutdown)

	case err := <-modeProcResult:
		return modeExit(modeType, err)
	}
}

func modeExit(modeType string, err error) error {
	if err != nil {
		return xerrors.Errorf("%s mode: %w", modeType, err)
	}
	lgr.Logger.Info("vs-sentry mode processor exited", slog.String("mode", modeType))
	return nil
}

// newServices builds the services the mode needs from the settings. The
// returned closer releases the services no processor owns.
func newServices(modeType string, cfgSvc config.IService) (pipeline.ServicesFactory, []pipeline.Option, func() error, error) {
	svcs := pipeline.ServicesFactory{
		CfgSvc: cfgSvc,
	}
	opts := []pipeline.Option{}
	closers := []func() error{}

	closer := func() error {
		var err error
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
		return err
	}

	fail := func(err error) (pipeline.ServicesFactory, []pipeline.Option, func() error, error) {
		return svcs, nil, nil, multierr.Append(err, closer())
	}

	// Data service
	if db := cfgSvc.GetEventsDB(); db != "" {
		dataSvc, err := data.NewSqliteDB(db)
		if err != nil {
			return fail(err)
		}
		svcs.DataSvc = dataSvc
	} else {
		svcs.DataSvc = data.NewFilesDB(cfgSvc)
	}
	closers = append(closers, svcs.DataSvc.Close)

	// Alert service: the audible chime, only when alerts are on or being
	// checked
	alertSvc, err := alert.NewAudible(cfgSvc, os.Stdout, modeType == "chime")
	if err != nil {
		return fail(err)
	}
	if alertSvc != nil {
		svcs.AlertSvc = alertSvc
	}

	// Notify service: webhooks hear every rising edge
	notifySvc, webhookSvcs, err := alert.NewNotifier(cfgSvc)
	for _, w := range webhookSvcs {
		closers = append(closers, w.Close)
	}
	if err != nil {
		return fail(err)
	}
	if notifySvc != nil {
		svcs.NotifySvc = notifySvc
	}

	if modeType == "chime" {
		return svcs, opts, closer, nil
	}

	// Storage service
	storageSvc, err := storage.NewDisk(cfgSvc.GetLatestPath(), cfgSvc.GetRecordingsFolder())
	if err != nil {
		return fail(err)
	}
	svcs.StorageSvc = storageSvc

	// Capture service, closed by the processor
	captureSvc, err := newCapture(cfgSvc.GetCamera())
	if err != nil {
		return fail(err)
	}
	svcs.CaptureSvc = captureSvc

	// Inference service, closed by the processor
	inferenceSvc, err := newDetector(cfgSvc.GetDetectorParameters())
	if err != nil {
		return fail(multierr.Append(err, captureSvc.Close()))
	}
	svcs.InferenceSvc = inferenceSvc

	if modeType != "watch" {
		return svcs, opts, closer, nil
	}

	// Live outputs, closed by the watcher
	liveCfg := cfgSvc.GetLiveParameters()
	sinks := []live.IService{}
	if liveCfg.Display {
		window := opencv.NewWindow("vs-sentry")
		sinks = append(sinks, window)
		opts = append(opts, pipeline.WithStopSignal(window))
	}
	if liveCfg.RecordPath != "" {
		sinks = append(sinks, opencv.NewRecorder(liveCfg.RecordPath, liveCfg.RecordFPS))
	}
	if liveCfg.ServeAddr != "" {
		b := live.NewBroadcaster(liveCfg.ServeAddr)
		if err := b.Start(); err != nil {
			return fail(multierr.Combine(err, captureSvc.Close(), inferenceSvc.Close()))
		}
		lgr.Logger.Info("serving live frames", slog.String("addr", liveCfg.ServeAddr))
		sinks = append(sinks, b)
	}
	switch len(sinks) {
	case 0:
	case 1:
		svcs.LiveSvc = sinks[0]
	default:
		svcs.LiveSvc = live.NewMulti(sinks...)
	}

	return svcs, opts, closer, nil
}

func newCapture(selector string) (capture.IService, error) {
	if strings.HasPrefix(selector, replayPrefix) {
		return capture.NewReplay(strings.TrimPrefix(selector, replayPrefix))
	}
	return opencv.NewCamera(selector)
}

func newDetector(params config.DetectorParameters) (inference.IService, error) {
	switch params.Kind {
	case config.DetectorDNN:
		return opencv.NewDNN(params.ModelPath, params.ConfigPath, params.PersonClassID)
	case config.DetectorHOG:
		return opencv.NewHOG()
	}
	return nil, xerrors.Errorf("invalid detector kind %q", params.Kind)
}

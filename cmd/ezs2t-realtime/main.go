package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.design/x/hotkey/mainthread"
	"golang.org/x/sync/errgroup"

	"github.com/yok-tottii/EzS2T-Realtime/internal/api"
	"github.com/yok-tottii/EzS2T-Realtime/internal/audio"
	"github.com/yok-tottii/EzS2T-Realtime/internal/clipboard"
	"github.com/yok-tottii/EzS2T-Realtime/internal/config"
	"github.com/yok-tottii/EzS2T-Realtime/internal/hotkey"
	"github.com/yok-tottii/EzS2T-Realtime/internal/i18n"
	"github.com/yok-tottii/EzS2T-Realtime/internal/journal"
	"github.com/yok-tottii/EzS2T-Realtime/internal/logger"
	"github.com/yok-tottii/EzS2T-Realtime/internal/notification"
	"github.com/yok-tottii/EzS2T-Realtime/internal/observe"
	"github.com/yok-tottii/EzS2T-Realtime/internal/permissions"
	"github.com/yok-tottii/EzS2T-Realtime/internal/realtime"
	"github.com/yok-tottii/EzS2T-Realtime/internal/recording"
	"github.com/yok-tottii/EzS2T-Realtime/internal/search"
	"github.com/yok-tottii/EzS2T-Realtime/internal/server"
	"github.com/yok-tottii/EzS2T-Realtime/internal/tray"
	"github.com/yok-tottii/EzS2T-Realtime/internal/turn"
	"github.com/yok-tottii/EzS2T-Realtime/internal/wizard"
)

const version = "0.1.0"

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

// App holds all application state
type App struct {
	log        *slog.Logger
	fileConfig *config.Config // persisted settings, no environment secrets
	config     *config.Config // runtime settings
	configPath string
	quit       context.CancelFunc

	translator *i18n.Translator
	notifier   *notification.NotificationManager
	clipboard  *clipboard.Manager
	copyOnTurn atomic.Bool
	status     *api.Status
	wizard     *wizard.SetupWizard
	perms      *permissions.PermissionChecker

	driver     *audio.PortAudioDriver
	stop       *turn.Stop
	runner     *turn.Runner
	hotkeyMgr  *hotkey.Manager
	httpServer *server.Server
	trayMgr    *tray.Manager
}

func init() {
	// macOS needs the main thread for the tray and the hotkey event loop
	runtime.LockOSThread()
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.GetConfigPath(), "path to config.yaml")
	envFile := flag.String("env", ".env", "dotenv file with credentials")
	mode := flag.String("mode", "", "override the mode: reply, search or typed-search")
	listDevices := flag.Bool("list-devices", false, "list audio devices and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("ezs2t-realtime", version)
		return exitOK
	}

	config.LoadEnv(*envFile)

	fileCfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitConfig
	}
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		fileCfg.UILanguage = string(i18n.DetectSystemLanguage())
	}

	cfg := fileCfg.Clone()
	cfg.ApplyEnv()
	if *mode != "" {
		cfg.Mode = *mode
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return exitConfig
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(cfg.Log.Level)
	logCfg.RetentionDays = cfg.Log.RetentionDays
	if cfg.Log.Dir != "" {
		logCfg.LogDir = cfg.Log.Dir
	}
	if cfg.Log.Console {
		logCfg.Console = os.Stderr
	}
	lg, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return exitFailed
	}
	defer lg.Close()
	slog.SetDefault(lg.Slog())

	app := &App{
		log:        lg.Slog(),
		fileConfig: fileCfg,
		config:     cfg,
		configPath: *configPath,
	}
	return app.start(*listDevices)
}

func (a *App) start(listDevices bool) int {
	cfg := a.config
	a.log.Info("EzS2T-Realtime starting", "version", version, "mode", cfg.Mode, "config", a.configPath)

	translator, err := i18n.NewDefault(i18n.Language(cfg.UILanguage))
	if err != nil {
		a.log.Error("failed to load translations", "err", err)
		return exitFailed
	}
	a.translator = translator
	i18n.GlobalTranslator = translator

	a.notifier = notification.NewNotificationManager(config.AppName)
	a.notifier.SetEnabled(cfg.UI.Notifications)

	a.driver, err = audio.NewPortAudioDriver()
	if err != nil {
		a.log.Error("failed to initialize PortAudio", "err", err)
		return exitFailed
	}
	defer a.driver.Close()

	if listDevices {
		return a.printDevices()
	}

	if err := cfg.ValidateCredentials(); err != nil {
		a.log.Error("missing credentials", "err", err)
		fmt.Fprintln(os.Stderr, i18n.T("error.missing_credentials"))
		return exitConfig
	}

	a.wizard, err = wizard.NewSetupWizard(a.configPath)
	if err != nil {
		a.log.Warn("setup wizard unavailable", "err", err)
	} else if created, err := a.wizard.EnsureConfig(a.fileConfig); err != nil {
		a.log.Warn("failed to write initial config", "err", err)
	} else if created {
		a.log.Info("wrote initial config", "path", a.configPath)
	}

	a.perms = permissions.NewPermissionChecker()
	if cfg.Mode != config.ModeTypedSearch && !a.perms.IsMicrophoneAuthorized() {
		a.log.Warn("microphone permission not granted")
		a.notify(a.notifier.MicrophonePermissionDenied())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	a.quit = cancel

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		a.log.Warn("telemetry disabled", "err", err)
	} else {
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			if err := shutdownTelemetry(sctx); err != nil {
				a.log.Warn("telemetry shutdown failed", "err", err)
			}
		}()
	}

	closeAudio, err := a.buildRunner()
	if err != nil {
		a.log.Error("failed to set up the turn loop", "err", err)
		return exitFailed
	}
	defer closeAudio()

	if cfg.Server.Enabled {
		a.buildServer()
	}

	var runErr error
	if cfg.UI.Tray {
		runErr = a.runWithTray(ctx)
	} else {
		mainthread.Init(func() { runErr = a.serve(ctx) })
	}

	switch {
	case runErr == nil:
		a.log.Info("EzS2T-Realtime stopped")
		return exitOK
	case errors.Is(runErr, turn.ErrRetriesExhausted):
		fmt.Fprintln(os.Stderr, i18n.T("notification.retries_exhausted"))
		return exitFailed
	default:
		a.log.Error("EzS2T-Realtime stopped with error", "err", runErr)
		return exitFailed
	}
}

// buildRunner opens the audio streams and assembles the turn loop. The
// returned func closes the streams.
func (a *App) buildRunner() (func(), error) {
	cfg := a.config

	audioCfg := audio.DefaultConfig()
	audioCfg.InputDeviceID = cfg.Audio.InputDeviceID
	audioCfg.OutputDeviceID = cfg.Audio.OutputDeviceID
	audioCfg.SampleRate = cfg.Audio.SampleRate
	audioCfg.OutputSampleRate = cfg.Audio.OutputSampleRate
	audioCfg.Channels = cfg.Audio.Channels
	audioCfg.BlockDuration = cfg.Audio.Block
	if cfg.Audio.QueueSize > 0 {
		audioCfg.QueueSize = cfg.Audio.QueueSize
	}
	audioCfg.Latency = audio.ParseLatency(cfg.Audio.Latency)

	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				a.log.Warn("failed to close audio stream", "err", err)
			}
		}
	}

	// Typed search reads queries from stdin and never opens the microphone
	var source audio.Source
	if cfg.Mode != config.ModeTypedSearch {
		capture, err := a.driver.OpenCapture(audioCfg, a.log)
		if err != nil {
			a.notify(a.notifier.DeviceNotFound(fmt.Sprint(cfg.Audio.InputDeviceID)))
			return nil, fmt.Errorf("failed to open capture: %w", err)
		}
		closers = append(closers, capture.Close)
		source = capture
	}

	player, err := a.driver.OpenPlayer(audioCfg)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to open playback: %w", err)
	}
	closers = append(closers, player.Close)

	a.stop = turn.NewStop()
	controller := turn.NewController(source, player, a.stop, turn.Config{
		Recording: recording.Config{
			SilenceThreshold:  cfg.Recording.SilenceThreshold,
			SilenceDuration:   cfg.Recording.SilenceDuration,
			MinSpeechDuration: cfg.Recording.MinSpeechDuration,
		},
		OutputSampleRate: cfg.Audio.OutputSampleRate,
	}, turn.Hooks{
		OnSilence: func(time.Duration) { a.notify(a.notifier.SilenceHint()) },
		OnText:    func(delta string) { fmt.Print(delta) },
	}, a.log)

	a.status = api.NewStatus(cfg.Mode, cfg.Retry.MaxRetries)
	controller.Observe(a.status.SetPhase)

	provider := realtime.New(realtime.Config{
		Backend:    cfg.Realtime.Backend,
		Endpoint:   cfg.Realtime.Endpoint,
		APIKey:     cfg.Realtime.APIKey,
		Model:      cfg.Realtime.Model,
		APIVersion: cfg.Realtime.APIVersion,
	}, realtime.WithLogger(a.log))

	strategy := a.newStrategy()

	a.clipboard = clipboard.NewManager(clipboard.DefaultConfig())
	a.copyOnTurn.Store(cfg.Output.CopyResponse)

	a.runner = turn.NewRunner(controller, provider, strategy, turn.RetryConfig{
		MaxRetries: cfg.Retry.MaxRetries,
		Delay:      cfg.Retry.Delay,
	}, turn.RunnerHooks{
		OnTurn:   a.onTurn,
		OnRetry:  a.onRetry,
		OnGiveUp: func(error) { a.notify(a.notifier.RetriesExhausted()) },
	}, a.log)
	a.runner.WAVPath = cfg.Output.CaptureWAV
	a.runner.SampleRate = cfg.Audio.SampleRate
	a.runner.Channels = cfg.Audio.Channels
	if cfg.Output.ResponseLog != "" {
		a.runner.Journal = journal.New(cfg.Output.ResponseLog)
	}
	if metrics, err := observe.NewMetrics(otel.GetMeterProvider()); err != nil {
		a.log.Warn("turn metrics disabled", "err", err)
	} else {
		a.runner.Metrics = metrics
	}

	return closeAll, nil
}

func (a *App) newStrategy() turn.Strategy {
	cfg := a.config
	playback := turn.ParsePlayback(cfg.Audio.Playback)

	var strategy turn.Strategy
	var session *realtime.SessionConfig

	switch cfg.Mode {
	case config.ModeSearch, config.ModeTypedSearch:
		searcher := search.NewBrave(search.Config{
			APIKey:  cfg.Search.APIKey,
			BaseURL: search.DefaultBaseURL,
			Count:   cfg.Search.Count,
			Country: cfg.Search.Country,
			Lang:    cfg.Search.Lang,
			Timeout: cfg.Search.Timeout,
		})
		if cfg.Mode == config.ModeSearch {
			s := turn.NewSearch(cfg.Realtime.Voice, searcher, a.log)
			s.Playback = playback
			s.DescriptionLimit = cfg.Search.DescriptionLimit
			strategy, session = s, &s.Session
		} else {
			s := turn.NewTypedSearch(cfg.Realtime.Voice, searcher, os.Stdin, os.Stdout, a.log)
			s.Prompt = i18n.T("typed.prompt")
			s.DescriptionLimit = cfg.Search.DescriptionLimit
			strategy, session = s, &s.Session
		}
	default:
		r := turn.NewReply(cfg.Realtime.Voice)
		r.Playback = playback
		strategy, session = r, &r.Session
	}

	if cfg.Realtime.Instructions != "" {
		session.Instructions = cfg.Realtime.Instructions
	}
	session.InputTranscriptionModel = cfg.Realtime.InputTranscriptionModel
	return strategy
}

func (a *App) buildServer() {
	srvCfg := server.DefaultConfig()
	srvCfg.Port = a.config.Server.Port
	a.httpServer = server.New(srvCfg, a.log)

	handler := api.New(a.fileConfig, a.configPath, a.status, a.log)
	handler.SetStopFunc(a.stop.Fire)
	handler.SetDeviceLister(a.driver)
	handler.SetPermissionReporter(a.perms)
	if a.wizard != nil {
		handler.SetWizard(a.wizard)
	}
	handler.OnSettingsChanged(a.applySettings)
	handler.RegisterRoutes(a.httpServer.GetMux())
}

// runWithTray runs systray on the main thread and the app beside it
func (a *App) runWithTray(ctx context.Context) error {
	done := make(chan error, 1)

	a.trayMgr = tray.NewManager(tray.Config{
		Mode: a.config.Mode,
		OnReady: func() {
			a.refreshDeviceMenu(a.config.Audio.InputDeviceID)
			go func() {
				done <- a.serve(ctx)
				a.trayMgr.Quit()
			}()
		},
		OnStop:         func() { a.stop.Fire() },
		OnCopyLast:     a.copyLast,
		OnSettings:     a.openSettings,
		OnDeviceChange: a.selectInputDevice,
		OnQuit:         a.quit,
		Logger:         a.log,
	})
	a.status.Subscribe(func(s api.Snapshot) { a.trayMgr.SetPhase(s.PhaseValue()) })

	a.trayMgr.Run()
	a.quit()
	return <-done
}

// serve runs the turn loop, the hotkey forwarder and the status server
// until ctx ends or the turn loop returns
func (a *App) serve(ctx context.Context) error {
	a.registerHotkey()
	defer func() {
		if a.hotkeyMgr != nil {
			if err := a.hotkeyMgr.Close(); err != nil {
				a.log.Warn("failed to unregister hotkey", "err", err)
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer a.quit()
		return a.runner.Run(gctx)
	})

	if a.hotkeyMgr != nil {
		events := a.hotkeyMgr.Events()
		g.Go(func() error {
			hotkey.Forward(gctx, events, func() {
				if a.stop.Fire() {
					a.log.Info("stop requested from hotkey")
				}
			})
			return nil
		})
	}

	if a.httpServer != nil {
		g.Go(func() error {
			if err := a.httpServer.Run(gctx); err != nil {
				a.log.Error("status server failed", "err", err)
			}
			return nil
		})
	}

	a.printBanner()
	return g.Wait()
}

func (a *App) registerHotkey() {
	hc := a.config.Hotkey
	hkConfig, err := hotkey.FromSettings(hc.Ctrl, hc.Shift, hc.Alt, hc.Cmd, hc.Key)
	if err != nil {
		a.log.Warn("invalid hotkey, stop is only available from the menu", "err", err)
		return
	}

	if conflicts := hotkey.CheckConflicts(hkConfig.Modifiers, hkConfig.Key); len(conflicts) > 0 {
		a.log.Warn("hotkey conflicts with a system shortcut", "hotkey", hotkey.FormatHotkey(hkConfig.Modifiers, hkConfig.Key), "conflict", conflicts[0].Name)
	}

	m := hotkey.New()
	if err := m.Register(hkConfig); err != nil {
		a.log.Warn("failed to register hotkey", "err", err)
		return
	}
	a.hotkeyMgr = m
	a.log.Info("hotkey registered", "hotkey", hotkey.FormatHotkey(hkConfig.Modifiers, hkConfig.Key))
}

func (a *App) onTurn(r turn.Report) {
	a.status.RecordTurn(r)

	content := r.Response.Content()
	if content != "" {
		fmt.Println()
	}

	if r.Response.Degraded {
		a.notify(a.notifier.ResponseDegraded())
	}

	if a.copyOnTurn.Load() && content != "" && !r.Response.Interrupted {
		if err := a.clipboard.Copy(content); err != nil {
			a.log.Warn("failed to copy response", "err", err)
		} else {
			a.notify(a.notifier.ResponseCopied())
		}
	}
}

func (a *App) onRetry(err error, remaining int) {
	a.status.SetRetriesLeft(remaining)
	a.notify(a.notifier.ConnectionLost(a.config.Retry.Delay, remaining))
}

// applySettings takes the settings that can change while running
func (a *App) applySettings(cfg *config.Config) {
	a.translator.SetLanguage(i18n.Language(cfg.UILanguage))
	a.notifier.SetEnabled(cfg.UI.Notifications)
	a.copyOnTurn.Store(cfg.Output.CopyResponse)
	a.log.Info("settings applied", "ui_language", cfg.UILanguage, "notifications", cfg.UI.Notifications, "copy_response", cfg.Output.CopyResponse)
}

func (a *App) copyLast() {
	if err := a.clipboard.CopyLast(); err != nil {
		a.log.Warn("nothing to copy", "err", err)
		return
	}
	a.notify(a.notifier.ResponseCopied())
}

// selectInputDevice saves the choice. It takes effect on the next start.
func (a *App) selectInputDevice(id int) {
	if err := a.fileConfig.Update(map[string]interface{}{"input_device_id": float64(id)}); err != nil {
		a.log.Warn("invalid input device", "device_id", id, "err", err)
		return
	}
	if err := a.fileConfig.Save(a.configPath); err != nil {
		a.log.Error("failed to save config", "err", err)
		return
	}
	a.log.Info("input device saved, restart to apply", "device_id", id)
	a.refreshDeviceMenu(id)
}

func (a *App) refreshDeviceMenu(selected int) {
	devices, err := a.driver.ListDevices()
	if err != nil {
		a.log.Warn("failed to list devices", "err", err)
		return
	}
	a.trayMgr.UpdateDeviceMenu(devices, selected)
}

func (a *App) openSettings() {
	if a.httpServer == nil || !a.httpServer.IsRunning() {
		a.log.Warn("status server is not running")
		return
	}

	url := a.httpServer.URL()
	go func() {
		if err := openBrowser(url); err != nil {
			a.log.Error("failed to open browser", "url", url, "err", err)
			fmt.Printf("\nOpen the settings page at %s\n\n", url)
		}
	}()
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Run()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Run()
	default:
		return exec.Command("xdg-open", url).Run()
	}
}

// notify logs notification failures; they never stop a turn
func (a *App) notify(err error) {
	if err != nil {
		a.log.Debug("notification not shown", "err", err)
	}
}

func (a *App) printDevices() int {
	devices, err := a.driver.ListDevices()
	if err != nil {
		a.log.Error("failed to list devices", "err", err)
		return exitFailed
	}

	for _, d := range devices {
		mark := " "
		switch {
		case d.IsDefault && d.IsDefaultOutput:
			mark = "*"
		case d.IsDefault:
			mark = ">"
		case d.IsDefaultOutput:
			mark = "<"
		}
		fmt.Printf("%s %3d  %-40s in=%d out=%d\n", mark, d.ID, d.Name, d.InputChannels, d.OutputChannels)
	}
	return exitOK
}

func (a *App) printBanner() {
	fmt.Println("==========================================================")
	fmt.Printf("EzS2T-Realtime %s (%s)\n", version, a.config.Mode)
	fmt.Println("==========================================================")
	if a.httpServer != nil {
		fmt.Printf("Status page: %s\n", a.httpServer.URL())
	}
	if a.hotkeyMgr != nil {
		hc := a.hotkeyMgr.GetConfig()
		fmt.Printf("Stop hotkey: %s\n", hotkey.FormatHotkey(hc.Modifiers, hc.Key))
	}
	fmt.Println("Quit: Ctrl+C")
	fmt.Println("==========================================================")
}

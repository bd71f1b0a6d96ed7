// Consultant Avatar - desktop shell for the animated virtual consultant
package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/normanking/consultavatar/internal/audio"
	"github.com/normanking/consultavatar/internal/bridge"
	"github.com/normanking/consultavatar/internal/config"
	"github.com/normanking/consultavatar/internal/logging"
	"github.com/normanking/consultavatar/internal/page"
)

//go:embed all:frontend/dist
var assets embed.FS

// Global logger instance
var syslog *logging.Logger

// getAssets returns the frontend assets with the correct path
func getAssets() fs.FS {
	fsys, err := fs.Sub(assets, "frontend/dist")
	if err != nil {
		syslog.Error("assets", "Failed to get assets", err, nil)
		panic(err)
	}
	return fsys
}

// loadConfig reads .env files and ~/.consultavatar/config.yaml. A broken
// config file falls back to defaults.
func loadConfig() (*config.Config, *viper.Viper, string) {
	if err := config.LoadEnv(); err != nil {
		syslog.Warn("env", "Could not load .env", map[string]interface{}{"error": err.Error()})
	}

	dir, err := config.GetConfigDir()
	if err != nil {
		syslog.Warn("config", "No home directory, using defaults", map[string]interface{}{"error": err.Error()})
		return config.DefaultConfig(), nil, ""
	}
	cfg, v, err := config.LoadFrom(dir)
	if err != nil {
		syslog.Warn("config", "Failed to load config, using defaults", map[string]interface{}{
			"error": err.Error(),
		})
		cfg = config.DefaultConfig()
	}
	return cfg, v, filepath.Join(dir, "config.yaml")
}

func main() {
	// Initialize structured logger FIRST
	var err error
	syslog, err = logging.New(nil)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer syslog.Close()

	syslog.Info("main", "Consultant Avatar starting", nil)

	cfg, v, configPath := loadConfig()
	syslog.SetLevel(cfg.Log.Level)
	zlogger := syslog.Zerolog()
	syslog.Info("config", "Configuration loaded", map[string]interface{}{
		"windowSize": fmt.Sprintf("%dx%d", cfg.Window.Width, cfg.Window.Height),
		"api":        cfg.API.BaseURL,
		"model":      cfg.Avatar.ModelPath,
	})

	// One page session for the window; speech plays on the local speaker
	player := audio.NewSpeakerPlayer(cfg.AudioConfig(), zlogger)
	session := page.New(cfg.PageDeps(zlogger), cfg.PageOptions(), player, zlogger)

	avatarBridge := bridge.NewAvatarBridge(session, runtime.EventsEmit)
	chatBridge := bridge.NewChatBridge(session, runtime.EventsEmit)
	voiceBridge := bridge.NewVoiceBridge(session, runtime.EventsEmit, zlogger)
	settingsBridge := bridge.NewSettingsBridge(cfg, configPath, session, syslog, runtime.EventsEmit, zlogger)
	logBridge := bridge.NewLogBridge(syslog, runtime.EventsEmit)

	if v != nil {
		config.Watch(v, zlogger, settingsBridge.Reload)
	}

	app := &App{
		cfg:            cfg,
		syslog:         syslog,
		session:        session,
		avatarBridge:   avatarBridge,
		chatBridge:     chatBridge,
		voiceBridge:    voiceBridge,
		settingsBridge: settingsBridge,
		logBridge:      logBridge,
	}

	appOptions := &options.App{
		Title:       cfg.Window.Title,
		Width:       cfg.Window.Width,
		Height:      cfg.Window.Height,
		MinWidth:    300,
		MinHeight:   400,
		AlwaysOnTop: cfg.Window.AlwaysOnTop,
		Frameless:   cfg.Window.Frameless,
		AssetServer: &assetserver.Options{
			Assets: getAssets(),
		},
		BackgroundColour: &options.RGBA{R: 26, G: 26, B: 46, A: 255},
		OnStartup:        app.startup,
		OnBeforeClose:    app.beforeClose,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
			avatarBridge,
			chatBridge,
			voiceBridge,
			settingsBridge,
			logBridge,
		},
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: true,
				FullSizeContent:            true,
			},
			WebviewIsTransparent: true,
			WindowIsTranslucent:  true,
			About: &mac.AboutInfo{
				Title:   "Consultant Avatar",
				Message: "Virtual consultant\nVersion " + version,
			},
		},
	}

	if err := wails.Run(appOptions); err != nil {
		syslog.Error("wails", "Wails.Run failed", err, nil)
		os.Exit(1)
	}
	syslog.Info("main", "Application exited normally", nil)
}

const version = "1.0.0"

// App struct holds the main application state
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	syslog *logging.Logger

	session        *page.Session
	avatarBridge   *bridge.AvatarBridge
	chatBridge     *bridge.ChatBridge
	voiceBridge    *bridge.VoiceBridge
	settingsBridge *bridge.SettingsBridge
	logBridge      *bridge.LogBridge
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	a.avatarBridge.Bind(ctx)
	a.chatBridge.Bind(ctx)
	a.voiceBridge.Bind(ctx)
	a.settingsBridge.Bind(ctx)
	a.logBridge.Bind(ctx)

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.session.Run(runCtx)

	a.syslog.Info("lifecycle", "Page session started", map[string]interface{}{
		"session": a.session.ID().String(),
	})
}

// beforeClose plays the farewell before the window goes away
func (a *App) beforeClose(ctx context.Context) bool {
	a.session.Unload()
	return false
}

// shutdown stops the page session; queued work such as the farewell runs
// first
func (a *App) shutdown(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
		<-a.session.Runtime().Done()
	}
	a.syslog.Info("lifecycle", "Shutdown complete", nil)
}

// GetVersion returns the application version
func (a *App) GetVersion() string {
	return version
}

// GetConfig returns the current configuration
func (a *App) GetConfig() *config.Config {
	return a.cfg
}

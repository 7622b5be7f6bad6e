// demonedit is the command-line front for the editor core: it loads
// the configured profile, opens the local data model and keeps the
// EPG caches warm until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/demon-editor/core/internal/controller"
	"github.com/demon-editor/core/internal/epg"
	"github.com/demon-editor/core/internal/log"
	"github.com/demon-editor/core/internal/openwebif"
	"github.com/demon-editor/core/internal/settings"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("demonedit", flag.ContinueOnError)
	verbose := fs.Bool("log", false, "enable verbose logging")
	record := fs.Bool("record", false, "record the current stream and exit")
	telnetFlag := fs.String("telnet", "", "persist the telnet feature flag: on or off")
	debugFlag := fs.String("debug", "", "persist the debug-mode flag: on or off")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *showVersion {
		fmt.Printf("demonedit %s\n", version)
		return 0
	}

	telnet, ok := parseOnOff(*telnetFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid --telnet value %q (want on or off)\n", *telnetFlag)
		return 1
	}
	debug, ok := parseOnOff(*debugFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid --debug value %q (want on or off)\n", *debugFlag)
		return 1
	}

	logCfg := log.Config{Level: "info", Service: "demonedit"}
	if *verbose {
		logCfg.Level = "debug"
	}
	log.Configure(logCfg)
	logger := log.WithComponent("main")

	configPath, err := settings.DefaultPath()
	if err != nil {
		logger.Error().Err(err).Str("event", "startup.config").Msg("cannot resolve config directory")
		return 1
	}
	mgr, err := settings.NewManager(configPath)
	if err != nil {
		var serr *settings.SettingsError
		if !errors.As(err, &serr) {
			logger.Error().Err(err).Str("event", "startup.config").Msg("cannot load settings")
			return 1
		}
		logger.Warn().Err(err).Str("event", "startup.config").Msg("settings were reset to defaults")
	}

	// The two feature flags persist and exit; nothing else runs.
	if telnet != nil || debug != nil {
		if err := persistFlags(mgr, telnet, debug); err != nil {
			logger.Error().Err(err).Str("event", "startup.flags").Msg("cannot persist flags")
			return 1
		}
		logger.Info().Str("event", "startup.flags").Msg("flags saved")
		return 0
	}

	if mgr.Config().Debug {
		log.SetLevel("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctl, err := controller.New(ctx, mgr)
	if err != nil {
		logger.Error().Err(err).Str("event", "startup.controller").Msg("cannot build controller")
		return 1
	}

	profile, err := mgr.Profile(ctl.ProfileName())
	if err != nil {
		logger.Error().Err(err).Str("event", "startup.profile").Msg("cannot load profile")
		return 1
	}

	locale := os.Getenv("LANGUAGE")
	logger.Info().Str("event", "startup").Str("version", version).
		Str("profile", ctl.ProfileName()).Str("locale", locale).Msg("editor core ready")

	if *record {
		return recordCurrent(ctx, profile, logger)
	}

	if err := ctl.OpenLocal(ctx); err != nil {
		logger.Warn().Err(err).Str("event", "startup.open").Msg("no local data yet; download from the receiver first")
	}

	runFavLoop(ctx, ctl, profile)

	ctl.Tasks.CancelAll()
	ctl.Tasks.Wait()
	logger.Info().Str("event", "shutdown").Msg("bye")
	return 0
}

// persistFlags writes the given feature flags into the configuration.
func persistFlags(mgr *settings.Manager, telnet, debug *bool) error {
	mgr.Update(func(cfg *settings.Config) {
		if telnet != nil {
			cfg.Telnet = *telnet
		}
		if debug != nil {
			cfg.Debug = *debug
		}
	})
	return mgr.Save()
}

func apiConfig(p settings.Profile) openwebif.Config {
	return openwebif.Config{
		Host:     p.Connection.Host,
		Port:     p.Connection.HTTPPort,
		User:     p.Connection.HTTPUser,
		Password: p.Connection.HTTPPassword,
		UseSSL:   p.Connection.UseSSL,
	}
}

// recordCurrent resolves the receiver's current stream and copies it
// into a timestamped file until interrupted.
func recordCurrent(ctx context.Context, profile settings.Profile, logger zerolog.Logger) int {
	client := openwebif.New(apiConfig(profile))
	out, err := client.Send(ctx, openwebif.ReqStreamCurrent, nil)
	if err != nil {
		logger.Error().Err(err).Str("event", "record.resolve").Msg("cannot resolve the current stream")
		return 1
	}
	playlist, _ := out["m3u"].(string)
	streamURL := playlistURL(playlist)
	if streamURL == "" {
		logger.Error().Str("event", "record.resolve").Msg("the receiver returned no stream url")
		return 1
	}

	dir := filepath.Join(profile.Local.Data, "records")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error().Err(err).Str("event", "record.start").Msg("cannot create records directory")
		return 1
	}
	target := filepath.Join(dir, time.Now().Format("2006-01-02_15-04-05")+".ts")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		logger.Error().Err(err).Str("event", "record.start").Msg("bad stream url")
		return 1
	}
	// No client timeout: the recording runs until the signal arrives.
	res, err := (&http.Client{}).Do(req)
	if err != nil {
		logger.Error().Err(err).Str("event", "record.start").Msg("cannot open the stream")
		return 1
	}
	defer res.Body.Close()

	f, err := os.Create(target)
	if err != nil {
		logger.Error().Err(err).Str("event", "record.start").Msg("cannot create the recording file")
		return 1
	}
	logger.Info().Str("event", "record.start").Str("file", target).Str("url", streamURL).Msg("recording")

	written, err := io.Copy(f, res.Body)
	closeErr := f.Close()
	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Str("event", "record.failed").Msg("stream copy failed")
		return 1
	}
	if closeErr != nil {
		logger.Error().Err(closeErr).Str("event", "record.failed").Msg("cannot finish the recording file")
		return 1
	}
	logger.Info().Str("event", "record.done").Str("file", target).Int64("bytes", written).Msg("recording finished")
	return 0
}

// playlistURL picks the stream target out of an m3u body: the last
// non-comment line.
func playlistURL(playlist string) string {
	var u string
	for _, line := range strings.Split(playlist, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			u = line
		}
	}
	return u
}

// runFavLoop keeps the current-event cache fresh until the context
// ends. Only the HTTP source makes sense unattended.
func runFavLoop(ctx context.Context, ctl *controller.Controller, profile settings.Profile) {
	if profile.Epg.Source != "http" {
		<-ctx.Done()
		return
	}
	src := &epg.HTTPSource{Client: openwebif.New(apiConfig(profile))}
	interval := time.Duration(profile.Epg.UpdateInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctl.Epg.RunFavRefresh(ctx, src, interval, func() {
		ctl.Bus.Publish(controller.Event{Type: controller.EventEpgCacheUpdated, ID: ctl.ProfileName()})
	})
}

// parseOnOff maps "", "on" and "off"; anything else is an error.
func parseOnOff(v string) (*bool, bool) {
	switch v {
	case "":
		return nil, true
	case "on":
		t := true
		return &t, true
	case "off":
		f := false
		return &f, true
	}
	return nil, false
}

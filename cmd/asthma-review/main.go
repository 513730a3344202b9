// Command asthma-review triages asthma review questionnaires submitted over
// HTTP and publishes each verdict to MQTT.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/asthma-review/internal/config"
	"github.com/sweeney/asthma-review/internal/logging"
	"github.com/sweeney/asthma-review/internal/metrics"
	"github.com/sweeney/asthma-review/internal/mqtt"
	"github.com/sweeney/asthma-review/internal/review"
	"github.com/sweeney/asthma-review/internal/status"
	"github.com/sweeney/asthma-review/internal/web"
)

const (
	statusRefreshInterval = 5 * time.Second
	shutdownTimeout       = 5 * time.Second
)

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "asthma-review: %v\n", err)
		os.Exit(2)
	}

	log := logging.Init(logging.Config{Level: opts.cfg.Log.Level, Format: opts.cfg.Log.Format}, os.Stderr)

	if opts.reviewPath != "" {
		err = evaluateFile(opts.reviewPath, os.Stdin, os.Stdout, log)
	} else {
		err = run(opts.cfg, log)
	}
	if err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type options struct {
	cfg        *config.Config
	reviewPath string
}

// parseArgs loads the optional config file and applies any flags given
// explicitly on top of it.
func parseArgs(args []string) (options, error) {
	d := config.Default()

	fs := flag.NewFlagSet("asthma-review", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	httpAddr := fs.String("http", d.HTTP.Addr, "HTTP address for reviews and status (empty to disable)")
	broker := fs.String("broker", d.MQTT.Broker, "MQTT broker address (empty to disable)")
	heartbeat := fs.Duration("heartbeat", d.Service.Heartbeat.Duration, "Heartbeat interval (0 to disable)")
	logLevel := fs.String("log-level", d.Log.Level, "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", d.Log.Format, "Log format: text or json")
	reviewPath := fs.String("review", "", `Triage one JSON review from a file ("-" for stdin), print the result and exit`)

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg := d
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return options{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "broker":
			cfg.MQTT.Broker = *broker
		case "heartbeat":
			cfg.Service.Heartbeat.Duration = *heartbeat
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		return options{}, err
	}

	return options{cfg: cfg, reviewPath: *reviewPath}, nil
}

// evaluateFile triages the review at path ("-" reads stdin) and writes the
// response JSON to out.
func evaluateFile(path string, stdin io.Reader, out io.Writer, log *slog.Logger) error {
	in := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open review: %w", err)
		}
		defer f.Close()
		in = f
	}
	return evaluate(in, out, log)
}

func evaluate(in io.Reader, out io.Writer, log *slog.Logger) error {
	req, err := review.DecodeRequest(in)
	if err != nil {
		return err
	}
	rev, err := review.NewProcessor(review.WithLogger(log)).Process(context.Background(), req.Input())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(review.NewResponse(rev))
}

func run(cfg *config.Config, log *slog.Logger) error {
	tracker := status.NewTracker(time.Now(), status.Config{
		HeartbeatMs: cfg.Service.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		BufferSize:  cfg.MQTT.BufferSize,
	})
	rec := metrics.New()

	procOpts := []review.Option{
		review.WithTracker(tracker),
		review.WithMetrics(rec),
		review.WithLogger(log),
	}

	// Both stay nil when publishing is disabled.
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		rp := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			BufferSize: cfg.MQTT.BufferSize,
			Logger:     log,
		})
		defer rp.Close()
		publisher, mqttStatus = rp, rp
		procOpts = append(procOpts, review.WithPublisher(rp))
	} else {
		log.Warn("no MQTT broker configured, results will not be published")
	}

	publishSystem(publisher, mqttStatus, tracker, log, "STARTUP", "")

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, review.NewProcessor(procOpts...), rec.Handler(), log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server error", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Info("http server listening", "addr", cfg.HTTP.Addr)
	}

	log.Info("started",
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.Service.Heartbeat.Duration,
		"buffer", cfg.MQTT.BufferSize,
	)

	var heartbeatC <-chan time.Time
	if cfg.Service.Heartbeat.Duration > 0 {
		hb := time.NewTicker(cfg.Service.Heartbeat.Duration)
		defer hb.Stop()
		heartbeatC = hb.C
	}
	refresh := time.NewTicker(statusRefreshInterval)
	defer refresh.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(publisher, mqttStatus, tracker, log, heartbeatC, refresh.C, sigCh)
}

// runLoop publishes heartbeats and keeps the tracker's MQTT state fresh until
// a signal arrives. publisher and mqttStatus may be nil.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, log *slog.Logger, heartbeat, refresh <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Info("shutting down", "signal", s)
			publishSystem(publisher, mqttStatus, tracker, log, "SHUTDOWN", signalName(s))
			return nil

		case <-heartbeat:
			snap := publishSystem(publisher, mqttStatus, tracker, log, "HEARTBEAT", "")
			log.Info("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"green", snap.Counts.Green,
				"amber", snap.Counts.Amber,
				"red", snap.Counts.Red,
				"mqtt", snap.MQTTConnected,
			)

		case <-refresh:
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
		}
	}
}

// publishSystem sends a retained status event carrying the current snapshot
// and returns that snapshot.
func publishSystem(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, log *slog.Logger, event, reason string) status.Snapshot {
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	if publisher == nil {
		return snap
	}

	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Warn("system event publish error", "event", event, "error", err)
	} else {
		log.Debug("published system event", "event", event)
	}
	return snap
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

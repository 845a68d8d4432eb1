// Command inferd runs the asynchronous inference daemon: a synthetic
// frame source paced at a fixed FPS, a mock SSD detector behind the
// slot scheduler, and sequenced detection output over MQTT, with
// Prometheus metrics on the side.
//
// SIGUSR1 toggles the execution policy between throughput and
// low-latency at runtime.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/forky-mcforkface/open-model-zoo/infersched"
	"github.com/forky-mcforkface/open-model-zoo/internal/config"
	"github.com/forky-mcforkface/open-model-zoo/internal/detector"
	"github.com/forky-mcforkface/open-model-zoo/internal/emitter"
	"github.com/forky-mcforkface/open-model-zoo/internal/obs"
	"github.com/forky-mcforkface/open-model-zoo/internal/source"
)

const defaultConfigPath = "config/inferd.yaml"

var version = "dev"

func main() {
	configPath := pflag.StringP("config", "c", defaultConfigPath, "Path to configuration file")
	debug := pflag.BoolP("debug", "d", false, "Enable debug logging")
	showVersion := pflag.BoolP("version", "v", false, "Print version and exit")
	pflag.Parse()

	if *showVersion {
		os.Stdout.WriteString("inferd " + version + "\n")
		return
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting inferd",
		"version", version,
		"config", *configPath,
		"debug", *debug,
	)

	if err := run(*configPath); err != nil {
		slog.Error("inferd failed", "error", err)
		os.Exit(1)
	}
	slog.Info("inferd stopped")
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	labels, err := labelsFor(cfg)
	if err != nil {
		return err
	}

	engine := detector.NewEngine(detector.Options{
		Latency:    cfg.Detector.Latency(),
		Jitter:     cfg.Detector.Jitter(),
		Confidence: cfg.Detector.Confidence,
		Labels:     labels,
	})

	sched, err := infersched.New(infersched.Config{
		ThroughputSlots: cfg.Scheduler.ThroughputSlots,
		InitialPolicy:   initialPolicy(cfg.Scheduler.InitialMode),
		NewContext:      engine.NewContext,
		Extract:         engine.Extract,
	})
	if err != nil {
		return err
	}

	src, err := source.NewSynthetic(source.SyntheticOptions{
		Resolution:    source.ParseResolution(cfg.Source.Resolution),
		FPS:           cfg.Source.FPS,
		FramesPerLoop: cfg.Source.Frames,
		Loops:         cfg.Source.Loops,
	})
	if err != nil {
		return err
	}

	var em *emitter.MQTTEmitter
	if cfg.MQTT.Enabled {
		em = emitter.NewMQTT(emitter.Options{
			Broker:     cfg.MQTT.Broker,
			Topic:      cfg.MQTT.Topic,
			QoS:        cfg.MQTT.QoS,
			InstanceID: cfg.InstanceID,
		})
		if err := em.Connect(context.Background()); err != nil {
			return err
		}
		defer em.Close()
	}

	consumer := newDetectionConsumer(cfg.InstanceID, em)
	runner := infersched.NewRunner(sched, src, consumer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		reg := obs.NewRegistry(sched)
		addr := cfg.Metrics.Address
		g.Go(func() error {
			slog.Info("serving metrics", "address", addr)
			return obs.Serve(gctx, addr, reg)
		})
	}

	g.Go(func() error {
		defer cancel() // runner done = whole daemon done
		return runner.Run(gctx)
	})

	g.Go(func() error {
		return handleSignals(gctx, cancel, sched)
	})

	err = g.Wait()
	consumer.report(sched.Stats())
	if errors.Is(err, context.Canceled) {
		// Signal-driven stop: intake ended early but everything
		// submitted was drained, so this is a clean shutdown.
		return nil
	}
	return err
}

// handleSignals reacts to OS signals until the context ends: SIGINT and
// SIGTERM stop intake (in-flight work still drains), SIGUSR1 toggles the
// execution policy.
func handleSignals(ctx context.Context, cancel context.CancelFunc, sched infersched.Scheduler) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				target := infersched.LowLatency
				if sched.ActivePolicy() == infersched.LowLatency {
					target = infersched.Throughput
				}
				if err := sched.RequestModeSwitch(target); err != nil {
					slog.Warn("mode switch rejected", "target", target.String(), "error", err)
				} else {
					slog.Info("mode switch requested", "target", target.String())
				}
			default:
				slog.Info("received shutdown signal", "signal", sig.String())
				cancel()
				return nil
			}
		}
	}
}

// initialPolicy maps the validated config mode string to a policy.
func initialPolicy(mode string) infersched.Policy {
	if mode == "low-latency" {
		return infersched.LowLatency
	}
	return infersched.Throughput
}

func labelsFor(cfg *config.Config) ([]string, error) {
	if cfg.Detector.LabelsPath == "" {
		return nil, nil
	}
	return detector.LoadLabels(cfg.Detector.LabelsPath)
}

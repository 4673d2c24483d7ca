package main

import (
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/effective-security/metrics"
	"github.com/effective-security/metrics/prometheus"
	"github.com/effective-security/xlog"
	"github.com/effective-security/xlog/logrotate"
	"github.com/effective-security/xlog/stackdriver"
	"github.com/fitpulse/gateway/gateway"
	"github.com/fitpulse/gateway/metricskey"
	"github.com/pkg/errors"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const nullDevName = "/dev/null"

// LogConfig defines config for logs
type LogConfig struct {
	LogStd         bool   `help:"output logs to stderr"`
	LogDebug       bool   `help:"output logs with debug info, such as filename:line"`
	LogPretty      bool   `help:"output logs in pretty format, with colors"`
	LogJSON        bool   `help:"output logs in JSON format"`
	LogStackdriver bool   `help:"output logs in GCP stackdriver format"`
	LogDir         string `help:"store logs in folder"`
}

// initLogs initializes app logs
func initLogs(flags *LogConfig, serviceName string) (io.Closer, error) {
	var closer io.Closer
	var formatter xlog.Formatter
	if flags.LogDir != "" && flags.LogDir != nullDevName {
		_ = os.MkdirAll(flags.LogDir, 0755)
		var sink io.Writer
		if flags.LogStd {
			sink = os.Stderr
			formatter = xlog.NewPrettyFormatter(sink).Options(xlog.FormatWithColor)
		} else {
			// do not redirect stderr to our log files
			log.SetOutput(os.Stderr)
			if flags.LogPretty {
				formatter = xlog.NewPrettyFormatter(os.Stderr)
			} else {
				formatter = xlog.NewStringFormatter(os.Stderr)
			}
		}

		logRotate, err := logrotate.Initialize(flags.LogDir, serviceName, 10, 10, true, sink)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to initialize log rotate")
		}
		closer = logRotate
	} else if flags.LogDir == nullDevName {
		formatter = xlog.NewNilFormatter()
	} else if flags.LogStackdriver {
		formatter = stackdriver.NewFormatter(os.Stderr, serviceName)
	} else if flags.LogJSON {
		formatter = xlog.NewJSONFormatter(os.Stderr)
	} else if flags.LogPretty {
		formatter = xlog.NewPrettyFormatter(os.Stderr).Options(xlog.FormatWithColor)
	} else {
		formatter = xlog.NewStringFormatter(os.Stderr)
	}

	xlog.SetFormatter(formatter)
	formatter.Options(xlog.FormatWithCaller)
	if flags.LogDebug {
		formatter.Options(xlog.FormatWithLocation)
	}
	logger.KV(xlog.INFO,
		"status", "service_starting",
		"args", os.Args)
	return closer, nil
}

// initMetrics configures the global metrics publisher
func initMetrics(cfg *gateway.Metrics, svcName, version string) error {
	if cfg.Provider == "" || cfg.GetDisabled() {
		logger.KV(xlog.INFO,
			"status", "metrics_disabled",
			"version", version,
			"provider", cfg.Provider)
		return nil
	}

	mcfg := &metrics.Config{
		FilterDefault:    true,
		TimerGranularity: time.Millisecond,
		ProfileInterval:  time.Second,
		GlobalPrefix:     cfg.Prefix,
		GlobalTags: []metrics.Tag{
			{Name: "service", Value: svcName},
		},
	}

	var sink metrics.Sink
	switch cfg.Provider {
	case "prometheus":
		prom.Unregister(collectors.NewGoCollector())
		prom.Unregister(collectors.NewBuildInfoCollector())
		prom.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		var err error
		sink, err = prometheus.NewSinkFrom(prometheus.Opts{
			Registerer: prom.DefaultRegisterer,
			Help:       mcfg.Help(metricskey.Metrics, nil),
		})
		if err != nil {
			return errors.WithMessage(err, "unable to create prometheus sink")
		}

		if cfg.PrometheusAddr != "" {
			go func() {
				logger.KV(xlog.INFO,
					"status", "starting_prometheus",
					"endpoint", cfg.PrometheusAddr)
				h := promhttp.HandlerFor(prom.DefaultGatherer, promhttp.HandlerOpts{})
				logger.Fatal(http.ListenAndServe(cfg.PrometheusAddr, h).Error())
			}()
		}
	case "inmem", "inmemory":
		return nil
	default:
		return errors.Errorf("metrics provider %q not supported", cfg.Provider)
	}

	_, err := metrics.NewGlobal(mcfg, sink)
	if err != nil {
		return errors.WithStack(err)
	}

	logger.KV(xlog.INFO,
		"status", "metrics_started",
		"version", version,
		"provider", cfg.Provider)
	return nil
}

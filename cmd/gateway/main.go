// fitpulse-gateway is the FitPulse API gateway: it resolves client
// identity, enforces path access, and proxies requests to the backend
// services.
package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/effective-security/xlog"
	"github.com/fitpulse/gateway/gateway"
	"github.com/fitpulse/gateway/gateway/authz"
	"github.com/fitpulse/gateway/gateway/proxy"
	"github.com/fitpulse/gateway/gateway/resolve"
	"github.com/fitpulse/gateway/gateway/roles"
	"github.com/fitpulse/gateway/gateway/status"
	"github.com/fitpulse/gateway/pkg/cache"
	"github.com/fitpulse/gateway/pkg/configloader"
	"github.com/fitpulse/gateway/pkg/probe"
	"github.com/fitpulse/gateway/pkg/tasks"
	"github.com/fitpulse/gateway/pkg/userclient"
	"github.com/pkg/errors"
)

var logger = xlog.NewPackageLogger("github.com/fitpulse/gateway", "cmd")

// set by the build
var version = "0.9.1"

type app struct {
	LogConfig `embed:""`

	Version     kong.VersionFlag `name:"version" help:"print version information and quit"`
	Cfg         string           `short:"c" required:"" help:"load configuration file"`
	CfgOverride string           `help:"configuration override file"`
	Env         string           `help:"override environment value"`
	DryRun      bool             `help:"verify config and do not start the service"`
}

func main() {
	cli := app{}
	kong.Parse(&cli,
		kong.Name("fitpulse-gateway"),
		kong.Vars{"version": version})

	err := realMain(&cli)
	if err != nil {
		logger.KV(xlog.ERROR, "err", err.Error())
		os.Exit(1)
	}
}

func realMain(cli *app) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	logCloser, err := initLogs(&cli.LogConfig, cfg.Server.GetServerName())
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	if cli.DryRun {
		logger.KV(xlog.INFO, "status", "dry_run", "config", cli.Cfg)
		return nil
	}

	err = initMetrics(&cfg.Metrics, cfg.Server.GetServerName(), version)
	if err != nil {
		return err
	}

	closer, err := startService(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	got := <-sig
	logger.KV(xlog.INFO, "status", "shutting_down", "signal", got.String())

	return nil
}

func loadConfig(cli *app) (*gateway.Config, error) {
	f, err := configloader.NewFactory(nil, "FP_")
	if err != nil {
		return nil, err
	}
	if cli.CfgOverride != "" {
		f.WithOverride(cli.CfgOverride)
	}
	if cli.Env != "" {
		f.WithEnvironment(cli.Env)
	}

	cfg := new(gateway.Config)
	_, err = f.Load(cli.Cfg, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Server.BindAddr == "" {
		return nil, errors.New("server bind address is not configured")
	}
	return cfg, nil
}

type serviceCloser struct {
	server    *gateway.HTTPServer
	scheduler tasks.Scheduler
	shared    cache.Provider
}

func (c *serviceCloser) Close() error {
	if c.scheduler != nil {
		_ = c.scheduler.Stop()
	}
	c.server.StopHTTP()
	if c.shared != nil {
		_ = c.shared.Close()
	}
	return nil
}

func startService(cfg *gateway.Config) (io.Closer, error) {
	shared, err := cache.New(&cfg.Cache, "/fitpulse/gateway")
	if err != nil {
		return nil, err
	}

	users, err := userclient.New(&cfg.UserService, userclient.WithSharedCache(shared))
	if err != nil {
		return nil, err
	}

	rolesProvider := roles.New(&cfg.Roles)
	filter := resolve.NewFilter(&cfg.Identity, rolesProvider, resolve.NewUserSyncer(users))

	server, err := gateway.New(version, "", cfg)
	if err != nil {
		return nil, err
	}
	server.WithIdentityFilter(filter)

	if len(cfg.Authz.Allow) > 0 ||
		len(cfg.Authz.AllowAny) > 0 ||
		len(cfg.Authz.AllowAnyRole) > 0 {
		az, err := authz.New(&cfg.Authz)
		if err != nil {
			return nil, err
		}
		server.WithAuthz(az)
	}

	prober := probe.New(&cfg.Probe)

	proxySvc, err := proxy.New(cfg.Upstreams)
	if err != nil {
		return nil, err
	}
	server.AddService(proxySvc)
	server.AddService(status.New(server, prober))

	var scheduler tasks.Scheduler
	if cfg.Warmup.Enabled {
		warmup, err := probe.NewWarmupTask(&cfg.Warmup, prober)
		if err != nil {
			return nil, err
		}
		scheduler = tasks.NewScheduler().Add(warmup)
		err = scheduler.Start()
		if err != nil {
			return nil, err
		}
	}

	err = server.StartHTTP()
	if err != nil {
		return nil, err
	}

	return &serviceCloser{
		server:    server,
		scheduler: scheduler,
		shared:    shared,
	}, nil
}

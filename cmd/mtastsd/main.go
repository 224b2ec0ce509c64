package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/getsentry/raven-go"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"mtastsd/internal/log"
	"mtastsd/internal/meta"
	"mtastsd/internal/metrics"
	"mtastsd/internal/network"
	"mtastsd/internal/protocol"
	"mtastsd/internal/resolver"
	"mtastsd/internal/sts"
)

func main() {
	configPath := flag.String(
		"config",
		os.Getenv("MTASTSD_CONFIG"),
		"path to the configuration file on disk; defaults are used if omitted",
	)
	version := flag.Bool(
		"version",
		false,
		"print the compiled mtastsd version",
	)
	verbosity := flag.String(
		"verbosity",
		envOrDefault("MTASTSD_VERBOSITY", "error"),
		"desired logging verbosity: one of error, warn, info, debug",
	)
	flag.Parse()

	// Report the compiled version and exit
	if *version {
		fmt.Println(meta.VersionString())
		return
	}

	// Logging configuration; default to log.Error verbosity
	level, _ := log.ParseLevel(*verbosity)
	logger := log.NewConsoleLogger(level)
	logger.Debug("main: initialized logger: level=%v", level)

	// Parse application configuration
	logger.Debug("main: reading and parsing config: path=%s", *configPath)
	config, err := meta.ParseConfig(*configPath)
	if err != nil {
		panic(err)
	}

	// Configure error reporting
	if config.Application != nil && config.Application.SentryDSN != "" {
		raven.SetDSN(config.Application.SentryDSN)
		raven.SetRelease(meta.VersionString())
	}

	// Configure metrics reporting
	var (
		cxLifecycleHooks metrics.MultiConnectionLifecycleHook
		commandHooks     metrics.MultiCommandHook
		pipelineHooks    metrics.MultiPipelineHook
	)

	if config.Metrics != nil && config.Metrics.Statsd != nil {
		logger.Info(
			"main: configuring statsd metrics reporting: addr=%s sample_rate=%f",
			config.Metrics.Statsd.Address,
			config.Metrics.Statsd.SampleRate,
		)

		cxLifecycleHook, err := metrics.NewAsyncStatsdConnectionLifecycleHook(
			"client",
			config.Metrics.Statsd.Address,
			config.Metrics.Statsd.SampleRate,
		)
		if err != nil {
			panic(err)
		}

		commandHook, err := metrics.NewAsyncStatsdCommandHook(
			config.Metrics.Statsd.Address,
			config.Metrics.Statsd.SampleRate,
		)
		if err != nil {
			panic(err)
		}

		pipelineHook, err := metrics.NewAsyncStatsdPipelineHook(
			config.Metrics.Statsd.Address,
			config.Metrics.Statsd.SampleRate,
		)
		if err != nil {
			panic(err)
		}

		cxLifecycleHooks = append(cxLifecycleHooks, cxLifecycleHook)
		commandHooks = append(commandHooks, commandHook)
		pipelineHooks = append(pipelineHooks, pipelineHook)
	}

	if config.Metrics != nil && config.Metrics.Prometheus != nil {
		logger.Info(
			"main: configuring prometheus metrics endpoint: addr=%s",
			config.Metrics.Prometheus.Address,
		)

		registry := prometheus.NewRegistry()
		hook, err := metrics.NewPrometheusHook(registry)
		if err != nil {
			panic(err)
		}

		cxLifecycleHooks = append(cxLifecycleHooks, hook)
		commandHooks = append(commandHooks, hook)
		pipelineHooks = append(pipelineHooks, hook)

		go func() {
			handler := metrics.NewPrometheusHandler(registry)
			if err := http.ListenAndServe(config.Metrics.Prometheus.Address, handler); err != nil {
				panic(err)
			}
		}()
	}

	if len(cxLifecycleHooks) == 0 {
		logger.Warn("main: no metrics output engine specified; disabling metrics")
	}

	// Configure the TXT record resolver
	lbPolicy, ok := resolver.ParseLoadBalancingPolicy(config.Resolver.LoadBalancingPolicy)
	if !ok && config.Resolver.LoadBalancingPolicy != "" {
		logger.Warn(
			"main: unknown load balancing policy; use default: supplied=%s default=%s",
			config.Resolver.LoadBalancingPolicy,
			lbPolicy,
		)
	}

	txtResolver, err := resolver.NewDNSResolver(resolver.DNSResolverOpts{
		Nameservers:         config.Resolver.Nameservers,
		ResolvConf:          config.Resolver.ResolvConf,
		LoadBalancingPolicy: lbPolicy,
		Net:                 config.Resolver.Net,
		Timeout:             config.Resolver.Timeout,
	}, logger)
	if err != nil {
		panic(err)
	}

	logger.Debug("main: using load balancing policy for nameserver selection: policy=%s", lbPolicy)

	// Configure the policy resolution pipeline and the command protocol
	stats := metrics.NewStats()

	pipeline := &sts.Pipeline{
		Resolver: txtResolver,
		Fetcher: sts.NewFetcher(sts.FetcherOpts{
			Scheme:  config.Fetcher.Scheme,
			Timeout: config.Fetcher.Timeout,
		}),
		Hook:   pipelineHooks,
		Stats:  stats,
		Logger: logger,
	}

	h := &protocol.Handler{
		Dispatcher: &protocol.Dispatcher{
			Resolver: pipeline,
			Stats:    stats,
			Hook:     commandHooks,
			Logger:   logger,
			Version:  meta.VersionString(),
		},
		Stats:         stats,
		Logger:        logger,
		MaxLineLength: config.Listener.TCP.MaxLineLength,
	}

	// Configure the server listener
	logger.Info(
		"main: configuring TCP server listener: addr=%s",
		config.Listener.TCP.Address,
	)

	tcpServer := network.NewTCPServer(
		config.Listener.TCP.Address,
		network.NewIDSource(),
		cxLifecycleHooks,
		network.TCPServerOpts{
			ReadTimeout:  config.Listener.TCP.ReadTimeout,
			WriteTimeout: config.Listener.TCP.WriteTimeout,
		},
	)

	// Serve indefinitely; failing to bind is fatal
	logger.Info("main: serving indefinitely")
	if err := tcpServer.ListenAndServe(h); err != nil {
		panic(err)
	}
}

// envOrDefault reads an environment variable, falling back to def if it is unset or empty.
func envOrDefault(key string, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return def
}

// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"
	"github.com/redis/go-redis/v9"
	"github.com/sanity-io/litter"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-table-manager/pkg/bus"
	"github.com/AccelByte/extend-table-manager/pkg/config"
	"github.com/AccelByte/extend-table-manager/pkg/constants"
	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/gateway"
	"github.com/AccelByte/extend-table-manager/pkg/maintainer"
	"github.com/AccelByte/extend-table-manager/pkg/metrics"
	"github.com/AccelByte/extend-table-manager/pkg/notifier"
	"github.com/AccelByte/extend-table-manager/pkg/ports"
	"github.com/AccelByte/extend-table-manager/pkg/process"
	"github.com/AccelByte/extend-table-manager/pkg/store"
	"github.com/AccelByte/extend-table-manager/pkg/tablemanager"
	"github.com/AccelByte/extend-table-manager/pkg/tablequeue"
)

const serviceName = "table-manager"

const usage = `usage: tablemanager [command] [flags]

commands:
  maintain   run the maintainer and request listener (default)
  enqueue    -match ID [-options "dealer options"]
  kill       -match ID
  status     [-v] show waiting and running matches per game
  gateway    serve the websocket bridge to proxies
`

func main() {
	command := "maintain"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	if err := envelope.SetupLogging(cfg.LogLevel); err != nil {
		logrus.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "maintain":
		err = runMaintain(ctx, cfg)
	case "enqueue":
		err = runEnqueue(ctx, cfg, args)
	case "kill":
		err = runKill(ctx, cfg, args)
	case "status":
		err = runStatus(cfg, args)
	case "gateway":
		err = runGateway(ctx, cfg)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logrus.WithError(err).Error(command + " failed")
		os.Exit(1)
	}
}

func newRedisBus(cfg *config.Config) (*redis.Client, *bus.RedisBus) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return client, bus.NewRedisBus(client)
}

func runMaintain(ctx context.Context, cfg *config.Config) error {
	shutdown, err := envelope.SetupTracing(serviceName, cfg.ZipkinURL)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	scope := envelope.NewRootScope(ctx, "tablemanager.Maintain", "")
	defer scope.Finish()

	exhibition, err := config.LoadExhibition(cfg.ExhibitionFile)
	if err != nil {
		return err
	}

	matchStore, err := store.Open(scope, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer matchStore.Close()

	client, redisBus := newRedisBus(cfg)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	errorReporter := notifier.NewBusNotifier(redisBus, constants.ErrorReportChannel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tableMetrics := metrics.NewMetrics(registry)
	go serveMetrics(cfg.MetricsAddr, registry)

	supervisor := process.NewOSSupervisor(cfg.SpawnTimeout(), cfg.KillGrace(), tableMetrics)
	ledger := ports.NewLedger(ports.NewAllocator(exhibition.SpecialPortsToDealer, ports.ListenProbe{Host: cfg.DealerHost}))
	launcher := tablequeue.Launcher{
		Supervisor:        supervisor,
		DealerCommand:     cfg.DealerCommand,
		ProxyCommand:      cfg.ProxyCommand,
		ConfigReference:   cfg.ExhibitionFile,
		DealerHost:        cfg.DealerHost,
		LogDirectory:      cfg.LogDirectory,
		MatchLogDirectory: cfg.MatchLogDirectory,
	}

	queues := make(map[string]maintainer.Queue, len(exhibition.Games))
	for _, key := range exhibition.GameKeys() {
		game, _ := exhibition.Game(key)
		queue, err := tablequeue.New(scope, tablequeue.Options{
			GameType:   key,
			Game:       game,
			Store:      matchStore,
			Ledger:     ledger,
			Launcher:   launcher,
			StateFile:  &store.QueueStateFile{Directory: cfg.DataDirectory},
			Metrics:    tableMetrics,
			RetryDelay: cfg.PortRetryDelay(),
			Lifespan:   cfg.MatchLifespan(),
		})
		if err != nil {
			return err
		}
		defer queue.Close()
		queues[key] = queue
	}

	m := maintainer.New(maintainer.Options{
		Queues:     queues,
		Store:      matchStore,
		Supervisor: supervisor,
		Notifier:   errorReporter,
		Retention:  cfg.MatchRetention(),
	})

	listener := &tablemanager.Listener{
		Bus:         redisBus,
		Channel:     constants.TableManagerChannel,
		Manager:     tablemanager.New(m, errorReporter),
		PollTimeout: cfg.MaintenanceInterval(),
	}
	go func() {
		if err := listener.Run(ctx); err != nil {
			scope.Log.WithError(err).Error("request listener stopped")
		}
	}()

	scope.Log.WithFields(logrus.Fields{
		"games":    exhibition.GameKeys(),
		"interval": cfg.MaintenanceInterval().String(),
	}).Info("table manager started")
	m.Run(ctx, scope, cfg.MaintenanceInterval())
	scope.Log.Info("table manager stopped")

	return nil
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logrus.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Error("metrics server stopped")
	}
}

func runEnqueue(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	matchID := fs.String("match", "", "id of a saved match")
	options := fs.String("options", "", "dealer options, defaults to the table manager's")
	_ = fs.Parse(args)

	return submit(ctx, cfg, constants.StartMatchRequest, *matchID, *options)
}

func runKill(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("kill", flag.ExitOnError)
	matchID := fs.String("match", "", "id of the match to kill")
	_ = fs.Parse(args)

	return submit(ctx, cfg, constants.KillMatchRequest, *matchID, "")
}

func submit(ctx context.Context, cfg *config.Config, request, matchID, options string) error {
	if matchID == "" {
		return fmt.Errorf("-match is required")
	}

	client, redisBus := newRedisBus(cfg)
	defer client.Close()

	params := map[string]string{constants.MatchIDKey: matchID}
	if options != "" {
		params[constants.OptionsKey] = options
	}
	scope := envelope.NewRootScope(ctx, "tablemanager.Submit", "")
	defer scope.Finish()

	if err := tablemanager.Submit(ctx, redisBus, constants.TableManagerChannel, tablemanager.Request{
		Request: request,
		Params:  params,
		TraceID: scope.TraceID,
	}); err != nil {
		return err
	}
	pterm.Success.Printfln("%s submitted for %s", request, matchID)

	return nil
}

func runStatus(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	verbose := fs.Bool("v", false, "dump the raw queue state")
	_ = fs.Parse(args)

	exhibition, err := config.LoadExhibition(cfg.ExhibitionFile)
	if err != nil {
		return err
	}

	stateFile := store.QueueStateFile{Directory: cfg.DataDirectory}
	rows := pterm.TableData{{"Game", "Match", "State", "Dealer PID", "Ports", "Started"}}
	for _, key := range exhibition.GameKeys() {
		state, err := stateFile.Load(key)
		if err != nil {
			return err
		}
		for _, entry := range state.Running {
			rows = append(rows, []string{
				key, entry.MatchID, "running", strconv.Itoa(entry.DealerPID),
				fmt.Sprint(entry.PortNumbers), entry.StartedAt.Format(time.RFC3339),
			})
		}
		for _, entry := range state.Waiting {
			rows = append(rows, []string{key, entry.MatchID, "waiting", "", "", ""})
		}
		if *verbose {
			pterm.DefaultSection.Println(key)
			fmt.Println(litter.Sdump(state))
		}
	}

	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runGateway(ctx context.Context, cfg *config.Config) error {
	shutdown, err := envelope.SetupTracing(serviceName+"-gateway", cfg.ZipkinURL)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	client, redisBus := newRedisBus(cfg)
	defer client.Close()

	server := &http.Server{
		Addr:              cfg.GatewayAddr,
		Handler:           gateway.NewServer(redisBus, cfg.MaintenanceInterval()).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logrus.WithField("addr", cfg.GatewayAddr).Info("serving proxy gateway")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

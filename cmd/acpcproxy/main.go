// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-table-manager/pkg/acpc"
	"github.com/AccelByte/extend-table-manager/pkg/bus"
	"github.com/AccelByte/extend-table-manager/pkg/config"
	"github.com/AccelByte/extend-table-manager/pkg/constants"
	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/models"
	"github.com/AccelByte/extend-table-manager/pkg/notifier"
	"github.com/AccelByte/extend-table-manager/pkg/proxy"
	"github.com/AccelByte/extend-table-manager/pkg/store"
)

func main() {
	exhibitionFile := flag.String("t", "", "exhibition config the match was started under")
	proxyID := flag.String("i", "", "proxy id, <match id>.<seat>")
	port := flag.Int("p", 0, "dealer port for this seat")
	seat := flag.Int("s", 0, "seat, 1-based")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	if err := envelope.SetupLogging(cfg.LogLevel); err != nil {
		logrus.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *exhibitionFile, *proxyID, *port, *seat); err != nil {
		logrus.WithError(err).WithField("proxyID", *proxyID).Error("proxy failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, exhibitionFile, proxyID string, port, seat int) error {
	matchID, idSeat, err := models.ParseProxyID(proxyID)
	if err != nil {
		return err
	}
	if seat != 0 && seat != idSeat {
		return fmt.Errorf("seat %d does not match proxy id %s", seat, proxyID)
	}
	if port <= 0 {
		return fmt.Errorf("dealer port is required")
	}

	shutdown, err := envelope.SetupTracing("acpc-proxy", cfg.ZipkinURL)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	scope := envelope.NewRootScope(ctx, "acpcproxy.Main", "")
	defer scope.Finish()
	scope.Log = scope.Log.WithField("proxyID", proxyID)

	if exhibitionFile == "" {
		exhibitionFile = cfg.ExhibitionFile
	}
	exhibition, err := config.LoadExhibition(exhibitionFile)
	if err != nil {
		return err
	}

	matchStore, err := store.Open(scope, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer matchStore.Close()

	match, err := matchStore.Find(scope, matchID)
	if err != nil {
		return err
	}
	if _, err := exhibition.Game(match.GameDefinitionKey); err != nil {
		return err
	}
	gameDef, err := acpc.LoadGameDef(match.GameDefinitionFile)
	if err != nil {
		return err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()
	redisBus := bus.NewRedisBus(client)

	dealer, err := acpc.Dial(ctx, cfg.DealerHost, port, cfg.MustSendReady)
	if err != nil {
		return err
	}

	p, err := proxy.New(proxy.Options{
		ID:             proxyID,
		MatchID:        matchID,
		PlayerNames:    match.PlayerNames(),
		NumHands:       match.NumberOfHands,
		GameDef:        gameDef,
		Dealer:         dealer,
		Communicator:   proxy.NewCommunicator(redisBus, proxyID),
		Store:          matchStore,
		Notifier:       notifier.NewBusNotifier(redisBus, constants.ErrorReportChannel),
		ReceiveTimeout: cfg.MaintenanceInterval(),
		ActionTimeout:  cfg.ProxyTimeout(),
		OnTimeout:      cfg.OnProxyTimeout,
	})
	if err != nil {
		_ = dealer.Close()
		return err
	}

	scope.Log.WithFields(logrus.Fields{
		envelope.MatchIDLogField: matchID,
		"port":                   port,
	}).Info("proxy connected to dealer")

	return p.Run(scope)
}

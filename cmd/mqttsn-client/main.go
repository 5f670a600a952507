package main

import (
	"errors"
	"flag"
	"os"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/app"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/config"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/database"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/event"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/influxdb"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/sensor"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/transport"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.ReadConfig(*configPath)
	if err != nil {
		logger.FatalF("Error occured while reading config %v", err)
		os.Exit(1)
	}
	loggerCallback := logger.Init(cfg)
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner()
	ctx := cleaner.Init(loggerCallback)
	defer cleaner.Clean()

	reporter := event.NewReporter(event.LogSink{})

	store, err := database.ConnectDatabase(cfg.Database, cfg.AppName)
	switch {
	case err == nil:
		reporter.Add(store)
		cleaner.Add(store)
	case errors.Is(err, database.ErrDisabled):
		logger.Debug("Outcome journal disabled")
	default:
		logger.ErrorF("Outcome journal unavailable, continuing without it: %v", err)
	}

	metrics, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case err == nil:
		reporter.Add(metrics)
		cleaner.Add(metrics)
	case errors.Is(err, influxdb.ErrDisabled):
		logger.Debug("Outcome metrics disabled")
	default:
		logger.ErrorF("Outcome metrics unavailable, continuing without them: %v", err)
	}

	udp, err := transport.ListenUDP(cfg.Client.LocalPort)
	if err != nil {
		logger.FatalF("Error occured while opening UDP socket, details: %v", err)
		return
	}
	cleaner.Add(udp)
	logger.InfoF("Listening on %s", udp.LocalAddr())

	client, err := app.New(cfg, udp, reporter, sensor.NewGenerator("1", 0))
	if err != nil {
		logger.FatalF("Error occured while initializing client, details: %v", err)
		return
	}
	cleaner.Add(client.Session())

	if err := client.Run(ctx); err != nil {
		logger.ErrorF("Client stopped: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i4.energy/across/simmqtt/modem"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML or TOML configuration file")
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("reset-pin", "none", "Modem-control line wired to the modem reset input (dtr, rts, none)")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("apn", "internet", "Access point name of the cellular data bearer")
	flag.String("broker-host", "", "MQTT broker host name or address")
	flag.Int("broker-port", 1883, "MQTT broker TCP port")
	flag.String("client-id", "simmqtt", "MQTT client identifier")
	flag.String("username", "", "MQTT user name")
	flag.String("password", "", "MQTT password")
	flag.Duration("keep-alive", 60*time.Second, "MQTT keep-alive interval")
	flag.String("topic", "", "Topic to subscribe to once connected")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := config.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	resetPin, err := modem.ParseResetPin(config.ResetPin)
	if err != nil {
		logger.Error("Invalid reset pin", "error", err)
		os.Exit(1)
	}

	bridge := NewBridge(logger.With("component", "bridge"), config)

	modemConfig, err := modem.NewConfigBuilder().
		WithLogger(logger).
		WithHandler(bridge).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
			ResetPin: resetPin,
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}
	bridge.Session = m

	logger.Info("Starting MQTT bridge", "serial_port", config.SerialPort, "broker", config.BrokerHost, "reset_pin", resetPin)

	loopErr := make(chan error, 1)
	go func() { loopErr <- m.Loop(ctx) }()
	go bridge.KeepAlive(ctx, config.KeepAlive)

	if err := bridge.Start(); err != nil {
		logger.Error("Failed to start bring-up", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger: logger.With("component", "server"),
			Bridge: bridge,
		},
	}

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-loopErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Modem loop stopped", "error", err)
		}
	}

	logger.Info("Closing modem connection")
	if m.IsMQTTConnected() {
		if err := m.Disconnect(); err != nil {
			logger.Warn("Failed to disconnect", "error", err)
		}
	}
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
}

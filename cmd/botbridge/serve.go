package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"botbridge/internal/adapter/facebook"
	"botbridge/internal/adapter/socket"
	"botbridge/internal/adapter/twilio"
	"botbridge/internal/adapter/twitter"
	"botbridge/internal/client"
	"botbridge/internal/config"
	"botbridge/internal/events"
	"botbridge/internal/httpapi"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var echo bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge server with every enabled adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(echo)
		},
	}
	cmd.Flags().BoolVar(&echo, "echo", false, "register a demo handler that echoes every message back")
	return cmd
}

func runServe(echo bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", configPath, "err", err)
		cfg = config.Defaults()
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := httpapi.NewServer(cfg.ListenAddr, logger)

	clients, err := buildClients(cfg)
	if err != nil {
		return err
	}
	if len(clients) == 0 {
		logger.Warn("no adapters enabled; serving an empty mux")
	}

	for _, c := range clients {
		if _, err := c.Attach(host); err != nil {
			return err
		}
		if echo {
			registerEcho(c)
		}
		go func(c *client.Client) {
			if err := c.Start(ctx); err != nil {
				logger.Error("adapter stopped", "adapter", c.Adapter().Name(), "err", err)
			}
		}(c)
	}

	return host.Start(ctx)
}

func buildClients(cfg config.Config) ([]*client.Client, error) {
	var clients []*client.Client
	opts := []client.Option{client.WithLogger(logger)}

	if cfg.Facebook.Enabled {
		clients = append(clients, client.New(facebook.New(cfg.Facebook), opts...))
	}
	if cfg.Twilio.Enabled {
		clients = append(clients, client.New(twilio.New(cfg.Twilio), opts...))
	}
	if cfg.Twitter.Enabled {
		clients = append(clients, client.New(twitter.New(cfg.Twitter), opts...))
	}
	if cfg.WebSocket.Enabled {
		clients = append(clients, client.New(socket.New(cfg.WebSocket), opts...))
	}
	return clients, nil
}

func registerEcho(c *client.Client) {
	c.On(events.MessageReceived, func(ctx context.Context, ev events.Event) error {
		if ev.Update == nil || ev.Update.Message.Text == "" {
			return nil
		}
		_, err := ev.Session.Reply(ctx, ev.Update.Message.Text)
		return err
	})
}

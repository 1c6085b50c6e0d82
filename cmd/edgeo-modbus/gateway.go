package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/modbus/internal/gateway"
)

var (
	gatewayListen  string
	gatewayPublish []string
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Serve tags over HTTP and websocket",
	Long: `Gateway exposes the device's tags over HTTP:

  GET  /tags/{tag}                        read a tag
  PUT  /tags/{tag}  {"value": ...}        write a tag
  GET  /stream?tag=...&interval=500ms     websocket stream of readings

Examples:
  edgeo-modbus gateway -H 192.168.1.10 --listen :8080
  curl localhost:8080/tags/4x00001:REAL`,

	RunE: runGateway,
}

func init() {
	gatewayCmd.Flags().StringVar(&gatewayListen, "listen", ":8080", "HTTP listen address")
	gatewayCmd.Flags().StringSliceVar(&gatewayPublish, "publish", nil, "Sink URLs readings are forwarded to")
}

func runGateway(cmd *cobra.Command, args []string) error {
	client, err := createClient()
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	var opts []gateway.Option
	opts = append(opts, gateway.WithRequestTimeout(timeout*time.Duration(retries+1)))
	if len(gatewayPublish) > 0 {
		out, err := openSinks(ctx, gatewayPublish)
		if err != nil {
			return fmt.Errorf("open sink: %w", err)
		}
		defer out.Close()
		opts = append(opts, gateway.WithSink(out))
	}

	srv := &http.Server{
		Addr:              gatewayListen,
		Handler:           gateway.New(client, logger, opts...).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening", "address", gatewayListen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/modbus/modbus"
)

var (
	serveListen string
	serveUnit   uint8
)

var serveMockCmd = &cobra.Command{
	Use:   "serve-mock",
	Short: "Run an in-memory Modbus/UMAS device",
	Long: `Serve-mock runs a simulated device on a TCP port, answering Modbus TCP
and UMAS requests. All tables start zeroed.

Examples:
  edgeo-modbus serve-mock --listen 127.0.0.1:1502
  edgeo-modbus read -H 127.0.0.1 -p 1502 4x00001`,

	RunE: runServeMock,
}

func init() {
	serveMockCmd.Flags().StringVar(&serveListen, "listen", "127.0.0.1:1502", "TCP listen address")
	serveMockCmd.Flags().Uint8Var(&serveUnit, "unit-filter", 0, "Answer only this unit identifier (0 answers all)")
}

func runServeMock(cmd *cobra.Command, args []string) error {
	ln, err := net.Listen("tcp", serveListen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	dev := modbus.NewMockDevice()
	dev.SetLogger(logger)
	dev.SetUnitID(serveUnit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		ln.Close()
	}()

	logger.Info("mock device listening", "address", ln.Addr().String())
	return dev.Serve(ln)
}

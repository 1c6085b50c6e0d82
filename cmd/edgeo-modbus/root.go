// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo/drivers/modbus/modbus"
)

var (
	cfgFile   string
	host      string
	port      int
	protocol  string
	unitID    uint8
	timeout   time.Duration
	retries   int
	byteOrder string
	outputFmt string
	verbose   bool
	tagsFile  string
	useMock   bool

	serialDevice string
	baudRate     int
	dataBits     int
	stopBits     int
	parity       string

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "edgeo-modbus",
	Short: "A Modbus TCP/RTU/ASCII and UMAS client CLI",
	Long: `edgeo-modbus is a command-line tool for communicating with Modbus devices
and Schneider controllers speaking UMAS.

Tags are addressed with the usual Modbus notation:
  4x00001:REAL      holding register 1 as a 32-bit float
  400010:INT:5      five 16-bit integers from holding register 10
  0x00003           coil 3
  coil:1:BOOL:8     eight coils starting at coil 1
  6x10001:DINT      extended register (file record)

Examples:
  # Read a holding register as a float
  edgeo-modbus read -H 192.168.1.10 4x00001:REAL

  # Write a coil over RTU
  edgeo-modbus write --protocol rtu --serial /dev/ttyUSB0 -u 1 0x00001 true

  # Poll tags and publish them to NATS
  edgeo-modbus watch -H plc1 4x00001:REAL 4x00003:INT --publish nats://localhost:4222/plant

  # Browse the symbols of a UMAS controller
  edgeo-modbus umas browse -H m340`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := slog.LevelInfo
		if verbose {
			logLevel = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))

		if tagsFile != "" {
			if err := loadTagFile(tagsFile); err != nil {
				return fmt.Errorf("load tags: %w", err)
			}
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.edgeo-modbus.yaml)")
	pf.StringVarP(&host, "host", "H", "localhost", "Device host name or IP address")
	pf.IntVarP(&port, "port", "p", modbus.DefaultPort, "Modbus TCP port")
	pf.StringVar(&protocol, "protocol", "tcp", "Protocol (tcp, rtu, ascii, umas)")
	pf.Uint8VarP(&unitID, "unit", "u", 1, "Unit identifier / slave address")
	pf.DurationVarP(&timeout, "timeout", "t", 3*time.Second, "Request timeout")
	pf.IntVar(&retries, "retries", 2, "Number of retries after a timeout")
	pf.StringVar(&byteOrder, "byte-order", "big-endian", "Register byte order (abcd, dcba, badc, cdab)")
	pf.StringVarP(&outputFmt, "output", "o", "table", "Output format (table, json, csv, raw)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	pf.StringVar(&tagsFile, "tags", "", "TOML file with tag aliases")
	pf.BoolVar(&useMock, "mock", false, "Talk to an in-memory mock device")
	pf.StringVar(&serialDevice, "serial", "/dev/ttyUSB0", "Serial device for RTU and ASCII")
	pf.IntVar(&baudRate, "baud", 19200, "Serial baud rate")
	pf.IntVar(&dataBits, "data-bits", 8, "Serial data bits")
	pf.IntVar(&stopBits, "stop-bits", 1, "Serial stop bits")
	pf.StringVar(&parity, "parity", "E", "Serial parity (N, E, O)")

	for _, name := range []string{
		"host", "port", "protocol", "unit", "timeout", "retries", "byte-order",
		"output", "verbose", "tags", "serial", "baud", "data-bits", "stop-bits", "parity",
	} {
		viper.BindPFlag(name, pf.Lookup(name))
	}

	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(identCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(umasCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(serveMockCmd)
	rootCmd.AddCommand(interactiveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".edgeo-modbus")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MODBUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	// values from the config file and environment fill unset flags
	host = viper.GetString("host")
	port = viper.GetInt("port")
	protocol = viper.GetString("protocol")
	unitID = uint8(viper.GetUint("unit"))
	timeout = viper.GetDuration("timeout")
	retries = viper.GetInt("retries")
	byteOrder = viper.GetString("byte-order")
	outputFmt = viper.GetString("output")
	verbose = viper.GetBool("verbose")
	tagsFile = viper.GetString("tags")
	serialDevice = viper.GetString("serial")
	baudRate = viper.GetInt("baud")
	dataBits = viper.GetInt("data-bits")
	stopBits = viper.GetInt("stop-bits")
	parity = viper.GetString("parity")
}

// mockDevice backs --mock; it is shared so that writes stay visible
var mockDevice *modbus.MockDevice

// clientOptions builds the options of the current configuration
func clientOptions(unit uint8) ([]modbus.Option, error) {
	driver, ok := modbus.ParseDriverType(protocol)
	if !ok {
		return nil, fmt.Errorf("unknown protocol %q", protocol)
	}
	order, err := modbus.ParseByteOrder(byteOrder)
	if err != nil {
		return nil, err
	}

	opts := []modbus.Option{
		modbus.WithProtocol(driver),
		modbus.WithUnitID(unit),
		modbus.WithTimeout(timeout),
		modbus.WithRetries(retries),
		modbus.WithByteOrder(order),
		modbus.WithLogger(logger),
	}
	if driver == modbus.DriverRTU || driver == modbus.DriverASCII {
		opts = append(opts, modbus.WithSerial(modbus.SerialConfig{
			BaudRate: baudRate,
			DataBits: dataBits,
			StopBits: stopBits,
			Parity:   parity,
		}))
	}
	if useMock {
		if mockDevice == nil {
			mockDevice = modbus.NewMockDevice()
			mockDevice.SetLogger(logger)
		}
		opts = append(opts, modbus.WithMockDevice(mockDevice))
	}
	return opts, nil
}

func clientAddress() string {
	switch strings.ToLower(protocol) {
	case "rtu", "modbus-rtu", "ascii", "modbus-ascii":
		return serialDevice
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// createClient creates a Modbus client with current configuration
func createClient() (*modbus.Client, error) {
	return createClientFor(unitID)
}

func createClientFor(unit uint8) (*modbus.Client, error) {
	opts, err := clientOptions(unit)
	if err != nil {
		return nil, err
	}
	return modbus.NewClient(clientAddress(), opts...)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("edgeo-modbus version 1.0.0")
	},
}

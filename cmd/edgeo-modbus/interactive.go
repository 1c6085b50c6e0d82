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
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/modbus/modbus"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start an interactive Modbus session",
	Long: `Interactive mode provides a REPL for exploring Modbus devices.

Commands:
  read <tag>...                 - Read tags
  write <tag> <value>...        - Write a tag
  ident                         - Show device identification
  unit <id>                     - Switch unit identifier
  metrics                       - Show client metrics
  help                          - Show help
  exit                          - Exit interactive mode

Examples:
  modbus[1]> read 4x00001:REAL 0x00001
  modbus[1]> write 4x00010:INT 42
  modbus[1]> unit 17
  modbus[17]> ident`,

	RunE: runInteractive,
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	currentUnit := unitID

	client, err := interactiveConnect(ctx, currentUnit)
	if err != nil {
		return err
	}
	defer func() { client.Close() }()

	fmt.Println("Modbus Interactive Shell")
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("modbus[%d]> ", currentUnit)

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		command := strings.ToLower(parts[0])

		switch command {
		case "exit", "quit", "q":
			fmt.Println("Goodbye!")
			return nil

		case "help", "?":
			printInteractiveHelp()

		case "read":
			if len(parts) < 2 {
				fmt.Println("Usage: read <tag>...")
				continue
			}
			runInteractiveRead(ctx, client, parts[1:])

		case "write":
			if len(parts) < 3 {
				fmt.Println("Usage: write <tag> <value>...")
				continue
			}
			runInteractiveWrite(ctx, client, parts[1], parts[2:])

		case "ident", "info":
			runInteractiveIdent(ctx, client)

		case "unit":
			if len(parts) < 2 {
				fmt.Println("Usage: unit <id>")
				continue
			}
			id, err := strconv.ParseUint(parts[1], 0, 8)
			if err != nil {
				fmt.Println("Invalid unit ID")
				continue
			}
			next, err := interactiveConnect(ctx, uint8(id))
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			client.Close()
			client, currentUnit = next, uint8(id)
			fmt.Printf("Selected unit %d\n", currentUnit)

		case "metrics":
			runInteractiveMetrics(client)

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", command)
		}
	}

	return nil
}

func interactiveConnect(ctx context.Context, unit uint8) (*modbus.Client, error) {
	client, err := createClientFor(unit)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout*2)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return client, nil
}

func printInteractiveHelp() {
	fmt.Print(`
Available commands:
  read <tag>...              Read one or more tags
  write <tag> <value>...     Write a tag, one value per element
  ident                      Show device identification
  unit <id>                  Switch to another unit identifier
  metrics                    Show client metrics
  help                       Show this help message
  exit                       Exit interactive mode

Tag format: <area><address>[:<type>[:<quantity>]]
  Examples: 4x00001:REAL, 400010:INT:4, 0x00003, coil:1:BOOL:8

Areas:
  0x = coils
  1x = discrete inputs
  3x = input registers
  4x = holding registers
  6x = extended registers
` + "\n")
}

func runInteractiveRead(ctx context.Context, client *modbus.Client, tags []string) {
	readCtx, cancel := context.WithTimeout(ctx, timeout*time.Duration(len(tags)+1))
	defer cancel()

	for _, r := range readTags(readCtx, client, tags) {
		if r.Error != "" {
			fmt.Printf("%s: error: %s\n", r.Tag, r.Error)
			continue
		}
		fmt.Printf("%s = %s\n", r.Tag, formatValue(r.Value))
	}
}

func runInteractiveWrite(ctx context.Context, client *modbus.Client, name string, words []string) {
	tag, err := modbus.ParseModbusTag(resolveTag(name))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	value, err := tagValue(tag.DataType, tag.Quantity, words)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.WriteModbusTag(writeCtx, tag, value); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("OK: %s = %s\n", name, formatValue(value))
}

func runInteractiveIdent(ctx context.Context, client *modbus.Client) {
	identCtx, cancel := context.WithTimeout(ctx, timeout*4)
	defer cancel()

	info, order, err := identify(identCtx, client, modbus.DeviceIDRegular)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println()
	for _, name := range order {
		fmt.Printf("  %-20s: %s\n", name, formatValue(info[name]))
	}
	fmt.Println()
}

func runInteractiveMetrics(client *modbus.Client) {
	m := client.Metrics().Snapshot()

	fmt.Println("\nClient Metrics:")
	fmt.Printf("  Uptime:              %s\n", m.Uptime.Round(time.Second))
	fmt.Printf("  Requests Sent:       %d\n", m.RequestsSent)
	fmt.Printf("  Requests Succeeded:  %d\n", m.RequestsSucceeded)
	fmt.Printf("  Requests Failed:     %d\n", m.RequestsFailed)
	fmt.Printf("  Requests Timed Out:  %d\n", m.RequestsTimedOut)
	fmt.Printf("  Retries:             %d\n", m.Retries)
	fmt.Printf("  Exceptions:          %d\n", m.ExceptionsReceived)
	fmt.Printf("  Bytes Sent:          %d\n", m.BytesSent)
	fmt.Printf("  Bytes Received:      %d\n", m.BytesReceived)

	if m.LatencyStats.Count > 0 {
		fmt.Printf("  Avg Latency:         %s\n", m.LatencyStats.Avg.Round(time.Microsecond))
		fmt.Printf("  Min Latency:         %s\n", m.LatencyStats.Min.Round(time.Microsecond))
		fmt.Printf("  Max Latency:         %s\n", m.LatencyStats.Max.Round(time.Microsecond))
	}
	fmt.Println()
}

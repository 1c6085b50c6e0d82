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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/modbus/modbus"
)

var (
	scanFrom    uint8
	scanTo      uint8
	scanTimeout time.Duration
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a line for responding unit identifiers",
	Long: `Scan probes each unit identifier in a range with a read of holding
register 0. A unit answering, even with an exception, is reported.

Examples:
  # Probe the whole RTU address range
  edgeo-modbus scan --protocol rtu --serial /dev/ttyUSB0

  # Probe the units behind a gateway
  edgeo-modbus scan -H 10.0.0.5 --from 1 --to 16 --scan-timeout 200ms`,

	RunE: runScan,
}

func init() {
	scanCmd.Flags().Uint8Var(&scanFrom, "from", 1, "First unit identifier")
	scanCmd.Flags().Uint8Var(&scanTo, "to", 247, "Last unit identifier")
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", 300*time.Millisecond, "Timeout per unit")
}

type scanResult struct {
	Unit      uint8  `json:"unit"`
	Exception string `json:"exception,omitempty"`
	Latency   string `json:"latency"`
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanTo < scanFrom {
		return fmt.Errorf("empty range %d-%d", scanFrom, scanTo)
	}

	// probes do not retry
	savedTimeout, savedRetries := timeout, retries
	timeout, retries = scanTimeout, 0
	defer func() { timeout, retries = savedTimeout, savedRetries }()

	fmt.Fprintf(os.Stderr, "Scanning units %d-%d...\n", scanFrom, scanTo)

	var found []scanResult
	for unit := int(scanFrom); unit <= int(scanTo); unit++ {
		r, ok, err := probeUnit(uint8(unit))
		if err != nil {
			return err
		}
		if ok {
			found = append(found, r)
		}
	}

	if len(found) == 0 {
		fmt.Println("No units found")
		return nil
	}

	switch outputFmt {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(found)
	case "csv":
		fmt.Println("unit,exception,latency")
		for _, r := range found {
			fmt.Printf("%d,%s,%s\n", r.Unit, r.Exception, r.Latency)
		}
	default:
		rows := make([][]string, 0, len(found))
		for _, r := range found {
			rows = append(rows, []string{fmt.Sprint(r.Unit), r.Exception, r.Latency})
		}
		NewFormatter(outputFmt).PrintTable([]string{"UNIT", "EXCEPTION", "LATENCY"}, rows)
		fmt.Printf("\nFound %d unit(s)\n", len(found))
	}
	return nil
}

func probeUnit(unit uint8) (scanResult, bool, error) {
	client, err := createClientFor(unit)
	if err != nil {
		return scanResult{}, false, fmt.Errorf("create client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout*4)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return scanResult{}, false, fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	start := time.Now()
	_, err = client.ReadHoldingRegisters(ctx, 0, 1)
	r := scanResult{Unit: unit, Latency: time.Since(start).Round(time.Microsecond).String()}
	switch {
	case err == nil:
		return r, true, nil
	case modbus.IsException(err):
		r.Exception = err.Error()
		return r, true, nil
	}
	logger.Debug("unit silent", "unit", unit, "error", err)
	return r, false, nil
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/modbus/modbus"
)

var readCmd = &cobra.Command{
	Use:   "read TAG...",
	Short: "Read one or more tags",
	Long: `Read retrieves tag values from a Modbus device.

A tag is <area><address>[:<type>][:<quantity>] or an alias from --tags.
Areas: 0x coil, 1x discrete input, 3x input register, 4x holding register,
6x extended register (file record). Data types:
  BOOL, BYTE, WORD, DWORD, LWORD, SINT, USINT, INT, UINT, DINT, UDINT,
  LINT, ULINT, REAL, LREAL, CHAR, WCHAR, STRING

Examples:
  # Read one holding register
  edgeo-modbus read 4x00001

  # Read a float and eight coils as JSON
  edgeo-modbus read -o json 4x00010:REAL coil:1:BOOL:8

  # Read a little-endian word-swapped value
  edgeo-modbus read --byte-order cdab 400020:DINT`,

	Args: cobra.MinimumNArgs(1),
	RunE: runRead,
}

func runRead(cmd *cobra.Command, args []string) error {
	client, err := createClient()
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout*time.Duration(2+len(args)))
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	results := readTags(ctx, client, args)
	if err := NewFormatter(outputFmt).PrintResults(results); err != nil {
		return err
	}
	for _, r := range results {
		if r.Error != "" {
			return fmt.Errorf("%d of %d reads failed", countFailed(results), len(results))
		}
	}
	return nil
}

func readTags(ctx context.Context, client *modbus.Client, tags []string) []TagResult {
	results := make([]TagResult, 0, len(tags))
	for _, name := range tags {
		readCtx, readCancel := context.WithTimeout(ctx, timeout)
		value, err := client.ReadTag(readCtx, resolveTag(name))
		readCancel()

		r := TagResult{Tag: name, Value: value, Time: time.Now()}
		if err != nil {
			r.Value = nil
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

func countFailed(results []TagResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}

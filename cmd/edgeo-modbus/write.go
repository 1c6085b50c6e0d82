package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/modbus/modbus"
)

var writeCmd = &cobra.Command{
	Use:   "write TAG VALUE...",
	Short: "Write a value to a tag",
	Long: `Write sets a tag on a Modbus device.

Values are converted to the tag's data type. Several values write an
array tag; quote strings containing spaces.
  - Numbers: 123, 45.67, -10, 0x1F
  - Booleans: true, false, on, off
  - Strings: "text value"

Examples:
  # Write a holding register
  edgeo-modbus write 4x00001 1234

  # Write a float
  edgeo-modbus write 4x00010:REAL 75.5

  # Switch a coil on
  edgeo-modbus write 0x00003 on

  # Write three integers
  edgeo-modbus write 4x00020:INT:3 1 2 3`,

	Args: cobra.MinimumNArgs(2),
	RunE: runWrite,
}

func runWrite(cmd *cobra.Command, args []string) error {
	address := resolveTag(args[0])
	tag, err := modbus.ParseModbusTag(address)
	if err != nil {
		return err
	}
	value, err := tagValue(tag.DataType, tag.Quantity, args[1:])
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	client, err := createClient()
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout*2)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	if err := client.WriteModbusTag(ctx, tag, value); err != nil {
		return fmt.Errorf("write %s: %w", args[0], err)
	}

	fmt.Printf("Successfully wrote %s to %s\n", formatValue(value), args[0])
	return nil
}

// tagValue converts command line words for a tag of type t
func tagValue(t modbus.ModbusDataType, quantity int, words []string) (interface{}, error) {
	if t == modbus.ModbusSTRING || t == modbus.ModbusWCHAR {
		return unquote(strings.Join(words, " ")), nil
	}
	return parseWords(quantity, words)
}

// parseWords parses one value, or a slice when the tag spans elements
func parseWords(quantity int, words []string) (interface{}, error) {
	if len(words) == 1 && quantity == 1 {
		return parseValue(words[0])
	}
	if len(words) != quantity {
		return nil, fmt.Errorf("%d values for a tag of %d elements", len(words), quantity)
	}
	values := make([]interface{}, len(words))
	for i, w := range words {
		v, err := parseValue(w)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func parseValue(s string) (interface{}, error) {
	s = strings.TrimSpace(s)

	switch strings.ToLower(s) {
	case "true", "on":
		return true, nil
	case "false", "off":
		return false, nil
	}

	if (strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"")) ||
		(strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'")) {
		return unquote(s), nil
	}

	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(s, 0, 64); err == nil {
		return u, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return nil, fmt.Errorf("cannot parse %q", s)
}

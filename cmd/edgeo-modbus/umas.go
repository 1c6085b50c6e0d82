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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/modbus/modbus"
)

var umasCmd = &cobra.Command{
	Use:   "umas",
	Short: "Talk to a Schneider controller over UMAS",
	Long: `UMAS commands open a session (init comms, identification, project CRC
and symbol table) and then address variables by name.

Variable tags are NAME[index]:TYPE:quantity, for example:
  SPEED             an INT variable
  SP_TEMP:REAL      a REAL variable
  RECIPE[3]:DINT    element 3 of a DINT array

Examples:
  edgeo-modbus umas ident -H m340
  edgeo-modbus umas browse -H m340
  edgeo-modbus umas read -H m340 SPEED SP_TEMP:REAL
  edgeo-modbus umas write -H m340 SP_TEMP:REAL 21.5`,
}

var umasIdentCmd = &cobra.Command{
	Use:   "ident",
	Short: "Show controller identification and memory blocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUmasSession(false, func(ctx context.Context, s *modbus.UmasSession) error {
			comms, err := s.Init(ctx)
			if err != nil {
				return err
			}
			ident, err := s.Ident(ctx)
			if err != nil {
				return err
			}
			status, err := s.Status(ctx)
			if err != nil {
				return err
			}
			info := map[string]interface{}{
				"Hostname":       comms.Hostname,
				"Max Frame Size": comms.MaxFrameSize,
				"Firmware":       fmt.Sprintf("0x%04X", comms.FirmwareVersion),
				"Ident":          fmt.Sprintf("0x%08X", ident.Ident),
				"Model":          fmt.Sprintf("0x%04X", ident.Model),
				"Memory Blocks":  len(ident.MemoryIdents),
				"Project CRC":    fmt.Sprintf("0x%08X", status.ProjectCRC()),
			}
			return NewFormatter(outputFmt).PrintKeyValue(info, []string{
				"Hostname", "Model", "Ident", "Firmware", "Max Frame Size", "Memory Blocks", "Project CRC",
			})
		})
	},
}

var umasBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List the controller's symbol table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUmasSession(true, func(ctx context.Context, s *modbus.UmasSession) error {
			vars, err := s.Browse(ctx)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(vars))
			for _, v := range vars {
				rows = append(rows, []string{
					v.Name,
					v.DataType.String(),
					fmt.Sprint(v.Block),
					fmt.Sprint(v.BaseOffset),
					fmt.Sprint(v.Offset),
				})
			}
			NewFormatter(outputFmt).PrintTable([]string{"NAME", "TYPE", "BLOCK", "BASE", "OFFSET"}, rows)
			return nil
		})
	},
}

var umasReadCmd = &cobra.Command{
	Use:   "read VARIABLE...",
	Short: "Read variables by name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUmasSession(true, func(ctx context.Context, s *modbus.UmasSession) error {
			results := make([]TagResult, 0, len(args))
			for _, name := range args {
				v, err := s.ReadTag(ctx, resolveUmasTag(name))
				r := TagResult{Tag: name, Value: v, Time: time.Now()}
				if err != nil {
					r.Value, r.Error = nil, err.Error()
				}
				results = append(results, r)
			}
			return NewFormatter(outputFmt).PrintResults(results)
		})
	},
}

var umasWriteCmd = &cobra.Command{
	Use:   "write VARIABLE VALUE...",
	Short: "Write a variable by name",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := resolveUmasTag(args[0])
		tag, err := modbus.ParseUmasTag(address)
		if err != nil {
			return err
		}
		var value interface{}
		if tag.DataType == modbus.UmasSTRING {
			value = unquote(args[1])
		} else if value, err = parseWords(tag.Quantity, args[1:]); err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
		return withUmasSession(true, func(ctx context.Context, s *modbus.UmasSession) error {
			if err := s.WriteTag(ctx, address, value); err != nil {
				return err
			}
			fmt.Printf("Successfully wrote %s to %s\n", formatValue(value), args[0])
			return nil
		})
	},
}

func init() {
	umasCmd.AddCommand(umasIdentCmd, umasBrowseCmd, umasReadCmd, umasWriteCmd)
}

// withUmasSession connects with UMAS framing and runs fn; open runs the
// full start-up sequence first.
func withUmasSession(open bool, fn func(context.Context, *modbus.UmasSession) error) error {
	protocol = "umas"
	client, err := createClient()
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout*20)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	s := modbus.NewUmasSession(client)
	if open {
		if err := s.Open(ctx); err != nil {
			return fmt.Errorf("open session: %w", err)
		}
	}
	return fn(ctx, s)
}

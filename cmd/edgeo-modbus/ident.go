package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/edgeo/drivers/modbus/modbus"
)

var identLevel string

var identCmd = &cobra.Command{
	Use:     "ident",
	Aliases: []string{"info"},
	Short:   "Display device identification",
	Long: `Ident reads the device identification objects (function 43/14) and the
server id (function 17) of a device.

Examples:
  # Basic identification
  edgeo-modbus ident -H 192.168.1.10

  # Every object the device exposes, as JSON
  edgeo-modbus ident --level extended -o json`,

	RunE: runIdent,
}

func init() {
	identCmd.Flags().StringVar(&identLevel, "level", "regular", "Access level (basic, regular, extended)")
}

var deviceObjectNames = map[uint8]string{
	modbus.DeviceObjectVendorName:          "Vendor Name",
	modbus.DeviceObjectProductCode:         "Product Code",
	modbus.DeviceObjectMajorMinorRevision:  "Revision",
	modbus.DeviceObjectVendorURL:           "Vendor URL",
	modbus.DeviceObjectProductName:         "Product Name",
	modbus.DeviceObjectModelName:           "Model Name",
	modbus.DeviceObjectUserApplicationName: "Application Name",
}

func parseIdentLevel(s string) (modbus.DeviceIDCode, error) {
	switch s {
	case "basic", "1":
		return modbus.DeviceIDBasic, nil
	case "regular", "2":
		return modbus.DeviceIDRegular, nil
	case "extended", "3":
		return modbus.DeviceIDExtended, nil
	}
	return 0, fmt.Errorf("unknown level %q", s)
}

func runIdent(cmd *cobra.Command, args []string) error {
	level, err := parseIdentLevel(identLevel)
	if err != nil {
		return err
	}

	client, err := createClient()
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout*10)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	info, order, err := identify(ctx, client, level)
	if err != nil {
		return err
	}
	return NewFormatter(outputFmt).PrintKeyValue(info, order)
}

// identify collects identification objects and the server id. A device
// lacking one of the functions still reports the other.
func identify(ctx context.Context, client *modbus.Client, level modbus.DeviceIDCode) (map[string]interface{}, []string, error) {
	info := make(map[string]interface{})
	var order []string

	ident, identErr := client.ReadDeviceIdentification(ctx, level)
	if identErr == nil {
		ids := make([]int, 0, len(ident.Objects))
		for id := range ident.Objects {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		for _, id := range ids {
			name, ok := deviceObjectNames[uint8(id)]
			if !ok {
				name = fmt.Sprintf("Object 0x%02X", id)
			}
			info[name] = ident.Objects[uint8(id)]
			order = append(order, name)
		}
		info["Conformity Level"] = fmt.Sprintf("0x%02X", ident.ConformityLevel)
		order = append(order, "Conformity Level")
	}

	serverID, sidErr := client.ReportServerID(ctx)
	if sidErr == nil {
		info["Server ID"] = fmt.Sprintf("%q", serverID)
		order = append(order, "Server ID")
	}

	if identErr != nil && sidErr != nil {
		return nil, nil, fmt.Errorf("device identification: %w", identErr)
	}
	return info, order, nil
}

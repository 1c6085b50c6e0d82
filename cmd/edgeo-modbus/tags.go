package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// tagFile is the layout of a --tags file:
//
//	[tags]
//	speed = "4x00001:REAL"
//	running = "0x00001"
//
//	[umas]
//	setpoint = "SP_TEMP:REAL"
type tagFile struct {
	Tags map[string]string `toml:"tags"`
	Umas map[string]string `toml:"umas"`
}

var (
	tagAliases  = map[string]string{}
	umasAliases = map[string]string{}
)

func loadTagFile(path string) error {
	var f tagFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%s: unknown keys %v", path, undecoded)
	}
	for name, addr := range f.Tags {
		tagAliases[strings.ToLower(name)] = addr
	}
	for name, addr := range f.Umas {
		umasAliases[strings.ToLower(name)] = addr
	}
	logger.Debug("tag aliases loaded", "modbus", len(f.Tags), "umas", len(f.Umas))
	return nil
}

// resolveTag maps an alias to its address; other names pass through
func resolveTag(name string) string {
	if addr, ok := tagAliases[strings.ToLower(name)]; ok {
		return addr
	}
	return name
}

func resolveUmasTag(name string) string {
	if addr, ok := umasAliases[strings.ToLower(name)]; ok {
		return addr
	}
	return name
}

// chatcache - A local SQLite cache for chat room messages.
// Copyright (C) 2024 Ludvig Rhodin
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package chatcache

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Path is the SQLite file dedicated to the cache.
	Path string `yaml:"path"`

	// Engine selects the storage adapter: "auto" (default) probes dbutil
	// first and falls back to gorm, "dbutil" or "gorm" force one.
	Engine string `yaml:"engine"`

	// MaxMessages bounds the rows kept per room on every save.
	MaxMessages int `yaml:"max_messages"`

	// LoadLimit bounds the rows returned by one load.
	LoadLimit int `yaml:"load_limit"`

	// RetentionDays is the age after which the sweep deletes messages.
	RetentionDays int `yaml:"retention_days"`
}

type umConfig Config

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	err := node.Decode((*umConfig)(c))
	if err != nil {
		return err
	}
	return c.PostProcess()
}

// PostProcess fills in defaults and validates the engine name.
func (c *Config) PostProcess() error {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	switch c.Engine {
	case "":
		c.Engine = EngineAuto
	case EngineAuto, EngineDBUtil, EngineGorm:
	default:
		return fmt.Errorf("unknown cache engine %q", c.Engine)
	}
	if c.Path == "" {
		c.Path = "./data/chatcache.db"
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = DefaultMaxMessages
	}
	if c.LoadLimit <= 0 {
		c.LoadLimit = DefaultLoadLimit
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = DefaultRetentionDays
	}
	return nil
}

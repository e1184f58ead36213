// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2025-2026 Embedfleet Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package main

import (
	"fmt"

	"github.com/mvo5/goconfigparser"

	"github.com/embedfleet/updated/dirs"
	"github.com/embedfleet/updated/osutil"
)

// Settings are the daemon's file-backed configuration.
type Settings struct {
	// Environment picks the verifying key, "production" or "staging".
	Environment string
	// DownloadsDir holds fetched payloads of remote sources.
	DownloadsDir string
	// Recovery runs the recovery installation phase.
	Recovery bool
}

func defaultSettings() *Settings {
	return &Settings{
		Environment:  "production",
		DownloadsDir: dirs.UpdatedStateDir,
	}
}

// loadSettings reads the flat key=value settings file. A missing file
// yields the defaults; a present file only overrides the keys it sets.
func loadSettings(path string) (*Settings, error) {
	if path == "" {
		path = dirs.UpdatedConfFile
	}
	settings := defaultSettings()
	if !osutil.FileExists(path) {
		return settings, nil
	}

	cfg := goconfigparser.New()
	cfg.AllowNoSectionHeader = true
	if err := cfg.ReadFile(path); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %v", path, err)
	}

	if env, err := cfg.Get("", "environment"); err == nil {
		if env != "production" && env != "staging" {
			return nil, fmt.Errorf("cannot use unknown signing environment %q", env)
		}
		settings.Environment = env
	}
	if downloads, err := cfg.Get("", "downloads"); err == nil {
		settings.DownloadsDir = downloads
	}
	if recovery, err := cfg.Getbool("", "recovery"); err == nil {
		settings.Recovery = recovery
	}
	return settings, nil
}

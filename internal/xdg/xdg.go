// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

// Package xdg provides XDG Base Directory paths for Giiku.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "giiku"

// ConfigFileName is the file looked up in ConfigDir when no config path is
// given.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for giiku.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return "", oops.Code("XDG_HOME_UNKNOWN").Wrap(err)
		}
	}
	return filepath.Join(home, ".config", appName), nil
}

// DefaultConfigFile returns ConfigDir/config.yaml if that file exists, or ""
// otherwise.
func DefaultConfigFile() string {
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, ConfigFileName)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}

// Package sydney holds product-wide defaults shared by the sydney-stream packages.
package sydney

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName      = "sydney"
	DefaultDatabaseType = "libsql"
	DefaultLocale       = "en-US"
	DefaultStyle        = "creative"
)

var (
	DefaultConfigPath  = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDatabaseDir = filepath.Join(DefaultConfigPath, "data")
	DefaultDatabaseDSN = filepath.Join(DefaultDatabaseDir, "transcripts.db")
	DefaultCookiesFile = filepath.Join(DefaultConfigPath, "cookies.json")
)

func userConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return dir
}

package config

import (
	"os"
	"path/filepath"
)

// OzziePath returns the broker's data directory: config.jsonc, .env, and
// the age identity secrets.KeyPath seals spelling-sensitive answers with.
// Uses $OZZIE_PATH if set, otherwise defaults to ~/.ozzie.
func OzziePath() string {
	if v := os.Getenv("OZZIE_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".ozzie")
	}
	return filepath.Join(home, ".ozzie")
}

// ConfigPath returns the path to the Ozzie config file.
func ConfigPath() string {
	return filepath.Join(OzziePath(), "config.jsonc")
}

// DotenvPath returns the path to the Ozzie .env file.
func DotenvPath() string {
	return filepath.Join(OzziePath(), ".env")
}

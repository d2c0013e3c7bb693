package tools

import (
	"os"
	"strings"

	"github.com/Mmx233/QLink/config"
)

// Env reads the QLINK_-prefixed variable name, falling back when unset or blank.
func Env(name string, fallback string) string {
	value, ok := os.LookupEnv(config.EnvPrefix + name)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file from the working directory into the process
// environment. Variables already set win. The returned error satisfies
// os.IsNotExist when there is no file.
func LoadEnv() error {
	return godotenv.Load()
}

// Enabled reports whether every one of the named variables is set. Optional
// integrations are switched on this way.
func Enabled(names ...string) bool {
	for _, name := range names {
		if os.Getenv(name) == "" {
			return false
		}
	}
	return len(names) > 0
}

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// CredentialsEnv holds a comma-separated list of backend API keys.
	CredentialsEnv = "GEMINI_API_KEYS"

	// CredentialsFile is the flat key=value fallback read when CredentialsEnv is unset.
	CredentialsFile = "api.env"
)

// LoadDotEnv loads a .env file from the working directory into the process
// environment, if one exists. Existing variables are never overridden.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// LoadCredentials returns the configured credential pool.
//
// CredentialsEnv wins when set. Otherwise each dir is checked for CredentialsFile
// and the first file that defines CredentialsEnv is used. An empty result is valid;
// callers detect it before attempting a generation call.
func LoadCredentials(dirs []string) []string {
	if raw := os.Getenv(CredentialsEnv); strings.TrimSpace(raw) != "" {
		return SplitCredentials(raw)
	}

	for _, dir := range dirs {
		values, err := godotenv.Read(filepath.Join(dir, CredentialsFile))
		if err != nil {
			continue
		}
		if raw := values[CredentialsEnv]; strings.TrimSpace(raw) != "" {
			return SplitCredentials(raw)
		}
	}

	return nil
}

// SplitCredentials splits a comma-separated credential list, trimming whitespace
// and surrounding quotes and dropping blanks. Order is preserved.
func SplitCredentials(raw string) []string {
	raw = strings.Trim(strings.TrimSpace(raw), `"'`)
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		k := strings.Trim(strings.TrimSpace(p), `"'`)
		if k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return keys
}

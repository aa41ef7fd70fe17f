package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret value using the *_FILE convention.
// If envName+"_FILE" is set, the secret is read from that path and trimmed.
// Otherwise the value of envName is returned, which may be empty.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// Credentials are the optional secrets used by the storage and sync backends.
type Credentials struct {
	PostgresPassword string
	MQTTPassword     string
}

// LoadCredentials resolves PGPASSWORD and MQTT_PASSWORD.
// Missing secrets are not an error; unreadable *_FILE paths are.
func LoadCredentials() (Credentials, error) {
	var creds Credentials
	var err error
	if creds.PostgresPassword, err = ResolveSecret("PGPASSWORD"); err != nil {
		return Credentials{}, err
	}
	if creds.MQTTPassword, err = ResolveSecret("MQTT_PASSWORD"); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

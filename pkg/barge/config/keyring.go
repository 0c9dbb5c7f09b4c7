// keyring.go resolves secrets from the OS keyring (Linux Secret Service,
// macOS Keychain, Windows Credential Manager) ahead of environment
// variables and the config file.
package config

import (
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "barge"

	// keyringAPIKey is the key name for the LLM API key.
	keyringAPIKey = "api_key"

	// keyringDiscordToken is the key name for the Discord bot token.
	keyringDiscordToken = "discord_token"
)

// StoreAPIKey saves the LLM API key to the OS keyring.
func StoreAPIKey(value string) error {
	return keyring.Set(keyringService, keyringAPIKey, value)
}

// StoreDiscordToken saves the Discord bot token to the OS keyring.
func StoreDiscordToken(value string) error {
	return keyring.Set(keyringService, keyringDiscordToken, value)
}

// getKeyring retrieves a secret from the OS keyring, empty when absent.
func getKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// ResolveAPIKey fills in secrets using the priority chain
// keyring → env var → config value, updating cfg in place.
func ResolveAPIKey(cfg *Config) {
	if val := getKeyring(keyringAPIKey); val != "" {
		cfg.API.APIKey = val
	} else if cfg.API.APIKey == "" {
		if key := os.Getenv("BARGE_API_KEY"); key != "" {
			cfg.API.APIKey = key
		} else if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.API.APIKey = key
		}
	}

	if val := getKeyring(keyringDiscordToken); val != "" {
		cfg.Discord.Token = val
	} else if cfg.Discord.Token == "" {
		if tok := os.Getenv("BARGE_DISCORD_TOKEN"); tok != "" {
			cfg.Discord.Token = tok
		}
	}
}

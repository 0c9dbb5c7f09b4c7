package commands

import (
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jholhewres/barge/pkg/barge/config"
)

// newSetupCmd creates the `barge setup` command: an interactive form that
// writes the initial configuration and optionally stores secrets in the OS
// keyring.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-time configuration",
		RunE:  runSetup,
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()

	var (
		apiKey       string
		discordToken string
		useKeyring   bool
		rearm        bool
		sessionTTL   = "120s"
		delay        = "8s"
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("LLM base URL").
				Description("OpenAI-compatible endpoint (empty = api.openai.com)").
				Value(&cfg.API.BaseURL),
			huh.NewInput().
				Title("Model").
				Placeholder("gpt-4o-mini").
				Value(&cfg.API.Model),
			huh.NewInput().
				Title("API key").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Discord bot token").
				EchoMode(huh.EchoModePassword).
				Value(&discordToken),
			huh.NewConfirm().
				Title("Store secrets in the OS keyring?").
				Value(&useKeyring),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Immersive session TTL").
				Description("How long a user's next message counts as a follow-up").
				Value(&sessionTTL),
			huh.NewInput().
				Title("Interjection delay").
				Description("Debounce window after the agent speaks in a group").
				Value(&delay),
			huh.NewConfirm().
				Title("Re-arm the group timer after a successful interjection?").
				Value(&rearm),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if ttl, err := time.ParseDuration(sessionTTL); err == nil {
		cfg.Attention.SessionTTL = config.Duration(ttl)
	}
	if d, err := time.ParseDuration(delay); err == nil {
		cfg.Attention.InterjectDelay = config.Duration(d)
	}
	cfg.Attention.RearmAfterInterject = rearm

	if useKeyring {
		if apiKey != "" {
			if err := config.StoreAPIKey(apiKey); err != nil {
				fmt.Printf("Could not store API key in keyring: %v\n", err)
				cfg.API.APIKey = apiKey
			}
		}
		if discordToken != "" {
			if err := config.StoreDiscordToken(discordToken); err != nil {
				fmt.Printf("Could not store Discord token in keyring: %v\n", err)
				cfg.Discord.Token = discordToken
			}
		}
	} else {
		cfg.API.APIKey = apiKey
		cfg.Discord.Token = discordToken
	}

	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	if configPath == "" {
		configPath = config.DefaultPath
	}
	if err := config.Save(cfg, configPath); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s. Start the daemon with `barge serve`.\n", configPath)
	return nil
}

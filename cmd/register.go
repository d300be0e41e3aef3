package cmd

import (
	"fmt"
	"log"

	"github.com/arcward/scnewsbot/newsbot"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Overwrite the bot's slash and context menu commands",
	Long: "Registers the application commands for the enabled extensions, " +
		"without connecting to the gateway. Commands are registered to " +
		"discord.guild_id if set, otherwise globally.",
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		if cfg.Discord.Token == "" || cfg.Discord.ApplicationID == "" {
			log.Fatal("SCN_DISCORD_TOKEN and SCN_DISCORD_APPLICATION_ID must be set")
		}
		bot, err := newsbot.New(cfg)
		if err != nil {
			log.Fatalf("error creating bot: %s", err.Error())
		}
		registered, err := bot.RegisterCommands()
		if err != nil {
			log.Fatalf("error registering commands: %s", err.Error())
		}

		out := cmd.OutOrStdout()
		for _, c := range registered {
			fmt.Fprintf(out, "registered: %s (id=%s)\n", c.Name, c.ID)
		}
	},
}

func init() {
	rootCmd.AddCommand(registerCmd)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "roomctl",
	Short: "roomctl is a command line tool for operating the roomplane orchestrator",
	Long: `roomctl is the command-line interface for the roomplane orchestrator admin API.

The orchestrator schedules every prayer room's phases (playlist build, reminders,
stream start, cleanup) from the room's anchor time. roomctl lets an operator
inspect that schedule and fire any phase by hand.

Common workflows:

  Show room counts, recent rooms and live streams:
    roomctl status

  Pause or resume all phase jobs:
    roomctl scheduler disable
    roomctl scheduler enable
    roomctl scheduler show

  Fire a phase for one room right now:
    roomctl trigger build <room-id>
    roomctl trigger start <room-id>
    roomctl trigger notify <room-id> --lead 15

Configuration:
  Set the API endpoint and admin key via flags, environment variables or a config file:
    ROOMPLANE_URL    Admin API endpoint (default: http://localhost:6161)
    ROOMPLANE_KEY    Admin key sent as X-Admin-Key`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".roomctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".roomctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "ROOMPLANE_VARNAME"
	viper.SetEnvPrefix("ROOMPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.roomctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "Roomplane admin API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("key", "k", "", "Admin key for authentication")
	viper.BindPFlag("key", rootCmd.PersistentFlags().Lookup("key"))
}

// newClientFromConfig builds a client from the resolved url and key, or reports why it cannot.
func newClientFromConfig(cmd *cobra.Command) (*AdminClient, bool) {
	key := viper.GetString("key")
	if key == "" {
		cmd.Println("Admin key not found. Please set it using the --key flag or the ROOMPLANE_KEY environment variable")
		return nil, false
	}
	return NewAdminClient(viper.GetString("url"), key), true
}

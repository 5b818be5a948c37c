// Package eeipcharness implements the command-line interface for the
// eeipc-harness developer/test tool. It provides a small command tree
// for driving a Driver against a real or fake Execution Engine binary
// from the shell, the way a developer exercises the protocol by hand
// instead of wiring it into a full coordinator.
package eeipcharness

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.1.0"

var RootCmd = &cobra.Command{
	Use:   "eeipc-harness",
	Short: "Execution Engine IPC driver test harness",
	Long: fmt.Sprintf(`eeipc-harness (v%s)

A developer tool for driving an Execution Engine IPC connection by
hand: launch or attach to an EE process, send a handful of commands,
and observe the replies. Configuration can be set via command line
flags or environment variables prefixed EEIPC_ (e.g. EEIPC_EE_PATH).`, Version),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of eeipc-harness",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("eeipc-harness v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(runCmd)
}

// initConfig loads .env files and binds the EEIPC_ environment prefix,
// mirroring the teacher's dkv-prefixed configuration setup.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("eeipc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Execute adds all child commands to RootCmd and runs it. Called once
// by main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package eeipcharness

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kvhost/eeipc/ipc/dependency"
	"github.com/kvhost/eeipc/ipc/driver"
	"github.com/kvhost/eeipc/ipc/elog"
	"github.com/kvhost/eeipc/ipc/supervisor"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Launch or attach to an EE and run a handful of sanity commands",
	PreRunE: bindRunFlags,
	RunE:    run,
}

func init() {
	key := "ee-path"
	runCmd.Flags().String(key, "", "Path to the voltdbipc binary (EEIPC_EE_PATH). Empty means ./voltdbipc or attach externally, depending on --launch-mode")

	key = "log-level"
	runCmd.Flags().String(key, "info", "Log level: debug, info, warn, error (EEIPC_LOG_LEVEL)")

	key = "launch-mode"
	runCmd.Flags().String(key, "external", "How to obtain the EE process: external, direct, instrumented (EEIPC_LAUNCH_MODE)")

	key = "site-id"
	runCmd.Flags().Int(key, 0, "Site ID, also used to name the memory checker's log file in instrumented mode with no explicit --ee-path (EEIPC_SITE_ID)")

	key = "port"
	runCmd.Flags().Int(key, 0, "Port to dial (external mode) or pass to the child (direct/instrumented). In direct/instrumented mode, 0 allocates the next port in the process-wide sequence")

	key = "cluster-index"
	runCmd.Flags().Int(key, 0, "ClusterIndex to announce during Initialize")

	key = "host-id"
	runCmd.Flags().Int(key, 0, "HostID to announce during Initialize")

	key = "partition-id"
	runCmd.Flags().Int(key, 0, "PartitionID to announce during Initialize")

	key = "hostname"
	runCmd.Flags().String(key, "localhost", "Hostname to announce during Initialize")
}

// bindRunFlags binds this command's flags to viper so EEIPC_-prefixed
// environment variables and .env entries can supply them too.
func bindRunFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

// noDependencies answers every mid-reply dependency callback with "not
// found" — the harness runs sanity commands that don't depend on the
// coordinator supplying dependency tables.
type noDependencies struct{}

func (noDependencies) NextDependency(uint32) (dependency.Table, bool) { return nil, false }

func run(_ *cobra.Command, _ []string) error {
	if err := elog.Init(viper.GetString("log-level")); err != nil {
		return err
	}

	mode, err := parseLaunchMode(viper.GetString("launch-mode"))
	if err != nil {
		return err
	}

	identity := driver.Identity{
		ClusterIndex: viper.GetInt("cluster-index"),
		SiteID:       viper.GetInt("site-id"),
		PartitionID:  viper.GetInt("partition-id"),
		HostID:       viper.GetInt("host-id"),
		Hostname:     viper.GetString("hostname"),
	}
	supCfg := supervisor.Config{
		Mode:   mode,
		Port:   viper.GetInt("port"),
		EEPath: viper.GetString("ee-path"),
		SiteID: viper.GetInt("site-id"),
	}

	d, err := driver.Open(identity, supCfg, noDependencies{})
	if err != nil {
		return fmt.Errorf("eeipc-harness: open driver: %w", err)
	}
	defer d.Release()

	fmt.Println("EE initialized, sending Tick...")
	if err := d.Tick(0, 0); err != nil {
		return fmt.Errorf("eeipc-harness: tick: %w", err)
	}
	fmt.Println("Tick acknowledged. Shutting down.")
	return nil
}

func parseLaunchMode(s string) (supervisor.Mode, error) {
	switch s {
	case "external":
		return supervisor.External, nil
	case "direct":
		return supervisor.Direct, nil
	case "instrumented":
		return supervisor.Instrumented, nil
	default:
		return 0, fmt.Errorf("invalid launch mode %q: must be one of external, direct, instrumented", s)
	}
}

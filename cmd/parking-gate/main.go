// Command parking-gate turns entry/exit proximity readings into gate actuation
// signals and keeps a durable count of parked vehicles.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/sweeney/parking-gate/internal/config"
)

var (
	configPath string

	flagTransport string
	flagBroker    string
	flagNATSURL   string
	flagCapacity  int
	flagThreshold int
	flagTimezone  string
	flagStorePath string
	flagHTTPAddr  string
	flagHeartbeat time.Duration
	flagEntryPin  int
	flagExitPin   int
)

var rootCmd = &cobra.Command{
	Use:           "parking-gate",
	Short:         "Parking gate controller",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDaemon,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gate controller (default)",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "TOML config file (optional)")
	pf.StringVar(&flagTransport, "transport", "", `message transport: "mqtt" or "nats"`)
	pf.StringVar(&flagBroker, "broker", "", "MQTT broker address")
	pf.StringVar(&flagNATSURL, "nats-url", "", "NATS server URL")
	pf.IntVar(&flagCapacity, "capacity", 0, "maximum number of parked vehicles")
	pf.IntVar(&flagThreshold, "threshold", 0, "proximity threshold in cm")
	pf.StringVar(&flagTimezone, "timezone", "", `time zone for daily totals ("Local" or an IANA name)`)
	pf.StringVar(&flagStorePath, "store", "", "SQLite state file")
	pf.StringVar(&flagHTTPAddr, "http", "", "HTTP status address")
	pf.DurationVar(&flagHeartbeat, "heartbeat", 0, "heartbeat interval (0 to disable)")
	pf.IntVar(&flagEntryPin, "pin-entry", 0, "GPIO line for the entry gate (-1 to disable)")
	pf.IntVar(&flagExitPin, "pin-exit", 0, "GPIO line for the exit gate (-1 to disable)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(resetDailyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

// loadConfig layers explicitly set flags over the file and environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Transport = flagTransport
	}
	if flags.Changed("broker") {
		cfg.MQTT.Broker = flagBroker
	}
	if flags.Changed("nats-url") {
		cfg.NATS.URL = flagNATSURL
	}
	if flags.Changed("capacity") {
		cfg.Capacity = flagCapacity
	}
	if flags.Changed("threshold") {
		cfg.ThresholdCm = flagThreshold
	}
	if flags.Changed("timezone") {
		cfg.Timezone = flagTimezone
	}
	if flags.Changed("store") {
		cfg.Store.Path = flagStorePath
	}
	if flags.Changed("http") {
		cfg.HTTP.Addr = flagHTTPAddr
	}
	if flags.Changed("heartbeat") {
		cfg.Heartbeat = flagHeartbeat
	}
	if flags.Changed("pin-entry") {
		cfg.GPIO.EntryPin = flagEntryPin
	}
	if flags.Changed("pin-exit") {
		cfg.GPIO.ExitPin = flagExitPin
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("flags: %w", err)
	}
	return cfg, nil
}

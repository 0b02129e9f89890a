// Command wiotp publishes to and watches a Watson IoT Platform organization
// using a device, gateway or application configuration.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/ibm-messaging/iot-go/internal/infrastructure/logging"
	"github.com/ibm-messaging/iot-go/pkg/config"
	"github.com/ibm-messaging/iot-go/pkg/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}
	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

// flags holds the global options and what Before derives from them.
type flags struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *logging.Logger
	out io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	f := &flags{out: out}

	return &cli.Command{
		Name:      "wiotp",
		Usage:     "Publish to and watch a Watson IoT Platform organization",
		UsageText: "wiotp [global options] command [command options]",
		Version:   build(),
		Writer:    out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file (WIOTP_* environment variables only when empty)",
				Sources:     cli.EnvVars("WIOTP_CONFIG"),
				Destination: &f.configPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error); overrides the config file",
				Sources:     cli.EnvVars("WIOTP_LOG_LEVEL"),
				Destination: &f.logLevel,
			},
		},
		Commands: []*cli.Command{
			publishEventCmd(f),
			publishCommandCmd(f),
			watchCmd(f),
			versionCmd(f),
		},
	}
}

// setup loads configuration and logging. Commands that talk to the broker
// call it first.
func (f *flags) setup() error {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.Load(f.configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	// stdout carries command output
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	f.cfg = cfg
	f.log = logging.New(cfg.Logging, version)
	mqtt.SetTransportLogger(f.log.Component("paho"), f.log.DebugEnabled())

	f.log.Debug("configuration loaded",
		"role", string(cfg.Role()),
		"org", cfg.OrgID(),
		"client_id", cfg.ClientID(),
	)
	return nil
}

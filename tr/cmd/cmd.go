// Package cmd is the command line entry of the CPE agent.
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/catawampus/cwmpd/std/log"
	"github.com/catawampus/cwmpd/std/utils"
	"github.com/catawampus/cwmpd/std/utils/toolutils"
	"github.com/catawampus/cwmpd/tr/config"
	"github.com/spf13/cobra"
)

var CmdCwmp = &cobra.Command{
	Use:     "run CONFIG-FILE",
	Short:   "Start the TR-069 CPE agent",
	GroupID: "run",
	Version: utils.Version,
	Args:    cobra.ExactArgs(1),
	Run:     run,
}

func run(cmd *cobra.Command, args []string) {
	configfile := args[0]

	cfg := config.DefaultConfig()
	toolutils.ReadYaml(cfg, configfile)

	closeLog, err := log.Open(cfg.Core.LogFile, cfg.Core.LogLevel, cfg.Core.LogJson)
	if err != nil {
		log.Fatal(nil, "Unable to open log", "err", err)
	}
	defer closeLog()

	e, err := NewExecutor(cfg)
	if err != nil {
		log.Fatal(nil, "Unable to start", "err", err)
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigchan
		log.Info(e, "Received signal - exit", "signal", sig)
		e.Stop()
	}()

	if err := e.Start(); err != nil {
		log.Error(e, "Agent failed", "err", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/hansini-nalla/pes-sub000/apps/di"
	"github.com/hansini-nalla/pes-sub000/core"
	logsvc "github.com/hansini-nalla/pes-sub000/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewConsoleLogger(conf)

	container, err := di.New(conf, logger, false /* autoMigrate */)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up dependencies: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		examSvc:      container.ExamSvc,
		screeningSvc: container.ScreeningSvc,
		disputeSvc:   container.DisputeSvc,
		out:          os.Stdout,
	}
	if container.DB != nil {
		cli.db = container.DB.DB
	}
	err = cli.run(os.Args)
	if cErr := container.Close(); cErr != nil {
		logger.Error("closing dependencies", cErr)
	}
	if err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/hansini-nalla/pes-sub000/core/dispute"
	"github.com/hansini-nalla/pes-sub000/core/exam"
	"github.com/hansini-nalla/pes-sub000/core/screening"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db           *sql.DB // nil with the in-memory storage
	examSvc      *exam.Service
	screeningSvc *screening.Service
	disputeSvc   *dispute.Service
	out          io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate up|down|version            - apply or revert every migration, or print the version")
	fmt.Fprintln(cli.out, "  migrate steps N|force N            - apply N migrations (revert when negative), or force the version")
	fmt.Fprintln(cli.out, "  allocate -exam ID                  - assign the peers of every submitter of the exam")
	fmt.Fprintln(cli.out, "  screen -exam ID [-tickets]         - screen the exam, raising tickets for flagged students")
	fmt.Fprintln(cli.out, "  sweep -exam ID                     - force the pending evaluations of the exam to zero and ticket them")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	allocateCmd := flag.NewFlagSet("allocate", flag.ContinueOnError)
	allocateExam := allocateCmd.String("exam", "", "The ID of the exam to allocate.")

	screenCmd := flag.NewFlagSet("screen", flag.ContinueOnError)
	screenExam := screenCmd.String("exam", "", "The ID of the exam to screen.")
	screenTickets := screenCmd.Bool("tickets", false, "Raise a ticket for every flagged student.")

	sweepCmd := flag.NewFlagSet("sweep", flag.ContinueOnError)
	sweepExam := sweepCmd.String("exam", "", "The ID of the exam to sweep.")

	for _, fs := range []*flag.FlagSet{allocateCmd, screenCmd, sweepCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "allocate":
		if err := parseExamFlag(allocateCmd, args[2:], allocateExam); err != nil {
			return err
		}
		alloc, err := cli.examSvc.Allocate(ctx, *allocateExam)
		if err != nil {
			return err
		}
		return cli.print(alloc)
	case "screen":
		if err := parseExamFlag(screenCmd, args[2:], screenExam); err != nil {
			return err
		}
		report, err := cli.screeningSvc.ScreenExam(ctx, *screenExam, *screenTickets)
		if err != nil {
			return err
		}
		return cli.print(report)
	case "sweep":
		if err := parseExamFlag(sweepCmd, args[2:], sweepExam); err != nil {
			return err
		}
		res, err := cli.disputeSvc.SweepNonResponders(ctx, *sweepExam)
		if err != nil {
			return err
		}
		return cli.print(res)
	default:
		cli.printUsage()
		return errHelp
	}
}

func parseExamFlag(fs *flag.FlagSet, args []string, examID *string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	if *examID == "" {
		fs.Usage()
		return errHelp
	}
	return nil
}

func (cli *commandLine) print(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

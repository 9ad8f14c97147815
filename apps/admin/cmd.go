package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"

	echoapi "github.com/wunderbyte/evasync/apps/api/echo"
	"github.com/wunderbyte/evasync/core"
	"github.com/wunderbyte/evasync/core/binding"
	"github.com/wunderbyte/evasync/core/queue"
	"github.com/wunderbyte/evasync/core/refdata"
)

var errHelp = errors.New("help provided")

// instructorStore is the subset of the instructor repository the CLI needs.
type instructorStore interface {
	UpsertInstructor(ctx context.Context, instr binding.Instructor, isOrganizer bool) error
}

type commandLine struct {
	db          *sql.DB
	conf        *core.Config
	instructors instructorStore
	refdataSvc  *refdata.Service
	queueSvc    *queue.Service
	worker      *queue.Worker
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate SUBCOMMAND [args] - run database migrations (up, down, status, ...)")
	fmt.Println("  importinstructor -id ID -first NAME -last NAME -email EMAIL [-address ADDR] [-phone PHONE] [-organizer] - mirror a host user")
	fmt.Println("  refreshforms - drop and rebuild the questionnaire title cache")
	fmt.Println("  runjobs - claim and execute every due queue job once")
	fmt.Println("  syncoption -option ID - requeue the last synchronization run for a booking option")
	fmt.Println("  token -service NAME - print a signed service token")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	importCmd := flag.NewFlagSet("importinstructor", flag.ExitOnError)
	importID := importCmd.Int("id", 0, "The host user id.")
	importFirst := importCmd.String("first", "", "First name.")
	importLast := importCmd.String("last", "", "Last name.")
	importEmail := importCmd.String("email", "", "Email address.")
	importAddress := importCmd.String("address", "", "Postal address.")
	importPhone := importCmd.String("phone", "", "Phone number.")
	importOrganizer := importCmd.Bool("organizer", false, "Mark the user as eligible report recipient.")

	syncCmd := flag.NewFlagSet("syncoption", flag.ExitOnError)
	syncOption := syncCmd.Int("option", 0, "The booking option id.")

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenService := tokenCmd.String("service", "", "The calling service's name.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "importinstructor":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		email := core.CleanString(*importEmail, true)
		if *importID <= 0 || email == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importInstructor(binding.Instructor{
			ID:        *importID,
			FirstName: core.CleanString(*importFirst),
			LastName:  core.CleanString(*importLast),
			Email:     email,
			Address:   core.CleanString(*importAddress),
			Phone:     core.CleanString(*importPhone),
		}, *importOrganizer)
	case "refreshforms":
		return cli.refreshForms()
	case "runjobs":
		return cli.worker.RunOnce(context.Background())
	case "syncoption":
		if err := syncCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *syncOption <= 0 {
			syncCmd.Usage()
			return errHelp
		}
		job, err := cli.queueSvc.Requeue(context.Background(), *syncOption, queue.KindReconcile)
		if err != nil {
			return err
		}
		fmt.Printf("queued %s job %s for option %d\n", job.Kind, job.ID, *syncOption)
		return nil
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenService == "" {
			tokenCmd.Usage()
			return errHelp
		}
		ss, err := echoapi.GenerateToken(cli.conf, *tokenService)
		if err != nil {
			return err
		}
		fmt.Println(ss)
		return nil
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) importInstructor(instr binding.Instructor, isOrganizer bool) error {
	return cli.instructors.UpsertInstructor(context.Background(), instr, isOrganizer)
}

func (cli *commandLine) refreshForms() error {
	cli.refdataSvc.InvalidateForms()
	titles, err := cli.refdataSvc.FormTitles(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("cached %d questionnaire titles\n", len(titles.Titles))
	return nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

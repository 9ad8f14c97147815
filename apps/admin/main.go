package main

import (
	"log"
	"os"

	"github.com/wunderbyte/evasync/core"
	"github.com/wunderbyte/evasync/core/binding"
	"github.com/wunderbyte/evasync/core/queue"
	"github.com/wunderbyte/evasync/core/refdata"
	evasyssvc "github.com/wunderbyte/evasync/services/evasys"
	"github.com/wunderbyte/evasync/storage/database"
	sqlxrepos "github.com/wunderbyte/evasync/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	// set up services
	client := evasyssvc.NewSoapClient(conf.Evasys, stdLogger{})
	bindingRepo := sqlxrepos.NewBindingRepository(db)
	instructorRepo := sqlxrepos.NewInstructorRepository(db)
	queueSvc := queue.NewService(sqlxrepos.NewJobRepository(db))
	refdataSvc := refdata.NewService(client, refdata.NewMemCache(), conf.Evasys, stdLogger{}, newTranslator())

	// manual runs send no notifications
	engine := binding.NewEngine(bindingRepo, instructorRepo, client, queueSvc, conf.Evasys, stdLogger{}, nil)
	worker := queue.NewWorker(queueSvc, conf.Worker, stdLogger{})
	binding.RegisterHandlers(worker, engine, stdLogger{})

	// start CLI
	cli := commandLine{
		db:          db,
		conf:        conf,
		instructors: instructorRepo,
		refdataSvc:  refdataSvc,
		queueSvc:    queueSvc,
		worker:      worker,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

// stdLogger adapts the process logger to core.Logger for the services.
type stdLogger struct{}

var _ core.Logger = (*stdLogger)(nil)

func (stdLogger) Debug(msg string, args ...interface{}) { logger.Println(msg) }
func (stdLogger) Info(msg string, args ...interface{})  { logger.Println(msg) }
func (stdLogger) Warn(msg string, args ...interface{})  { logger.Println(msg) }
func (stdLogger) Error(msg string, args ...interface{}) { logger.Println(msg) }
func (stdLogger) Fatal(msg string, args ...interface{}) { logger.Fatal(msg) }

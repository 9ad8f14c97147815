package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wunderbyte/evasync/core"
	"github.com/wunderbyte/evasync/core/binding"
	"github.com/wunderbyte/evasync/core/queue"
	emailsvc "github.com/wunderbyte/evasync/services/email"
	evasyssvc "github.com/wunderbyte/evasync/services/evasys"
	logsvc "github.com/wunderbyte/evasync/services/logger"
	"github.com/wunderbyte/evasync/storage/database"
	sqlxrepos "github.com/wunderbyte/evasync/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "WORKER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(conf, logger)

	client := evasyssvc.NewSoapClient(conf.Evasys, logger)
	bindingRepo := sqlxrepos.NewBindingRepository(db)
	instructorRepo := sqlxrepos.NewInstructorRepository(db)
	queueSvc := queue.NewService(sqlxrepos.NewJobRepository(db))

	engine := binding.NewEngine(
		bindingRepo,
		instructorRepo,
		client,
		queueSvc,
		conf.Evasys,
		logger,
		binding.NewNotifier(instructorRepo, mailSvc, logger),
	)

	worker := queue.NewWorker(queueSvc, conf.Worker, logger)
	binding.RegisterHandlers(worker, engine, logger)

	// =========================================================================
	// Run

	logger.Info(fmt.Sprintf("Worker initializing : version %q", conf.Build))
	defer logger.Info("Worker stopped")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		cancel()
	}()

	if err = worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal(fmt.Sprintf("worker error: %v", err), err)
	}
}

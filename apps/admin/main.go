package main

import (
	"log"
	"os"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/course"
	"github.com/trezcool/kazi/core/registration"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/user"
	logsvc "github.com/trezcool/kazi/services/logger"
	"github.com/trezcool/kazi/storage/database"
	sqlxrepos "github.com/trezcool/kazi/storage/database/sqlx"
)

func main() {
	defer os.Exit(0)

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		core.Conf,
	)
	logger.Enable(!core.Conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(core.Conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), logger)
	courseSvc := course.NewService(sqlxrepos.NewCourseRepository(db), logger)
	regSvc := registration.NewService(sqlxrepos.NewRegistrationRepository(db), courseSvc, nil, logger)
	subSvc := submission.NewService(sqlxrepos.NewSubmissionRepository(db), regSvc, courseSvc, nil, logger)

	// start CLI
	cli := commandLine{
		db:        db.DB,
		usrSvc:    usrSvc,
		courseSvc: courseSvc,
		subSvc:    subSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}

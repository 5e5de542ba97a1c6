package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/user"
	logsvc "github.com/trezcool/soko/services/logger"
	"github.com/trezcool/soko/storage/database"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	cli := commandLine{
		conf:     conf,
		validate: validator.New(),
		out:      os.Stdout,
	}

	// migrate must not go through database.Open, which migrates up on its own
	if len(os.Args) > 1 && os.Args[1] == "migrate" && conf.Database.Engine == core.EnginePostgres {
		errAndDie(database.CreateIfNotExist(conf))
		db, err := database.OpenPostgres(conf)
		errAndDie(err)
		defer db.Close()
		cli.db = db.DB
	} else {
		repos, closeDB, err := database.Open(context.Background(), conf)
		errAndDie(err)
		defer func() { _ = closeDB() }()

		resolver := identity.NewResolver(conf.Catalog.MinNumber, conf.Catalog.MaxNumber)
		cli.usrSvc = user.NewService(repos.Users)
		cli.courseSvc = course.NewService(repos.Courses, repos.Users, resolver, logsvc.NewRollbarLogger(logger, conf))
	}

	// start CLI
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

package main

import (
	"context"

	"github.com/parley-forum/parley/config"
	"github.com/parley-forum/parley/models"
	"github.com/parley-forum/parley/routes"
	"github.com/parley-forum/parley/services"
	"github.com/parley-forum/parley/tasks"
	"github.com/parley-forum/parley/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{}, &models.Thread{}, &models.Post{},
		&models.Vote{}, &models.Media{}, &models.Attachment{},
	)

	queue := tasks.NewRedisQueue(utils.GetRedis())
	svc := services.New(db, queue, cfg)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	worker := tasks.NewWorker(db, queue, cfg)
	go worker.Run(workerCtx)

	purgeStop := make(chan struct{})
	defer close(purgeStop)
	svc.StartPurger(cfg.PurgeInterval, purgeStop)

	r := routes.SetupRouter(db, svc)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

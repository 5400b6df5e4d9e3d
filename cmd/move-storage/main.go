// move-storage enqueues relocation jobs for one video or every video. It
// performs no transcoding or moving itself; the worker picks the jobs up.
package main

import (
	"context"
	"flag"
	"os"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/models"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
	"gitlab.com/mediauz/video-pipeline/pkg/rabbitmq"
	"gitlab.com/mediauz/video-pipeline/pkg/repository"
)

func main() {
	videoUUID := flag.String("video", "", "UUID of the video to relocate")
	all := flag.Bool("all", false, "relocate every known video")
	direction := flag.String("direction", "to-object-storage", "to-object-storage or to-file-system")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, "move_storage")

	if *videoUUID == "" && !*all {
		log.Error("either -video or -all is required")
		os.Exit(1)
	}
	if *direction != "to-object-storage" && *direction != "to-file-system" {
		log.Error("invalid direction", logger.String("direction", *direction))
		os.Exit(1)
	}

	rbMQ, err := rabbitmq.New(&cfg, log)
	if err != nil {
		log.Error("Error while creating rabbitMq object...", logger.Error(err))
		os.Exit(1)
	}
	defer rbMQ.Channel.Close()

	uuids := []string{*videoUUID}
	if *all {
		repo := repository.NewMemoryRepository()
		uuids, err = repo.ListUUIDs(context.Background())
		if err != nil {
			log.Error("Error while listing videos...", logger.Error(err))
			os.Exit(1)
		}
	}

	for _, uuid := range uuids {
		var payload models.JobPayload
		if *direction == "to-object-storage" {
			payload = &models.MoveStoragePayload{VideoUUID: uuid}
		} else {
			payload = &models.MoveToFileSystemPayload{VideoUUID: uuid}
		}

		if err := rbMQ.PublishJob(payload); err != nil {
			log.Error("Error while publishing job...", logger.Error(err))
			os.Exit(1)
		}
		log.Info("relocation job enqueued",
			logger.String("video", uuid),
			logger.String("direction", *direction))
	}
}

package main

import (
	"context"

	"github.com/redis/go-redis/v9"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/pkg/handler"
	"gitlab.com/mediauz/video-pipeline/pkg/jobinfo"
	"gitlab.com/mediauz/video-pipeline/pkg/lock"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
	"gitlab.com/mediauz/video-pipeline/pkg/quota"
	"gitlab.com/mediauz/video-pipeline/pkg/rabbitmq"
	"gitlab.com/mediauz/video-pipeline/pkg/repository"
	"gitlab.com/mediauz/video-pipeline/tools/encoder"
	"gitlab.com/mediauz/video-pipeline/tools/ffmpeg"
	"gitlab.com/mediauz/video-pipeline/tools/paths"
	"gitlab.com/mediauz/video-pipeline/tools/storage"
	"gitlab.com/mediauz/video-pipeline/tools/studio"
	"gitlab.com/mediauz/video-pipeline/tools/vod"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, "video_pipeline")

	log.Info("configuration and logger is setup...")

	rbMQ, err := rabbitmq.New(&cfg, log)
	if err != nil {
		log.Error("Error while creating rabbitMq object...", logger.Error(err))
		return
	}

	// We need to close the channel if we have opened it
	defer rbMQ.Channel.Close()

	fileStorage := storage.NewFileStorage(&cfg, log)
	log.Info("storage is created...")

	var objectStorage storage.ObjectStorageI
	if cfg.UseObjectStorage {
		objectStorage, err = storage.NewObjectStorage(&cfg, log)
		if err != nil {
			log.Error("Error while connecting to object storage...", logger.Error(err))
			return
		}
		log.Info("object storage is created...")
	}

	var jobInfo jobinfo.Store = jobinfo.NewMemoryStore()
	if cfg.RedisAddr != "" {
		jobInfo = jobinfo.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}))
		log.Info("redis job counter is created...")
	}

	resolver := paths.NewResolver(&cfg)
	prober := ffmpeg.NewProber(log, cfg.FFprobe)
	negotiator := encoder.NewNegotiator(log, cfg.FFmpeg)
	repo := repository.NewMemoryRepository()

	vodEngine := vod.NewEngine(&cfg, log, prober, negotiator)
	studioEngine := studio.NewEngine(&cfg, log, prober, negotiator, fileStorage, quota.UnlimitedChecker{}, resolver)
	mover := storage.NewMover(&cfg, log, fileStorage, objectStorage, resolver, repo)

	handlerObj := handler.NewHandler(handler.Options{
		Config:        &cfg,
		Log:           log,
		Repo:          repo,
		Locks:         lock.NewManager(log),
		JobInfo:       jobInfo,
		Prober:        prober,
		VOD:           vodEngine,
		Studio:        studioEngine,
		Mover:         mover,
		LocalStorage:  fileStorage,
		ObjectStorage: objectStorage,
		Paths:         resolver,
		RabbitMQ:      rbMQ,
	})

	handlerObj.ListenJobs(context.Background())
}

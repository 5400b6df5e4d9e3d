// Package handler is the outer control flow of the pipeline: it consumes
// job payloads from the queue, dispatches them to the engines and advances
// the video state machine.
package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/streadway/amqp"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/models"
	"gitlab.com/mediauz/video-pipeline/pkg/jobinfo"
	"gitlab.com/mediauz/video-pipeline/pkg/lock"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
	"gitlab.com/mediauz/video-pipeline/pkg/rabbitmq"
	"gitlab.com/mediauz/video-pipeline/pkg/repository"
	"gitlab.com/mediauz/video-pipeline/tools/ffmpeg"
	"gitlab.com/mediauz/video-pipeline/tools/paths"
	"gitlab.com/mediauz/video-pipeline/tools/storage"
	"gitlab.com/mediauz/video-pipeline/tools/studio"
	"gitlab.com/mediauz/video-pipeline/tools/vod"
)

// Job is the structure which is added to the worker queue
type Job struct {
	data amqp.Delivery
}

// JobPublisher posts follow-up jobs back on the queue
type JobPublisher interface {
	PublishJob(payload models.JobPayload) error
}

// Options ...
type Options struct {
	Config        *config.Config
	Log           logger.Logger
	Repo          repository.VideoRepository
	Locks         *lock.Manager
	JobInfo       jobinfo.Store
	Prober        ffmpeg.ProberI
	VOD           *vod.Engine
	Studio        *studio.Engine
	Mover         *storage.Mover
	LocalStorage  storage.FileOperationsI
	ObjectStorage storage.ObjectStorageI
	Paths         *paths.Resolver
	RabbitMQ      *rabbitmq.RabbitMQ
	Publisher     JobPublisher
}

// MainI - interface containing main functions for handler
type MainI interface {
	ListenJobs(ctx context.Context) error
	Run(ctx context.Context, payload models.JobPayload) error
}

type handlerObj struct {
	cfg           *config.Config
	log           logger.Logger
	repo          repository.VideoRepository
	locks         *lock.Manager
	jobInfo       jobinfo.Store
	prober        ffmpeg.ProberI
	vod           *vod.Engine
	studio        *studio.Engine
	mover         *storage.Mover
	localStorage  storage.FileOperationsI
	objectStorage storage.ObjectStorageI
	paths         *paths.Resolver
	rabbitMQ      *rabbitmq.RabbitMQ
	publisher     JobPublisher
	jobQueue      chan Job
}

// NewHandler - returns the handler object
func NewHandler(args Options) MainI {
	publisher := args.Publisher
	if publisher == nil {
		publisher = args.RabbitMQ
	}

	return &handlerObj{
		cfg:           args.Config,
		log:           args.Log,
		repo:          args.Repo,
		locks:         args.Locks,
		jobInfo:       args.JobInfo,
		prober:        args.Prober,
		vod:           args.VOD,
		studio:        args.Studio,
		mover:         args.Mover,
		localStorage:  args.LocalStorage,
		objectStorage: args.ObjectStorage,
		paths:         args.Paths,
		rabbitMQ:      args.RabbitMQ,
		publisher:     publisher,
		jobQueue:      make(chan Job, args.Config.TranscodeWorkers),
	}
}

func (h *handlerObj) ListenJobs(ctx context.Context) error {
	for i := 0; i < h.cfg.TranscodeWorkers; i++ {
		go h.JobWorker(ctx, i)
	}

	h.log.Info("Started listening for jobs")

	for {
		msgs, err := h.rabbitMQ.Consume()
		if err != nil {
			h.log.Error("Error while consuming messages", logger.Error(err))
			err = h.rabbitMQ.Reconnect()
			if err != nil {
				return err
			}
			time.Sleep(time.Second * 5)
			continue
		}

		for data := range msgs {
			h.jobQueue <- Job{data: data}
		}
		time.Sleep(time.Second * 5)
	}
}

func (h *handlerObj) JobWorker(ctx context.Context, id int) {
	workerId := "worker[" + strconv.Itoa(id) + "]"
	h.log.Info(workerId, logger.String("action", "[STARTING]"))

	for job := range h.jobQueue {
		h.handleDelivery(ctx, workerId, job.data)
	}
}

func (h *handlerObj) handleDelivery(ctx context.Context, workerId string, data amqp.Delivery) {
	payload, err := models.DecodeJobPayload(data.Body)
	if err != nil {
		h.log.Error("[-] UNMARSHAL", logger.Error(err))
		data.Ack(false)
		return
	}

	h.log.Info(workerId,
		logger.String("action", "[GET]"),
		logger.String("job", string(payload.JobType())))

	err = h.Run(ctx, payload)
	switch {
	case err == nil:
		data.Ack(false)

	case errors.Is(err, repository.ErrVideoNotFound):
		// the video was deleted while the job was queued, nothing to do
		h.log.Info("video gone, dropping job", logger.String("job", string(payload.JobType())))
		data.Ack(false)

	case isPermanentError(err):
		h.log.Error("job failed permanently", logger.Error(err))
		h.markFailed(ctx, payload)
		data.Ack(false)

	case !data.Redelivered:
		h.log.Error("job failed, requeueing once", logger.Error(err))
		data.Nack(false, true)

	default:
		h.log.Error("job failed after retry", logger.Error(err))
		h.markFailed(ctx, payload)
		data.Ack(false)
	}
}

// Run dispatches one payload. Exported so entrypoints and tests can execute
// jobs without a queue.
func (h *handlerObj) Run(ctx context.Context, payload models.JobPayload) error {
	switch p := payload.(type) {
	case *models.OptimizePayload:
		return h.handleOptimize(ctx, p)
	case *models.NewWebVideoResolutionPayload:
		return h.handleNewWebVideoResolution(ctx, p)
	case *models.MergeAudioPayload:
		return h.handleMergeAudio(ctx, p)
	case *models.NewHLSResolutionPayload:
		return h.handleNewHLSResolution(ctx, p)
	case *models.MoveStoragePayload:
		return h.handleMoveToObjectStorage(ctx, p)
	case *models.MoveToFileSystemPayload:
		return h.handleMoveToFileSystem(ctx, p)
	case *models.StudioEditionPayload:
		return h.handleStudioEdition(ctx, p)
	default:
		// DecodeJobPayload already rejects unknown tags, this is a bug
		return errors.New("payload type without a handler")
	}
}

// configuration and precondition errors must not burn queue retries
func isPermanentError(err error) bool {
	return errors.Is(err, vod.ErrNoViableEncoder) || errors.Is(err, studio.ErrQuotaExceeded)
}

// markFailed puts the video in the terminal state matching the job family
func (h *handlerObj) markFailed(ctx context.Context, payload models.JobPayload) {
	uuid := videoUUIDOf(payload)
	if uuid == "" {
		return
	}

	video, err := h.repo.LoadByUUID(ctx, uuid)
	if err != nil {
		return
	}

	switch payload.JobType() {
	case models.JobMoveToObjectStorage, models.JobMoveToFileSystem:
		video.State = models.StateFailedMoving
	default:
		video.State = models.StateFailedTranscoding
	}

	if err := h.repo.Save(ctx, video); err != nil {
		h.log.Error("cannot persist failed state", logger.Error(err))
	}
}

func videoUUIDOf(payload models.JobPayload) string {
	switch p := payload.(type) {
	case *models.OptimizePayload:
		return p.VideoUUID
	case *models.NewWebVideoResolutionPayload:
		return p.VideoUUID
	case *models.MergeAudioPayload:
		return p.VideoUUID
	case *models.NewHLSResolutionPayload:
		return p.VideoUUID
	case *models.MoveStoragePayload:
		return p.VideoUUID
	case *models.MoveToFileSystemPayload:
		return p.VideoUUID
	case *models.StudioEditionPayload:
		return p.VideoUUID
	default:
		return ""
	}
}

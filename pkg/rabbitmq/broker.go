package rabbitmq

import (
	"fmt"
	"strings"

	"github.com/streadway/amqp"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/models"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

// RabbitMQ - structure that contains the job queue and channel
type RabbitMQ struct {
	Queue   amqp.Queue
	Channel *amqp.Channel
	Logger  logger.Logger
	Cfg     config.Config
}

// New - connects, declares the durable job queue and sets a prefetch of one
// so a worker never holds more jobs than it can run
func New(cfg *config.Config, log logger.Logger) (*RabbitMQ, error) {
	log.Info(
		"Dialing to rabbitmq host with",
		logger.String("host", cfg.RabbitMqHost),
		logger.String("user", cfg.RabbitMqUser),
	)

	conn, err := amqp.Dial(dialURL(cfg))
	if err != nil {
		log.Error("Error while connecting to rabbitmq", logger.Error(err))
		return &RabbitMQ{}, err
	}

	log.Info("RabbitMQ connection is created...")

	channel, err := conn.Channel()
	if err != nil {
		log.Error("Error while connecting to channel", logger.Error(err))
		return &RabbitMQ{}, err
	}

	log.Info("RabbitMQ channel is created...")

	queue, err := channel.QueueDeclare(
		cfg.JobQueue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Error("Error while declaring queue", logger.Error(err))
		return &RabbitMQ{}, err
	}

	err = channel.Qos(1, 0, false)
	if err != nil {
		log.Error("Error while setting Qos", logger.Error(err))
		return &RabbitMQ{}, err
	}

	return &RabbitMQ{
		Queue:   queue,
		Channel: channel,
		Logger:  log,
		Cfg:     *cfg,
	}, nil
}

// Consume - returns the manual-ack delivery channel of the job queue
func (r *RabbitMQ) Consume() (<-chan amqp.Delivery, error) {
	return r.Channel.Consume(
		r.Queue.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
}

// PublishJob - encodes a typed job payload and posts it on the job queue.
// Used for follow-up job chaining as much as for external enqueues.
func (r *RabbitMQ) PublishJob(payload models.JobPayload) error {
	body, err := models.EncodeJobPayload(payload)
	if err != nil {
		r.Logger.Error("Error while encoding job payload", logger.Error(err))
		return err
	}

	publish := func() error {
		return r.Channel.Publish(
			"",
			r.Queue.Name,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
			},
		)
	}

	err = publish()
	if err != nil {
		if strings.Contains(err.Error(), "channel/connection is not open") {
			if err = r.Reconnect(); err != nil {
				return err
			}
			err = publish()
		}
		if err != nil {
			r.Logger.Error("Error while publishing the message", logger.Error(err))
			return err
		}
	}

	return nil
}

// Reconnect - re-dials and redeclares the queue after a dropped connection
func (r *RabbitMQ) Reconnect() error {
	r.Logger.Info("reconnecting to rabbitmq")

	conn, err := amqp.Dial(dialURL(&r.Cfg))
	if err != nil {
		r.Logger.Error("Error while connecting to rabbitmq", logger.Error(err))
		return err
	}

	r.Logger.Info("RabbitMQ connection is created...")

	r.Channel, err = conn.Channel()
	if err != nil {
		r.Logger.Error("Error while connecting to channel", logger.Error(err))
		return err
	}

	r.Logger.Info("RabbitMQ channel is created...")

	r.Queue, err = r.Channel.QueueDeclare(
		r.Cfg.JobQueue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		r.Logger.Error("Error while declaring queue", logger.Error(err))
		return err
	}

	if err = r.Channel.Qos(1, 0, false); err != nil {
		r.Logger.Error("Error while setting Qos", logger.Error(err))
		return err
	}

	return nil
}

func dialURL(cfg *config.Config) string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		cfg.RabbitMqUser,
		cfg.RabbitMqPassword,
		cfg.RabbitMqHost,
		cfg.RabbitMqPort,
	)
}

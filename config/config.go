package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	LogLevel string

	RabbitMqHost     string
	RabbitMqPort     string
	RabbitMqUser     string
	RabbitMqPassword string
	JobQueue         string

	RedisAddr     string
	RedisPassword string

	TranscodeWorkers int

	// Storage layout
	TmpDir           string
	WebVideosDir     string
	HLSDir           string
	OriginalDir      string
	CaptionsDir      string
	PreviewsDir      string
	UseObjectStorage bool

	ObjectStorageType        string // "minio" or "s3"
	ObjectStorageEndpoint    string
	ObjectStorageRegion      string
	ObjectStorageAccessKey   string
	ObjectStorageSecretKey   string
	WebVideosBucket          string
	StreamingPlaylistsBucket string
	OriginalFileBucket       string
	CaptionsBucket           string
	ObjectStorageBaseURL     string

	// Transcoding
	FFmpeg             string
	FFprobe            string
	TranscodingProfile string
	TranscodingThreads int
	Niceness           int
	HlsSegmentDuration int
}

func Load() Config {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("Could not load the .env file")
	}

	c := Config{}
	c.LogLevel = cast.ToString(getOrReturnDefault("LOG_LEVEL", "debug"))

	c.RabbitMqHost = cast.ToString(getOrReturnDefault("RABBITMQ_HOST", "localhost"))
	c.RabbitMqPort = cast.ToString(getOrReturnDefault("RABBITMQ_PORT", "5672"))
	c.RabbitMqUser = cast.ToString(getOrReturnDefault("RABBITMQ_USER", "user"))
	c.RabbitMqPassword = cast.ToString(getOrReturnDefault("RABBITMQ_PASSWORD", "secret"))
	c.JobQueue = cast.ToString(getOrReturnDefault("JOB_QUEUE", "video_pipeline"))

	// empty means the in-process counter; set for multi-worker deployments
	c.RedisAddr = cast.ToString(getOrReturnDefault("REDIS_ADDR", ""))
	c.RedisPassword = cast.ToString(getOrReturnDefault("REDIS_PASSWORD", ""))

	c.TranscodeWorkers = cast.ToInt(getOrReturnDefault("TRANSCODE_WORKERS", 1))

	c.TmpDir = cast.ToString(getOrReturnDefault("TMP_DIR", "storage/tmp"))
	c.WebVideosDir = cast.ToString(getOrReturnDefault("WEB_VIDEOS_DIR", "storage/web-videos"))
	c.HLSDir = cast.ToString(getOrReturnDefault("HLS_DIR", "storage/streaming-playlists/hls"))
	c.OriginalDir = cast.ToString(getOrReturnDefault("ORIGINAL_DIR", "storage/original-video-files"))
	c.CaptionsDir = cast.ToString(getOrReturnDefault("CAPTIONS_DIR", "storage/captions"))
	c.PreviewsDir = cast.ToString(getOrReturnDefault("PREVIEWS_DIR", "storage/previews"))
	c.UseObjectStorage = cast.ToBool(getOrReturnDefault("USE_OBJECT_STORAGE", false))

	c.ObjectStorageType = cast.ToString(getOrReturnDefault("OBJECT_STORAGE_TYPE", "minio"))
	c.ObjectStorageEndpoint = cast.ToString(getOrReturnDefault("OBJECT_STORAGE_ENDPOINT", ""))
	c.ObjectStorageRegion = cast.ToString(getOrReturnDefault("OBJECT_STORAGE_REGION", ""))
	c.ObjectStorageAccessKey = cast.ToString(getOrReturnDefault("OBJECT_STORAGE_ACCESS_KEY", ""))
	c.ObjectStorageSecretKey = cast.ToString(getOrReturnDefault("OBJECT_STORAGE_SECRET_KEY", ""))
	c.WebVideosBucket = cast.ToString(getOrReturnDefault("WEB_VIDEOS_BUCKET", "web-videos"))
	c.StreamingPlaylistsBucket = cast.ToString(getOrReturnDefault("STREAMING_PLAYLISTS_BUCKET", "streaming-playlists"))
	c.OriginalFileBucket = cast.ToString(getOrReturnDefault("ORIGINAL_FILE_BUCKET", "original-video-files"))
	c.CaptionsBucket = cast.ToString(getOrReturnDefault("CAPTIONS_BUCKET", "captions"))
	c.ObjectStorageBaseURL = cast.ToString(getOrReturnDefault("OBJECT_STORAGE_BASE_URL", ""))

	c.FFmpeg = cast.ToString(getOrReturnDefault("FFMPEG", "ffmpeg"))
	c.FFprobe = cast.ToString(getOrReturnDefault("FFPROBE", "ffprobe"))
	c.TranscodingProfile = cast.ToString(getOrReturnDefault("TRANSCODING_PROFILE", "default"))
	c.TranscodingThreads = cast.ToInt(getOrReturnDefault("TRANSCODING_THREADS", 0))
	c.Niceness = cast.ToInt(getOrReturnDefault("FFMPEG_NICE", 10))
	c.HlsSegmentDuration = cast.ToInt(getOrReturnDefault("HLS_SEGMENT_DURATION", 4))

	return c
}

func getOrReturnDefault(key string, defaultValue interface{}) interface{} {
	_, exists := os.LookupEnv(key)
	if exists {
		return os.Getenv(key)
	}

	return defaultValue
}

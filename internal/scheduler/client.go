package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"claims_backend/internal/aitasks"
	"claims_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const defaultQueue = "default"

var errRedisNotConfigured = errors.New("redis url not configured")

// Client enqueues AI task attempts on asynq. The aitasks queue owns the
// retry ladder, so asynq never retries an attempt by itself.
type Client struct {
	client *asynq.Client
	queue  string
}

var _ aitasks.Dispatcher = (*Client)(nil)

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := asynqRedisOpt(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{client: asynq.NewClient(opt), queue: queueName(cfg)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Dispatch schedules one attempt of taskID after delay.
func (c *Client) Dispatch(ctx context.Context, taskID uuid.UUID, delay time.Duration) error {
	task, err := NewAITaskRunTask(taskID)
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.Queue(c.queue), asynq.MaxRetry(0)}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	return err
}

// NewRedisClient opens the go-redis client used for job leases.
func NewRedisClient(cfg config.SchedulerConfig) (*redis.Client, error) {
	opt, err := redisOptions(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

func queueName(cfg config.SchedulerConfig) string {
	if queue := cfg.GetAsynqQueueName(); queue != "" {
		return queue
	}
	return defaultQueue
}

func asynqRedisOpt(cfg config.SchedulerConfig) (asynq.RedisClientOpt, error) {
	opt, err := redisOptions(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

// redisOptions parses a redis:// or rediss:// URL. tlsInsecure skips
// certificate checks and forces TLS on.
func redisOptions(url string, tlsInsecure bool) (*redis.Options, error) {
	if url == "" {
		return nil, errRedisNotConfigured
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if tlsInsecure {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return opt, nil
}

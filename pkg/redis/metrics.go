package redis

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	redisRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_requests_total",
			Help: "Total number of Redis commands by command name.",
		},
		[]string{"command"},
	)
	redisErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total number of failed Redis commands by command name.",
		},
		[]string{"command"},
	)
	redisRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_request_duration_seconds",
			Help:    "Redis command latency; pipelines are observed once as \"pipeline\".",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"command"},
	)
	redisDialErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redis_dial_errors_total",
		Help: "Total number of failed connection attempts to Redis.",
	})
)

// metricsHook instruments every command sent through a client it is added to.
type metricsHook struct{}

var _ redis.Hook = metricsHook{}

// Instrument adds Prometheus command metrics to rdb.
func Instrument(rdb redis.UniversalClient) {
	rdb.AddHook(metricsHook{})
}

func (metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			redisDialErrorsTotal.Inc()
		}
		return conn, err
	}
}

func (metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		started := time.Now()
		err := next(ctx, cmd)
		observe(strings.ToLower(cmd.Name()), started, err)
		return err
	}
}

func (metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		started := time.Now()
		err := next(ctx, cmds)
		observe("pipeline", started, err)
		return err
	}
}

func observe(command string, started time.Time, err error) {
	redisRequestDuration.WithLabelValues(command).Observe(time.Since(started).Seconds())
	redisRequestsTotal.WithLabelValues(command).Inc()
	// a missing key is a normal outcome, not a failure
	if err != nil && !errors.Is(err, redis.Nil) {
		redisErrorsTotal.WithLabelValues(command).Inc()
	}
}

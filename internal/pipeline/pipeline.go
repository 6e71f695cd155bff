// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The filtermap Authors

// Package pipeline wires a configured source, rule and rate limit into a
// single observable and runs it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/joamaki/filtermap/internal/config"
	"github.com/joamaki/filtermap/internal/logger"
	"github.com/joamaki/filtermap/internal/rule"
	srchttp "github.com/joamaki/filtermap/sources/http"
	"github.com/joamaki/filtermap/sources/lines"
	srcredis "github.com/joamaki/filtermap/sources/redis"
	"github.com/joamaki/filtermap/stream"
)

// Stats counts records passing through a run.
type Stats struct {
	Received int
	Emitted  int
	Dropped  int
	Failed   int
}

type Pipeline struct {
	cfg  *config.Config
	rule *rule.Rule
	log  zerolog.Logger
}

// New creates a pipeline from a validated configuration and its compiled rule.
func New(cfg *config.Config, r *rule.Rule, log zerolog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, rule: r, log: log}
}

// source returns the configured record source and a function releasing
// what it holds.
func (p *Pipeline) source() (stream.Observable[string], func(), error) {
	src := p.cfg.Source
	switch src.Kind {
	case config.SourceLines:
		return lines.FromFile(src.Path), func() {}, nil

	case config.SourceHTTP:
		var opts []srchttp.Option
		for k, v := range src.Headers {
			opts = append(opts, srchttp.WithHeader(k, v))
		}
		var responses stream.Observable[*http.Response]
		if strings.EqualFold(src.Method, http.MethodPost) {
			responses = srchttp.Post(src.URL, []byte(src.Body), opts...)
		} else {
			responses = srchttp.Get(src.URL, opts...)
		}
		if src.Split == config.SplitNone {
			return stream.Map(srchttp.ResponseBody(responses), bytesToString), func() {}, nil
		}
		return srchttp.BodyLines(responses), func() {}, nil

	case config.SourceRedis:
		client := srcredis.NewClient(src.Redis.Addr)
		records := srcredis.Records(
			client,
			srcredis.Config{
				Key:     src.Redis.Stream,
				StartID: src.Redis.StartID,
				Block:   src.Redis.Block,
				Count:   src.Redis.Count,
			},
			src.Redis.Field)
		return records, func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown source kind %q", config.ErrInvalidConfig, src.Kind)
}

func bytesToString(b []byte) string { return string(b) }

// Build applies retries, the rule and throttling to 'src'. The returned
// observable updates 'stats' while observed and must not be observed
// concurrently.
func (p *Pipeline) Build(src stream.Observable[string], stats *Stats) stream.Observable[string] {
	retry := p.cfg.Retry
	if retry.Max > 0 {
		log := logger.WithComponent(p.log, "source")
		warn := func(err error) bool {
			log.Warn().Err(err).Msg("Source failed, retrying")
			return true
		}
		src = stream.Retry(
			src,
			stream.LimitRetries(stream.BackoffRetry(warn, retry.MinBackoff, retry.MaxBackoff), retry.Max))
	}

	src = stream.OnNext(src, func(string) { stats.Received++ })

	log := logger.WithComponent(p.log, "rule")
	out := stream.TryFilterMap(
		src,
		func(record string) (stream.Result[string], error) {
			res, err := p.rule.Apply(record)
			switch {
			case err != nil && p.rule.DropOnError():
				stats.Failed++
				log.Warn().Err(err).Str("record", record).Msg("Dropping record that failed evaluation")
				return stream.Drop[string](), nil
			case err != nil:
				stats.Failed++
				return res, err
			case res.Dropped():
				stats.Dropped++
				log.Trace().Str("record", record).Msg("Dropped")
			}
			return res, nil
		})

	if throttle := p.cfg.Throttle; throttle.Rate > 0 {
		out = stream.Throttle(out, throttle.Rate, throttle.Burst)
	}
	return out
}

// Run observes the pipeline and writes each emitted record as a line to
// 'out' until the source completes, fails or 'ctx' is cancelled.
// Cancellation of 'ctx' is not an error.
func (p *Pipeline) Run(ctx context.Context, out io.Writer) (Stats, error) {
	var stats Stats

	src, release, err := p.source()
	if err != nil {
		return stats, err
	}
	defer release()

	log, runID := logger.WithRun(p.log)
	log.Info().
		Str("source", p.cfg.Source.Kind).
		Str("rule", string(p.rule.Kind())).
		Msg("Starting pipeline")

	err = p.Build(src, &stats).Observe(
		ctx,
		func(record string) error {
			if _, err := io.WriteString(out, record+"\n"); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			stats.Emitted++
			return nil
		})

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}

	event := log.Info()
	if err != nil {
		event = log.Error().Err(err)
	}
	event.
		Int("received", stats.Received).
		Int("emitted", stats.Emitted).
		Int("dropped", stats.Dropped).
		Int("failed", stats.Failed).
		Msg("Pipeline finished")

	if err != nil {
		return stats, fmt.Errorf("run %s: %w", runID, err)
	}
	return stats, nil
}

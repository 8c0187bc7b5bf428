package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yok-tottii/EzS2T-Realtime/internal/audio"
	"github.com/yok-tottii/EzS2T-Realtime/internal/journal"
	"github.com/yok-tottii/EzS2T-Realtime/internal/observe"
	"github.com/yok-tottii/EzS2T-Realtime/internal/realtime"
	"github.com/yok-tottii/EzS2T-Realtime/internal/recording"
)

// RetryConfig bounds reconnection after transport failures
type RetryConfig struct {
	// MaxRetries is the number of transport failures tolerated before giving up
	MaxRetries int
	// Delay between a failure and the next turn
	Delay time.Duration
}

// DefaultRetryConfig returns the default retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		Delay:      5 * time.Second,
	}
}

// Report describes one finished turn
type Report struct {
	Strategy string
	Outcome  string
	Input    string
	Response Response
	Duration time.Duration
	Err      error
}

// RunnerHooks observe the turn loop. Nil hooks are skipped.
type RunnerHooks struct {
	// OnTurn is called after every turn, whatever the outcome
	OnTurn func(Report)
	// OnRetry is called after a transport failure that will be retried
	OnRetry func(err error, remaining int)
	// OnGiveUp is called when retries are exhausted
	OnGiveUp func(err error)
}

// Runner repeats turns of one strategy until the user quits, the context
// ends, or the connection keeps failing
type Runner struct {
	controller *Controller
	provider   realtime.Provider
	strategy   Strategy
	retry      RetryConfig
	hooks      RunnerHooks
	log        *slog.Logger

	// Optional
	Journal    *journal.Journal
	Metrics    *observe.Metrics
	WAVPath    string
	SampleRate int
	Channels   int

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a runner
func NewRunner(controller *Controller, provider realtime.Provider, strategy Strategy, retry RetryConfig, hooks RunnerHooks, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		controller: controller,
		provider:   provider,
		strategy:   strategy,
		retry:      retry,
		hooks:      hooks,
		log:        log.With("strategy", strategy.Name()),
		SampleRate: 24000,
		Channels:   1,
		sleep:      sleepContext,
	}
}

// Run loops over turns. It returns nil when ctx ends or the user quits,
// and an error wrapping ErrRetriesExhausted when the connection failed
// MaxRetries times.
func (r *Runner) Run(ctx context.Context) error {
	remaining := r.retry.MaxRetries
	r.log.Info("turn loop started", "max_retries", remaining)

	for {
		if ctx.Err() != nil {
			return nil
		}

		_, err := r.RunTurn(ctx)

		switch {
		case err == nil:
			r.log.Info("listening again")

		case ctx.Err() != nil:
			return nil

		case errors.Is(err, ErrQuit):
			r.log.Info("exiting on user request")
			return nil

		case errors.Is(err, ErrNoInput):
			r.log.Info("no sufficient input, listening again")

		case errors.Is(err, recording.ErrSourceClosed):
			return err

		case realtime.IsTransportFailure(err):
			remaining--
			if remaining <= 0 {
				r.log.Error("max retries reached, exiting", "err", err)
				if r.hooks.OnGiveUp != nil {
					r.hooks.OnGiveUp(err)
				}
				return fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
			}
			r.log.Warn("connection failed, retrying", "err", err, "attempts_left", remaining, "delay", r.retry.Delay)
			if r.hooks.OnRetry != nil {
				r.hooks.OnRetry(err, remaining)
			}
			if err := r.sleep(ctx, r.retry.Delay); err != nil {
				return nil
			}

		default:
			r.log.Error("turn failed", "err", err)
		}
	}
}

// RunTurn runs a single turn. The session is opened after input was
// acquired and closed before RunTurn returns, so nothing from this turn's
// response can reach the next one.
func (r *Runner) RunTurn(ctx context.Context) (report Report, err error) {
	start := time.Now()
	report = Report{Strategy: r.strategy.Name()}

	ctx, span := observe.StartSpan(ctx, "voice.turn",
		trace.WithAttributes(attribute.String("strategy", r.strategy.Name())))
	defer span.End()
	log := observe.WithTrace(ctx, r.log)

	if r.Metrics != nil {
		r.Metrics.ActiveTurns.Add(ctx, 1)
		defer r.Metrics.ActiveTurns.Add(ctx, -1)
	}

	defer func() {
		report.Duration = time.Since(start)
		span.SetAttributes(attribute.String("outcome", report.Outcome))
		if report.Err != nil {
			span.RecordError(report.Err)
			span.SetStatus(codes.Error, report.Err.Error())
		}
		if r.Metrics != nil && report.Outcome != "" {
			r.Metrics.RecordTurn(ctx, report.Strategy, report.Outcome, report.Duration)
		}
		if r.hooks.OnTurn != nil && report.Outcome != "" {
			r.hooks.OnTurn(report)
		}
		r.controller.setPhase(PhaseIdle)
	}()

	in, err := r.strategy.Acquire(ctx, r.controller)
	if err != nil {
		if errors.Is(err, ErrNoInput) {
			report.Outcome = observe.OutcomeNoInput
		}
		return report, err
	}

	if in.Utterance != nil {
		r.recordUtterance(ctx, log, in.Utterance)
	}

	sess, err := r.provider.Open(ctx, r.strategy.SessionConfig())
	if err != nil {
		return r.fail(ctx, &report, err)
	}
	defer sess.Close()

	result, err := r.strategy.Run(ctx, r.controller, sess, in)
	report.Input = result.Input
	report.Response = result.Response

	if err != nil {
		if errors.Is(err, ErrNoInput) {
			report.Outcome = observe.OutcomeNoInput
			return report, err
		}
		if errors.Is(err, realtime.ErrConnectionLost) {
			if cause := sess.Err(); cause != nil {
				err = cause
			}
		}
		return r.fail(ctx, &report, err)
	}

	if result.Response.Interrupted {
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		if cerr := sess.Cancel(cancelCtx); cerr != nil {
			log.Debug("response.cancel not sent", "err", cerr)
		}
		cancel()
		report.Outcome = observe.OutcomeInterrupted
		return report, nil
	}

	report.Outcome = observe.OutcomeCompleted
	resp := result.Response

	if r.Metrics != nil {
		r.Metrics.ResponseLatency.Record(ctx, resp.FirstEventLatency.Seconds())
		if n := countRemoteErrors(resp); n > 0 {
			r.Metrics.RemoteErrors.Add(ctx, int64(n))
		}
		if resp.Degraded {
			r.Metrics.DegradedResponses.Add(ctx, 1)
		}
	}

	log.Info("turn completed",
		"input", report.Input,
		"response", resp.Content(),
		"audio_samples", resp.AudioSamples,
		"degraded", resp.Degraded,
	)

	if r.Journal != nil {
		if err := r.Journal.Append(journal.Entry{Input: report.Input, Response: resp.Content()}); err != nil {
			log.Warn("failed to write response log", "err", err)
		}
	}

	return report, nil
}

func (r *Runner) fail(ctx context.Context, report *Report, err error) (Report, error) {
	report.Outcome = observe.OutcomeFailed
	report.Err = err
	if r.Metrics != nil && realtime.IsTransportFailure(err) {
		r.Metrics.TransportFailures.Add(ctx, 1)
	}
	return *report, err
}

func (r *Runner) recordUtterance(ctx context.Context, log *slog.Logger, utt *recording.Utterance) {
	if r.Metrics != nil {
		r.Metrics.UtteranceDuration.Record(ctx, utt.Duration.Seconds())
	}
	if r.WAVPath == "" {
		return
	}
	if err := audio.SaveWAV(r.WAVPath, utt.Samples, r.SampleRate, r.Channels); err != nil {
		log.Warn("failed to save captured audio", "path", r.WAVPath, "err", err)
	}
}

// countRemoteErrors counts warnings other than the degraded marker
func countRemoteErrors(resp Response) int {
	n := len(resp.Warnings)
	if resp.Degraded {
		n--
	}
	return n
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package runner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/beekhof/ics-calendar-sync/internal/auth"
	calclient "github.com/beekhof/ics-calendar-sync/internal/calendar"
	"github.com/beekhof/ics-calendar-sync/internal/config"
	"github.com/beekhof/ics-calendar-sync/internal/ics"
	"github.com/beekhof/ics-calendar-sync/internal/logging"
	"github.com/beekhof/ics-calendar-sync/internal/metrics"
	"github.com/beekhof/ics-calendar-sync/internal/notify"
	calsync "github.com/beekhof/ics-calendar-sync/internal/sync"
)

// Result is the envelope returned to whoever triggered a run.
type Result struct {
	Success    bool   `json:"success"`
	RunID      string `json:"runId"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error,omitempty"`
}

// Runner executes complete fetch, parse and sync runs. The auth session, and
// with it the token cache, lives as long as the Runner.
type Runner struct {
	cfg        *config.Config
	httpClient *http.Client
	fetcher    *ics.Fetcher
	session    *auth.Session
	notifier   *notify.Notifier
	metrics    *metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithHTTPClient sets the client used for the feed, the token endpoint and as
// the base transport of the calendar API.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) { r.httpClient = c }
}

// WithNotifier overrides the notifier built from the configuration.
func WithNotifier(n *notify.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithMetrics sets the recorder runs are reported to.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a Runner for cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	r := newRunner(cfg, logger, opts...)

	session, err := auth.NewSession(auth.Credentials{
		Email:      cfg.ServiceAccountEmail,
		PrivateKey: cfg.PrivateKey,
		Subject:    cfg.DelegatedSubject,
		Scopes:     []string{calclient.Scope},
		TokenURL:   cfg.TokenURL,
	}, auth.WithHTTPClient(r.httpClient), auth.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	r.session = session
	return r, nil
}

func newRunner(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.notifier == nil {
		r.notifier = notify.New(cfg, logger)
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	r.fetcher = ics.NewFetcher(r.httpClient, logger)
	return r
}

// Abort reports a run that could not start, such as one with missing
// credentials, through the same log, notification and metrics path as a
// failed Run. A nil cfg disables notifications.
func Abort(ctx context.Context, cfg *config.Config, logger *slog.Logger, cause error, opts ...Option) Result {
	if cfg == nil {
		cfg = &config.Config{}
	}
	r := newRunner(cfg, logger, opts...)
	start := r.now()
	res := Result{RunID: uuid.NewString()}
	r.finish(ctx, logging.WithOperation(logging.WithRunID(r.logger, res.RunID), "run"), &res, start, cause)
	return res
}

// Metrics returns the recorder runs are reported to.
func (r *Runner) Metrics() *metrics.Recorder {
	return r.metrics
}

// Run performs one sync and never returns an error: failures are logged,
// notified and folded into the Result.
func (r *Runner) Run(ctx context.Context) Result {
	start := r.now()
	res := Result{RunID: uuid.NewString()}
	runLogger := logging.WithRunID(r.logger, res.RunID)
	logger := logging.WithOperation(runLogger, "run")
	logger.Info("sync run started", logging.URL(r.cfg.FeedURL), logging.Calendar(r.cfg.CalendarID))

	// Components tag their own operation.
	summary, skipped, err := r.run(ctx, runLogger)
	res.Created = summary.Created
	res.Updated = summary.Updated
	res.Processed = summary.Processed
	res.Skipped = skipped

	r.finish(ctx, logger, &res, start, err)
	return res
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, res *Result, start time.Time, err error) {
	finished := r.now()
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailure
		res.StatusCode = http.StatusInternalServerError
		res.Error = err.Error()
		logger.Error("sync run failed",
			logging.Status(logging.StatusError),
			logging.Err(err),
			slog.Int("processed", res.Processed),
			slog.Duration("duration", finished.Sub(start)))
		r.notifyFailure(ctx, logger, *res)
	} else {
		res.Success = true
		res.StatusCode = http.StatusOK
		logger.Info("sync run finished",
			logging.Status(logging.StatusSuccess),
			slog.Int("created", res.Created),
			slog.Int("updated", res.Updated),
			slog.Int("processed", res.Processed),
			slog.Int("skipped", res.Skipped),
			slog.Duration("duration", finished.Sub(start)))
	}

	r.metrics.ObserveRun(result, finished.Sub(start), finished)
	r.metrics.AddEvents(calsync.OutcomeCreated.String(), res.Created)
	r.metrics.AddEvents(calsync.OutcomeUpdated.String(), res.Updated)
	r.metrics.AddSkipped(res.Skipped)
	if r.cfg.MetricsFile != "" {
		if err := r.metrics.WriteTextfile(r.cfg.MetricsFile); err != nil {
			logger.Warn("failed to write metrics file", slog.String("path", r.cfg.MetricsFile), logging.Err(err))
		}
	}
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger) (calsync.Summary, int, error) {
	text, err := r.fetcher.Fetch(ctx, r.cfg.FeedURL)
	if err != nil {
		return calsync.Summary{}, 0, err
	}

	feed, err := ics.ParseFeed(text, r.cfg.DefaultTimezone)
	if err != nil {
		return calsync.Summary{}, 0, err
	}
	if feed.Skipped > 0 {
		logger.Warn("feed events skipped", slog.Int("skipped", feed.Skipped))
	}

	client, err := r.calendarClient(ctx, logger)
	if err != nil {
		return calsync.Summary{}, feed.Skipped, err
	}

	syncer := calsync.NewSyncer(client, r.session, r.cfg, logger)
	summary, err := syncer.Sync(ctx, feed.Events)
	return summary, feed.Skipped, err
}

// calendarClient authorizes every API request with the session's current
// token, so the session's expiry margin applies to the calls themselves.
func (r *Runner) calendarClient(ctx context.Context, logger *slog.Logger) (*calclient.Client, error) {
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: r.session.TokenSource(ctx),
			Base:   r.httpClient.Transport,
		},
		Timeout: r.httpClient.Timeout,
	}
	client, err := calclient.NewClient(ctx, httpClient, r.cfg.CalendarEndpoint, logger)
	if err != nil {
		return nil, fmt.Errorf("calendar client: %w", err)
	}
	return client, nil
}

func (r *Runner) notifyFailure(ctx context.Context, logger *slog.Logger, res Result) {
	if !r.notifier.IsEnabled() {
		return
	}
	err := r.notifier.Send(context.WithoutCancel(ctx), notify.Alert{
		Type:      notify.AlertTypeFailure,
		RunID:     res.RunID,
		Message:   "ICS calendar sync failed",
		Details:   fmt.Sprintf("%s\n\nProcessed before failure: %d (created %d, updated %d)", res.Error, res.Processed, res.Created, res.Updated),
		Timestamp: r.now(),
	})
	if err != nil {
		logger.Warn("failure notification not delivered", logging.Err(err))
	}
}

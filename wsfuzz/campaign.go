package wsfuzz

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultReceiveTimeout = 3 * time.Second
	DefaultWorkers        = 1

	receivedAtLayout = "15:04:05 02.01.2006"
)

// CampaignOption contains configuration options for Campaign
type CampaignOption struct {
	// ReceiveTimeout is the quiescence window that ends a receive burst
	ReceiveTimeout   time.Duration
	HandshakeTimeout time.Duration
	// Workers bounds how many template lines run at once; payloads of one line are always sequential
	Workers int
	// Rate limits attempts per second across all workers, 0 disables pacing
	Rate       float64
	Indicators IndicatorSet
	Dialer     Dialer
	Logger     zerolog.Logger
}

// DefaultCampaignOption returns default campaign options
func DefaultCampaignOption() *CampaignOption {
	return &CampaignOption{
		ReceiveTimeout:   DefaultReceiveTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		Workers:          DefaultWorkers,
		Indicators:       NewIndicatorSet(DefaultIndicators...),
		Logger:           zerolog.New(os.Stdout).With().Timestamp().Logger(),
	}
}

// WithReceiveTimeout sets the quiescence timeout of the receive loop
func (o *CampaignOption) WithReceiveTimeout(timeout time.Duration) *CampaignOption {
	o.ReceiveTimeout = timeout
	return o
}

// WithHandshakeTimeout sets the handshake timeout of the default dialer
func (o *CampaignOption) WithHandshakeTimeout(timeout time.Duration) *CampaignOption {
	o.HandshakeTimeout = timeout
	return o
}

// WithWorkers sets the number of template lines fuzzed concurrently
func (o *CampaignOption) WithWorkers(workers int) *CampaignOption {
	o.Workers = workers
	return o
}

// WithRate sets the maximum attempts per second
func (o *CampaignOption) WithRate(perSecond float64) *CampaignOption {
	o.Rate = perSecond
	return o
}

// WithIndicators sets the substrings that flag a response
func (o *CampaignOption) WithIndicators(indicators IndicatorSet) *CampaignOption {
	o.Indicators = indicators
	return o
}

// WithDialer replaces the WebSocket dialer
func (o *CampaignOption) WithDialer(dialer Dialer) *CampaignOption {
	o.Dialer = dialer
	return o
}

// WithLogger sets the logger instance
func (o *CampaignOption) WithLogger(logger zerolog.Logger) *CampaignOption {
	o.Logger = logger
	return o
}

// Summary totals a finished campaign
type Summary struct {
	Templates       int
	Payloads        int
	Attempts        int64
	Completed       int64
	ConnectFailures int64
	SendFailures    int64
	Responses       int64
	Findings        int64
	Elapsed         time.Duration
}

type campaignStats struct {
	attempts        atomic.Int64
	completed       atomic.Int64
	connectFailures atomic.Int64
	sendFailures    atomic.Int64
	responses       atomic.Int64
	findings        atomic.Int64
}

// Campaign sends every payload through every template, one connection per attempt
type Campaign struct {
	target    *Target
	templates []FuzzTemplate
	trailing  []string
	payloads  []string

	log            zerolog.Logger
	dialer         Dialer
	indicators     IndicatorSet
	receiveTimeout time.Duration
	workers        int
	limiter        *rate.Limiter

	stats campaignStats
}

// NewCampaign creates a campaign over the parsed templates and payload corpus
func NewCampaign(target *Target, set *TemplateSet, payloads []string, opt *CampaignOption) *Campaign {
	if opt == nil {
		opt = DefaultCampaignOption()
	}
	if set == nil {
		set = &TemplateSet{}
	}

	c := &Campaign{
		target:         target,
		templates:      set.Templates,
		trailing:       set.Trailing,
		payloads:       payloads,
		log:            opt.Logger,
		dialer:         opt.Dialer,
		indicators:     opt.Indicators,
		receiveTimeout: opt.ReceiveTimeout,
		workers:        opt.Workers,
	}

	if c.dialer == nil {
		c.dialer = NewWSDialer(opt.Logger, opt.HandshakeTimeout)
	}
	if c.receiveTimeout <= 0 {
		c.receiveTimeout = DefaultReceiveTimeout
	}
	if c.workers < 1 {
		c.workers = DefaultWorkers
	}
	if opt.Rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opt.Rate), 1)
	}

	return c
}

// Run executes the campaign. Individual attempt failures are logged and counted,
// the only error returned is the context error when the campaign was aborted.
func (c *Campaign) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	c.log.Info().
		Str("url", c.target.URL.String()).
		Str("origin", c.target.Origin).
		Int("templates", len(c.templates)).
		Int("payloads", len(c.payloads)).
		Int("workers", c.workers).
		Msg("Starting fuzz campaign")
	c.warnConfiguration()

	g := &errgroup.Group{}
	g.SetLimit(c.workers)

	for _, tmpl := range c.templates {
		if ctx.Err() != nil {
			break
		}
		tmpl := tmpl
		// Workers never return an error so one template cannot cancel another
		g.Go(func() error {
			c.runTemplate(ctx, tmpl)
			return nil
		})
	}
	_ = g.Wait()

	summary := c.summary(time.Since(start))
	c.log.Info().
		Int64("attempts", summary.Attempts).
		Int64("completed", summary.Completed).
		Int64("connect_failures", summary.ConnectFailures).
		Int64("send_failures", summary.SendFailures).
		Int64("responses", summary.Responses).
		Int64("findings", summary.Findings).
		Dur("elapsed", summary.Elapsed).
		Msg("Fuzz campaign finished")

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (c *Campaign) warnConfiguration() {
	if c.target.Insecure {
		c.log.Warn().Msg("TLS certificate verification is disabled for this campaign")
	}
	if len(c.templates) == 0 {
		c.log.Warn().Msg("Message file contains no fuzzable lines, nothing to send")
	}
	if len(c.payloads) == 0 && len(c.templates) > 0 {
		c.log.Warn().Msg("Payload file is empty, no connections will be opened")
	}
	if len(c.trailing) > 0 {
		c.log.Warn().
			Int("count", len(c.trailing)).
			Msg("Pre messages after the last fuzzable line are never sent")
	}
	for _, tmpl := range c.templates {
		if !tmpl.HasPlaceholder() {
			c.log.Warn().
				Int("template_line", tmpl.Line).
				Msgf("Line has no %s token and will be sent unchanged", Placeholder)
		}
	}
}

// runTemplate replays the template once per payload, strictly in corpus order
func (c *Campaign) runTemplate(ctx context.Context, tmpl FuzzTemplate) {
	for i, payload := range c.payloads {
		if ctx.Err() != nil {
			return
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return
			}
		}
		c.attempt(ctx, tmpl, i+1, payload)
	}
}

// attempt runs one connect, pre messages, send, drain, close cycle
func (c *Campaign) attempt(ctx context.Context, tmpl FuzzTemplate, index int, payload string) {
	log := c.log.With().
		Int("template_line", tmpl.Line).
		Int("payload_index", index).
		Int("payload_total", len(c.payloads)).
		Str("attempt_id", uuid.NewString()).
		Logger()

	c.stats.attempts.Add(1)

	session, err := c.dialer.Dial(ctx, c.target)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug().Err(err).Msg("Connection aborted")
			return
		}
		c.stats.connectFailures.Add(1)
		log.Error().Err(err).Msg("Failed to connect, skipping payload")
		return
	}
	defer session.Close()

	for _, pre := range tmpl.Preconditions {
		if err := session.Send(pre); err != nil {
			c.stats.sendFailures.Add(1)
			log.Error().Err(err).Str("content", pre).Msg("Failed to send pre message, skipping payload")
			return
		}
		log.Info().Str("content", pre).Msg("Pre message sent")
	}

	message := tmpl.Render(payload)
	if err := session.Send(message); err != nil {
		c.stats.sendFailures.Add(1)
		log.Error().Err(err).Str("content", message).Msg("Failed to send fuzzed message, skipping payload")
		return
	}
	log.Info().Str("content", message).Msg("Fuzzed message sent")

	c.drain(session, message, log)
	c.stats.completed.Add(1)
}

// drain reads responses until the quiescence timeout or any receive error
func (c *Campaign) drain(session Session, message string, log zerolog.Logger) {
	for {
		resp, err := session.Receive(c.receiveTimeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				log.Debug().Msg("No further responses within timeout")
			} else {
				log.Debug().Err(err).Msg("Receive loop ended")
			}
			return
		}

		c.stats.responses.Add(1)
		log.Info().
			Int("length", len(resp.Data)).
			Str("type", resp.TypeName()).
			Str("received_at", resp.ReceivedAt.Format(receivedAtLayout)).
			Msg("Received response")

		if matched := c.indicators.Classify(resp.Data); len(matched) > 0 {
			c.stats.findings.Add(1)
			log.Warn().
				Strs("indicators", matched).
				Str("content", message).
				Int("length", len(resp.Data)).
				Msg("Response matched indicators")
		}
	}
}

func (c *Campaign) summary(elapsed time.Duration) *Summary {
	return &Summary{
		Templates:       len(c.templates),
		Payloads:        len(c.payloads),
		Attempts:        c.stats.attempts.Load(),
		Completed:       c.stats.completed.Load(),
		ConnectFailures: c.stats.connectFailures.Load(),
		SendFailures:    c.stats.sendFailures.Load(),
		Responses:       c.stats.responses.Load(),
		Findings:        c.stats.findings.Load(),
		Elapsed:         elapsed,
	}
}

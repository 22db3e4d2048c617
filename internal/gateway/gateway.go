// Package gateway mediates between the API handlers and the clinical-analysis
// backend: it validates and forwards analysis batches, passes chat history
// through, and resolves report PDFs with a local fallback.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/orthogate/internal/artifact"
	"github.com/kiranshivaraju/orthogate/internal/observability"
	"github.com/kiranshivaraju/orthogate/internal/transport"
	"github.com/kiranshivaraju/orthogate/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const chatService = "chat service"

// Default deadlines per operation.
const (
	DefaultAnalysisTimeout = 30 * time.Second
	DefaultChatTimeout     = 15 * time.Second
	DefaultReportTimeout   = 10 * time.Second
	// DefaultReportIdleTimeout bounds a stall while a report body streams.
	DefaultReportIdleTimeout = 30 * time.Second
)

// Config is the gateway's explicit configuration.
type Config struct {
	BaseURL         string
	AnalysisTimeout time.Duration
	ChatTimeout     time.Duration
	// ReportTimeout covers the wait for report headers only; the body
	// streams for as long as it keeps arriving within ReportIdleTimeout.
	ReportTimeout     time.Duration
	ReportIdleTimeout time.Duration
}

// Gateway is the entry point for backend operations. It holds no per-call
// state and is safe for concurrent use.
type Gateway struct {
	cfg      Config
	client   transport.Client
	fallback artifact.Source
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// Option configures optional Gateway collaborators.
type Option func(*Gateway)

// WithMetrics records per-operation outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway. fallback may be nil, in which case a failed remote
// report fetch is reported as not found.
func New(cfg Config, client transport.Client, fallback artifact.Source, opts ...Option) *Gateway {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = DefaultAnalysisTimeout
	}
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = DefaultChatTimeout
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = DefaultReportTimeout
	}
	if cfg.ReportIdleTimeout <= 0 {
		cfg.ReportIdleTimeout = DefaultReportIdleTimeout
	}

	g := &Gateway{
		cfg:      cfg,
		client:   client,
		fallback: fallback,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ForwardAnalysis validates req, sends it to the analysis engine as one batch
// and returns the engine's outcome.
func (g *Gateway) ForwardAnalysis(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisOutcome, error) {
	ctx, done := g.observe(ctx, "forward_analysis")
	outcome, err := g.forward(ctx, req)
	done(err)
	return outcome, err
}

// FetchChatHistory returns the backend's chat history for sessionID as raw
// JSON.
func (g *Gateway) FetchChatHistory(ctx context.Context, sessionID string) (json.RawMessage, error) {
	ctx, done := g.observe(ctx, "fetch_chat_history")
	history, err := g.chatHistory(ctx, sessionID)
	done(err)
	return history, err
}

// DownloadReport resolves the report PDF for reportID. The caller must close
// the returned Artifact's Body.
func (g *Gateway) DownloadReport(ctx context.Context, reportID string) (*models.Artifact, error) {
	ctx, done := g.observe(ctx, "download_report")
	a, err := g.resolve(ctx, reportID)
	done(err)
	return a, err
}

func (g *Gateway) chatHistory(ctx context.Context, sessionID string) (json.RawMessage, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, validationError("session id is required")
	}

	resp, err := g.client.Do(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/api/chat/%s/history", g.cfg.BaseURL, url.PathEscape(sessionID)),
		Accept:  "application/json",
		Timeout: g.cfg.ChatTimeout,
	})
	if err != nil {
		return nil, translateError(chatService, err)
	}

	body, gwErr := readJSON(chatService, resp)
	if gwErr != nil {
		return nil, gwErr
	}
	return json.RawMessage(body), nil
}

// observe starts a span for op and returns a func that ends it and records
// the outcome.
func (g *Gateway) observe(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "gateway."+op)

	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			if gwErr, ok := AsError(err); ok {
				outcome = gwErr.Kind.String()
			}
			span.SetAttributes(attribute.String("gateway.kind", outcome))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		g.metrics.RecordCall(ctx, op, outcome, time.Since(start))
	}
}

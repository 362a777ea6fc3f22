package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "kata-board/api"
	boardEventDomain = "kata.board"
	observabilityMsg = "observability.event"

	boardEventName = "board.view"
	boardSpanName  = "GET /api/projects/:pro/board"
	boardRoute     = "/api/projects/:pro/board"

	moveEventName = "board.move"
	moveSpanName  = "POST /api/projects/:pro/moves"
	moveRoute     = "/api/projects/:pro/moves"
)

// requestMetrics times one board request, records it on a span and emits a
// single observability.event log entry when Log is called.
type requestMetrics struct {
	logger     *log.Logger
	span       trace.Span
	route      string
	eventName  string
	start      time.Time
	authDur    time.Duration
	serviceDur time.Duration
	project    string
	role       string
	moved      bool
	duplicate  bool
	errorStage string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, spanName, route, eventName string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger:    logger,
		span:      span,
		route:     route,
		eventName: eventName,
		start:     time.Now(),
	}, spanCtx
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDur = d
	}
}

func (m *requestMetrics) ObserveService(d time.Duration) {
	if d > 0 {
		m.serviceDur = d
	}
}

func (m *requestMetrics) SetProject(key string) { m.project = key }

func (m *requestMetrics) SetRole(role string) { m.role = role }

func (m *requestMetrics) SetMoved(moved bool) { m.moved = moved }

func (m *requestMetrics) SetDuplicate(dup bool) { m.duplicate = dup }

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *requestMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64("board.total_ms", durationToMillis(time.Since(m.start))),
		attribute.String("board.project", m.project),
		attribute.String("board.role", m.role),
	}
	if m.eventName == moveEventName {
		attrs = append(attrs,
			attribute.Bool("board.moved", m.moved),
			attribute.Bool("board.duplicate", m.duplicate),
		)
	}
	if m.authDur > 0 {
		attrs = append(attrs, attribute.Float64("board.auth_ms", durationToMillis(m.authDur)))
	}
	if m.serviceDur > 0 {
		attrs = append(attrs, attribute.Float64("board.service_ms", durationToMillis(m.serviceDur)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log ends the span and writes the observability event.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	severityText, severityNumber := severityForStatus(status, err)
	attrs := m.attributes(status, err)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", m.eventName),
			attribute.String("event.domain", boardEventDomain),
			attribute.String("severity_text", severityText),
		}, attrs...)
		m.span.AddEvent(observabilityMsg, trace.WithAttributes(eventAttrs...))
		if severityText == "ERROR" {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      m.eventName,
		"event.domain":    boardEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesToFields(attrs),
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityMsg)
	case "WARN":
		entry.Warn(observabilityMsg)
	default:
		entry.Info(observabilityMsg)
	}
}

// severityForStatus maps a response to OpenTelemetry log severities.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func attributesToFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

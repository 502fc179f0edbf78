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
	statusSpanName    = "board.update_status"
	statusEventName   = "board.update_status"
	statusEventDomain = "board"
	statusRoute       = "/tasks/update-status"
)

// statusRequestMetrics measures one status-update request and emits both
// an otel span and a structured observability event when logged.
type statusRequestMetrics struct {
	logger *log.Logger
	span   trace.Span

	start          time.Time
	decodeDuration time.Duration
	updateDuration time.Duration
	taskID         int64
	newStatus      string
	errorStage     string
}

func newStatusRequestMetrics(ctx context.Context, logger *log.Logger) (*statusRequestMetrics, context.Context) {
	tracer := otel.Tracer("kaban-board/api")
	spanCtx, span := tracer.Start(ctx, statusSpanName)
	return &statusRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *statusRequestMetrics) ObserveDecode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.decodeDuration = duration
}

func (m *statusRequestMetrics) ObserveUpdate(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.updateDuration = duration
}

func (m *statusRequestMetrics) SetTaskID(id int64) {
	m.taskID = id
}

func (m *statusRequestMetrics) SetNewStatus(status string) {
	m.newStatus = status
}

func (m *statusRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log finalizes the span and writes the observability event. It must be
// called exactly once per request.
func (m *statusRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", statusRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("kaban.board.total_ms", totalMs),
	}
	if m.decodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("kaban.board.decode_ms", durationToMillis(m.decodeDuration)))
	}
	if m.updateDuration > 0 {
		attrs = append(attrs, attribute.Float64("kaban.board.update_ms", durationToMillis(m.updateDuration)))
	}
	if m.taskID != 0 {
		attrs = append(attrs, attribute.Int64("kaban.board.task_id", m.taskID))
	}
	if m.newStatus != "" {
		attrs = append(attrs, attribute.String("kaban.board.new_status", m.newStatus))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("kaban.board.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", statusEventName),
		attribute.String("event.domain", statusEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)

	m.span.SetAttributes(attrs...)
	m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
	if err != nil || status >= http.StatusInternalServerError {
		desc := http.StatusText(status)
		if err != nil {
			desc = err.Error()
		}
		m.span.SetStatus(codes.Error, desc)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()

	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}

	fields := log.Fields{
		"event.name":      statusEventName,
		"event.domain":    statusEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrMap,
	}
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}

	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// Package handlers implements the three HTTP endpoints of the payment
// intermediary: fire-and-forget ingestion onto the durable queue, a
// read-only summary over the accounting counters with an inclusive time
// window, and a purge that resets the stored payment data.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/rinha/payment-intermediary/internal/apperr"
	"github.com/rinha/payment-intermediary/internal/clock"
	"github.com/rinha/payment-intermediary/internal/types"
)

var validatorInstance = validator.New()

// Enqueuer is the ingestion dependency of PaymentHandler, narrowed so tests
// can hand it a fake queue instead of a real Store.
type Enqueuer interface {
	Enqueue(ctx context.Context, entry types.QueueEntry) error
}

// Summarizer is the read dependency of PaymentsSummaryHandler.
type Summarizer interface {
	Summary(ctx context.Context, from, to *time.Time) (types.Summary, error)
}

// Purger is the store-reset dependency of PurgePaymentsHandler.
type Purger interface {
	Clear(ctx context.Context) error
}

type Handlers struct {
	Store      Enqueuer
	Accounting Summarizer
	Purge      Purger
	Clock      clock.Clock
	Log        zerolog.Logger
}

type paymentRequest struct {
	CorrelationID string `json:"correlationId" validate:"required,uuid"`
	Amount        any    `json:"amount"`
	RequestedAt   string `json:"requestedAt"`
}

// PaymentHandler validates the request, stamps requestedAt if absent,
// enqueues the entry and returns 202. It never calls a downstream
// processor — handler latency is dominated by one store round trip.
func (h *Handlers) PaymentHandler(c *fiber.Ctx) error {
	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(http.StatusUnprocessableEntity)
	}
	if err := validatorInstance.Struct(&req); err != nil {
		return c.SendStatus(http.StatusUnprocessableEntity)
	}

	amountCents, err := types.ParseAmount(amountString(req.Amount))
	if err != nil {
		return c.SendStatus(http.StatusUnprocessableEntity)
	}

	requestedAt := h.Clock.Now()
	if req.RequestedAt != "" {
		parsed, err := time.Parse(time.RFC3339Nano, req.RequestedAt)
		if err != nil {
			return c.SendStatus(http.StatusUnprocessableEntity)
		}
		requestedAt = parsed.UTC()
	}

	entry := types.QueueEntry{
		Payment: types.Payment{
			CorrelationID: req.CorrelationID,
			AmountCents:   int64(amountCents),
			RequestedAt:   requestedAt,
		},
	}

	if err := h.Store.Enqueue(c.Context(), entry); err != nil {
		h.Log.Warn().Err(err).Str("correlationId", req.CorrelationID).Msg("ingestion: enqueue failed")
		return c.SendStatus(http.StatusServiceUnavailable)
	}

	return c.SendStatus(http.StatusAccepted)
}

// amountString normalizes the decoded "amount" field — a JSON number is
// decoded as float64 by most decoders, but BodyParser may also hand back a
// string depending on input shape, so both are accepted.
func amountString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// PaymentsSummaryHandler aggregates accounted totals per processor over
// [from, to]. Both query parameters are optional and, when present,
// inclusive.
func (h *Handlers) PaymentsSummaryHandler(c *fiber.Ctx) error {
	var from, to *time.Time

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return c.SendStatus(http.StatusUnprocessableEntity)
		}
		t = t.UTC()
		from = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return c.SendStatus(http.StatusUnprocessableEntity)
		}
		t = t.UTC()
		to = &t
	}

	summary, err := h.Accounting.Summary(c.Context(), from, to)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindStoreUnavailable {
			return c.SendStatus(http.StatusServiceUnavailable)
		}
		h.Log.Error().Err(err).Msg("summary: range query failed")
		return c.SendStatus(http.StatusInternalServerError)
	}

	return c.Status(http.StatusOK).JSON(summary)
}

// PurgePaymentsHandler resets every payment record the process has
// accumulated — the queue, the dead-letter list, the idempotency set and
// the accounting buckets — for use between load-test runs. It does not
// touch in-flight dispatch attempts already owned by a worker goroutine.
func (h *Handlers) PurgePaymentsHandler(c *fiber.Ctx) error {
	if err := h.Purge.Clear(c.Context()); err != nil {
		if apperr.KindOf(err) == apperr.KindStoreUnavailable {
			return c.SendStatus(http.StatusServiceUnavailable)
		}
		h.Log.Error().Err(err).Msg("purge: clear failed")
		return c.SendStatus(http.StatusInternalServerError)
	}
	return c.SendStatus(http.StatusOK)
}

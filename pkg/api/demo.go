package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	chiserver "github.com/tracekit-dev/trace-relay/pkg/http_server/chi_server"
	"github.com/tracekit-dev/trace-relay/pkg/observability"
	"github.com/tracekit-dev/trace-relay/pkg/payment"
	"github.com/tracekit-dev/trace-relay/pkg/responses"
	"github.com/tracekit-dev/trace-relay/pkg/users"
)

const (
	defaultCheckoutUser   int64 = 123
	defaultCheckoutAmount       = 99.99
	monitoringUserLimit         = 5
)

// errDemoFailure is raised on purpose by /error-test.
var errDemoFailure = errors.New("This is a test exception for code monitoring!")

type monitoringResponse struct {
	Message string         `json:"message"`
	Data    monitoringData `json:"data"`
}

type monitoringData struct {
	UserID     int `json:"user_id"`
	CartTotal  int `json:"cart_total"`
	UsersFound int `json:"users_found"`
}

type checkoutResponse struct {
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
}

func (h *Handler) monitoringTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.capture(ctx, "test-route-entry", map[string]any{
		"route":     "test",
		"method":    r.Method,
		"timestamp": h.timestamp(),
	})

	userID := h.between(1, 1000)
	cartTotal := h.between(10, 500)

	h.capture(ctx, "test-processing", map[string]any{
		"user_id":         userID,
		"cart_total":      cartTotal,
		"processing_step": "validation",
	})

	found, err := h.users.List(ctx, monitoringUserLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.capture(ctx, "test-complete", map[string]any{
		"user_count":      len(found),
		"total_processed": cartTotal,
		"status":          "success",
	})

	responses.JSON(w, http.StatusOK, monitoringResponse{
		Message: "Code monitoring test completed!",
		Data: monitoringData{
			UserID:     userID,
			CartTotal:  cartTotal,
			UsersFound: len(found),
		},
	})
}

func (h *Handler) errorTest(w http.ResponseWriter, r *http.Request) {
	h.capture(r.Context(), "error-test-start", map[string]any{
		"route":  "error-test",
		"intent": "trigger_exception",
	})
	h.fail(w, r, errDemoFailure)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, amount, err := checkoutParams(r)
	if err != nil {
		responses.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	h.capture(ctx, "checkout-start", map[string]any{
		"user_id": userID,
		"amount":  amount,
	})

	p, err := h.payments.Process(ctx, userID, amount)
	switch {
	case err == nil:
	case errors.Is(err, payment.ErrAmountExceedsLimit), errors.Is(err, payment.ErrInvalidAmount):
		responses.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, users.ErrNotFound):
		responses.Error(w, http.StatusNotFound, fmt.Sprintf("user %d not found", userID))
		return
	default:
		h.fail(w, r, err)
		return
	}

	h.capture(ctx, "checkout-complete", map[string]any{
		"user_id":    userID,
		"amount":     amount,
		"payment_id": p.ID,
		"status":     p.Status,
	})

	responses.JSON(w, http.StatusOK, checkoutResponse{
		PaymentID: p.ID,
		Amount:    p.Amount,
		Status:    p.Status,
		Timestamp: p.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func checkoutParams(r *http.Request) (int64, float64, error) {
	q := r.URL.Query()

	userID := defaultCheckoutUser
	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid user_id %q", v)
		}
		userID = id
	}

	amount := defaultCheckoutAmount
	if v := q.Get("amount"); v != "" {
		a, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(a) || math.IsInf(a, 0) {
			return 0, 0, fmt.Errorf("invalid amount %q", v)
		}
		amount = a
	}
	return userID, amount, nil
}

// fail records err on the request span and answers with a 500 problem.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	span := h.o11y.Tracer().SpanFromContext(r.Context())
	span.RecordError(err)
	span.SetStatus(observability.StatusCodeError, err.Error())

	h.o11y.Logger().Error(r.Context(), "request failed",
		observability.String("path", r.URL.Path),
		observability.Error(err),
	)
	chiserver.WriteProblem(w, r, http.StatusInternalServerError, err.Error())
}

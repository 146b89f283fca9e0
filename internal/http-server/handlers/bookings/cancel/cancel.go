package cancel

import (
	"agenda-service/api"
	"agenda-service/pkg/response"
	"agenda-service/pkg/sl"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type BookingCanceller interface {
	CancelBooking(ctx context.Context, tenantID, id string, overrideMinHours *float64) (*api.CancelResponse, error)
}

type Request struct {
	api.CancelRequest
}

type Response struct {
	response.Response
	api.CancelResponse
}

func New(log *slog.Logger, canceller BookingCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.cancel.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")
		if id == "" {
			log.Error("id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "id is required"))
			return
		}

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		if req.TenantID == "" {
			log.Error("tenant_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "tenant_id is required"))
			return
		}

		result, err := canceller.CancelBooking(r.Context(), req.TenantID, id, req.CancellationMinHours)

		if errors.Is(err, response.ErrAlreadyCancelled) {
			log.Error("booking already cancelled")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.ALREADY_CANCELLED), "booking is already cancelled"))
			return
		}

		if errors.Is(err, response.ErrInvalidTransition) {
			log.Error("invalid status transition")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.INVALID_TRANSITION), "booking cannot be cancelled from its current status"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("resource not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if err != nil {
			log.Error("Failed to cancel booking", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to cancel booking"))
			return
		}

		log.Info("Booking cancelled",
			slog.String("booking_id", id),
			slog.Bool("refund_eligible", result.RefundEligible),
		)
		render.JSON(w, r, Response{
			CancelResponse: *result,
		})
	}
}

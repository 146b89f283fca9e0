package create

import (
	"agenda-service/api"
	"agenda-service/pkg/response"
	"agenda-service/pkg/sl"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type SlotCreator interface {
	CreateRecurringSlot(ctx context.Context, req *api.RecurringSlotRequest) (*api.RecurringSlotResponse, error)
}

type Request struct {
	api.RecurringSlotRequest
}

type Response struct {
	response.Response
	Slot api.RecurringSlotResponse `json:"slot,omitempty"`
}

func New(log *slog.Logger, creator SlotCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.recurring_slots.create.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		log.Info("Request body decoded", slog.Any("request", req))

		for field, value := range map[string]string{
			"tenant_id":   req.TenantID,
			"customer_id": req.CustomerID,
			"staff_id":    req.StaffID,
			"start_time":  req.StartTime,
			"start_date":  req.StartDate,
		} {
			if value == "" {
				log.Error("missing required field", slog.String("field", field))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error(string(response.BAD_REQUEST), field+" is required"))
				return
			}
		}

		slot, err := creator.CreateRecurringSlot(r.Context(), &req.RecurringSlotRequest)

		if errors.Is(err, response.ErrValidation) {
			log.Error("validation failed", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.VALIDATION), err.Error()))
			return
		}

		if err != nil {
			log.Error("Failed to create recurring slot", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create recurring slot"))
			return
		}

		log.Info("Recurring slot created", slog.String("slot_id", slot.ID))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Slot: *slot,
		})
	}
}

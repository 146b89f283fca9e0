package get

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

type SlotProvider interface {
	GetAvailableSlots(ctx context.Context, tenantID, date, serviceID string, staffID *string) ([]api.SlotResponse, error)
}

type Response struct {
	response.Response
	Slots []api.SlotResponse `json:"slots"`
}

// New serves GET /slots?tenant_id=&date=&service_id=&staff_id=.
// An empty slot list is a valid answer (closed day, no staff), not an error.
func New(log *slog.Logger, provider SlotProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.slots.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		q := r.URL.Query()

		tenantID := q.Get("tenant_id")
		if tenantID == "" {
			log.Error("tenant_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "tenant_id is required"))
			return
		}

		date := q.Get("date")
		if date == "" {
			log.Error("date is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "date is required"))
			return
		}

		serviceID := q.Get("service_id")
		if serviceID == "" {
			log.Error("service_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "service_id is required"))
			return
		}

		var staffID *string
		if v := q.Get("staff_id"); v != "" {
			staffID = &v
		}

		slots, err := provider.GetAvailableSlots(r.Context(), tenantID, date, serviceID, staffID)

		if errors.Is(err, response.ErrValidation) {
			log.Error("validation failed", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.VALIDATION), err.Error()))
			return
		}

		if err != nil {
			log.Error("Failed to get slots", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get slots"))
			return
		}

		log.Info("Slots computed", slog.Int("count", len(slots)))
		render.JSON(w, r, Response{
			Slots: slots,
		})
	}
}

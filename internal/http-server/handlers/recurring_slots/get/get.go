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
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type SlotProvider interface {
	GetRecurringSlot(ctx context.Context, tenantID, id string) (*api.RecurringSlotResponse, error)
	ListRecurringSlots(ctx context.Context, tenantID string) ([]*api.RecurringSlotResponse, error)
}

type Response struct {
	response.Response
	Slot  *api.RecurringSlotResponse   `json:"slot,omitempty"`
	Slots []*api.RecurringSlotResponse `json:"slots,omitempty"`
}

func New(log *slog.Logger, provider SlotProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.recurring_slots.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			log.Error("tenant_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "tenant_id is required"))
			return
		}

		id := chi.URLParam(r, "id")

		if id == "" {
			slots, err := provider.ListRecurringSlots(r.Context(), tenantID)
			if err != nil {
				log.Error("Failed to list recurring slots", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list recurring slots"))
				return
			}

			log.Info("Recurring slots listed", slog.Int("count", len(slots)))
			render.JSON(w, r, Response{
				Slots: slots,
			})
			return
		}

		slot, err := provider.GetRecurringSlot(r.Context(), tenantID, id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("resource not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if err != nil {
			log.Error("Failed to get recurring slot", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get recurring slot"))
			return
		}

		render.JSON(w, r, Response{
			Slot: slot,
		})
	}
}

package list

import (
	"agenda-service/api"
	"agenda-service/pkg/response"
	"agenda-service/pkg/sl"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type BookingLister interface {
	ListBookings(ctx context.Context, tenantID string, staffID *string, from, to time.Time) ([]*api.BookingResponse, error)
}

type Response struct {
	response.Response
	Bookings []*api.BookingResponse `json:"bookings"`
}

func New(log *slog.Logger, lister BookingLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.list.New"

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

		from, err := time.Parse(time.RFC3339, q.Get("from"))
		if err != nil {
			log.Error("invalid from", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "from must be RFC3339"))
			return
		}

		to, err := time.Parse(time.RFC3339, q.Get("to"))
		if err != nil {
			log.Error("invalid to", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "to must be RFC3339"))
			return
		}

		var staffID *string
		if v := q.Get("staff_id"); v != "" {
			staffID = &v
		}

		bookings, err := lister.ListBookings(r.Context(), tenantID, staffID, from, to)
		if err != nil {
			log.Error("Failed to list bookings", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list bookings"))
			return
		}

		log.Info("Bookings listed", slog.Int("count", len(bookings)))
		render.JSON(w, r, Response{
			Bookings: bookings,
		})
	}
}

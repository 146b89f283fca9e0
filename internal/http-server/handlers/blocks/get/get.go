package get

import (
	"agenda-service/api"
	"agenda-service/pkg/response"
	"agenda-service/pkg/sl"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type BlockProvider interface {
	GetBlock(ctx context.Context, tenantID, id string) (*api.BlockResponse, error)
	ListBlocks(ctx context.Context, tenantID string, staffID *string, from, to time.Time) ([]*api.BlockResponse, error)
}

type Response struct {
	response.Response
	Block  *api.BlockResponse   `json:"block,omitempty"`
	Blocks []*api.BlockResponse `json:"blocks,omitempty"`
}

// New serves both GET /blocks and GET /blocks/{id}; the list form
// requires a from/to window.
func New(log *slog.Logger, provider BlockProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.blocks.get.New"

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

		id := chi.URLParam(r, "id")

		if id == "" {
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

			blocks, err := provider.ListBlocks(r.Context(), tenantID, staffID, from, to)
			if err != nil {
				log.Error("Failed to list blocks", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list blocks"))
				return
			}

			log.Info("Blocks listed", slog.Int("count", len(blocks)))
			render.JSON(w, r, Response{
				Blocks: blocks,
			})
			return
		}

		block, err := provider.GetBlock(r.Context(), tenantID, id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("resource not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if err != nil {
			log.Error("Failed to get block", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get block"))
			return
		}

		render.JSON(w, r, Response{
			Block: block,
		})
	}
}

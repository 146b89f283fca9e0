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

type RuleProvider interface {
	GetScheduleRule(ctx context.Context, tenantID, id string) (*api.ScheduleRuleResponse, error)
	ListScheduleRules(ctx context.Context, tenantID string) ([]*api.ScheduleRuleResponse, error)
}

type Response struct {
	response.Response
	Rule  *api.ScheduleRuleResponse   `json:"rule,omitempty"`
	Rules []*api.ScheduleRuleResponse `json:"rules,omitempty"`
}

// New serves both GET /schedule-rules and GET /schedule-rules/{id};
// without an id it lists every rule for the tenant.
func New(log *slog.Logger, provider RuleProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.schedule_rules.get.New"

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
			rules, err := provider.ListScheduleRules(r.Context(), tenantID)
			if err != nil {
				log.Error("Failed to list schedule rules", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list schedule rules"))
				return
			}

			log.Info("Schedule rules listed", slog.Int("count", len(rules)))
			render.JSON(w, r, Response{
				Rules: rules,
			})
			return
		}

		rule, err := provider.GetScheduleRule(r.Context(), tenantID, id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("resource not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if err != nil {
			log.Error("Failed to get schedule rule", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get schedule rule"))
			return
		}

		render.JSON(w, r, Response{
			Rule: rule,
		})
	}
}

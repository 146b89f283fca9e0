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

type RuleCreator interface {
	CreateScheduleRule(ctx context.Context, req *api.ScheduleRuleRequest) (*api.ScheduleRuleResponse, error)
}

type Request struct {
	api.ScheduleRuleRequest
}

type Response struct {
	response.Response
	Rule api.ScheduleRuleResponse `json:"rule,omitempty"`
}

func New(log *slog.Logger, creator RuleCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.schedule_rules.create.New"

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

		if req.TenantID == "" {
			log.Error("tenant_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "tenant_id is required"))
			return
		}

		rule, err := creator.CreateScheduleRule(r.Context(), &req.ScheduleRuleRequest)

		if errors.Is(err, response.ErrValidation) {
			log.Error("validation failed", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.VALIDATION), err.Error()))
			return
		}

		if err != nil {
			log.Error("Failed to create schedule rule", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create schedule rule"))
			return
		}

		log.Info("Schedule rule created", slog.String("rule_id", rule.ID))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Rule: *rule,
		})
	}
}

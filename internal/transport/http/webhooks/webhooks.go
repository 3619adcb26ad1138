package webhooks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/platonv/delayq/internal/service/errs"
	"github.com/platonv/delayq/internal/service/models/webhook"
	"github.com/platonv/delayq/internal/transport/http/respond"
)

type service interface {
	Create(ctx context.Context, url string) (webhook.Webhook, error)
	GetAll(ctx context.Context) ([]webhook.Webhook, error)
	Update(ctx context.Context, hook webhook.Webhook) (webhook.Webhook, error)
}

type createWebhookRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type updateWebhookRequest struct {
	URL        string `json:"url"         validate:"required,url"`
	FailsCount int64  `json:"fails_count" validate:"gte=0"`
}

func decode(r *http.Request, req any) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return errs.BadInput("invalid request body: " + err.Error())
	}
	if err := validator.New().Struct(req); err != nil {
		return errs.BadInput(err.Error())
	}

	return nil
}

// Create registers a webhook.
//
//	@Summary	Register a webhook
//	@Tags		webhooks
//	@Accept		json
//	@Produce	json
//	@Param		request	body		createWebhookRequest	true	"Webhook"
//	@Success	201		{object}	webhook.Webhook
//	@Failure	400		{object}	respond.ErrorBody
//	@Router		/webhooks [post]
func Create(w http.ResponseWriter, r *http.Request, service service) {
	req := createWebhookRequest{}
	if err := decode(r, &req); err != nil {
		respond.Error(w, r, err)

		return
	}

	hook, err := service.Create(r.Context(), req.URL)
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusCreated, hook)
}

// GetAll lists registered webhooks.
//
//	@Summary	List webhooks
//	@Tags		webhooks
//	@Produce	json
//	@Success	200	{array}	webhook.Webhook
//	@Router		/webhooks [get]
func GetAll(w http.ResponseWriter, r *http.Request, service service) {
	hooks, err := service.GetAll(r.Context())
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, hooks)
}

// Update overwrites a webhook.
//
//	@Summary	Update a webhook
//	@Tags		webhooks
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string					true	"Webhook id"
//	@Param		request	body		updateWebhookRequest	true	"Webhook"
//	@Success	200		{object}	webhook.Webhook
//	@Failure	404		{object}	respond.ErrorBody
//	@Router		/webhooks/{id} [put]
func Update(w http.ResponseWriter, r *http.Request, service service) {
	req := updateWebhookRequest{}
	if err := decode(r, &req); err != nil {
		respond.Error(w, r, err)

		return
	}

	hook, err := service.Update(r.Context(), webhook.Webhook{
		ID:         chi.URLParam(r, "id"),
		URL:        req.URL,
		FailsCount: req.FailsCount,
	})
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, hook)
}

package ack

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/platonv/delayq/internal/service/errs"
	"github.com/platonv/delayq/internal/service/models/message"
	"github.com/platonv/delayq/internal/transport/http/respond"
)

type service interface {
	Ack(ctx context.Context, ack message.Ack) (int64, error)
}

// ackRequest represents an ack request.
// ScheduledAt is the fencing token returned by poll; without it the message is deleted unconditionally.
type ackRequest struct {
	Key         string `json:"key"          validate:"required"`
	Kind        string `json:"kind"`
	CreatedAt   int64  `json:"created_at"`
	ScheduledAt *int64 `json:"scheduled_at"`
}

// Validate validates the ack request.
func (r *ackRequest) Validate() error {
	return validator.New().Struct(r)
}

func (r *ackRequest) toModel() message.Ack {
	return message.Ack{
		Identity: message.Identity{
			Key:       r.Key,
			Kind:      r.Kind,
			CreatedAt: r.CreatedAt,
		},
		FencingToken: r.ScheduledAt,
	}
}

type ackResponse struct {
	Deleted int64 `json:"deleted"`
}

// Ack handles the ack request.
//
//	@Summary	Acknowledge a message
//	@Tags		queue
//	@Accept		json
//	@Produce	json
//	@Param		request	body		ackRequest	true	"Message identity and fencing token"
//	@Success	200		{object}	ackResponse
//	@Failure	400		{object}	respond.ErrorBody
//	@Failure	503		{object}	respond.ErrorBody
//	@Router		/ack [post]
func Ack(w http.ResponseWriter, r *http.Request, service service) {
	req := ackRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, errs.BadInput("invalid request body: "+err.Error()))

		return
	}

	if err := req.Validate(); err != nil {
		respond.Error(w, r, errs.BadInput(err.Error()))

		return
	}

	deleted, err := service.Ack(r.Context(), req.toModel())
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, ackResponse{Deleted: deleted})
}

package schedulemessage

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
	Now() int64
	Schedule(ctx context.Context, msg message.Message) (message.Message, error)
}

// scheduleMessageRequest represents a schedule message request.
// Payload is base64 encoded in JSON.
type scheduleMessageRequest struct {
	Key          string `json:"key"           validate:"max=255"`
	Kind         string `json:"kind"          validate:"max=255"`
	Payload      []byte `json:"payload"`
	ScheduledAt  int64  `json:"scheduled_at"  validate:"gte=0"`
	DelaySeconds int64  `json:"delay_seconds" validate:"gte=0,excluded_with=ScheduledAt"`
}

// Validate validates the schedule message request.
func (r *scheduleMessageRequest) Validate() error {
	return validator.New().Struct(r)
}

// toModel converts scheduleMessageRequest to message.Message.
func (r *scheduleMessageRequest) toModel(now int64) message.Message {
	scheduledAt := r.ScheduledAt
	if scheduledAt == 0 {
		scheduledAt = now + r.DelaySeconds
	}

	return message.Message{
		Key:                  r.Key,
		Kind:                 r.Kind,
		Payload:              r.Payload,
		ScheduledAt:          scheduledAt,
		ScheduledAtInitially: scheduledAt,
		CreatedAt:            now,
	}
}

// ScheduleMessage handles the schedule message request.
//
//	@Summary	Schedule a message
//	@Tags		queue
//	@Accept		json
//	@Produce	json
//	@Param		request	body		scheduleMessageRequest	true	"Message"
//	@Success	201		{object}	message.Message
//	@Failure	400		{object}	respond.ErrorBody
//	@Failure	409		{object}	respond.ErrorBody
//	@Failure	503		{object}	respond.ErrorBody
//	@Router		/schedule_message [post]
func ScheduleMessage(w http.ResponseWriter, r *http.Request, service service) {
	req := scheduleMessageRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, errs.BadInput("invalid request body: "+err.Error()))

		return
	}

	if err := req.Validate(); err != nil {
		respond.Error(w, r, errs.BadInput(err.Error()))

		return
	}

	stored, err := service.Schedule(r.Context(), req.toModel(service.Now()))
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusCreated, stored)
}

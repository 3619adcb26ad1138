package poll

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"

	"github.com/platonv/delayq/internal/service/errs"
	"github.com/platonv/delayq/internal/service/models/message"
	"github.com/platonv/delayq/internal/transport/http/respond"
)

type service interface {
	Now() int64
	PollBatch(ctx context.Context, now int64, filter message.KindFilter, limit int) ([]message.Message, error)
}

type pollRequest struct {
	Limit int    `schema:"limit"`
	Kind  string `schema:"kind"`
}

// filter resolves the kind filter. A kind in the path wins over the query.
// A present but empty kind query parameter selects the empty kind.
func (q *pollRequest) filter(r *http.Request) message.KindFilter {
	if kind := chi.URLParam(r, "kind"); kind != "" {
		return message.OfKind(kind)
	}
	if r.URL.Query().Has("kind") {
		return message.OfKind(q.Kind)
	}

	return message.AnyKind()
}

// Poll leases due messages.
//
//	@Summary		Lease due messages
//	@Description	Leases due messages in scheduled order. The returned scheduled_at is the fencing token for ack.
//	@Tags			queue
//	@Produce		json
//	@Param			kind	path		string	false	"Message kind"
//	@Param			limit	query		int		false	"Maximum number of messages"
//	@Success		200		{array}		message.Message
//	@Failure		400		{object}	respond.ErrorBody
//	@Failure		503		{object}	respond.ErrorBody
//	@Router			/poll [get]
//	@Router			/poll/{kind} [get]
func Poll(w http.ResponseWriter, r *http.Request, service service, defaultLimit int) {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	query := &pollRequest{Limit: defaultLimit}
	if err := decoder.Decode(query, r.URL.Query()); err != nil {
		respond.Error(w, r, errs.BadInput("invalid query: "+err.Error()))

		return
	}
	if query.Limit < 0 {
		respond.Error(w, r, errs.BadInput("limit must not be negative"))

		return
	}

	leased, err := service.PollBatch(r.Context(), service.Now(), query.filter(r), query.Limit)
	if err != nil && len(leased) == 0 {
		respond.Error(w, r, err)

		return
	}
	if leased == nil {
		leased = []message.Message{}
	}

	respond.JSON(w, http.StatusOK, leased)
}

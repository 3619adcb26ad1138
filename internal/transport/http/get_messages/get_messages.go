package getmessages

import (
	"context"
	"net/http"

	"github.com/platonv/delayq/internal/service/models/message"
	"github.com/platonv/delayq/internal/transport/http/respond"
)

type service interface {
	List(ctx context.Context) ([]message.Message, error)
}

// GetMessages lists every stored message.
//
//	@Summary	List stored messages
//	@Tags		queue
//	@Produce	json
//	@Success	200	{array}		message.Message
//	@Failure	503	{object}	respond.ErrorBody
//	@Router		/get_messages [get]
func GetMessages(w http.ResponseWriter, r *http.Request, service service) {
	messages, err := service.List(r.Context())
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, messages)
}

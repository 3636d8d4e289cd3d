package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/dropDatabas3/paygate/internal/fulfillment"
	"github.com/dropDatabas3/paygate/internal/store/core"
)

// maxWebhookBody caps notification payloads. Real events are tiny.
const maxWebhookBody = 256 << 10

// HandleWebhook receives payment processor notifications.
//
// Status mapping drives the processor's redelivery behavior:
//
//	200 -> accepted (including redeliveries: same answer, no new effects)
//	400 -> signature failed; retrying the same payload will never help
//	422 -> authentic but unroutable; do not redeliver
//	409 -> fulfillment conflict; frozen for manual review
//	503 -> transient; processor should redeliver
func (s *Server) HandleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_payload", "could not read body", 1400)
			return
		}
		defer r.Body.Close()
		if len(body) > maxWebhookBody {
			WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "notification too large", 1413)
			return
		}

		err = s.Fulfillment.Handle(r.Context(), r.Header.Get(fulfillment.SignatureHeaderName), body)
		if err != nil {
			switch {
			case errors.Is(err, fulfillment.ErrInvalidSignature):
				RecordWebhookEvent("bad_signature")
				WriteError(w, http.StatusBadRequest, "invalid_signature", "signature verification failed", 1400)
			case errors.Is(err, fulfillment.ErrUnroutable):
				RecordWebhookEvent("unroutable")
				WriteError(w, http.StatusUnprocessableEntity, "unroutable_event", "event cannot be routed", 1422)
			case errors.Is(err, core.ErrFulfillmentConflict):
				RecordWebhookEvent("conflict")
				WriteError(w, http.StatusConflict, "fulfillment_conflict", "conflicting payment reference, under review", 1409)
			default:
				RecordWebhookEvent("error")
				WriteError(w, http.StatusServiceUnavailable, "transient_error", "temporarily unable to process, please redeliver", 1503)
			}
			return
		}

		RecordWebhookEvent("ok")
		WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

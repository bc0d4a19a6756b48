package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-relay/whatsapp"
)

const maxWebhookBody = 1 << 20

func (api *API) receiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.Warn("webhook: body too large", "limit", tooLarge.Limit)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)})
			return
		}
		badRequest(c, "unable to read request body")
		return
	}

	res, err := api.ingester.Ingest(c.Request.Context(), body)
	if errors.Is(err, whatsapp.ErrMalformedEnvelope) {
		slog.Warn("webhook: rejected payload", "error", err)
		badRequest(c, err.Error())
		return
	}
	if err != nil {
		slog.Error("webhook: processing failed", "error", err)
		internalError(c, err)
		return
	}

	slog.Info("webhook: processed",
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"updated", res.Updated,
		"unmatched", res.Unmatched,
	)
	c.String(http.StatusOK, "OK")
}

package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"whatsapp-relay/events"
	"whatsapp-relay/models"
)

// Store is the subset of the message store the ingester needs.
type Store interface {
	// InsertMessageIfAbsent stores msg unless a record with the same id
	// exists. It reports whether msg was inserted.
	InsertMessageIfAbsent(ctx context.Context, msg *models.Message) (bool, error)
	// UpdateMessageStatus sets the status of the message with the given id
	// and returns the updated record, or models.ErrNotFound.
	UpdateMessageStatus(ctx context.Context, id string, status models.MessageStatus, statusTS int64, at time.Time) (*models.Message, error)
}

// Result summarizes what an envelope did to the store.
type Result struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Updated    int `json:"updated"`
	Unmatched  int `json:"unmatched"`
}

// Ingester turns webhook envelopes into stored messages and status changes
// and announces them on the broadcaster.
type Ingester struct {
	store       Store
	broadcaster events.Broadcaster
	now         func() time.Time
}

func NewIngester(store Store, b events.Broadcaster) *Ingester {
	if b == nil {
		b = events.Nop{}
	}
	return &Ingester{store: store, broadcaster: b, now: time.Now}
}

// Ingest processes one webhook body.
func (in *Ingester) Ingest(ctx context.Context, body []byte) (Result, error) {
	return in.IngestTagged(ctx, body, "")
}

// IngestTagged is Ingest with new records tagged with the file they were
// replayed from.
func (in *Ingester) IngestTagged(ctx context.Context, body []byte, sourceFile string) (Result, error) {
	var res Result

	env, err := ParseEnvelope(body)
	if err != nil {
		return res, err
	}
	parsed, err := flatten(env)
	if err != nil {
		return res, err
	}

	for _, item := range parsed.items {
		switch {
		case item.inbound != nil:
			inserted, err := in.storeInbound(ctx, item.inbound, sourceFile)
			if err != nil {
				return res, err
			}
			if inserted {
				res.Inserted++
			} else {
				res.Duplicates++
			}
		case item.status != nil:
			matched, err := in.applyStatus(ctx, item.status, item.waID)
			if err != nil {
				return res, err
			}
			if matched {
				res.Updated++
			} else {
				res.Unmatched++
			}
		}
	}
	return res, nil
}

func (in *Ingester) storeInbound(ctx context.Context, item *inboundItem, sourceFile string) (bool, error) {
	msg := &models.Message{
		ID:          item.msg.ID,
		WaID:        item.waID,
		From:        item.msg.From,
		Timestamp:   int64(item.msg.Timestamp),
		Type:        item.msg.Type,
		Status:      models.StatusReceived,
		ProcessedAt: in.now().UTC(),
		SourceFile:  sourceFile,
		RawPayload:  item.raw,
	}
	if item.msg.Text != nil {
		msg.Content = item.msg.Text.Body
	}

	inserted, err := in.store.InsertMessageIfAbsent(ctx, msg)
	if err != nil {
		return false, fmt.Errorf("store message %s: %w", msg.ID, err)
	}
	if !inserted {
		slog.Info("webhook: message already exists", "id", msg.ID, "wa_id", msg.WaID)
		return false, nil
	}

	slog.Info("webhook: message stored", "id", msg.ID, "wa_id", msg.WaID, "type", msg.Type)
	in.broadcaster.Broadcast(models.NewMessageEvent(msg))
	return true, nil
}

func (in *Ingester) applyStatus(ctx context.Context, st *Status, changeWaID string) (bool, error) {
	status := models.MessageStatus(st.Status)
	updated, err := in.store.UpdateMessageStatus(ctx, st.ID, status, int64(st.Timestamp), in.now().UTC())
	if errors.Is(err, models.ErrNotFound) {
		slog.Warn("webhook: status for unknown message", "id", st.ID, "status", st.Status)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update status of %s: %w", st.ID, err)
	}

	waID := updated.WaID
	if waID == "" {
		waID = changeWaID
	}
	slog.Info("webhook: status updated", "id", st.ID, "status", st.Status)
	in.broadcaster.Broadcast(models.StatusUpdateEvent(models.StatusUpdate{
		MessageID: st.ID,
		Status:    status,
		WaID:      waID,
	}))
	return true, nil
}

package whatsapp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedEnvelope is returned when a webhook body cannot be interpreted.
var ErrMalformedEnvelope = errors.New("malformed webhook envelope")

// Envelope is the top level webhook body sent by the provider.
type Envelope struct {
	Object string  `json:"object,omitempty"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes of one business account.
type Entry struct {
	ID      string   `json:"id,omitempty"`
	Changes []Change `json:"changes"`
}

// Change carries either inbound messages or delivery statuses.
type Change struct {
	Field string      `json:"field,omitempty"`
	Value ChangeValue `json:"value"`
}

// Metadata identifies the receiving business number.
type Metadata struct {
	PhoneNumberID      string `json:"phone_number_id"`
	DisplayPhoneNumber string `json:"display_phone_number,omitempty"`
}

// ChangeValue is the payload of a change. Messages are kept raw so the
// original object can be stored next to the normalized record.
type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product,omitempty"`
	Metadata         Metadata          `json:"metadata"`
	Messages         []json.RawMessage `json:"messages,omitempty"`
	Statuses         []Status          `json:"statuses,omitempty"`
}

// Text is the body of a text message.
type Text struct {
	Body string `json:"body"`
}

// InboundMessage is a single message reported by the provider.
type InboundMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Timestamp Timestamp `json:"timestamp"`
	Type      string    `json:"type"`
	Text      *Text     `json:"text,omitempty"`
}

// Status is a delivery status notification for a previously sent message.
type Status struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Timestamp   Timestamp `json:"timestamp"`
	RecipientID string    `json:"recipient_id,omitempty"`
}

// Timestamp holds unix seconds. The provider sends it as a string, sample
// payloads and older integrations as a number.
type Timestamp int64

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = 0
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*t = 0
			return nil
		}
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return fmt.Errorf("invalid timestamp %q", raw)
		}
		n = int64(f)
	}
	*t = Timestamp(n)
	return nil
}

// IsMessageChange reports whether the change carries inbound messages.
// Such changes are never treated as status updates, even if they also
// list statuses.
func (v *ChangeValue) IsMessageChange() bool {
	return v.Messages != nil
}

// inboundItem is a decoded message with its raw object and conversation key.
type inboundItem struct {
	msg  InboundMessage
	raw  map[string]any
	waID string
}

// parsedEnvelope is the validated, flattened content of an envelope in
// document order.
type parsedEnvelope struct {
	items []parsedItem
}

type parsedItem struct {
	inbound *inboundItem
	status  *Status
	waID    string
}

// ParseEnvelope decodes and validates a webhook body. Every entry and
// change is checked before anything is returned so that callers never act
// on half of a bad payload.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	entryRaw, ok := probe["entry"]
	if !ok || bytes.Equal(bytes.TrimSpace(entryRaw), []byte("null")) {
		return nil, fmt.Errorf("%w: missing entry array", ErrMalformedEnvelope)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return &env, nil
}

func flatten(env *Envelope) (*parsedEnvelope, error) {
	out := &parsedEnvelope{}
	for ei, entry := range env.Entry {
		for ci, change := range entry.Changes {
			v := change.Value
			switch {
			case v.IsMessageChange():
				if v.Metadata.PhoneNumberID == "" {
					return nil, fmt.Errorf("%w: entry %d change %d: missing metadata.phone_number_id", ErrMalformedEnvelope, ei, ci)
				}
				for mi, raw := range v.Messages {
					var msg InboundMessage
					if err := json.Unmarshal(raw, &msg); err != nil {
						return nil, fmt.Errorf("%w: entry %d change %d message %d: %v", ErrMalformedEnvelope, ei, ci, mi, err)
					}
					if msg.ID == "" {
						return nil, fmt.Errorf("%w: entry %d change %d message %d: missing id", ErrMalformedEnvelope, ei, ci, mi)
					}
					var rawObj map[string]any
					if err := json.Unmarshal(raw, &rawObj); err != nil {
						return nil, fmt.Errorf("%w: entry %d change %d message %d: %v", ErrMalformedEnvelope, ei, ci, mi, err)
					}
					out.items = append(out.items, parsedItem{
						inbound: &inboundItem{msg: msg, raw: rawObj, waID: v.Metadata.PhoneNumberID},
						waID:    v.Metadata.PhoneNumberID,
					})
				}
			case len(v.Statuses) > 0:
				for si := range v.Statuses {
					st := v.Statuses[si]
					if st.ID == "" {
						return nil, fmt.Errorf("%w: entry %d change %d status %d: missing id", ErrMalformedEnvelope, ei, ci, si)
					}
					if st.Status == "" {
						return nil, fmt.Errorf("%w: entry %d change %d status %d: missing status", ErrMalformedEnvelope, ei, ci, si)
					}
					out.items = append(out.items, parsedItem{status: &st, waID: v.Metadata.PhoneNumberID})
				}
			}
		}
	}
	return out, nil
}

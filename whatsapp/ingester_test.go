package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"whatsapp-relay/events"
	"whatsapp-relay/models"
)

type memStore struct {
	msgs      map[string]*models.Message
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{msgs: make(map[string]*models.Message)}
}

func (s *memStore) InsertMessageIfAbsent(_ context.Context, msg *models.Message) (bool, error) {
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if _, ok := s.msgs[msg.ID]; ok {
		return false, nil
	}
	cp := *msg
	s.msgs[msg.ID] = &cp
	return true, nil
}

func (s *memStore) UpdateMessageStatus(_ context.Context, id string, status models.MessageStatus, statusTS int64, at time.Time) (*models.Message, error) {
	m, ok := s.msgs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	m.Status = status
	m.StatusTimestamp = statusTS
	m.UpdatedAt = &at
	cp := *m
	return &cp, nil
}

type recorder struct {
	events []models.Event
}

func (r *recorder) Broadcast(evt models.Event) { r.events = append(r.events, evt) }

var _ events.Broadcaster = (*recorder)(nil)

func newTestIngester(store Store) (*Ingester, *recorder) {
	rec := &recorder{}
	in := NewIngester(store, rec)
	in.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return in, rec
}

const textEnvelope = `{
  "entry": [{"changes": [{"value": {
    "metadata": {"phone_number_id": "PN1"},
    "messages": [{"id": "wamid.A", "from": "111", "timestamp": "1700000000", "type": "text", "text": {"body": "hello"}}]
  }}]}]
}`

func TestIngest_NewMessageIsStoredOnce(t *testing.T) {
	store := newMemStore()
	in, rec := newTestIngester(store)
	ctx := context.Background()

	res, err := in.Ingest(ctx, []byte(textEnvelope))
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if res.Inserted != 1 || res.Duplicates != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = in.Ingest(ctx, []byte(textEnvelope))
	if err != nil {
		t.Fatalf("second Ingest() error: %v", err)
	}
	if res.Inserted != 0 || res.Duplicates != 1 {
		t.Fatalf("unexpected result on replay: %+v", res)
	}

	if len(store.msgs) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(store.msgs))
	}
	m := store.msgs["wamid.A"]
	if m.WaID != "PN1" || m.From != "111" || m.Content != "hello" || m.Timestamp != 1700000000 {
		t.Fatalf("unexpected stored message: %+v", m)
	}
	if m.Status != models.StatusReceived {
		t.Fatalf("expected status %q, got %q", models.StatusReceived, m.Status)
	}
	if m.RawPayload["id"] != "wamid.A" {
		t.Fatalf("raw payload not kept: %#v", m.RawPayload)
	}

	if len(rec.events) != 1 {
		t.Fatalf("expected exactly one broadcast, got %d", len(rec.events))
	}
	if rec.events[0].Message.Type != models.EventNewMessage || rec.events[0].Conversation != "PN1" {
		t.Fatalf("unexpected event: %+v", rec.events[0])
	}
}

func TestIngest_StatusUpdateForKnownMessage(t *testing.T) {
	store := newMemStore()
	in, rec := newTestIngester(store)
	ctx := context.Background()

	if _, err := in.Ingest(ctx, []byte(textEnvelope)); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	status := `{"entry": [{"changes": [{"value": {
	  "metadata": {"phone_number_id": "PN1"},
	  "statuses": [{"id": "wamid.A", "status": "read", "timestamp": 1700000100}]
	}}]}]}`

	res, err := in.Ingest(ctx, []byte(status))
	if err != nil {
		t.Fatalf("Ingest(status) error: %v", err)
	}
	if res.Updated != 1 || res.Unmatched != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	m := store.msgs["wamid.A"]
	if m.Status != models.StatusRead || m.StatusTimestamp != 1700000100 || m.UpdatedAt == nil {
		t.Fatalf("status not applied: %+v", m)
	}

	last := rec.events[len(rec.events)-1]
	upd, ok := last.Message.Payload.(models.StatusUpdate)
	if !ok {
		t.Fatalf("expected StatusUpdate payload, got %T", last.Message.Payload)
	}
	if upd.MessageID != "wamid.A" || upd.Status != models.StatusRead || upd.WaID != "PN1" {
		t.Fatalf("unexpected status payload: %+v", upd)
	}
}

func TestIngest_StatusUpdateForUnknownMessageIsDropped(t *testing.T) {
	store := newMemStore()
	in, rec := newTestIngester(store)

	status := `{"entry": [{"changes": [{"value": {
	  "metadata": {"phone_number_id": "PN1"},
	  "statuses": [{"id": "wamid.missing", "status": "delivered", "timestamp": "1700000100"}]
	}}]}]}`

	res, err := in.Ingest(context.Background(), []byte(status))
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if res.Unmatched != 1 || res.Updated != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(store.msgs) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(store.msgs))
	}
	if len(rec.events) != 0 {
		t.Fatalf("expected no broadcast, got %d", len(rec.events))
	}
}

func TestIngest_ProcessesAllEntriesAndChanges(t *testing.T) {
	store := newMemStore()
	in, _ := newTestIngester(store)

	body := `{"entry": [
	  {"changes": [
	    {"value": {"metadata": {"phone_number_id": "PN1"}, "messages": [
	      {"id": "m1", "from": "a", "timestamp": 1, "type": "text", "text": {"body": "one"}},
	      {"id": "m2", "from": "a", "timestamp": 2, "type": "image"}
	    ]}},
	    {"value": {"metadata": {"phone_number_id": "PN1"}, "statuses": [{"id": "m1", "status": "delivered", "timestamp": 3}]}}
	  ]},
	  {"changes": [
	    {"value": {"metadata": {"phone_number_id": "PN2"}, "messages": [{"id": "m3", "from": "b", "timestamp": 4, "type": "text", "text": {"body": "three"}}]}}
	  ]}
	]}`

	res, err := in.Ingest(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	want := Result{Inserted: 3, Updated: 1}
	if res != want {
		t.Fatalf("expected %+v, got %+v", want, res)
	}
	if store.msgs["m2"].Content != "" {
		t.Fatalf("non-text message should have empty content, got %q", store.msgs["m2"].Content)
	}
	if store.msgs["m1"].Status != models.StatusDelivered {
		t.Fatalf("expected m1 delivered, got %q", store.msgs["m1"].Status)
	}
	if store.msgs["m3"].WaID != "PN2" {
		t.Fatalf("expected m3 in PN2, got %q", store.msgs["m3"].WaID)
	}
}

func TestIngest_MalformedEnvelopes(t *testing.T) {
	cases := map[string]string{
		"invalid json":       `{"entry": [`,
		"missing entry":      `{"object": "whatsapp_business_account"}`,
		"null entry":         `{"entry": null}`,
		"entry not array":    `{"entry": {"changes": []}}`,
		"missing message id": `{"entry": [{"changes": [{"value": {"metadata": {"phone_number_id": "PN1"}, "messages": [{"from": "a"}]}}]}]}`,
		"missing metadata":   `{"entry": [{"changes": [{"value": {"messages": [{"id": "x"}]}}]}]}`,
		"missing status id":  `{"entry": [{"changes": [{"value": {"metadata": {"phone_number_id": "PN1"}, "statuses": [{"status": "read"}]}}]}]}`,
		"empty status":       `{"entry": [{"changes": [{"value": {"metadata": {"phone_number_id": "PN1"}, "statuses": [{"id": "m1", "status": ""}]}}]}]}`,
		"bad timestamp":      `{"entry": [{"changes": [{"value": {"metadata": {"phone_number_id": "PN1"}, "messages": [{"id": "x", "timestamp": "soon"}]}}]}]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			in, rec := newTestIngester(store)

			_, err := in.Ingest(context.Background(), []byte(body))
			if !errors.Is(err, ErrMalformedEnvelope) {
				t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
			}
			if len(store.msgs) != 0 || len(rec.events) != 0 {
				t.Fatalf("malformed envelope must not touch the store")
			}
		})
	}
}

func TestIngest_ValidatesBeforeWriting(t *testing.T) {
	store := newMemStore()
	in, _ := newTestIngester(store)

	body := `{"entry": [
	  {"changes": [{"value": {"metadata": {"phone_number_id": "PN1"}, "messages": [{"id": "ok", "timestamp": 1}]}}]},
	  {"changes": [{"value": {"metadata": {"phone_number_id": "PN1"}, "messages": [{"timestamp": 2}]}}]}
	]}`

	if _, err := in.Ingest(context.Background(), []byte(body)); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
	}
	if len(store.msgs) != 0 {
		t.Fatalf("expected no partial writes, got %d messages", len(store.msgs))
	}
}

func TestIngest_EmptyEntryIsAccepted(t *testing.T) {
	in, _ := newTestIngester(newMemStore())

	res, err := in.Ingest(context.Background(), []byte(`{"entry": []}`))
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if res != (Result{}) {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestIngest_StoreErrorIsReturned(t *testing.T) {
	store := newMemStore()
	store.insertErr = errors.New("connection reset")
	in, rec := newTestIngester(store)

	_, err := in.Ingest(context.Background(), []byte(textEnvelope))
	if err == nil || errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("no event expected on store failure")
	}
}

func TestIngestTagged_SetsSourceFile(t *testing.T) {
	store := newMemStore()
	in, _ := newTestIngester(store)

	if _, err := in.IngestTagged(context.Background(), []byte(textEnvelope), "message_received.json"); err != nil {
		t.Fatalf("IngestTagged() error: %v", err)
	}
	if got := store.msgs["wamid.A"].SourceFile; got != "message_received.json" {
		t.Fatalf("expected source file tag, got %q", got)
	}
}

func TestSamplePayloads_RoundTripThroughIngester(t *testing.T) {
	store := newMemStore()
	in, _ := newTestIngester(store)
	ctx := context.Background()

	var total Result
	for _, p := range SamplePayloads(1700000000) {
		res, err := in.IngestTagged(ctx, p.Body, p.Filename)
		if err != nil {
			t.Fatalf("%s: %v", p.Filename, err)
		}
		total.Inserted += res.Inserted
		total.Updated += res.Updated
	}

	if total.Inserted != 1 || total.Updated != 1 {
		t.Fatalf("unexpected totals: %+v", total)
	}
	if store.msgs["wamid.123456789"].Status != models.StatusDelivered {
		t.Fatalf("sample message should end up delivered")
	}
}

func TestTimestamp_AcceptsStringAndNumber(t *testing.T) {
	cases := map[string]int64{
		`"1700000000"`: 1700000000,
		`1700000000`:   1700000000,
		`""`:           0,
		`null`:         0,
		`1.7e9`:        1700000000,
	}
	for in, want := range cases {
		var ts Timestamp
		if err := ts.UnmarshalJSON([]byte(in)); err != nil {
			t.Fatalf("%s: unexpected error %v", in, err)
		}
		if int64(ts) != want {
			t.Fatalf("%s: expected %d, got %d", in, want, ts)
		}
	}
}

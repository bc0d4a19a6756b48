package whatsapp

import "fmt"

// SamplePayload is a named webhook body used to seed a replay directory.
type SamplePayload struct {
	Filename string
	Body     []byte
}

// SamplePayloads returns an inbound text message and a matching delivery
// status for the same message id, stamped with ts.
func SamplePayloads(ts int64) []SamplePayload {
	return []SamplePayload{
		{
			Filename: "message_received.json",
			Body: []byte(fmt.Sprintf(`{
  "entry": [{
    "changes": [{
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"phone_number_id": "123456789", "display_phone_number": "+1234567890"},
        "messages": [{
          "id": "wamid.123456789",
          "from": "1234567890",
          "timestamp": %d,
          "type": "text",
          "text": {"body": "Hello! This is a sample message."}
        }]
      }
    }]
  }]
}
`, ts)),
		},
		{
			Filename: "status_update.json",
			Body: []byte(fmt.Sprintf(`{
  "entry": [{
    "changes": [{
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"phone_number_id": "123456789"},
        "statuses": [{"id": "wamid.123456789", "status": "delivered", "timestamp": %d}]
      }
    }]
  }]
}
`, ts)),
		},
	}
}

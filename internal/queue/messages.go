// Package queue implements the AMQP delivery adapter: the worker consumes
// crawl requests from the backend's exchange and republishes progress and
// result messages on fixed routing keys.
package queue

import (
	"encoding/json"

	"github.com/commonground/newscrawler/internal/crawl"
)

// Broker topology shared with the backend. These names are a fixed contract.
const (
	Exchange           = "crawling.exchange"
	RequestQueue       = "crawling.request.queue"
	RequestRoutingKey  = "crawling.request"
	ResultRoutingKey   = "crawling.result"
	ProgressRoutingKey = "crawling.progress"
)

// RequestMessage is the inbound crawl request envelope.
type RequestMessage struct {
	RequestID   string        `json:"requestId"`
	RequestType string        `json:"requestType"`
	Payload     crawl.Request `json:"payload"`
	Timestamp   int64         `json:"timestamp"`
}

// ResultMessage is the single outbound result per request. Data is null on
// failure, and ErrorMessage is null on success; neither field is ever
// omitted.
type ResultMessage struct {
	RequestID    string          `json:"requestId"`
	Success      bool            `json:"success"`
	Data         []crawl.Article `json:"data"`
	ErrorMessage *string         `json:"errorMessage"`
	Timestamp    int64           `json:"timestamp"`
}

// recoverRequestID pulls requestId out of a raw payload that failed full
// deserialization, so a failure result can still be keyed to the request.
func recoverRequestID(body []byte) string {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return "unknown"
	}
	raw, ok := probe["requestId"]
	if !ok {
		return "unknown"
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil || id == "" {
		return "unknown"
	}
	return id
}

// Package translate is the boundary to the external translation RPC and
// the executor that drives batches across it with retry, backoff, and
// failure classification. The endpoint itself (provider selection, HTTP,
// auth) lives on the other side of the Translator interface.
package translate

import (
	"encoding/json"
	"fmt"
)

// Params identify the translation a session asked for.
type Params struct {
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Strategy   string `json:"strategy"`
	Provider   string `json:"provider,omitempty"`
}

// Text carries the request/response payload, which is a bare string for
// single-text calls and an array for batches. Batches always use the array
// form and require the response array to come back in the same order and
// length.
type Text struct {
	Values []string
	Single bool
}

// MarshalJSON implements json.Marshaler.
func (t Text) MarshalJSON() ([]byte, error) {
	if t.Single {
		if len(t.Values) != 1 {
			return nil, fmt.Errorf("translate: single text with %d values", len(t.Values))
		}
		return json.Marshal(t.Values[0])
	}
	return json.Marshal(t.Values)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Values = []string{s}
		t.Single = true
		return nil
	}
	t.Single = false
	return json.Unmarshal(data, &t.Values)
}

// RequestOptions carries strategy hints across the messaging channel.
type RequestOptions struct {
	Strategy string `json:"strategy"`
	Context  string `json:"context,omitempty"`
}

// Request is the message sent over the extension's internal channel.
type Request struct {
	Type       string         `json:"type"`
	Text       Text           `json:"text"`
	SourceLang string         `json:"sourceLang"`
	TargetLang string         `json:"targetLang"`
	Options    RequestOptions `json:"options"`
	Provider   string         `json:"provider,omitempty"`
}

// Response is the message received back.
type Response struct {
	Success bool   `json:"success"`
	Result  *Text  `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewBatchRequest builds the wire request for a batch of texts.
func NewBatchRequest(texts []string, p Params) Request {
	return Request{
		Type:       "translate",
		Text:       Text{Values: texts},
		SourceLang: p.SourceLang,
		TargetLang: p.TargetLang,
		Options:    RequestOptions{Strategy: p.Strategy},
		Provider:   p.Provider,
	}
}

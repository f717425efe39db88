package routers

import (
	"bytes"
	"encoding/json"
	"errors"

	"zeroshot-api/internal/shared"
)

const (
	msgFieldRequired = "Field required"
	msgInvalidJSON   = "JSON decode error"
	msgNotObject     = "Input should be a valid dictionary or object to extract fields from"
	msgNotString     = "Input should be a valid string"
	msgNotList       = "Input should be a valid list"
	msgListTooShort  = "List should have at least 1 item after validation, not 0"
)

// decodeObject parses body as a JSON object. Problems with the body as a whole
// are reported against loc ["body"].
func decodeObject(body []byte) (map[string]json.RawMessage, *shared.ValidationError) {
	verr := &shared.ValidationError{}
	if !json.Valid(body) {
		var offset int64
		var serr *json.SyntaxError
		if err := json.Unmarshal(body, new(any)); errors.As(err, &serr) {
			offset = serr.Offset
		}
		verr.Add(msgInvalidJSON, "json_invalid", offset)
		return nil, verr
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		verr.Add(msgNotObject, "model_attributes_type")
		return nil, verr
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, name string, verr *shared.ValidationError) string {
	raw, ok := fields[name]
	if !ok {
		verr.Add(msgFieldRequired, "missing", name)
		return ""
	}
	s, ok := asString(raw)
	if !ok {
		verr.Add(msgNotString, "string_type", name)
	}
	return s
}

// stringListField requires a non-empty list of strings. Each bad element is
// reported with its index.
func stringListField(fields map[string]json.RawMessage, name string, verr *shared.ValidationError) []string {
	raw, ok := fields[name]
	if !ok {
		verr.Add(msgFieldRequired, "missing", name)
		return nil
	}
	raw = bytes.TrimSpace(raw)
	var items []json.RawMessage
	if len(raw) == 0 || raw[0] != '[' || json.Unmarshal(raw, &items) != nil {
		verr.Add(msgNotList, "list_type", name)
		return nil
	}

	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := asString(item)
		if !ok {
			verr.Add(msgNotString, "string_type", name, i)
			continue
		}
		out = append(out, s)
	}
	if len(items) == 0 {
		verr.Add(msgListTooShort, "too_short", name)
	}
	return out
}

// asString accepts only JSON strings. encoding/json would silently leave the
// target untouched for null.
func asString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func parseClassifyRequest(body []byte) (*shared.ClassifyRequest, error) {
	fields, verr := decodeObject(body)
	if verr != nil {
		return nil, verr
	}
	verr = &shared.ValidationError{}
	req := &shared.ClassifyRequest{
		Text:            stringField(fields, "text", verr),
		CandidateLabels: stringListField(fields, "candidate_labels", verr),
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

func parseEmbedRequest(body []byte) (*shared.EmbedRequest, error) {
	fields, verr := decodeObject(body)
	if verr != nil {
		return nil, verr
	}
	verr = &shared.ValidationError{}
	req := &shared.EmbedRequest{
		Sentences: stringListField(fields, "sentences", verr),
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	return req, nil
}

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response. Body is the raw response text.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, strings.TrimSpace(e.Body))
}

// ValidationError is raised before a request is issued, or when a response
// fails boundary checks.
type ValidationError struct {
	Op     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Op, e.Field, e.Reason)
}

// DecodeError is a 2xx response whose body could not be decoded.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("%s: decode: %v", e.Op, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

var genericMessages = map[string]string{
	"countries":      "Failed to load countries",
	"add_country":    "Failed to add country",
	"delete_country": "Failed to delete country",
	"commodities":    "Failed to load commodities",
	"add_commodity":  "Failed to add commodity",
	"routes":         "Failed to load routes",
	"add_route":      "Failed to add route",
	"delete_route":   "Failed to delete route",
	"factors":        "Failed to load factors",
	"factor_metrics": "Failed to load factor metrics",
	"add_factor":     "Failed to add factor",
	"update_factor":  "Failed to update factor",
	"delete_factor":  "Failed to delete factor",
	"reset_factors":  "Failed to reset factors",
	"alliances":      "Failed to load alliances",
	"treaties":       "Failed to load treaties",
	"simulate":       "Simulation failed",
	"graph":          "Failed to load graph",
	"reset":          "Failed to reset simulation",
}

// GenericMessage is the fallback user-facing text for op.
func GenericMessage(op string) string {
	if m, ok := genericMessages[op]; ok {
		return m
	}
	if def, ok := geoActions[GeoAction(strings.TrimPrefix(op, "geo_"))]; ok {
		return def.failure
	}
	return "Request failed"
}

// Message turns err into the text shown to the user. Non-2xx bodies are shown
// as-is, a JSON {"detail": ...} body is unwrapped, and anything else falls back
// to the per-operation message.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var se *StatusError
	if errors.As(err, &se) {
		if detail := detailText(se.Body); detail != "" {
			return detail
		}
		return GenericMessage(se.Op)
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		if ve.Field == "" {
			return ve.Reason
		}
		return ve.Field + " " + ve.Reason
	}
	var te *TransportError
	if errors.As(err, &te) {
		return GenericMessage(te.Op)
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return GenericMessage(de.Op)
	}
	return err.Error()
}

func detailText(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "{") {
		var payload struct {
			Detail json.RawMessage `json:"detail"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil && len(payload.Detail) > 0 {
			var s string
			if err := json.Unmarshal(payload.Detail, &s); err == nil {
				return s
			}
			return string(payload.Detail)
		}
	}
	return trimmed
}

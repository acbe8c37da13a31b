package tablequery

import (
	"bytes"
	"encoding/json"

	"github.com/pitabwire/storedesk/internal/urlstate"
	"github.com/pitabwire/storedesk/model"
)

// DateRange is a date filter as carried in the created_at and updated_at
// URL parameters, e.g. {"$gte":"2024-01-01T00:00:00Z"}. Values are passed to
// the commerce API untouched.
type DateRange struct {
	GT  string `json:"$gt,omitempty"`
	GTE string `json:"$gte,omitempty"`
	LT  string `json:"$lt,omitempty"`
	LTE string `json:"$lte,omitempty"`
	EQ  string `json:"$eq,omitempty"`
}

// operators returns the defined bounds keyed by operator.
func (d DateRange) operators() map[string]string {
	out := make(map[string]string, 5)
	for op, v := range map[string]string{"$gt": d.GT, "$gte": d.GTE, "$lt": d.LT, "$lte": d.LTE, "$eq": d.EQ} {
		if v != "" {
			out[op] = v
		}
	}
	return out
}

// parseDateRange decodes a JSON date filter. An absent parameter or a JSON
// null yields nil. Malformed JSON and unknown operators are errors.
func parseDateRange(raw urlstate.Params, name string) (*DateRange, error) {
	v, ok := raw.Get(name)
	if !ok {
		return nil, nil
	}
	trimmed := bytes.TrimSpace([]byte(v))
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	var dr DateRange
	if err := dec.Decode(&dr); err != nil {
		return nil, model.NewInvalidParameterError(name, "must be a JSON date filter: "+err.Error())
	}
	if dec.More() {
		return nil, model.NewInvalidParameterError(name, "unexpected data after date filter")
	}
	return &dr, nil
}

func encodeDateRange(out urlstate.Params, name string, dr *DateRange) {
	if dr == nil {
		return
	}
	b, _ := json.Marshal(dr)
	out[name] = string(b)
}

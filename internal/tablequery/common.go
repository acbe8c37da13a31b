package tablequery

import (
	"net/url"
	"strconv"

	"github.com/pitabwire/storedesk/internal/querykey"
	"github.com/pitabwire/storedesk/internal/urlstate"
)

// commonNames are recognized by every entity.
var commonNames = []string{"offset", "order", "q", "created_at", "updated_at"}

// Common holds the parameters every list shares.
type Common struct {
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	Order     string     `json:"order,omitempty"`
	Q         string     `json:"q,omitempty"`
	CreatedAt *DateRange `json:"created_at,omitempty"`
	UpdatedAt *DateRange `json:"updated_at,omitempty"`
	Fields    string     `json:"fields,omitempty"`
}

func parseCommon(raw urlstate.Params, pageSize int, fields string) (Common, error) {
	offset, err := parseOffset(raw)
	if err != nil {
		return Common{}, err
	}
	createdAt, err := parseDateRange(raw, "created_at")
	if err != nil {
		return Common{}, err
	}
	updatedAt, err := parseDateRange(raw, "updated_at")
	if err != nil {
		return Common{}, err
	}
	order, _ := raw.Get("order")
	q, _ := raw.Get("q")
	return Common{
		Limit:     pageSize,
		Offset:    offset,
		Order:     order,
		Q:         q,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Fields:    fields,
	}, nil
}

func (c Common) encode(out urlstate.Params) {
	encodeOffset(out, c.Offset)
	encodeString(out, "order", c.Order)
	encodeString(out, "q", c.Q)
	encodeDateRange(out, "created_at", c.CreatedAt)
	encodeDateRange(out, "updated_at", c.UpdatedAt)
}

// remote renders the shared parameters in the commerce API's query syntax:
// lists as name[]=v, date bounds as name[$op]=v.
func (c Common) remote() url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.Limit))
	q.Set("offset", strconv.Itoa(c.Offset))
	setRemoteString(q, "order", c.Order)
	setRemoteString(q, "q", c.Q)
	setRemoteString(q, "fields", c.Fields)
	setRemoteDate(q, "created_at", c.CreatedAt)
	setRemoteDate(q, "updated_at", c.UpdatedAt)
	return q
}

func setRemoteString(q url.Values, name, v string) {
	if v != "" {
		q.Set(name, v)
	}
}

func setRemoteList(q url.Values, name string, values []string) {
	for _, v := range values {
		q.Add(name+"[]", v)
	}
}

func setRemoteBool(q url.Values, name string, v *bool) {
	if v != nil {
		q.Set(name, strconv.FormatBool(*v))
	}
}

func setRemoteDate(q url.Values, name string, dr *DateRange) {
	if dr == nil {
		return
	}
	for op, v := range dr.operators() {
		q.Set(name+"["+op+"]", v)
	}
}

// keyFilters folds a full parameter struct into one filter token.
func keyFilters(params any) querykey.Filters {
	return querykey.Filters{"query": params}
}

func names(extra ...string) []string {
	return append(append([]string{}, commonNames...), extra...)
}

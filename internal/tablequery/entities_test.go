package tablequery

import (
	"reflect"
	"testing"

	"github.com/pitabwire/storedesk/internal/urlstate"
)

func TestParseCustomer(t *testing.T) {
	p, err := ParseCustomer(urlstate.Params{"groups": "cg_1,cg_2", "has_account": "true", "q": "jane"}, 20)
	if err != nil {
		t.Fatalf("ParseCustomer() error = %v", err)
	}
	if !reflect.DeepEqual(p.Groups, []string{"cg_1", "cg_2"}) {
		t.Errorf("Groups = %v", p.Groups)
	}
	if p.HasAccount == nil || !*p.HasAccount {
		t.Errorf("HasAccount = %v, want true", p.HasAccount)
	}
	if p.Fields != CustomerFields {
		t.Errorf("Fields = %q", p.Fields)
	}

	again, err := ParseCustomer(p.Encode(), 20)
	if err != nil || !reflect.DeepEqual(p, again) {
		t.Errorf("round trip = %+v (%v), want %+v", again, err, p)
	}
}

func TestParseCustomer_absent(t *testing.T) {
	p, err := ParseCustomer(urlstate.Params{}, 20)
	if err != nil {
		t.Fatalf("ParseCustomer() error = %v", err)
	}
	if p.Groups != nil || p.HasAccount != nil {
		t.Errorf("Groups, HasAccount = %v, %v, want nil, nil", p.Groups, p.HasAccount)
	}
}

func TestCustomerGroupQuery_prefix_and_page_size(t *testing.T) {
	store, _ := urlstate.ParseStore("cg_offset=50&cg_q=vip&offset=10")
	res, err := NewCustomerGroupQuery(store, Options{Prefix: "cg", PageSize: 50}).Result()
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if res.SearchParams.Offset != 50 || res.SearchParams.Limit != 50 {
		t.Errorf("Offset, Limit = %d, %d, want 50, 50", res.SearchParams.Offset, res.SearchParams.Limit)
	}
	if res.SearchParams.Q != "vip" {
		t.Errorf("Q = %q, want vip", res.SearchParams.Q)
	}
}

func TestParseProductTag_date_error_propagates(t *testing.T) {
	if _, err := ParseProductTag(urlstate.Params{"created_at": "yesterday"}, 20); err == nil {
		t.Error("ParseProductTag() error = nil, want parse error")
	}
}

func TestParseShippingProfile(t *testing.T) {
	p, err := ParseShippingProfile(urlstate.Params{"type": "default", "name": "Bulky", "order": "name"}, 20)
	if err != nil {
		t.Fatalf("ParseShippingProfile() error = %v", err)
	}
	if p.Type != "default" || p.Name != "Bulky" || p.Order != "name" {
		t.Errorf("params = %+v", p)
	}
	q := p.RemoteQuery()
	if q.Get("type") != "default" || q.Get("name") != "Bulky" {
		t.Errorf("RemoteQuery() = %v", q)
	}
}

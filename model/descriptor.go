package model

// PageDescriptor describes a list view to the frontend.
type PageDescriptor struct {
	ID         string                 `json:"id"`
	Title      string                 `json:"title"`
	Route      string                 `json:"route"`
	Breadcrumb []BreadcrumbDescriptor `json:"breadcrumb,omitempty"`
	Table      *TableDescriptor       `json:"table,omitempty"`
}

// BreadcrumbDescriptor is one breadcrumb entry.
type BreadcrumbDescriptor struct {
	Label string `json:"label"`
	Route string `json:"route,omitempty"`
}

// TableDescriptor describes the table of a view.
type TableDescriptor struct {
	Columns      []ColumnDescriptor  `json:"columns"`
	Filters      []FilterDescriptor  `json:"filters,omitempty"`
	OrderBy      []OrderByDescriptor `json:"order_by,omitempty"`
	DataEndpoint string              `json:"data_endpoint"`
	Prefix       string              `json:"prefix,omitempty"`
	PageSize     int                 `json:"page_size"`
	Selectable   bool                `json:"selectable"`
	Search       bool                `json:"search"`
	Pagination   bool                `json:"pagination"`
	RowLink      *LinkDescriptor     `json:"row_link,omitempty"`
	// ScopeParams must be present in the data request query.
	ScopeParams []string `json:"scope_params,omitempty"`
}

// ColumnDescriptor describes one table column.
type ColumnDescriptor struct {
	Field    string `json:"field"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Sortable bool   `json:"sortable"`
	Format   string `json:"format,omitempty"`
}

// LinkDescriptor is a route template; {id} is replaced with the row id.
type LinkDescriptor struct {
	Route string `json:"route"`
}

// FilterDescriptor describes one table filter. Field is the URL parameter
// name without the table prefix.
type FilterDescriptor struct {
	Field   string             `json:"field"`
	Label   string             `json:"label"`
	Type    string             `json:"type"`
	Multi   bool               `json:"multi,omitempty"`
	Options []OptionDescriptor `json:"options,omitempty"`
}

// OptionDescriptor is one selectable filter value.
type OptionDescriptor struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// OrderByDescriptor is one sort option.
type OrderByDescriptor struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// SortDescriptor is the active sort of a table.
type SortDescriptor struct {
	Key  string `json:"key"`
	Desc bool   `json:"desc"`
}

// DataResponse is one page of a view's table.
type DataResponse struct {
	Data DataPayload       `json:"data"`
	Raw  map[string]string `json:"raw"`
}

// DataPayload holds the rows and table state of a data response.
type DataPayload struct {
	Items     any             `json:"items"`
	Count     int             `json:"count"`
	Offset    int             `json:"offset"`
	PageIndex int             `json:"page_index"`
	PageCount int             `json:"page_count"`
	PageSize  int             `json:"page_size"`
	Sort      *SortDescriptor `json:"sort,omitempty"`
	Selection []string        `json:"selection,omitempty"`
	// NextQuery and PrevQuery are the query strings of the adjacent pages,
	// empty when there is none.
	NextQuery string `json:"next_query,omitempty"`
	PrevQuery string `json:"prev_query,omitempty"`
}

// SelectedRow is a chosen row in a selection working set.
type SelectedRow struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

// SelectionRequest changes the selection of a selectable view. Exactly one
// of Replace, Toggle or TogglePage is applied.
type SelectionRequest struct {
	Selected   []string      `json:"selected"`
	WorkingSet []SelectedRow `json:"working_set" validate:"dive"`
	Replace    []string      `json:"replace,omitempty"`
	Toggle     *RowToggle    `json:"toggle,omitempty"`
	TogglePage *bool         `json:"toggle_page,omitempty"`
}

// RowToggle selects or deselects one row.
type RowToggle struct {
	ID       string `json:"id" validate:"required"`
	Selected bool   `json:"selected"`
}

// SelectionResponse is the outcome of a SelectionRequest.
type SelectionResponse struct {
	Selection  []string      `json:"selection"`
	Added      []string      `json:"added"`
	Removed    []string      `json:"removed"`
	WorkingSet []SelectedRow `json:"working_set"`
	AllOnPage  bool          `json:"all_on_page"`
	SomeOnPage bool          `json:"some_on_page"`
}

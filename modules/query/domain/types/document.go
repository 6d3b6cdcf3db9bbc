// Package types defines the client-supplied query document and its parsed
// forms. The JSON shape is a compatibility surface and must not change.
package types

import (
	"encoding/json"

	recordtypes "github.com/zekoder/zecore/modules/record/domain/types"
)

const (
	DefaultLimit = 20
	DefaultCount = 1
)

// Document is one declarative fetch: projection, filter, sort, join,
// aggregate, grouping, pagination and a count flag. Join values are nested
// documents keyed by relation name.
type Document struct {
	Project   []string             `json:"project,omitempty"`
	Limit     int                  `json:"limit"`
	Skip      int                  `json:"skip"`
	Filter    map[string]any       `json:"filter,omitempty"`
	Sort      []string             `json:"sort,omitempty"`
	Join      map[string]*Document `json:"join,omitempty"`
	Aggregate map[string]any       `json:"aggregate,omitempty"`
	Group     []string             `json:"group,omitempty"`
	Count     int                  `json:"count"`
}

// UnmarshalJSON applies the wire defaults: limit 20, skip 0, count 1.
func (d *Document) UnmarshalJSON(b []byte) error {
	type alias Document
	aux := struct {
		Limit *int `json:"limit"`
		Count *int `json:"count"`
		*alias
	}{alias: (*alias)(d)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.Limit == nil {
		d.Limit = DefaultLimit
	} else {
		d.Limit = *aux.Limit
	}
	if aux.Count == nil {
		d.Count = DefaultCount
	} else {
		d.Count = *aux.Count
	}
	return nil
}

// Response is the query result shape returned to clients.
type Response struct {
	Data       []recordtypes.Record `json:"data"`
	Aggregates []recordtypes.Record `json:"aggregates"`
	Count      *int64               `json:"count"`
	PageSize   int                  `json:"page_size"`
	NextPage   int                  `json:"next_page"`
}

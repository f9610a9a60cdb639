package feishusdk

import (
	"encoding/json"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
)

// FilterInfo and Condition are the SDK search filter types.
type (
	FilterInfo = larkbitable.FilterInfo
	Condition  = larkbitable.Condition
)

// Equals matches rows whose field text is exactly value.
func Equals(field, value string) *Condition {
	return &Condition{
		FieldName: larkcore.StringPtr(field),
		Operator:  larkcore.StringPtr("is"),
		Value:     []string{value},
	}
}

// LocalIDFilter matches the rows of one collection path carrying localID.
// Tables are shared between properties, so the path column is part of the key.
func LocalIDFilter(localIDField, localID, pathField, path string) *FilterInfo {
	return &FilterInfo{
		Conjunction: larkcore.StringPtr("and"),
		Conditions:  []*Condition{Equals(localIDField, localID), Equals(pathField, path)},
	}
}

func filterJSON(filter *FilterInfo) string {
	if filter == nil {
		return "{}"
	}
	raw, err := json.Marshal(filter)
	if err != nil {
		return "?"
	}
	return string(raw)
}

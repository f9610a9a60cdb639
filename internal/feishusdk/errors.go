package feishusdk

import (
	"fmt"

	"github.com/pkg/errors"
)

// Open platform codes caused by the request itself: a missing table or
// column, a value the column type rejects, or missing permissions. Sending
// the same record again gets the same answer.
var permanentCodes = map[int]string{
	1254000: "WrongRequestJson",
	1254001: "WrongRequestBody",
	1254003: "WrongBaseToken",
	1254004: "WrongTableId",
	1254005: "WrongViewId",
	1254040: "BaseTokenNotFound",
	1254041: "TableIdNotFound",
	1254043: "RecordIdNotFound",
	1254045: "FieldNameNotFound",
	1254060: "TextFieldConvFail",
	1254061: "NumberFieldConvFail",
	1254062: "SingleSelectFieldConvFail",
	1254063: "MultiSelectFieldConvFail",
	1254064: "DatetimeFieldConvFail",
	1254065: "CheckboxFieldConvFail",
	1254066: "UserFieldConvFail",
	1254067: "LinkFieldConvFail",
	1254302: "RolePermNotAllow",
	91402:   "NOTEXIST",
	91403:   "Forbidden",
	131006:  "WikiPermissionDenied",
}

// APIError is a response the open platform answered with a non-zero code.
type APIError struct {
	Op    string
	Code  int
	Msg   string
	LogID string
}

func newAPIError(op string, code int, msg, logID string) *APIError {
	return &APIError{Op: op, Code: code, Msg: msg, LogID: logID}
}

func (e *APIError) Error() string {
	s := fmt.Sprintf("feishu: %s failed code=%d msg=%s", e.Op, e.Code, e.Msg)
	if e.LogID != "" {
		s += " log_id=" + e.LogID
	}
	return s
}

// Permanent reports whether retrying the same request cannot succeed.
// Rate limits, write conflicts and unknown codes count as transient.
func (e *APIError) Permanent() bool {
	_, ok := permanentCodes[e.Code]
	return ok
}

// errNotBitable marks a wiki link that points at something other than a
// Bitable app; it only changes when someone edits the route.
type errNotBitable struct {
	wikiToken string
	objType   string
}

func (e *errNotBitable) Error() string {
	return fmt.Sprintf("feishu: wiki node %s is a %q, not a bitable", e.wikiToken, e.objType)
}

func (e *errNotBitable) Permanent() bool { return true }

// IsAPICode reports whether err carries an APIError with code.
func IsAPICode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

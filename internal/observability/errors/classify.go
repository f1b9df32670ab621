// Package errors reduces errors to short, low-cardinality class names for metric tags.
package errors

import (
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	apperrors "github.com/civicwatch/portal/internal/errors"
)

// Classify returns the AppError code when there is one. Context and network
// failures get their portal code; anything else reports the innermost concrete
// type in snake_case.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	if ctxErr := apperrors.FromContext(err, ""); ctxErr != nil {
		return string(ctxErr.Code)
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) {
		return string(apperrors.ErrCodeNetwork)
	}
	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
}

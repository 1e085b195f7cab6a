package model

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
		ok   bool
	}{
		{"classified", NewError(ErrForbidden, "t", "no"), ErrForbidden, true},
		{"wrapped", fmt.Errorf("ctx: %w", NewError(ErrNotFound, "t", "gone")), ErrNotFound, true},
		{"validation", ValidateTypeID("1bad"), ErrValidationFailed, true},
		{"plain", errors.New("boom"), ErrInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := KindOf(tt.err)
			if got != tt.want || ok != tt.ok {
				t.Errorf("KindOf = (%s, %v), want (%s, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRecoverable(t *testing.T) {
	if !Recoverable(NewError(ErrTypeNotFound, "t", "x")) {
		t.Error("TypeNotFound should be recoverable")
	}
	if Recoverable(WrapError(ErrStorageConflict, "t", errors.New("disk"))) {
		t.Error("StorageConflict should not be recoverable")
	}
	if Recoverable(errors.New("boom")) {
		t.Error("unclassified errors should not be recoverable")
	}
}

func TestHTTPStatus(t *testing.T) {
	want := map[ErrorKind]int{
		ErrTypeNotFound:     http.StatusNotFound,
		ErrNotFound:         http.StatusNotFound,
		ErrForbidden:        http.StatusForbidden,
		ErrUnauthenticated:  http.StatusUnauthorized,
		ErrValidationFailed: http.StatusBadRequest,
		ErrStorageConflict:  http.StatusConflict,
		ErrInternal:         http.StatusInternalServerError,
	}
	for k, code := range want {
		if got := k.HTTPStatus(); got != code {
			t.Errorf("%s.HTTPStatus() = %d, want %d", k, got, code)
		}
	}
}

func TestDescribe(t *testing.T) {
	d := Describe(NewError(ErrForbidden, "notes", "missing %s", "write"))
	if d.Kind != ErrForbidden || d.TypeID != "notes" || d.Message != "missing write" {
		t.Errorf("Describe = %+v", d)
	}

	ve := &ValidationError{TypeID: "notes"}
	ve.Add("n", "expected integer")
	d = Describe(ve)
	if d.Kind != ErrValidationFailed || len(d.Fields) != 1 || d.Fields[0].Field != "n" {
		t.Errorf("Describe(validation) = %+v", d)
	}

	d = Describe(errors.New("secret detail"))
	if d.Kind != ErrInternal || d.Message == "secret detail" {
		t.Errorf("Describe(plain) leaked %+v", d)
	}
}

func TestWrapError_Unwraps(t *testing.T) {
	base := errors.New("base")
	if !errors.Is(WrapError(ErrInternal, "", base), base) {
		t.Error("WrapError should unwrap to the cause")
	}
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{Validation("issue description too short", "issueDescription"), http.StatusBadRequest},
		{NotFound("intervention"), http.StatusNotFound},
		{BusinessRule("Invalid status transition"), http.StatusConflict},
		{Internal(errors.New("pool exhausted")), http.StatusInternalServerError},
		{errors.New("raw"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		he := HTTP(tc.err)
		if he.Code != tc.status {
			t.Errorf("HTTP(%v): status = %d, want %d", tc.err, he.Code, tc.status)
		}
	}
}

func TestIsKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("update intervention: %w", BusinessRule("Invalid status transition"))
	if !IsKind(err, KindBusinessRule) {
		t.Error("expected wrapped business rule error to match its kind")
	}
	if IsKind(err, KindNotFound) {
		t.Error("wrapped error matched wrong kind")
	}
}

func TestInternalHidesCause(t *testing.T) {
	he := HTTP(Internal(errors.New("connection refused to 10.0.0.5")))
	body, ok := he.Message.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected body type %T", he.Message)
	}
	if body["message"] != "internal error" {
		t.Errorf("internal cause leaked to client: %v", body["message"])
	}
}

func TestValidationFields(t *testing.T) {
	he := HTTP(Validation("missing required fields", "patientId", "category"))
	body := he.Message.(map[string]interface{})
	fields, ok := body["fields"].([]string)
	if !ok || len(fields) != 2 {
		t.Fatalf("fields = %v, want two entries", body["fields"])
	}
}

package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondErrorWithExtras(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErrorWithExtras(rec, http.StatusConflict, "head moved", map[string]interface{}{
		"current_head": "sha-2",
		"status":       "shadowed",
	})

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q", ct)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["current_head"] != "sha-2" {
		t.Errorf("current_head = %v, want sha-2", got["current_head"])
	}
	if got["status"] != float64(http.StatusConflict) {
		t.Errorf("status member = %v, want 409", got["status"])
	}
	if got["detail"] != "head moved" || got["title"] != "Conflict" {
		t.Errorf("problem = %v", got)
	}
}

func TestRespondJSON_UnencodableIs500(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondJSON(rec, http.StatusOK, map[string]interface{}{"ch": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

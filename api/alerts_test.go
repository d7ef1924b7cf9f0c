package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garnizeh/campuscare/internal/alerts"
	"github.com/garnizeh/campuscare/internal/geo"
	"github.com/garnizeh/campuscare/internal/models"
	"github.com/garnizeh/campuscare/pkg/repository/mock"
)

func do(t *testing.T, method, url, token string, body any, headers ...string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestSubmitAlert(t *testing.T) {
	ts := setupServer(t, nil)
	lat, lon := 12.97, 77.59
	resp := do(t, http.MethodPost, ts.srv.URL+"/v1/alerts", studentToken(t), alerts.SubmitRequest{
		Location: &geo.Reading{Latitude: &lat, Longitude: &lon, Accuracy: 12},
		Address:  "Library, 2nd floor",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	res := decode[alerts.SubmitResult](t, resp)
	if res.Call == nil || res.Call.URI != "tel:112" {
		t.Fatalf("missing call instruction: %+v", res)
	}
	if res.Alert.DisplayName != "Asha Rao" || res.Alert.RollOrID != "CS-101" || res.Alert.Location != models.MapsLink(lat, lon) {
		t.Fatalf("unexpected alert %+v", res.Alert)
	}

	get := do(t, http.MethodGet, ts.srv.URL+"/v1/alerts/"+res.Alert.ID, adminToken(t), nil)
	if get.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", get.StatusCode)
	}
	got := decode[models.Alert](t, get)
	if got.ID != res.Alert.ID || got.UserType != "student" {
		t.Fatalf("stored alert mismatch %+v", got)
	}
}

func TestSubmitAlertDeniedLocation(t *testing.T) {
	ts := setupServer(t, nil)
	resp := do(t, http.MethodPost, ts.srv.URL+"/v1/alerts", studentToken(t), alerts.SubmitRequest{
		Location: &geo.Reading{Error: geo.ReasonPermissionDenied},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	res := decode[alerts.SubmitResult](t, resp)
	if res.Call == nil || res.Alert.Latitude != nil || res.Alert.Location != models.LocationUnavailableLabel {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSubmitAlertErrors(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		ts := setupServer(t, nil)
		if resp := do(t, http.MethodPost, ts.srv.URL+"/v1/alerts", "", nil); resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})
	t.Run("token without subject", func(t *testing.T) {
		ts := setupServer(t, nil)
		tok := signToken(t, jwt.MapClaims{"email": "a@b"})
		if resp := do(t, http.MethodPost, ts.srv.URL+"/v1/alerts", tok, nil); resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})
	t.Run("bad body", func(t *testing.T) {
		ts := setupServer(t, nil)
		req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/v1/alerts", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+studentToken(t))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})
	t.Run("store down", func(t *testing.T) {
		repo := mock.NewAlertRepo()
		repo.SetInsertErr(errors.New("disk I/O error"))
		ts := setupServer(t, repo)
		resp := do(t, http.MethodPost, ts.srv.URL+"/v1/alerts", studentToken(t), nil)
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", resp.StatusCode)
		}
		b, _ := io.ReadAll(resp.Body)
		if strings.Contains(string(b), "tel:") {
			t.Fatalf("failed submission leaked a call instruction: %s", b)
		}
	})
}

func TestSubmitIdempotencyKey(t *testing.T) {
	ts := setupServer(t, nil)
	tok := studentToken(t)
	first := decode[alerts.SubmitResult](t, do(t, http.MethodPost, ts.srv.URL+"/v1/alerts", tok, nil, "Idempotency-Key", "k1"))
	second := decode[alerts.SubmitResult](t, do(t, http.MethodPost, ts.srv.URL+"/v1/alerts", tok, nil, "Idempotency-Key", "k1"))
	if first.Alert.ID == "" || first.Alert.ID != second.Alert.ID || !second.Replayed {
		t.Fatalf("retry created a new alert: %s vs %s", first.Alert.ID, second.Alert.ID)
	}
}

func TestListResolveDismiss(t *testing.T) {
	ts := setupServer(t, nil)
	tok := studentToken(t)
	admin := adminToken(t)
	var ids []string
	for i := 0; i < 3; i++ {
		res := decode[alerts.SubmitResult](t, do(t, http.MethodPost, ts.srv.URL+"/v1/alerts", tok, nil))
		ids = append(ids, res.Alert.ID)
	}

	type listResp struct {
		Items []models.Alert `json:"items"`
	}
	list := decode[listResp](t, do(t, http.MethodGet, ts.srv.URL+"/v1/alerts?limit=10", admin, nil))
	if len(list.Items) != 3 || !models.IsNewestFirst(list.Items) {
		t.Fatalf("unexpected list %+v", list.Items)
	}

	type resolved struct {
		Resolved bool          `json:"resolved"`
		Alert    *models.Alert `json:"alert"`
	}
	r1 := decode[resolved](t, do(t, http.MethodPost, ts.srv.URL+"/v1/alerts/"+ids[0]+"/resolve", admin, nil))
	if !r1.Resolved || r1.Alert == nil || r1.Alert.ResolvedBy != "admin-1" {
		t.Fatalf("unexpected resolve %+v", r1)
	}
	r2 := do(t, http.MethodPost, ts.srv.URL+"/v1/alerts/"+ids[0]+"/resolve", admin, nil)
	if r2.StatusCode != http.StatusOK || decode[resolved](t, r2).Resolved {
		t.Fatalf("second resolve should be a 200 no-op")
	}

	for i := 0; i < 2; i++ {
		if resp := do(t, http.MethodDelete, ts.srv.URL+"/v1/alerts/"+ids[1], admin, nil); resp.StatusCode != http.StatusNoContent {
			t.Fatalf("dismiss %d: expected 204, got %d", i, resp.StatusCode)
		}
	}

	active := decode[listResp](t, do(t, http.MethodGet, ts.srv.URL+"/v1/alerts", admin, nil))
	if len(active.Items) != 1 || active.Items[0].ID != ids[2] {
		t.Fatalf("unexpected active list %+v", active.Items)
	}
	all := decode[listResp](t, do(t, http.MethodGet, ts.srv.URL+"/v1/alerts?active=false", admin, nil))
	if len(all.Items) != 2 {
		t.Fatalf("resolved alert should be kept for audit, got %d rows", len(all.Items))
	}

	if resp := do(t, http.MethodGet, ts.srv.URL+"/v1/alerts/"+ids[1], admin, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("dismissed alert: expected 404, got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.srv.URL+"/v1/alerts?limit=abc", admin, nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", resp.StatusCode)
	}
}

func TestAlertMap(t *testing.T) {
	ts := setupServer(t, nil)
	tok := studentToken(t)
	lat, lon := 40.0, -75.0
	with := decode[alerts.SubmitResult](t, do(t, http.MethodPost, ts.srv.URL+"/v1/alerts", tok, alerts.SubmitRequest{Location: &geo.Reading{Latitude: &lat, Longitude: &lon}}))
	other := signToken(t, jwt.MapClaims{"sub": "u2"})
	do(t, http.MethodPost, ts.srv.URL+"/v1/alerts", other, alerts.SubmitRequest{Location: &geo.Reading{Error: geo.ReasonTimeout}})

	view := decode[geo.MapView](t, do(t, http.MethodGet, ts.srv.URL+"/v1/alerts/map?width=800&height=600", adminToken(t), nil))
	if len(view.Markers) != 1 || view.Markers[0].AlertID != with.Alert.ID || view.Mode != geo.ModeFit {
		t.Fatalf("unexpected map view %+v", view)
	}

	focused := decode[geo.MapView](t, do(t, http.MethodGet, ts.srv.URL+"/v1/alerts/map?focus="+with.Alert.ID, adminToken(t), nil))
	if focused.Mode != geo.ModeFocus || focused.Zoom != 16 {
		t.Fatalf("unexpected focus view %+v", focused)
	}
	if resp := do(t, http.MethodGet, ts.srv.URL+"/v1/alerts/map?width=x&height=1", adminToken(t), nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad viewport, got %d", resp.StatusCode)
	}
}

func TestPreferences(t *testing.T) {
	ts := setupServer(t, nil)
	tok := studentToken(t)
	url := ts.srv.URL + "/v1/preferences/sos_button_position"

	if resp := do(t, http.MethodGet, url, tok, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before put, got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPut, url, tok, map[string]string{"value": `{"x":24,"y":480}`}); resp.StatusCode != http.StatusOK {
		t.Fatalf("put: expected 200, got %d", resp.StatusCode)
	}
	resp := do(t, http.MethodGet, url, tok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	var p struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Key != "sos_button_position" || p.Value != `{"x":24,"y":480}` {
		t.Fatalf("unexpected preference %+v", p)
	}
	// preferences are per user
	if resp := do(t, http.MethodGet, url, adminToken(t), nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("other user: expected 404, got %d", resp.StatusCode)
	}
}

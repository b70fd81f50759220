package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/safetydesk/causemap/pkg/cache"
	"github.com/safetydesk/causemap/pkg/pipeline"
	"github.com/safetydesk/causemap/pkg/session"
	"github.com/safetydesk/causemap/pkg/store"
)

const testPassword = "password123"

type testEnv struct {
	ts    *httptest.Server
	store store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for _, u := range []store.User{
		{Name: "jdoe", PasswordHash: string(hash)},
		{Name: "asmith", PasswordHash: string(hash)},
		{Name: "root", PasswordHash: string(hash), Admin: true},
	} {
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	runner := pipeline.NewRunner(cache.NewMemoryCache(), nil, nil)
	srv := New(st, session.NewMemoryStore(), runner, nil, 0)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st}
}

// login returns a client whose cookie jar holds a session for user.
func (e *testEnv) login(t *testing.T, user string) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Jar: jar}

	resp := doJSON(t, client, http.MethodPost, e.ts.URL+"/api/login",
		map[string]string{"username": user, "password": testPassword})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	return client
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func errCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body errorBody
	decodeBody(t, resp, &body)
	return body.Error.Code
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	resp := doJSON(t, http.DefaultClient, http.MethodPost, env.ts.URL+"/api/login",
		map[string]string{"username": "jdoe", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if code := errCode(t, resp); code != "UNAUTHORIZED" {
		t.Errorf("code = %q", code)
	}
}

func TestLoginUnknownUserSameResponse(t *testing.T) {
	env := newTestEnv(t)

	resp := doJSON(t, http.DefaultClient, http.MethodPost, env.ts.URL+"/api/login",
		map[string]string{"username": "nobody", "password": testPassword})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/api/incidents")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, "jdoe")

	resp := doJSON(t, client, http.MethodPost, env.ts.URL+"/api/logout", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}

	resp, err := client.Get(env.ts.URL + "/api/incidents")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("post-logout status = %d, want 401", resp.StatusCode)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, "jdoe")

	resp := doJSON(t, client, http.MethodPost, env.ts.URL+"/api/generate",
		map[string]any{"text": "Worker slipped on wet floor", "level": 3})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body generateResponse
	decodeBody(t, resp, &body)
	if body.Count != 12 {
		t.Errorf("Count = %d, want 12", body.Count)
	}
	if body.MaxDepth != 2 {
		t.Errorf("MaxDepth = %d, want 2", body.MaxDepth)
	}
	if body.Nodes[0].Key != 1 || body.Nodes[0].Depth != 0 {
		t.Errorf("root = %+v", body.Nodes[0])
	}
}

func TestGenerateEndpointValidation(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, "jdoe")

	resp := doJSON(t, client, http.MethodPost, env.ts.URL+"/api/generate",
		map[string]any{"text": "short"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if code := errCode(t, resp); code != "INVALID_INPUT" {
		t.Errorf("code = %q", code)
	}
}

func newIncidentBody() map[string]any {
	return map[string]any{
		"title":       "Forklift collision",
		"description": "Forklift reversed into racking in aisle 4",
		"level":       3,
	}
}

func createIncident(t *testing.T, env *testEnv, client *http.Client) store.Incident {
	t.Helper()
	resp := doJSON(t, client, http.MethodPost, env.ts.URL+"/api/incidents/", newIncidentBody())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create incident status = %d", resp.StatusCode)
	}
	var rec store.Incident
	decodeBody(t, resp, &rec)
	return rec
}

func TestIncidentCRUD(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, "jdoe")

	rec := createIncident(t, env, client)
	if rec.Owner != "jdoe" || rec.AnalysisLevel != "Level 3 - Standard analysis" {
		t.Errorf("created incident = %+v", rec)
	}

	url := env.ts.URL + "/api/incidents/" + strconv.Itoa(rec.ID) + "/"

	resp := doJSON(t, client, http.MethodPatch, url, map[string]any{"title": "Forklift collision, aisle 4"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}
	var updated store.Incident
	decodeBody(t, resp, &updated)
	if updated.Title != "Forklift collision, aisle 4" || updated.Version != 2 {
		t.Errorf("patched incident = %+v", updated)
	}

	// Stale expected version conflicts.
	resp = doJSON(t, client, http.MethodPatch, url, map[string]any{"title": "x", "expectedVersion": 1})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("stale patch status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, client, http.MethodDelete, url, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, err := client.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", resp.StatusCode)
	}
}

func TestIncidentOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	owner := env.login(t, "jdoe")
	other := env.login(t, "asmith")

	rec := createIncident(t, env, owner)

	resp, err := other.Get(env.ts.URL + "/api/incidents/" + strconv.Itoa(rec.ID) + "/")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if code := errCode(t, resp); code != "FORBIDDEN" {
		t.Errorf("code = %q", code)
	}
}

func TestAdminSeesAllIncidents(t *testing.T) {
	env := newTestEnv(t)
	createIncident(t, env, env.login(t, "jdoe"))
	createIncident(t, env, env.login(t, "asmith"))

	admin := env.login(t, "root")
	resp, err := admin.Get(env.ts.URL + "/api/incidents")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Incidents []store.Incident `json:"incidents"`
	}
	decodeBody(t, resp, &body)
	if len(body.Incidents) != 2 {
		t.Errorf("admin sees %d incidents, want 2", len(body.Incidents))
	}
}

func TestDiagramFlow(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, "jdoe")
	rec := createIncident(t, env, client)

	// No nodes in the request: the tree is generated from the incident.
	resp := doJSON(t, client, http.MethodPost,
		env.ts.URL+"/api/incidents/"+strconv.Itoa(rec.ID)+"/diagrams",
		map[string]any{"title": "analysis"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create diagram status = %d", resp.StatusCode)
	}
	var d store.Diagram
	decodeBody(t, resp, &d)
	if d.IncidentID != rec.ID || d.Title != "analysis" {
		t.Errorf("diagram = %+v", d)
	}

	nodes, err := d.Nodes()
	if err != nil {
		t.Fatalf("Nodes() error = %v", err)
	}
	if len(nodes) != 12 {
		t.Errorf("generated %d nodes, want 12", len(nodes))
	}

	// Rename a node and write the tree back.
	nodes[1].Name = "Fatigue"
	resp = doJSON(t, client, http.MethodPatch, env.ts.URL+"/api/diagrams/"+strconv.Itoa(d.ID)+"/",
		map[string]any{"nodes": nodes})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch diagram status = %d", resp.StatusCode)
	}
	var updated store.Diagram
	decodeBody(t, resp, &updated)
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
}

func TestExportInvalidFormat(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, "jdoe")
	rec := createIncident(t, env, client)

	resp := doJSON(t, client, http.MethodPost,
		env.ts.URL+"/api/incidents/"+strconv.Itoa(rec.ID)+"/diagrams",
		map[string]any{"title": "analysis"})
	var d store.Diagram
	decodeBody(t, resp, &d)

	resp, err := client.Get(env.ts.URL + "/api/diagrams/" + strconv.Itoa(d.ID) + "/export?format=tiff")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if code := errCode(t, resp); code != "UNSUPPORTED" {
		t.Errorf("code = %q", code)
	}
}

func TestExportSVG(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, "jdoe")
	rec := createIncident(t, env, client)

	resp := doJSON(t, client, http.MethodPost,
		env.ts.URL+"/api/incidents/"+strconv.Itoa(rec.ID)+"/diagrams",
		map[string]any{"title": "analysis"})
	var d store.Diagram
	decodeBody(t, resp, &d)

	resp, err := client.Get(env.ts.URL + "/api/diagrams/" + strconv.Itoa(d.ID) + "/export?format=svg")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd == "" {
		t.Error("Content-Disposition not set")
	}
	if resp.Header.Get("X-Artifact-ID") == "" {
		t.Error("X-Artifact-ID not set")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(body, []byte("<svg")) {
		t.Error("response is not SVG")
	}
}

func TestUsersAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t, "jdoe")

	resp, err := client.Get(env.ts.URL + "/api/users")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestUserManagement(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "root")

	resp := doJSON(t, admin, http.MethodPost, env.ts.URL+"/api/users/",
		map[string]any{"name": "newbie", "password": "longenough"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user status = %d", resp.StatusCode)
	}

	// Short passwords are rejected.
	resp = doJSON(t, admin, http.MethodPost, env.ts.URL+"/api/users/",
		map[string]any{"name": "weak", "password": "short"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("weak password status = %d, want 400", resp.StatusCode)
	}

	resp, err := admin.Get(env.ts.URL + "/api/users")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Users []store.User `json:"users"`
	}
	decodeBody(t, resp, &body)
	if len(body.Users) != 4 {
		t.Errorf("%d users, want 4", len(body.Users))
	}

	// Admins cannot delete themselves.
	req, _ := http.NewRequest(http.MethodDelete, env.ts.URL+"/api/users/root", nil)
	resp, err = admin.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("self-delete status = %d, want 400", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, env.ts.URL+"/api/users/newbie", nil)
	resp, err = admin.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
}

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spendtrack.org/internal/alert"
	"spendtrack.org/internal/audit"
	"spendtrack.org/internal/auth"
	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/grant"
	"spendtrack.org/internal/group"
	"spendtrack.org/internal/record"
	"spendtrack.org/internal/store/memory"
)

// testEnv is a complete API over in-memory stores with one user per role.
// finance and engineering are two disjoint owner groups; the "user" and
// "viewer" accounts belong to finance.
type testEnv struct {
	api     *API
	handler http.Handler

	users  map[string]auth.User // keyed by role name
	tokens map[string]string
	finID  string // finance group id
	engID  string // engineering group id
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	auth.ResetSecretForTests()
	t.Setenv("SPENDTRACK_AUTH_SECRET", "handlers-test-secret")
	t.Cleanup(auth.ResetSecretForTests)

	groupStore := memory.NewGroupStore()
	groups := group.NewService(groupStore)
	authSvc, err := auth.NewService(memory.NewUserStore(), groups)
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	grants := grant.NewService(memory.NewGrantStore())
	engine := authz.NewEngine(grants)
	trail := audit.NewLogger(memory.NewAuditStore())
	recordStore := memory.NewRecordStore()
	records := record.NewService(recordStore, engine, trail)
	alerts := alert.NewService(recordStore, engine)

	api := New(ReadyProbe{}, "test", Deps{
		Auth:    authSvc,
		Alerts:  alerts,
		Engine:  engine,
		Grants:  grants,
		Groups:  groups,
		Records: records,
		Trail:   trail,
		Lookup:  record.Lookup(recordStore),
	})

	env := &testEnv{
		api:     api,
		handler: api.Handler(),
		users:   map[string]auth.User{},
		tokens:  map[string]string{},
	}

	ctx := t.Context()
	for role, authzRole := range map[string]authz.Role{
		"admin":   authz.RoleAdmin,
		"manager": authz.RoleManager,
		"user":    authz.RoleUser,
		"viewer":  authz.RoleViewer,
	} {
		u, err := authSvc.Register(ctx, role, role+"@example.com", "pw-123456", "", authzRole)
		if err != nil {
			t.Fatalf("register %s: %v", role, err)
		}
		env.users[role] = u
		token, err := auth.GenerateToken(u.ID, string(authzRole), time.Minute)
		if err != nil {
			t.Fatalf("token for %s: %v", role, err)
		}
		env.tokens[role] = token
	}

	fin, err := groups.Create(ctx, "finance", "", env.users["admin"].ID)
	if err != nil {
		t.Fatalf("create finance group: %v", err)
	}
	eng, err := groups.Create(ctx, "engineering", "", env.users["admin"].ID)
	if err != nil {
		t.Fatalf("create engineering group: %v", err)
	}
	env.finID, env.engID = fin.ID, eng.ID
	for _, role := range []string{"user", "viewer"} {
		if _, err := groups.AddMember(ctx, fin.ID, env.users[role].ID, env.users["admin"].ID); err != nil {
			t.Fatalf("add %s to finance: %v", role, err)
		}
	}
	return env
}

// do sends an authenticated JSON request through the full middleware chain.
func (env *testEnv) do(t *testing.T, role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+env.tokens[role])
	}
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

// createBudgetItem creates a finance-owned budget item as the given role.
func (env *testEnv) createBudgetItem(t *testing.T, role string) record.Record {
	t.Helper()
	body := fmt.Sprintf(`{"owner_group_id":%q,"fields":{"name":"FY26 capex"}}`, env.finID)
	rr := env.do(t, role, http.MethodPost, "/v1/records/budget_item", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create budget_item: %d %s", rr.Code, rr.Body.String())
	}
	var rec record.Record
	decodeBody(t, rr, &rec)
	return rec
}

func TestLoginIssuesUsableToken(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "", http.MethodPost, "/v1/auth/login", `{"username":"user","password":"pw-123456"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, rr, &resp)

	req := httptest.NewRequest(http.MethodGet, "/v1/records/budget_item", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	out := httptest.NewRecorder()
	env.handler.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("authenticated list: %d %s", out.Code, out.Body.String())
	}

	bad := env.do(t, "", http.MethodPost, "/v1/auth/login", `{"username":"user","password":"nope"}`)
	if bad.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: %d", bad.Code)
	}
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "", http.MethodGet, "/v1/records/budget_item", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/records/budget_item", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	out := httptest.NewRecorder()
	env.handler.ServeHTTP(out, req)
	if out.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", out.Code)
	}

	if rr := env.do(t, "", http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz must be public, got %d", rr.Code)
	}
}

func TestRecordLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	rec := env.createBudgetItem(t, "user")

	rr := env.do(t, "user", http.MethodPost, "/v1/records/business_case",
		fmt.Sprintf(`{"parent_id":%q,"fields":{"name":"DC refresh"}}`, rec.ID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create business_case: %d %s", rr.Code, rr.Body.String())
	}
	var child record.Record
	decodeBody(t, rr, &child)
	if child.OwnerGroupID != env.finID {
		t.Fatalf("child owner group %q, want %q", child.OwnerGroupID, env.finID)
	}

	get := env.do(t, "viewer", http.MethodGet, "/v1/records/business_case/"+child.ID, "")
	if get.Code != http.StatusOK {
		t.Fatalf("viewer read: %d %s", get.Code, get.Body.String())
	}

	upd := env.do(t, "user", http.MethodPut, "/v1/records/business_case/"+child.ID,
		`{"fields":{"status":"approved"}}`)
	if upd.Code != http.StatusOK {
		t.Fatalf("update: %d %s", upd.Code, upd.Body.String())
	}

	del := env.do(t, "user", http.MethodDelete, "/v1/records/business_case/"+child.ID, "")
	if del.Code != http.StatusForbidden {
		t.Fatalf("user delete must be 403, got %d", del.Code)
	}
	del = env.do(t, "manager", http.MethodDelete, "/v1/records/business_case/"+child.ID, "")
	if del.Code != http.StatusOK {
		t.Fatalf("manager delete: %d %s", del.Code, del.Body.String())
	}

	missing := env.do(t, "admin", http.MethodGet, "/v1/records/business_case/"+child.ID, "")
	if missing.Code != http.StatusNotFound {
		t.Fatalf("deleted record: expected 404, got %d", missing.Code)
	}

	bogus := env.do(t, "user", http.MethodGet, "/v1/records/invoice", "")
	if bogus.Code != http.StatusBadRequest {
		t.Fatalf("unknown type: expected 400, got %d", bogus.Code)
	}
}

func TestDeniedResponsesAreUniform(t *testing.T) {
	env := newTestEnv(t)
	rec := env.createBudgetItem(t, "user")

	// viewer may read (finance member) but never update
	upd := env.do(t, "viewer", http.MethodPut, "/v1/records/budget_item/"+rec.ID, `{"fields":{"x":1}}`)
	if upd.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", upd.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, upd, &body)
	if body.Error != "insufficient permissions" {
		t.Fatalf("deny body must be uniform, got %q", body.Error)
	}

	del := env.do(t, "viewer", http.MethodDelete, "/v1/records/budget_item/"+rec.ID, "")
	decodeBody(t, del, &body)
	if del.Code != http.StatusForbidden || body.Error != "insufficient permissions" {
		t.Fatalf("deny body must not vary by action: %d %q", del.Code, body.Error)
	}
}

func TestGrantEndpoints(t *testing.T) {
	env := newTestEnv(t)
	rec := env.createBudgetItem(t, "user")

	grantBody := fmt.Sprintf(`{"record_type":"budget_item","record_id":%q,"access_level":"Write","user_id":%q}`,
		rec.ID, env.users["viewer"].ID)

	// viewers lack grant-issuing rights even inside the owner group
	rr := env.do(t, "viewer", http.MethodPost, "/v1/record-access", grantBody)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer grant: expected 403, got %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, "user", http.MethodPost, "/v1/record-access", grantBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner grant: %d %s", rr.Code, rr.Body.String())
	}
	var g grant.Grant
	decodeBody(t, rr, &g)
	if g.ID == "" || g.Level != authz.LevelWrite {
		t.Fatalf("unexpected grant: %+v", g)
	}

	list := env.do(t, "user", http.MethodGet, "/v1/record-access/budget_item/"+rec.ID, "")
	if list.Code != http.StatusOK {
		t.Fatalf("list grants: %d %s", list.Code, list.Body.String())
	}
	var all []grant.Grant
	decodeBody(t, list, &all)
	if len(all) != 1 || all[0].ID != g.ID {
		t.Fatalf("unexpected grant list: %+v", all)
	}

	missing := env.do(t, "user", http.MethodPost, "/v1/record-access",
		`{"record_type":"budget_item","record_id":"nope","access_level":"Read","user_id":"u"}`)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("grant on missing record: expected 404, got %d", missing.Code)
	}

	badShape := env.do(t, "user", http.MethodPost, "/v1/record-access",
		fmt.Sprintf(`{"record_type":"budget_item","record_id":%q,"access_level":"Read"}`, rec.ID))
	if badShape.Code != http.StatusBadRequest {
		t.Fatalf("grant without subject: expected 400, got %d", badShape.Code)
	}

	revoke := env.do(t, "user", http.MethodDelete, "/v1/record-access/"+g.ID, "")
	if revoke.Code != http.StatusOK {
		t.Fatalf("revoke: %d %s", revoke.Code, revoke.Body.String())
	}
	again := env.do(t, "user", http.MethodDelete, "/v1/record-access/"+g.ID, "")
	if again.Code != http.StatusOK {
		t.Fatalf("repeat revoke must be 200, got %d", again.Code)
	}
}

func TestAuditLogsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	env.createBudgetItem(t, "user")

	for _, role := range []string{"manager", "user", "viewer"} {
		rr := env.do(t, role, http.MethodGet, "/v1/audit-logs", "")
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s audit query: expected 403, got %d", role, rr.Code)
		}
	}

	rr := env.do(t, "admin", http.MethodGet, "/v1/audit-logs?user_id="+env.users["user"].ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("admin audit query: %d %s", rr.Code, rr.Body.String())
	}
	var entries []audit.Entry
	decodeBody(t, rr, &entries)
	if len(entries) != 1 || entries[0].Action != audit.ActionCreate {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}

	bad := env.do(t, "admin", http.MethodGet, "/v1/audit-logs?limit=5000", "")
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("oversized limit: expected 400, got %d", bad.Code)
	}
	bad = env.do(t, "admin", http.MethodGet, "/v1/audit-logs?start_date=yesterday", "")
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("bad start_date: expected 400, got %d", bad.Code)
	}
}

func TestGroupEndpointsManagerOnly(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "user", http.MethodPost, "/v1/user-groups", `{"name":"ops"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("user create group: expected 403, got %d", rr.Code)
	}

	rr = env.do(t, "manager", http.MethodPost, "/v1/user-groups", `{"name":"ops"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("manager create group: %d %s", rr.Code, rr.Body.String())
	}
	var g group.Group
	decodeBody(t, rr, &g)

	add := env.do(t, "manager", http.MethodPost, "/v1/user-groups/"+g.ID+"/members",
		fmt.Sprintf(`{"user_id":%q}`, env.users["viewer"].ID))
	if add.Code != http.StatusCreated {
		t.Fatalf("add member: %d %s", add.Code, add.Body.String())
	}

	members := env.do(t, "user", http.MethodGet, "/v1/user-groups/"+g.ID+"/members", "")
	if members.Code != http.StatusOK {
		t.Fatalf("list members: %d", members.Code)
	}

	rm := env.do(t, "manager", http.MethodDelete,
		"/v1/user-groups/"+g.ID+"/members/"+env.users["viewer"].ID, "")
	if rm.Code != http.StatusOK {
		t.Fatalf("remove member: %d %s", rm.Code, rm.Body.String())
	}

	dup := env.do(t, "manager", http.MethodPost, "/v1/user-groups", `{"name":"ops"}`)
	if dup.Code != http.StatusConflict {
		t.Fatalf("duplicate group: expected 409, got %d", dup.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "user", http.MethodPatch, "/v1/records/budget_item", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if allow := rr.Header().Get("Allow"); !strings.Contains(allow, http.MethodGet) {
		t.Fatalf("Allow header missing: %q", allow)
	}
}

func TestAlertsEndpointScopesToCaller(t *testing.T) {
	env := newTestEnv(t)

	parent := env.createBudgetItem(t, "user")
	for _, typ := range []string{"business_case", "line_item", "wbs_element", "asset"} {
		body := fmt.Sprintf(`{"parent_id":%q,"fields":{"name":%q}}`, parent.ID, typ)
		rr := env.do(t, "user", http.MethodPost, "/v1/records/"+typ, body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("create %s: %d %s", typ, rr.Code, rr.Body.String())
		}
		decodeBody(t, rr, &parent)
	}
	body := fmt.Sprintf(`{"parent_id":%q,"fields":{"po_number":"PO-1","status":"Open","total_amount":100}}`, parent.ID)
	rr := env.do(t, "user", http.MethodPost, "/v1/records/purchase_order", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create purchase_order: %d %s", rr.Code, rr.Body.String())
	}
	var po record.Record
	decodeBody(t, rr, &po)

	rr = env.do(t, "user", http.MethodGet, "/v1/alerts", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("alerts as finance user: %d %s", rr.Code, rr.Body.String())
	}
	var alerts []alert.Alert
	decodeBody(t, rr, &alerts)
	found := false
	for _, a := range alerts {
		if a.RecordID == po.ID && a.Type == alert.TypeNoReceiptThisMonth {
			found = true
		}
	}
	if !found {
		t.Fatalf("finance user must see the open PO alert, got %v", alerts)
	}

	rr = env.do(t, "admin", http.MethodGet, "/v1/alerts", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("alerts as admin: %d", rr.Code)
	}
	alerts = nil
	decodeBody(t, rr, &alerts)
	if len(alerts) == 0 {
		t.Fatal("admin must see all alerts")
	}

	rr = env.do(t, "", http.MethodGet, "/v1/alerts", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated alerts: %d, want 401", rr.Code)
	}
	rr = env.do(t, "viewer", http.MethodPost, "/v1/alerts", "{}")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST alerts: %d, want 405", rr.Code)
	}
}

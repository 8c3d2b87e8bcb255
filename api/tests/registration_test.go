package tests

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	echoapi "github.com/trezcool/kazi/api"
	"github.com/trezcool/kazi/core/course"
	"github.com/trezcool/kazi/core/registration"
	testutil "github.com/trezcool/kazi/tests"
)

func Test_registrationApi_register(t *testing.T) {
	ta := newTestApp(t)
	alice := ta.student(t, "alice")
	bob := ta.student(t, "bob")
	carol := ta.student(t, "carol")

	crs := testutil.CreateCourse(t, ta.crsRepo, "cs3110", course.PolicyPerTeam, 2)
	a := testutil.CreateAssignment(t, ta.crsRepo, crs.ID, "a1", defaultDeadline(), 15*time.Minute, 1, 2)
	for _, u := range []string{"alice", "bob", "carol"} {
		testutil.CreateStudent(t, ta.crsRepo, crs.ID, u, 0)
	}

	path := "/v1/assignments/" + a.ID + "/registrations"
	body := func(requester string, partners ...string) []byte {
		return marchallObj(t, registration.NewRegistration{Requester: requester, Partners: partners})
	}

	tests := []httpTest{
		{name: "Auth required", body: body("alice"), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Cannot register someone else", body: body("bob"), token: getToken(t, alice),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "New team", body: body("alice", "bob"), token: getToken(t, alice), wantCode: http.StatusCreated},
		{name: "Already registered", body: body("bob", "alice"), token: getToken(t, bob), wantCode: http.StatusOK},
		{name: "Conflicting overlap", body: body("carol", "alice"), token: getToken(t, carol), wantCode: http.StatusConflict},
		{name: "Party too large", body: body("alice", "bob", "carol"), token: getToken(t, alice), wantCode: http.StatusBadRequest},
		{name: "Unknown partner", body: body("carol", "zed"), token: getToken(t, carol), wantCode: http.StatusBadRequest},
		{
			name: "Unknown assignment", path: "/v1/assignments/nope/registrations", body: body("carol"),
			token: getToken(t, carol), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "assignment not found"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		if tt.path == "" {
			tt.path = path
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			ta.app.ServeHTTP(rec, req)

			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}
			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}

			switch tt.name {
			case "New team":
				var res registration.Result
				if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if !res.NewTeam {
					t.Error("failed! NewTeam = false")
				}
				if res.Team.Name != "alice-bob" {
					t.Errorf("failed! Team.Name = %q", res.Team.Name)
				}
			case "Already registered":
				var res registration.Result
				if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if !res.AlreadyRegistered {
					t.Error("failed! AlreadyRegistered = false")
				}
			case "Conflicting overlap":
				var res struct {
					Error     string                  `json:"error"`
					Conflicts []registration.Conflict `json:"conflicts"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if len(res.Conflicts) != 1 || res.Conflicts[0].Username != "alice" {
					t.Errorf("failed! conflicts = %+v", res.Conflicts)
				}
			case "Unknown partner":
				var res struct {
					Unknown []string `json:"unknown"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if len(res.Unknown) != 1 || res.Unknown[0] != "zed" {
					t.Errorf("failed! unknown = %v", res.Unknown)
				}
			}
		})
	}
}

func Test_registrationApi_cancel(t *testing.T) {
	ta := newTestApp(t)
	alice := ta.student(t, "alice")
	mallory := ta.student(t, "mallory")

	crs := testutil.CreateCourse(t, ta.crsRepo, "cs3110", course.PolicyPerTeam, 0)
	a := testutil.CreateAssignment(t, ta.crsRepo, crs.ID, "a1", defaultDeadline(), 15*time.Minute, 1, 2)
	testutil.CreateStudent(t, ta.crsRepo, crs.ID, "alice", 0)

	res := registerTeam(t, ta, a.ID, "alice")
	path := "/v1/registrations/" + res.Registration.ID

	tests := []httpTest{
		{name: "Auth required", path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Members only", path: path, token: getToken(t, mallory),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Cancelled", path: path, token: getToken(t, alice), wantCode: http.StatusNoContent},
		{
			name: "Gone", path: path, token: getToken(t, alice),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "registration not found"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			ta.app.ServeHTTP(rec, req)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
			} else if rec.Code != tt.wantCode {
				t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func Test_registrationApi_assignGrader(t *testing.T) {
	ta := newTestApp(t)
	alice := ta.student(t, "alice")
	prof := ta.teacher(t, "prof")

	crs := testutil.CreateCourse(t, ta.crsRepo, "cs3110", course.PolicyPerTeam, 0)
	a := testutil.CreateAssignment(t, ta.crsRepo, crs.ID, "a1", defaultDeadline(), 15*time.Minute, 1, 2)
	testutil.CreateStudent(t, ta.crsRepo, crs.ID, "alice", 0)

	res := registerTeam(t, ta, a.ID, "alice")
	path := "/v1/registrations/" + res.Registration.ID + "/grader"
	body := marchallObj(t, echoapi.AssignGraderRequest{GraderID: prof.ID})

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Staff only", token: getToken(t, alice),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Grader assigned", token: getToken(t, prof), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut
		tt.path = path
		tt.body = body

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			ta.app.ServeHTTP(rec, req)

			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}
			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			var reg registration.Registration
			if err := json.Unmarshal(rec.Body.Bytes(), &reg); err != nil {
				t.Fatalf("json.Unmarshal(): %v", err)
			}
			if reg.GraderID != prof.ID {
				t.Errorf("failed! GraderID = %q; want %q", reg.GraderID, prof.ID)
			}
		})
	}
}

func Test_registrationApi_query(t *testing.T) {
	ta := newTestApp(t)
	alice := ta.student(t, "alice")
	prof := ta.teacher(t, "prof")

	crs := testutil.CreateCourse(t, ta.crsRepo, "cs3110", course.PolicyPerTeam, 0)
	a := testutil.CreateAssignment(t, ta.crsRepo, crs.ID, "a1", defaultDeadline(), 15*time.Minute, 1, 2)
	testutil.CreateStudent(t, ta.crsRepo, crs.ID, "alice", 0)
	testutil.CreateStudent(t, ta.crsRepo, crs.ID, "bob", 0)

	r1 := registerTeam(t, ta, a.ID, "alice")
	r2 := registerTeam(t, ta, a.ID, "bob")

	path := "/v1/assignments/" + a.ID + "/registrations"

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Staff only", token: getToken(t, alice),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Ordered by creation", token: getToken(t, prof), wantCode: http.StatusOK,
			wantData: marchallList(t, r1.Registration, r2.Registration),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = path

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			ta.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// registerTeam registers unames[0] (+partners) via the service directly.
func registerTeam(t *testing.T, ta *testApp, assignmentID string, unames ...string) registration.Result {
	t.Helper()
	res, err := ta.regSvc.Register(reqCtx(), actorFor(unames[0]), registration.NewRegistration{
		AssignmentID: assignmentID,
		Requester:    unames[0],
		Partners:     unames[1:],
	})
	if err != nil {
		t.Fatalf("registerTeam(): %v", err)
	}
	return res
}

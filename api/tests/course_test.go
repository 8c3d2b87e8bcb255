package tests

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	echoapi "github.com/trezcool/kazi/api"
	"github.com/trezcool/kazi/core/course"
	testutil "github.com/trezcool/kazi/tests"
)

func Test_courseApi_createCourse(t *testing.T) {
	ta := newTestApp(t)
	student := ta.student(t, "hero")
	admin := ta.admin(t, "boss")

	body := marchallObj(t, course.NewCourse{
		Code:              "cs3110",
		Name:              "Functional Programming",
		ExtensionPolicy:   course.PolicyPerTeam,
		DefaultExtensions: 2,
	})

	tests := []httpTest{
		{name: "Auth required", body: body, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", body: body, token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Invalid policy", token: getToken(t, admin), wantCode: http.StatusBadRequest,
			body: marchallObj(t, course.NewCourse{Code: "cs1", Name: "X", ExtensionPolicy: "per_galaxy"}),
		},
		{name: "Created", body: body, token: getToken(t, admin), wantCode: http.StatusCreated},
		{name: "Duplicate code", body: body, token: getToken(t, admin), wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/courses"

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
			if tt.name == "Created" {
				var crs course.Course
				if err := json.Unmarshal(rec.Body.Bytes(), &crs); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if crs.ID == "" || crs.Code != "cs3110" {
					t.Errorf("failed! course = %+v", crs)
				}
			}
		})
	}
}

func Test_courseApi_assignments(t *testing.T) {
	ta := newTestApp(t)
	student := ta.student(t, "hero")
	prof := ta.teacher(t, "prof")

	crs := testutil.CreateCourse(t, ta.crsRepo, "cs3110", course.PolicyPerTeam, 0)
	body := marchallObj(t, course.NewAssignment{
		Slug:        "proj1",
		Name:        "Project 1",
		Deadline:    defaultDeadline(),
		GracePeriod: 15 * time.Minute,
		MinStudents: 1,
		MaxStudents: 2,
	})

	tests := []httpTest{
		{
			name: "Staff required", method: http.MethodPost, path: "/v1/courses/" + crs.ID + "/assignments",
			body: body, token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Created", method: http.MethodPost, path: "/v1/courses/" + crs.ID + "/assignments",
			body: body, token: getToken(t, prof), wantCode: http.StatusCreated,
		},
		{
			name: "Listed by deadline", method: http.MethodGet, path: "/v1/courses/" + crs.ID + "/assignments",
			token: getToken(t, student), wantCode: http.StatusOK,
		},
		{
			name: "Unknown course", method: http.MethodGet, path: "/v1/assignments/nope",
			token: getToken(t, student), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "assignment not found"}),
		},
	}
	for _, tt := range tests {
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
			if tt.name == "Listed by deadline" {
				var assignments []course.Assignment
				if err := json.Unmarshal(rec.Body.Bytes(), &assignments); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if len(assignments) != 1 || assignments[0].Slug != "proj1" {
					t.Errorf("failed! assignments = %+v", assignments)
				}
			}
		})
	}
}

func Test_courseApi_students(t *testing.T) {
	ta := newTestApp(t)
	prof := ta.teacher(t, "prof")

	crs := testutil.CreateCourse(t, ta.crsRepo, "cs4410", course.PolicyPerStudent, 3)
	profToken := getToken(t, prof)

	// enroll
	req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/students", profToken,
		marchallObj(t, course.NewStudent{Username: "alice", Name: "Alice", Email: "alice@test.cd"}))
	ta.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("enroll failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var s course.Student
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if s.Extensions != 3 {
		t.Errorf("failed! Extensions = %d; want the course default", s.Extensions)
	}

	// grant extensions
	req, rec = newAuthRequest(http.MethodPost, "/v1/students/"+s.ID+"/extensions", profToken,
		marchallObj(t, echoapi.GrantExtensionsRequest{Count: 2}))
	ta.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("grant failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if s.Extensions != 5 {
		t.Errorf("failed! Extensions = %d; want 5", s.Extensions)
	}

	// drop
	req, rec = newAuthRequest(http.MethodDelete, "/v1/students/"+s.ID, profToken)
	ta.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("drop failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("json.Unmarshal(): %v", err)
	}
	if !s.Dropped {
		t.Error("failed! Dropped = false")
	}
}

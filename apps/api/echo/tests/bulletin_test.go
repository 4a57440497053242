package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/bulletin"
)

func Test_bulletinApi_announcements(t *testing.T) {
	app, env := setup(t)

	c5a, c5b := env.Class(t, "5A"), env.Class(t, "5B")
	admin := env.Admin(t, "admin001")
	homeroom := env.Homeroom(t, env.Teacher(t, "teach001", true), c5a)
	idle := env.Teacher(t, "teach002", true)
	ana := env.Student(t, "ana00001", c5a)
	bo := env.Student(t, "bo000001", c5b)

	post := func(allClasses bool, classIDs ...int) []byte {
		return marchallObj(t, bulletin.NewAnnouncement{Title: "Exams", Body: "Exams start on monday", AllClasses: allClasses, ClassIDs: classIDs})
	}
	notHomeroom := marchallObj(t, map[string]string{"class_ids": "main teachers can only publish to their homeroom class"})

	tests := []httpTest{
		{name: "Auth required", body: post(true), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "students cannot publish", token: getToken(t, env, ana.User), body: post(false, c5a.ID),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "audience required", token: getToken(t, env, admin.User), body: []byte(`{"title":"Exams","body":"soon"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown class", token: getToken(t, env, admin.User), body: post(false, 999),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "class not found"}),
		},
		{name: "main teacher without homeroom", token: getToken(t, env, idle.User), body: post(false, c5a.ID), wantCode: http.StatusBadRequest, wantData: notHomeroom},
		{name: "main teacher, all classes", token: getToken(t, env, homeroom.User), body: post(true), wantCode: http.StatusBadRequest, wantData: notHomeroom},
		{name: "main teacher, another class", token: getToken(t, env, homeroom.User), body: post(false, c5b.ID), wantCode: http.StatusBadRequest, wantData: notHomeroom},
		{name: "main teacher, homeroom class", token: getToken(t, env, homeroom.User), body: post(false, c5a.ID), wantCode: http.StatusCreated},
		{name: "admin, all classes", token: getToken(t, env, admin.User), body: post(true), wantCode: http.StatusCreated},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/announcements"
	}
	runTests(t, app, tests)

	list := func(t *testing.T, token string) []bulletin.Announcement {
		req, rec := newAuthRequest(http.MethodGet, "/v1/announcements", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got []bulletin.Announcement
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		return got
	}

	t.Run("students of the homeroom class see both", func(t *testing.T) {
		got := list(t, getToken(t, env, ana.User))
		require.Len(t, got, 2)
		assert.True(t, got[0].AllClasses)
		assert.Equal(t, []int{c5a.ID}, got[1].ClassIDs)
	})

	t.Run("other students see the school-wide post", func(t *testing.T) {
		got := list(t, getToken(t, env, bo.User))
		require.Len(t, got, 1)
		assert.True(t, got[0].AllClasses)
	})

	t.Run("admins see everything", func(t *testing.T) {
		assert.Len(t, list(t, getToken(t, env, admin.User)), 2)
	})
}

func Test_bulletinApi_activities(t *testing.T) {
	app, env := setup(t)

	c5a, c5b := env.Class(t, "5A"), env.Class(t, "5B")
	admin := env.Admin(t, "admin001")
	math := env.Subject(t, "Math")
	teacher := env.Teacher(t, "teach001", false, math.ID)
	env.Topic(t, teacher, math.ID, c5b.ID, "2024-01-08")
	ana := env.Student(t, "ana00001", c5a)

	activity := func(date string, classIDs ...int) []byte {
		return marchallObj(t, bulletin.NewActivity{Title: "Field trip", Date: mustDate(date), ClassIDs: classIDs})
	}
	adminToken := getToken(t, env, admin.User)

	runTests(t, app, []httpTest{
		{
			name: "date required", method: http.MethodPost, path: "/v1/activities", token: adminToken,
			body: []byte(`{"title":"Field trip","all_classes":true}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"date": "this field is required"}),
		},
		{name: "plain teachers cannot publish", method: http.MethodPost, path: "/v1/activities", token: getToken(t, env, teacher.User), body: activity("2024-05-02", c5b.ID), wantCode: http.StatusForbidden},
		{name: "5B trip", method: http.MethodPost, path: "/v1/activities", token: adminToken, body: activity("2024-05-02", c5b.ID), wantCode: http.StatusCreated},
		{name: "5A trip", method: http.MethodPost, path: "/v1/activities", token: adminToken, body: activity("2024-04-10", c5a.ID), wantCode: http.StatusCreated},
		{name: "students list", method: http.MethodGet, path: "/v1/activities", token: getToken(t, env, ana.User)},
	})

	t.Run("teachers see the classes they teach", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/activities", getToken(t, env, teacher.User))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got []bulletin.Activity
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "2024-05-02", got[0].Date.String())
	})

	t.Run("admins see activities by date", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/activities", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got []bulletin.Activity
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "2024-04-10", got[0].Date.String())
	})
}

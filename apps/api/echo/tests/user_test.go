package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core/user"
	testutil "github.com/trezcool/academia/tests"
)

func Test_userApi_login(t *testing.T) {
	app, env := setup(t)

	pwd := "LolC@t123"
	student := testutil.CreateUser(t, env.Users, "Hero", "hero0001", "hero@test.cd", pwd, user.RoleStudent, true)
	testutil.CreateUser(t, env.Users, "N Dog", "ndog0001", "ndog@test.cd", pwd, user.RoleStudent, false)

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoapi.LoginRequest{Username: reqMsg, Password: reqMsg}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "nobody", Password: pwd}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "hero0001", Password: "lol"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive user", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Username: "ndog@test.cd", Password: pwd}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/login"
	}
	runTests(t, app, tests)

	t.Run("logged in (case-insensitive email)", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", marchallObj(t, echoapi.LoginRequest{Username: " HERO@test.cd ", Password: pwd}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)

		usr, err := env.UserSvc.GetByID(context.Background(), student.ID)
		require.NoError(t, err)
		assert.True(t, usr.LastLogin.Valid)
	})
}

func Test_userApi_userQuery(t *testing.T) {
	app, env := setup(t)

	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	usr1 := testutil.CreateUser(t, env.Users, "User", "awe", "awe@test.cd", "", user.RoleStudent, true, now.Add(1*time.Hour))
	student := testutil.CreateUser(t, env.Users, "Hero", "hero", "user3@test.cd", "", user.RoleStudent, true, now.Add(2*time.Hour))
	admin := testutil.CreateUser(t, env.Users, "Admin", "admin", "admin@test.cd", "", user.RoleAdmin, true, now.Add(3*time.Hour))
	teacher := testutil.CreateUser(t, env.Users, "Teacher", "teacher", "teacher@test.cd", "", user.RoleTeacher, true, now.Add(4*time.Hour))
	mainTeacher := testutil.CreateUser(t, env.Users, "Main", "mainteacher", "main@test.cd", "", user.RoleMainTeacher, true, now.Add(5*time.Hour))
	naughty := testutil.CreateUser(t, env.Users, "N Dog", "ndog", "ndog@test.cd", "", user.RoleStudent, false, now.Add(6*time.Hour))

	adminToken := getToken(t, env, admin)
	empty := marchallList(t)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: getToken(t, env, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Get all", path: "/v1/users", token: adminToken,
			wantData: marchallList(t, usr1, student, admin, teacher, mainTeacher, naughty),
		},
		// filtering
		{name: "search (unknown)", path: path("lol", "", nil), token: adminToken, wantData: empty},
		{name: "search=USE", path: path("USE", "", nil), token: adminToken, wantData: marchallList(t, usr1, student)},
		{name: "role (unknown)", path: path("", "", nil, "lol"), token: adminToken, wantData: empty},
		{name: "role=admin:", path: path("", "", nil, user.RoleAdmin), token: adminToken, wantData: marchallList(t, admin)},
		{
			name: "role=teacher: (main included)", path: path("", "", nil, user.RoleTeacher),
			token: adminToken, wantData: marchallList(t, teacher, mainTeacher),
		},
		{
			name: "role=teacher:main,student:", path: path("", "", nil, user.RoleMainTeacher, user.RoleStudent),
			token: adminToken, wantData: marchallList(t, mainTeacher, usr1, student, naughty),
		},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantData: marchallList(t, naughty)},
		{
			name: "search & is_active", path: path("test.cd", "", bPtr(true), user.RoleStudent),
			token: adminToken, wantData: marchallList(t, usr1, student),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
	}
	runTests(t, app, tests)

	t.Run("ordering", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path("", "-created_at", nil, user.RoleStudent), adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var users []user.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
		ids := make([]int, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		assert.Equal(t, []int{naughty.ID, student.ID, usr1.ID}, ids)
	})
}

func Test_userApi_userRetrieve(t *testing.T) {
	app, env := setup(t)

	student := testutil.CreateUser(t, env.Users, "Hero", "hero", "hero@test.cd", "", user.RoleStudent, true)
	other := testutil.CreateUser(t, env.Users, "Other", "other", "other@test.cd", "", user.RoleStudent, true)
	admin := testutil.CreateUser(t, env.Users, "Admin", "admin", "admin@test.cd", "", user.RoleAdmin, true)
	naughty := testutil.CreateUser(t, env.Users, "N Dog", "ndog", "ndog@test.cd", "", user.RoleStudent, false)

	detail := func(usr user.User) string { return "/v1/users/" + strconv.Itoa(usr.ID) }
	notFound := marchallObj(t, httpErr{Error: "not found"})

	tests := []httpTest{
		{name: "Auth required", path: detail(student), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "self", path: detail(student), token: getToken(t, env, student), wantData: marchallObj(t, student)},
		{name: "someone else", path: detail(other), token: getToken(t, env, student), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "admin", path: detail(other), token: getToken(t, env, admin), wantData: marchallObj(t, other)},
		{name: "unknown", path: "/v1/users/999", token: getToken(t, env, admin), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "malformed id", path: "/v1/users/lol", token: getToken(t, env, admin), wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "deactivated self", path: detail(naughty), token: getToken(t, env, naughty),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
	}
	runTests(t, app, tests)
}

func Test_userApi_userUpdate(t *testing.T) {
	app, env := setup(t)

	student := testutil.CreateUser(t, env.Users, "Hero", "hero0001", "hero@test.cd", "", user.RoleStudent, true)
	admin := testutil.CreateUser(t, env.Users, "Admin", "admin001", "admin@test.cd", "", user.RoleAdmin, true)
	path := "/v1/users/" + strconv.Itoa(student.ID)

	t.Run("students cannot change their role", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, getToken(t, env, student), []byte(`{"role":"admin:"}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("students can change their name", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, getToken(t, env, student), []byte(`{"name":"  Super Hero "}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var usr user.User
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usr))
		assert.Equal(t, "Super Hero", usr.Name)
		assert.Equal(t, student.Username, usr.Username)
	})

	t.Run("admin deactivates", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, getToken(t, env, admin), []byte(`{"is_active":false}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		usr, err := env.UserSvc.GetByID(context.Background(), student.ID)
		require.NoError(t, err)
		assert.False(t, usr.IsActive)
	})
}

func Test_userApi_userDestroy(t *testing.T) {
	app, env := setup(t)

	student := testutil.CreateUser(t, env.Users, "Hero", "hero", "hero@test.cd", "", user.RoleStudent, true)
	other := testutil.CreateUser(t, env.Users, "Other", "other", "other@test.cd", "", user.RoleStudent, true)
	admin := testutil.CreateUser(t, env.Users, "Admin", "admin", "admin@test.cd", "", user.RoleAdmin, true)
	adminToken := getToken(t, env, admin)

	tests := []httpTest{
		{name: "self", path: "/v1/users/" + strconv.Itoa(admin.ID), token: adminToken, wantCode: http.StatusForbidden},
		{name: "self in bulk", path: "/v1/users?id=" + strconv.Itoa(other.ID) + "&id=" + strconv.Itoa(admin.ID), token: adminToken, wantCode: http.StatusForbidden},
		{name: "admin required", path: "/v1/users/" + strconv.Itoa(student.ID), token: getToken(t, env, student), wantCode: http.StatusForbidden},
		{name: "deleted", path: "/v1/users/" + strconv.Itoa(student.ID), token: adminToken, wantCode: http.StatusNoContent},
		{name: "deleted in bulk", path: "/v1/users?id=" + strconv.Itoa(other.ID), token: adminToken, wantCode: http.StatusNoContent},
	}
	for i := range tests {
		tests[i].method = http.MethodDelete
	}
	runTests(t, app, tests)

	users, err := env.UserSvc.Query(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, admin.ID, users[0].ID)
}

func Test_userApi_userCreate(t *testing.T) {
	app, env := setup(t)

	admin := testutil.CreateUser(t, env.Users, "Admin", "admin001", "admin@test.cd", "", user.RoleAdmin, true)
	token := getToken(t, env, admin)
	testutil.CreateUser(t, env.Users, "Taken", "taken001", "taken@test.cd", "", user.RoleStudent, true)

	newUser := func(uname, email, role string) []byte {
		return marchallObj(t, user.NewUser{Name: "New", Username: uname, Email: email, Password: "LolC@t123", PasswordConfirm: "LolC@t123", Role: role})
	}

	tests := []httpTest{
		{name: "admin required", token: getToken(t, env, testutil.CreateUser(t, env.Users, "T", "teach001", "", "", user.RoleTeacher, true)), body: newUser("new00001", "", user.RoleStudent), wantCode: http.StatusForbidden},
		{
			name: "invalid role", token: token, body: newUser("new00001", "", "lol"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"role": "invalid role"}),
		},
		{
			name: "username taken", token: token, body: newUser("TAKEN001", "", user.RoleStudent), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{
			name: "email taken", token: token, body: newUser("", "taken@test.cd", user.RoleStudent), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{name: "created", token: token, body: newUser("new00001", "new@test.cd", user.RoleMainTeacher), wantCode: http.StatusCreated},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/register"
	}
	runTests(t, app, tests)

	usr, err := env.UserSvc.GetByUsernameOrEmail(context.Background(), "new@test.cd")
	require.NoError(t, err)
	assert.Equal(t, user.RoleMainTeacher, usr.Role)
	assert.NoError(t, usr.CheckPassword("LolC@t123"))
}

func Test_userApi_userRefreshToken(t *testing.T) {
	app, env := setup(t)

	naughty := testutil.CreateUser(t, env.Users, "N Dog", "ndog", "ndog@test.cd", "", user.RoleStudent, false)
	student := testutil.CreateUser(t, env.Users, "Hero", "hero", "user3@test.cd", "", user.RoleStudent, true)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    env.Conf.AppName,
			Subject:   strconv.Itoa(student.ID),
			Audience:  "Academia",
			ExpiresAt: now.Add(env.Conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * env.Conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		IsStudent:    student.IsStudent(),
		Role:         student.Role,
	}
	unrefreshableToken, err := echoapi.GenerateToken(env.Conf, unrefreshableClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: getToken(t, env, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/token-refresh"
	}
	runTests(t, app, tests)

	t.Run("Token refreshed", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, env, student))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		// cannot guess new token.. just check that it's not empty
		var respData echoapi.LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &respData))
		assert.NotEmpty(t, respData.Token)
	})
}

func Test_userApi_userResetPassword(t *testing.T) {
	app, env := setup(t)

	student := testutil.CreateUser(t, env.Users, "Hero", "hero", "user3@test.cd", "", user.RoleStudent, true)
	testutil.CreateUser(t, env.Users, "N Dog", "ndog", "ndog@test.cd", "", user.RoleStudent, false)
	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If an active account uses this email address, a link to choose a new password is on its way."})

	type extraTest struct {
		emailSent bool
		to        mail.Address
	}
	tests := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest, wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "this field is required"})},
		{
			name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "email must be a valid email address"}),
		},
		{
			name: "unknown email", body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.com"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "inactive user", body: marchallObj(t, echoapi.PasswordResetRequest{Email: "ndog@test.cd"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "known email", body: marchallObj(t, echoapi.PasswordResetRequest{Email: student.Email}),
			wantData: successData, extra: extraTest{emailSent: true, to: mail.Address{Name: student.Name, Address: student.Email}},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset"
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			env.Mail.Reset()

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if extra, ok := tt.extra.(extraTest); ok {
				sent := env.Mail.Sent()
				if !extra.emailSent {
					assert.Empty(t, sent)
					return
				}
				require.Len(t, sent, 1)
				msg := sent[0]
				assert.Equal(t, extra.to, msg.To[0])
				assert.Contains(t, msg.TextContent, extra.to.Name)
				assert.Contains(t, msg.HTMLContent, extra.to.Name)
				assert.Contains(t, msg.TextContent, "/password-reset-confirm?uid="+user.EncodeUID(student))
			}
		})
	}
}

func Test_userApi_userConfirmPasswordReset(t *testing.T) {
	app, env := setup(t)

	student := testutil.CreateUser(t, env.Users, "Hero", "hero", "user3@test.cd", "lol", user.RoleStudent, true)
	validUID := user.EncodeUID(student)

	// get a valid token through the reset email
	require.NoError(t, env.UserSvc.RequestPasswordReset(context.Background(), student.Email))
	sent := env.Mail.Sent()
	require.Len(t, sent, 1)
	data, ok := sent[0].TemplateData.(map[string]interface{})
	require.True(t, ok)
	validToken, _ := data["Token"].(string)
	require.NotEmpty(t, validToken)

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, user.ResetUserPassword{Token: reqMsg, UID: reqMsg, Password: reqMsg, PasswordConfirm: reqMsg}),
		},
		{
			name: "invalid pwd: min len", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "lol", PasswordConfirm: "lol"}),
			wantData: marchallObj(t, user.ResetUserPassword{Password: "password must contain at least 8 characters"}),
		},
		{
			name: "invalid pwd: no whitespace", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "l o loll", PasswordConfirm: "l o loll"}),
			wantData: marchallObj(t, user.ResetUserPassword{Password: "password must not contain whitespace"}),
		},
		{
			name: "invalid pwd: not all numeric", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "12345678", PasswordConfirm: "12345678"}),
			wantData: marchallObj(t, user.ResetUserPassword{Password: "password cannot be entirely numeric"}),
		},
		{
			name: "invalid pwd: complexity", wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "lol12345", PasswordConfirm: "lol12345"}),
			wantData: marchallObj(t, user.ResetUserPassword{
				Password: "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
			}),
		},
		{
			name: "PasswordConfirm must = Password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "LolC@t123", PasswordConfirm: "lol"}),
			wantData: marchallObj(t, user.ResetUserPassword{PasswordConfirm: "password_confirm must be equal to Password"}),
		},
		{
			name: "user not found", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: "OTk5", Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, map[string]string{"token": "invalid token"}),
		},
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig", UID: validUID, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, map[string]string{"token": "invalid token"}),
		},
		{
			name:     "valid token",
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: validUID, Password: "LolC@t123", PasswordConfirm: "LolC@t123"}),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Your password has been changed, you can now sign in with it."}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/password-reset-confirm"
	}
	runTests(t, app, tests)

	refreshed, err := env.Users.GetUser(context.Background(), user.GetFilter{ID: student.ID})
	require.NoError(t, err)
	assert.False(t, bytes.Equal(refreshed.PasswordHash, student.PasswordHash), "password not updated")
	assert.NoError(t, refreshed.CheckPassword("LolC@t123"))
}

func Test_userApi_queryRoles(t *testing.T) {
	app, env := setup(t)

	admin := testutil.CreateUser(t, env.Users, "Admin", "admin", "admin@test.cd", "", user.RoleAdmin, true)
	req, rec := newAuthRequest(http.MethodGet, "/v1/users/roles", getToken(t, env, admin))
	app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"value":"teacher:main"`))
}

package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

const (
	contextAccountKey = "account"

	msgRoleAboveOwn    = "cannot grant a role above your own"
	msgResetRequested  = "If an active account uses this email address, a link to choose a new password is on its way."
	msgPasswordChanged = "Your password has been changed, you can now sign in with it."
)

var errNoAccountInCtx = errors.New("account not loaded in echo.Context")

type userApi struct {
	conf     *core.Config
	svc      user.ServiceInterface
	validate *validator.Validate
}

// registerUserAPI mounts account management under /users. Sign-in & password recovery are public;
// the rest needs a valid token from an active account.
func registerUserAPI(g *echo.Group, jwt, actor echo.MiddlewareFunc, conf *core.Config, svc user.ServiceInterface, validate *validator.Validate) {
	api := userApi{conf: conf, svc: svc, validate: validate}

	ug := g.Group("/users")
	// TODO: rate limit the public routes with middleware.RateLimiter once echo is past v4.2
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.requestPasswordReset)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)
	ug.POST("/token-refresh", api.refreshToken, jwt)

	ag := ug.Group("", jwt, actor)
	ag.GET("", api.queryAccounts, adminMiddleware())
	ag.DELETE("", api.destroyAccounts, adminMiddleware())
	ag.POST("/register", api.createAccount, adminMiddleware())
	ag.GET("/roles", api.queryRoles, adminMiddleware())

	dg := ag.Group("/:id", selfOrAdminMiddleware(svc))
	dg.GET("", api.retrieveAccount)
	dg.PUT("", api.updateAccount)
	dg.DELETE("", api.destroyAccount, adminMiddleware())
}

// selfOrAdminMiddleware loads the account of the :id param into the context.
// Accounts other than the caller's are only visible to admins; everyone else gets a 404.
func selfOrAdminMiddleware(svc user.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			signedIn, ok := getContextActor(ctx)
			if !ok {
				return errors.Wrap(errNoAccountInCtx, "reading signed-in actor")
			}
			id, err := paramID(ctx, "id")
			if err != nil {
				return err
			}
			if id != signedIn.User.ID && !signedIn.IsAdmin() {
				return errHttpNotFound
			}

			usr, err := svc.GetByID(ctx.Request().Context(), id)
			switch {
			case core.IsNotFound(err):
				return errHttpNotFound
			case err != nil:
				return errors.Wrap(err, "loading account")
			}
			ctx.Set(contextAccountKey, usr)
			return next(ctx)
		}
	}
}

func contextAccount(ctx echo.Context) (user.User, error) {
	usr, ok := ctx.Get(contextAccountKey).(user.User)
	if !ok {
		return user.User{}, errNoAccountInCtx
	}
	return usr, nil
}

// caller returns the signed-in account, as loaded by actorMiddleware.
func caller(ctx echo.Context) (user.User, error) {
	actor, ok := getContextActor(ctx)
	if !ok {
		return user.User{}, errNoAccountInCtx
	}
	return actor.User, nil
}

// checkGrantable fails when by would hand out a role ranking above its own.
func checkGrantable(by user.User, role string) error {
	if user.RolePriority(role) > user.RolePriority(by.Role) {
		return core.NewFieldError("role", msgRoleAboveOwn)
	}
	return nil
}

// refuseSelf fails when the caller is among ids.
func refuseSelf(ctx echo.Context, ids ...int) error {
	usr, err := caller(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == usr.ID {
			return errHttpForbidden
		}
	}
	return nil
}

// Sign-in & recovery

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := authenticate(ctx.Request().Context(), api.conf, data.Username, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(api.conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// requestPasswordReset answers the same way whether or not the email is known.
func (api *userApi) requestPasswordReset(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if err != nil && !core.IsNotFound(err) {
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: msgResetRequested})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: msgPasswordChanged})
}

// Accounts

func (api *userApi) queryAccounts(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

// createAccount registers an account without a school profile; teachers & students
// also get one through /teachers & /students.
func (api *userApi) createAccount(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	admin, err := caller(ctx)
	if err != nil {
		return err
	}
	if err := checkGrantable(admin, data.Role); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) retrieveAccount(ctx echo.Context) error {
	usr, err := contextAccount(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

// updateAccount lets people edit their own name & password. The username, email, role &
// activation of an account are managed by admins.
func (api *userApi) updateAccount(ctx echo.Context) error {
	usr, err := contextAccount(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	by, err := caller(ctx)
	if err != nil {
		return err
	}
	adminOnly := data.IsActive != nil || data.Role != "" || data.Username != "" || data.Email != ""
	if adminOnly && !by.IsAdmin() {
		return errHttpForbidden
	}
	if err := data.Validate(usr, api.validate, api.svc); err != nil {
		return err
	}
	if err := checkGrantable(by, data.Role); err != nil {
		return err
	}

	usr, err = api.svc.Update(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroyAccount(ctx echo.Context) error {
	usr, err := contextAccount(ctx)
	if err != nil {
		return err
	}
	if err := refuseSelf(ctx, usr.ID); err != nil {
		return err
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// destroyAccounts deletes every ?id= account at once; the caller's own id fails the whole batch.
func (api *userApi) destroyAccounts(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err := refuseSelf(ctx, query.IDs...); err != nil {
		return err
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"` // username or email
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []int `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

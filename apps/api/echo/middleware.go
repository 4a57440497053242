package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/school"
	"github.com/trezcool/academia/core/user"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// actorMiddleware loads the signed-in user with its school profile.
// Deactivated accounts are rejected even while their token is still valid.
func actorMiddleware(users user.ServiceInterface, schools *school.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, users)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			actor, err := schools.ResolveActor(ctx.Request().Context(), usr)
			if err != nil {
				return errors.Wrap(err, "resolving actor")
			}
			ctx.Set(contextActorKey, actor)
			return next(ctx)
		}
	}
}

// teacherMiddleware only lets actors with a teacher profile through.
func teacherMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if actor, ok := getContextActor(ctx); ok && actor.Teacher != nil {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

func getContextActor(ctx echo.Context) (school.Actor, bool) {
	actor, ok := ctx.Get(contextActorKey).(school.Actor)
	return actor, ok
}

func mustContextActor(ctx echo.Context) (school.Actor, error) {
	if actor, ok := getContextActor(ctx); ok {
		return actor, nil
	}
	return school.Actor{}, errUnauthorized
}

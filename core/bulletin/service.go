package bulletin

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/school"
)

var (
	errNoAudience  = errors.New("at least one class is required")
	errNotHomeroom = errors.New("main teachers can only publish to their homeroom class")
)

type (
	Repository interface {
		CreateAnnouncement(ctx context.Context, ann Announcement, exec ...core.DBExecutor) (Announcement, error)
		// QueryAnnouncements returns visible announcements, newest first.
		QueryAnnouncements(ctx context.Context, vis Visibility, exec ...core.DBExecutor) ([]Announcement, error)
		CreateActivity(ctx context.Context, act Activity, exec ...core.DBExecutor) (Activity, error)
		// QueryActivities returns visible activities ordered by date.
		QueryActivities(ctx context.Context, vis Visibility, exec ...core.DBExecutor) ([]Activity, error)
	}

	ClassReader interface {
		GetClass(ctx context.Context, id int, exec ...core.DBExecutor) (school.Class, error)
	}

	// TeacherClasses lists the classes a teacher recorded lesson topics for.
	TeacherClasses interface {
		QueryTeacherClassIDs(ctx context.Context, teacherID int, exec ...core.DBExecutor) ([]int, error)
	}

	Service struct {
		repo     Repository
		classes  ClassReader
		teaching TeacherClasses
	}
)

func NewService(repo Repository, classes ClassReader, teaching TeacherClasses) *Service {
	return &Service{repo: repo, classes: classes, teaching: teaching}
}

func (svc *Service) PublishAnnouncement(ctx context.Context, actor school.Actor, na NewAnnouncement) (Announcement, error) {
	aud, err := svc.checkAudience(ctx, actor, na.audience())
	if err != nil {
		return Announcement{}, err
	}
	return svc.repo.CreateAnnouncement(ctx, Announcement{
		AuthorID:  actor.User.ID,
		Title:     na.Title,
		Body:      na.Body,
		Audience:  aud,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) PublishActivity(ctx context.Context, actor school.Actor, na NewActivity) (Activity, error) {
	aud, err := svc.checkAudience(ctx, actor, na.audience())
	if err != nil {
		return Activity{}, err
	}
	return svc.repo.CreateActivity(ctx, Activity{
		AuthorID:    actor.User.ID,
		Title:       na.Title,
		Description: na.Description,
		Date:        na.Date,
		Audience:    aud,
		CreatedAt:   time.Now().UTC(),
	})
}

func (svc *Service) ListAnnouncements(ctx context.Context, actor school.Actor) ([]Announcement, error) {
	vis, err := svc.visibility(ctx, actor)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryAnnouncements(ctx, vis)
}

func (svc *Service) ListActivities(ctx context.Context, actor school.Actor) ([]Activity, error) {
	vis, err := svc.visibility(ctx, actor)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryActivities(ctx, vis)
}

// checkAudience lets admins publish anywhere and main teachers to their homeroom class only.
func (svc *Service) checkAudience(ctx context.Context, actor school.Actor, aud Audience) (Audience, error) {
	switch {
	case actor.IsAdmin():
	case actor.Teacher != nil && actor.Teacher.IsMainTeacher:
		t := actor.Teacher
		if aud.AllClasses || !t.HomeroomClassID.Valid || len(aud.ClassIDs) != 1 || !t.IsHomeroomOf(aud.ClassIDs[0]) {
			return Audience{}, core.NewFieldError("class_ids", errNotHomeroom.Error())
		}
	default:
		return Audience{}, core.ErrPermissionDenied
	}

	if !aud.AllClasses {
		if len(aud.ClassIDs) == 0 {
			return Audience{}, core.NewFieldError("class_ids", errNoAudience.Error())
		}
		for _, id := range aud.ClassIDs {
			if _, err := svc.classes.GetClass(ctx, id); err != nil {
				return Audience{}, err
			}
		}
	}
	return aud, nil
}

// visibility: admins see everything; students the posts for all classes & their own class;
// teachers the posts for all classes, their homeroom class & the classes they recorded lesson topics for.
func (svc *Service) visibility(ctx context.Context, actor school.Actor) (Visibility, error) {
	switch {
	case actor.IsAdmin():
		return Visibility{All: true}, nil
	case actor.Student != nil:
		return Visibility{ClassIDs: []int{actor.Student.ClassID}}, nil
	case actor.Teacher != nil:
		ids, err := svc.teaching.QueryTeacherClassIDs(ctx, actor.Teacher.ID)
		if err != nil {
			return Visibility{}, errors.Wrap(err, "querying teacher classes")
		}
		if actor.Teacher.HomeroomClassID.Valid {
			ids = append(ids, actor.Teacher.HomeroomClassID.Int)
		}
		return Visibility{ClassIDs: ids}, nil
	}
	return Visibility{}, nil
}

package bulletin

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

// Audience scopes a post to every class or to an explicit set of classes.
type Audience struct {
	AllClasses bool  `json:"all_classes"`
	ClassIDs   []int `json:"class_ids"`
}

// Reaches reports whether a reader of classID sees a post of this audience.
func (a Audience) Reaches(classIDs ...int) bool {
	if a.AllClasses {
		return true
	}
	for _, id := range a.ClassIDs {
		for _, cid := range classIDs {
			if id == cid {
				return true
			}
		}
	}
	return false
}

type Announcement struct {
	ID       int    `json:"id"`
	AuthorID int    `json:"author_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Audience
	CreatedAt time.Time `json:"created_at"` // UTC
}

type Activity struct {
	ID          int       `json:"id"`
	AuthorID    int       `json:"author_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        core.Date `json:"date"`
	Audience
	CreatedAt time.Time `json:"created_at"` // UTC
}

type NewAnnouncement struct {
	Title      string `json:"title" validate:"required,notblank"`
	Body       string `json:"body" validate:"required,notblank"`
	AllClasses bool   `json:"all_classes"`
	ClassIDs   []int  `json:"class_ids" validate:"required_without=AllClasses,dive,min=1"`
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Body = core.CleanString(na.Body)
	return validate.Struct(na)
}

func (na NewAnnouncement) audience() Audience {
	return newAudience(na.AllClasses, na.ClassIDs)
}

type NewActivity struct {
	Title       string    `json:"title" validate:"required,notblank"`
	Description string    `json:"description"`
	Date        core.Date `json:"date" validate:"required"`
	AllClasses  bool      `json:"all_classes"`
	ClassIDs    []int     `json:"class_ids" validate:"required_without=AllClasses,dive,min=1"`
}

func (na *NewActivity) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	return validate.Struct(na)
}

func (na NewActivity) audience() Audience {
	return newAudience(na.AllClasses, na.ClassIDs)
}

func newAudience(all bool, classIDs []int) Audience {
	if all {
		return Audience{AllClasses: true, ClassIDs: []int{}}
	}
	seen := make(map[int]bool, len(classIDs))
	ids := make([]int, 0, len(classIDs))
	for _, id := range classIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return Audience{ClassIDs: ids}
}

// Visibility selects the posts a reader may see: every post, or those reaching one of ClassIDs.
type Visibility struct {
	All      bool
	ClassIDs []int
}

func (v Visibility) Allows(a Audience) bool {
	return v.All || a.Reaches(v.ClassIDs...)
}

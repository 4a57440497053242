package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/bulletin"
)

type (
	announcementRow struct {
		ID         int           `db:"id"`
		AuthorID   int           `db:"author_id"`
		Title      string        `db:"title"`
		Body       string        `db:"body"`
		AllClasses bool          `db:"all_classes"`
		ClassIDs   pq.Int64Array `db:"class_ids"`
		CreatedAt  time.Time     `db:"created_at"`
	}

	activityRow struct {
		ID          int           `db:"id"`
		AuthorID    int           `db:"author_id"`
		Title       string        `db:"title"`
		Description string        `db:"description"`
		Date        core.Date     `db:"date"`
		AllClasses  bool          `db:"all_classes"`
		ClassIDs    pq.Int64Array `db:"class_ids"`
		CreatedAt   time.Time     `db:"created_at"`
	}
)

func audience(all bool, ids pq.Int64Array) bulletin.Audience {
	classIDs := make([]int, 0, len(ids))
	for _, id := range ids {
		classIDs = append(classIDs, int(id))
	}
	return bulletin.Audience{AllClasses: all, ClassIDs: classIDs}
}

func (row announcementRow) unboil() bulletin.Announcement {
	return bulletin.Announcement{
		ID:        row.ID,
		AuthorID:  row.AuthorID,
		Title:     row.Title,
		Body:      row.Body,
		Audience:  audience(row.AllClasses, row.ClassIDs),
		CreatedAt: row.CreatedAt.UTC(),
	}
}

func (row activityRow) unboil() bulletin.Activity {
	return bulletin.Activity{
		ID:          row.ID,
		AuthorID:    row.AuthorID,
		Title:       row.Title,
		Description: row.Description,
		Date:        row.Date,
		Audience:    audience(row.AllClasses, row.ClassIDs),
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

type bulletinRepository struct {
	repo
}

var _ bulletin.Repository = (*bulletinRepository)(nil) // interface compliance check

func NewBulletinRepository(db *sqlx.DB) *bulletinRepository {
	return &bulletinRepository{repo{db: db}}
}

// visibleWhere renders vis on an aliased post table and its class join table.
func visibleWhere(vis bulletin.Visibility, alias, joinTable, fk string) (string, []interface{}) {
	if vis.All {
		return "", nil
	}
	return " WHERE " + alias + ".all_classes OR EXISTS (SELECT 1 FROM " + joinTable + " j WHERE j." + fk + " = " + alias + ".id AND j.class_id = ANY($1))",
		[]interface{}{pqIntArray(vis.ClassIDs)}
}

func (r bulletinRepository) CreateAnnouncement(ctx context.Context, ann bulletin.Announcement, exec ...core.DBExecutor) (bulletin.Announcement, error) {
	ex := r.getExec(exec)
	err := sqlx.GetContext(ctx, ex, &ann.ID,
		"INSERT INTO announcements (author_id, title, body, all_classes, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		ann.AuthorID, ann.Title, ann.Body, ann.AllClasses, ann.CreatedAt.UTC())
	if err != nil {
		return bulletin.Announcement{}, errors.Wrap(err, "inserting announcement")
	}
	if len(ann.ClassIDs) > 0 {
		_, err = ex.ExecContext(ctx,
			"INSERT INTO announcement_classes (announcement_id, class_id) SELECT $1, unnest($2::int[])",
			ann.ID, pqIntArray(ann.ClassIDs))
		if err != nil {
			return bulletin.Announcement{}, errors.Wrap(err, "inserting announcement classes")
		}
	}
	return ann, nil
}

func (r bulletinRepository) QueryAnnouncements(ctx context.Context, vis bulletin.Visibility, exec ...core.DBExecutor) ([]bulletin.Announcement, error) {
	w, args := visibleWhere(vis, "a", "announcement_classes", "announcement_id")
	q := `SELECT a.id, COALESCE(a.author_id, 0) AS author_id, a.title, a.body, a.all_classes, a.created_at,
		COALESCE((SELECT array_agg(ac.class_id ORDER BY ac.class_id) FROM announcement_classes ac WHERE ac.announcement_id = a.id), '{}'::int[]) AS class_ids
		FROM announcements a` + w + " ORDER BY a.created_at DESC, a.id DESC"

	rows := make([]announcementRow, 0)
	if err := sqlx.SelectContext(ctx, r.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying announcements")
	}
	anns := make([]bulletin.Announcement, 0, len(rows))
	for _, row := range rows {
		anns = append(anns, row.unboil())
	}
	return anns, nil
}

func (r bulletinRepository) CreateActivity(ctx context.Context, act bulletin.Activity, exec ...core.DBExecutor) (bulletin.Activity, error) {
	ex := r.getExec(exec)
	err := sqlx.GetContext(ctx, ex, &act.ID,
		"INSERT INTO activities (author_id, title, description, date, all_classes, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		act.AuthorID, act.Title, act.Description, act.Date, act.AllClasses, act.CreatedAt.UTC())
	if err != nil {
		return bulletin.Activity{}, errors.Wrap(err, "inserting activity")
	}
	if len(act.ClassIDs) > 0 {
		_, err = ex.ExecContext(ctx,
			"INSERT INTO activity_classes (activity_id, class_id) SELECT $1, unnest($2::int[])",
			act.ID, pqIntArray(act.ClassIDs))
		if err != nil {
			return bulletin.Activity{}, errors.Wrap(err, "inserting activity classes")
		}
	}
	return act, nil
}

func (r bulletinRepository) QueryActivities(ctx context.Context, vis bulletin.Visibility, exec ...core.DBExecutor) ([]bulletin.Activity, error) {
	w, args := visibleWhere(vis, "a", "activity_classes", "activity_id")
	q := `SELECT a.id, COALESCE(a.author_id, 0) AS author_id, a.title, a.description, a.date, a.all_classes, a.created_at,
		COALESCE((SELECT array_agg(ac.class_id ORDER BY ac.class_id) FROM activity_classes ac WHERE ac.activity_id = a.id), '{}'::int[]) AS class_ids
		FROM activities a` + w + " ORDER BY a.date, a.id"

	rows := make([]activityRow, 0)
	if err := sqlx.SelectContext(ctx, r.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying activities")
	}
	acts := make([]bulletin.Activity, 0, len(rows))
	for _, row := range rows {
		acts = append(acts, row.unboil())
	}
	return acts, nil
}

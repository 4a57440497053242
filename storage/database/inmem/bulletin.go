package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/bulletin"
)

type bulletinRepository struct {
	db *DB
}

var _ bulletin.Repository = (*bulletinRepository)(nil) // interface compliance check

func NewBulletinRepository(db *DB) *bulletinRepository {
	return &bulletinRepository{db: db}
}

func (repo *bulletinRepository) CreateAnnouncement(_ context.Context, ann bulletin.Announcement, _ ...core.DBExecutor) (bulletin.Announcement, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	ann.ID = repo.db.nextID("announcement")
	ann.ClassIDs = copyInts(ann.ClassIDs)
	repo.db.t.announcements[ann.ID] = ann
	return ann, nil
}

func (repo *bulletinRepository) QueryAnnouncements(_ context.Context, vis bulletin.Visibility, _ ...core.DBExecutor) ([]bulletin.Announcement, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	anns := make([]bulletin.Announcement, 0)
	for _, a := range repo.db.t.announcements {
		if vis.Allows(a.Audience) {
			a.ClassIDs = copyInts(a.ClassIDs)
			anns = append(anns, a)
		}
	}
	sort.Slice(anns, func(i, j int) bool {
		if !anns[i].CreatedAt.Equal(anns[j].CreatedAt) {
			return anns[i].CreatedAt.After(anns[j].CreatedAt)
		}
		return anns[i].ID > anns[j].ID
	})
	return anns, nil
}

func (repo *bulletinRepository) CreateActivity(_ context.Context, act bulletin.Activity, _ ...core.DBExecutor) (bulletin.Activity, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	act.ID = repo.db.nextID("activity")
	act.ClassIDs = copyInts(act.ClassIDs)
	repo.db.t.activities[act.ID] = act
	return act, nil
}

func (repo *bulletinRepository) QueryActivities(_ context.Context, vis bulletin.Visibility, _ ...core.DBExecutor) ([]bulletin.Activity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	acts := make([]bulletin.Activity, 0)
	for _, a := range repo.db.t.activities {
		if vis.Allows(a.Audience) {
			a.ClassIDs = copyInts(a.ClassIDs)
			acts = append(acts, a)
		}
	}
	sort.Slice(acts, func(i, j int) bool {
		if !acts[i].Date.Equal(acts[j].Date) {
			return acts[i].Date.Before(acts[j].Date)
		}
		return acts[i].ID < acts[j].ID
	})
	return acts, nil
}

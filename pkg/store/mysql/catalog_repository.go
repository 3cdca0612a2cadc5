package mysql

import (
	"context"
	"errors"
	"fmt"

	"mteval/internal/model"

	"gorm.io/gorm"
)

// CatalogRepository reads namespaces, users and run data
type CatalogRepository struct {
	ds *Datastore
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(ds *Datastore) *CatalogRepository {
	return &CatalogRepository{ds: ds}
}

// GetNamespace gets a namespace by name
func (r *CatalogRepository) GetNamespace(ctx context.Context, name string) (*model.Namespace, error) {
	var ns Namespace
	err := r.ds.DB(ctx).Where("name = ?", name).Take(&ns).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: namespace %q", model.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get namespace: %w", err)
	}
	return &model.Namespace{ID: ns.ID, Name: ns.Name}, nil
}

// GetUser gets a user by username
func (r *CatalogRepository) GetUser(ctx context.Context, username string) (*model.User, error) {
	var u User
	err := r.ds.DB(ctx).Where("username = ?", username).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %q", model.ErrNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &model.User{ID: u.ID, Username: u.Username}, nil
}

type segmentRow struct {
	Src string
	Ref *string
	Tgt *string
}

// GetRunWork loads the dataset languages and the ordered (src, tgt, ref) segments of a run
func (r *CatalogRepository) GetRunWork(ctx context.Context, runID int64) (*model.RunWork, error) {
	var head struct {
		NamespaceID  int64
		DatasetID    int64
		SourceLang   string
		TargetLang   string
		HasReference bool
	}
	err := r.ds.DB(ctx).Table("translation_runs").
		Select("translation_runs.namespace_id, translation_runs.dataset_id, datasets.source_lang, datasets.target_lang, datasets.has_reference").
		Joins("JOIN datasets ON datasets.id = translation_runs.dataset_id").
		Where("translation_runs.id = ?", runID).
		Take(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: run %d", model.ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var rows []segmentRow
	err = r.ds.DB(ctx).Table("segments").
		Select("segments.src, segments.ref, segment_translations.tgt").
		Joins("LEFT JOIN segment_translations ON segment_translations.segment_id = segments.id AND segment_translations.run_id = ?", runID).
		Where("segments.dataset_id = ?", head.DatasetID).
		Order("segments.idx ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load segments of run %d: %w", runID, err)
	}

	work := &model.RunWork{
		RunID:        runID,
		NamespaceID:  head.NamespaceID,
		SourceLang:   head.SourceLang,
		TargetLang:   head.TargetLang,
		HasReference: head.HasReference,
		Segments:     make([]model.Segment, len(rows)),
	}
	for i, row := range rows {
		seg := model.Segment{Src: row.Src, Ref: row.Ref}
		if row.Tgt != nil {
			seg.Tgt = *row.Tgt
		}
		work.Segments[i] = seg
	}
	return work, nil
}

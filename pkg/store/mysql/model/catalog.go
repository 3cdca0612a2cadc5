package model

import "time"

// Tables below are owned by the ingestion side; the scheduler only reads them.

// Namespace represents a tenant record in database
type Namespace struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;not null;uniqueIndex;size:255"`
}

func (Namespace) TableName() string {
	return "namespaces"
}

// User represents a user record in database
type User struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Username string `gorm:"column:username;not null;uniqueIndex;size:255"`
}

func (User) TableName() string {
	return "users"
}

// Dataset represents a source/reference corpus
type Dataset struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	NamespaceID  int64  `gorm:"column:namespace_id;not null;index"`
	SourceLang   string `gorm:"column:source_lang;not null;size:32"`
	TargetLang   string `gorm:"column:target_lang;not null;size:32"`
	HasReference bool   `gorm:"column:has_reference;not null;default:false"`
}

func (Dataset) TableName() string {
	return "datasets"
}

// Segment represents one source segment of a dataset
type Segment struct {
	ID        int64   `gorm:"column:id;primaryKey;autoIncrement"`
	DatasetID int64   `gorm:"column:dataset_id;not null;uniqueIndex:idx_dataset_idx"`
	Idx       int     `gorm:"column:idx;not null;uniqueIndex:idx_dataset_idx"`
	Src       string  `gorm:"column:src;type:text;not null"`
	Ref       *string `gorm:"column:ref;type:text"`
}

func (Segment) TableName() string {
	return "segments"
}

// TranslationRun represents one system output over a dataset
type TranslationRun struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	NamespaceID int64     `gorm:"column:namespace_id;not null;index"`
	DatasetID   int64     `gorm:"column:dataset_id;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (TranslationRun) TableName() string {
	return "translation_runs"
}

// SegmentTranslation represents the translation of one segment within a run
type SegmentTranslation struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunID     int64  `gorm:"column:run_id;not null;uniqueIndex:idx_run_segment"`
	SegmentID int64  `gorm:"column:segment_id;not null;uniqueIndex:idx_run_segment"`
	Tgt       string `gorm:"column:tgt;type:text;not null"`
}

func (SegmentTranslation) TableName() string {
	return "segment_translations"
}

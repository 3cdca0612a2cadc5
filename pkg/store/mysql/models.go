package mysql

import "mteval/pkg/store/mysql/model"

type (
	Namespace          = model.Namespace
	User               = model.User
	Dataset            = model.Dataset
	Segment            = model.Segment
	TranslationRun     = model.TranslationRun
	SegmentTranslation = model.SegmentTranslation
	Worker             = model.Worker
	Job                = model.Job
	DatasetMetric      = model.DatasetMetric
	SegmentMetric      = model.SegmentMetric

	JSONMap = model.JSONMap
)

func allModels() []interface{} {
	return []interface{}{
		&Namespace{},
		&User{},
		&Dataset{},
		&Segment{},
		&TranslationRun{},
		&SegmentTranslation{},
		&Worker{},
		&Job{},
		&DatasetMetric{},
		&SegmentMetric{},
	}
}

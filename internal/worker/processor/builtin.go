package processor

import (
	"context"
	"fmt"
	"strings"

	"mteval/internal/model"
)

const (
	ExactMatchName  = "exact_match"
	LengthRatioName = "length_ratio"
)

// exactMatch scores 1 per segment whose translation equals the reference
type exactMatch struct {
	caseInsensitive bool
}

func newExactMatch(opts Options) (Processor, error) {
	return &exactMatch{caseInsensitive: opts.Bool("case_insensitive", false)}, nil
}

func (p *exactMatch) Process(ctx context.Context, job *model.JobInfo) (*model.JobResultRequest, error) {
	scores := make([]float64, len(job.Segments))
	matched := 0
	for i, seg := range job.Segments {
		if seg.Ref == nil {
			return nil, fmt.Errorf("segment %d has no reference", i)
		}
		hyp, ref := strings.TrimSpace(seg.Tgt), strings.TrimSpace(*seg.Ref)
		equal := hyp == ref
		if p.caseInsensitive {
			equal = strings.EqualFold(hyp, ref)
		}
		if equal {
			scores[i] = 1
			matched++
		}
	}

	corpus := 0.0
	if len(scores) > 0 {
		corpus = 100 * float64(matched) / float64(len(scores))
	}
	return &model.JobResultRequest{
		JobID:               job.ID,
		DatasetLevelMetrics: []model.DatasetMetric{{Name: ExactMatchName, HigherIsBetter: true, Score: corpus}},
		SegmentLevelMetrics: []model.SegmentMetric{{Name: ExactMatchName, HigherIsBetter: true, Scores: scores}},
	}, nil
}

// lengthRatio compares translation and source lengths in whitespace tokens
type lengthRatio struct{}

func newLengthRatio(Options) (Processor, error) {
	return lengthRatio{}, nil
}

func (lengthRatio) Process(ctx context.Context, job *model.JobInfo) (*model.JobResultRequest, error) {
	scores := make([]float64, len(job.Segments))
	var srcTotal, tgtTotal int
	for i, seg := range job.Segments {
		src, tgt := len(strings.Fields(seg.Src)), len(strings.Fields(seg.Tgt))
		srcTotal += src
		tgtTotal += tgt
		if src > 0 {
			scores[i] = float64(tgt) / float64(src)
		}
	}

	corpus := 0.0
	if srcTotal > 0 {
		corpus = float64(tgtTotal) / float64(srcTotal)
	}
	return &model.JobResultRequest{
		JobID:               job.ID,
		DatasetLevelMetrics: []model.DatasetMetric{{Name: LengthRatioName, Score: corpus}},
		SegmentLevelMetrics: []model.SegmentMetric{{Name: LengthRatioName, Scores: scores}},
	}, nil
}

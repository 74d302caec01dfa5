// Package evaluation - Detection accuracy against YOLO-labelled images: precision, recall and mAP.
package evaluation

import (
	"sort"

	"github.com/nvr-ai/go-targeting/common"
	"github.com/nvr-ai/go-targeting/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// IoUThresholds are the ten thresholds 0.50:0.05:0.95 averaged by mAP50-95.
var IoUThresholds = [10]float32{0.50, 0.55, 0.60, 0.65, 0.70, 0.75, 0.80, 0.85, 0.90, 0.95}

// ClassMetrics holds the average precision of one class.
type ClassMetrics struct {
	ClassID   int     `json:"class_id"`
	Name      string  `json:"name"`
	Instances int     `json:"instances"`
	AP50      float64 `json:"ap50"`
	AP50To95  float64 `json:"ap50_95"`
}

// Metrics summarizes a validation run.
//
// Precision and recall are measured at IoU 0.5 over every prediction handed
// to the evaluator, so they reflect the confidence threshold of the run.
type Metrics struct {
	Images    int            `json:"images"`
	Instances int            `json:"instances"`
	Precision float64        `json:"precision"`
	Recall    float64        `json:"recall"`
	MAP50     float64        `json:"map50"`
	MAP50To95 float64        `json:"map50_95"`
	Classes   []ClassMetrics `json:"classes"`
}

type record struct {
	classID    int
	confidence float32
	tp         [len(IoUThresholds)]bool
}

// Evaluator accumulates matched predictions image by image.
type Evaluator struct {
	classes   *models.OutputClassSet
	images    int
	instances map[int]int
	records   []record
}

// NewEvaluator creates an evaluator. classes names the per-class results and may be nil.
func NewEvaluator(classes *models.OutputClassSet) *Evaluator {
	return &Evaluator{
		classes:   classes,
		instances: make(map[int]int),
	}
}

// Add matches the predictions of one image against its ground truth.
//
// Arguments:
//   - predictions: Detector output in pixels.
//   - truth: Labelled boxes in the same pixel space.
func (e *Evaluator) Add(predictions, truth []common.BoundingBox) {
	e.images++
	for i := range truth {
		e.instances[truth[i].ClassID]++
	}

	preds := make([]common.BoundingBox, len(predictions))
	copy(preds, predictions)
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Confidence > preds[j].Confidence
	})

	recs := make([]record, len(preds))
	for i := range preds {
		recs[i] = record{classID: preds[i].ClassID, confidence: preds[i].Confidence}
	}

	for k, threshold := range IoUThresholds {
		matched := make([]bool, len(truth))
		for i := range preds {
			best, bestIoU := -1, threshold
			for j := range truth {
				if matched[j] || truth[j].ClassID != preds[i].ClassID {
					continue
				}
				if iou := preds[i].IoU(&truth[j]); iou >= bestIoU {
					best, bestIoU = j, iou
				}
			}
			if best >= 0 {
				matched[best] = true
				recs[i].tp[k] = true
			}
		}
	}

	e.records = append(e.records, recs...)
}

// Compute returns the metrics of everything added so far.
func (e *Evaluator) Compute() Metrics {
	m := Metrics{Images: e.images, Classes: []ClassMetrics{}}

	byClass := make(map[int][]record)
	tp50 := 0
	for _, r := range e.records {
		byClass[r.classID] = append(byClass[r.classID], r)
		if r.tp[0] {
			tp50++
		}
	}

	ids := make([]int, 0, len(e.instances))
	for id, n := range e.instances {
		m.Instances += n
		ids = append(ids, id)
	}
	sort.Ints(ids)

	if len(e.records) > 0 {
		m.Precision = float64(tp50) / float64(len(e.records))
	}
	if m.Instances > 0 {
		m.Recall = float64(tp50) / float64(m.Instances)
	}
	if len(ids) == 0 {
		return m
	}

	ap50 := make([]float64, 0, len(ids))
	ap50to95 := make([]float64, 0, len(ids))
	for _, id := range ids {
		recs := byClass[id]
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].confidence > recs[j].confidence
		})

		var aps [len(IoUThresholds)]float64
		for k := range IoUThresholds {
			aps[k] = classAP(recs, k, e.instances[id])
		}

		cm := ClassMetrics{
			ClassID:   id,
			Name:      e.className(id),
			Instances: e.instances[id],
			AP50:      aps[0],
			AP50To95:  stat.Mean(aps[:], nil),
		}
		m.Classes = append(m.Classes, cm)
		ap50 = append(ap50, cm.AP50)
		ap50to95 = append(ap50to95, cm.AP50To95)
	}

	m.MAP50 = stat.Mean(ap50, nil)
	m.MAP50To95 = stat.Mean(ap50to95, nil)
	return m
}

func (e *Evaluator) className(id int) string {
	if e.classes == nil {
		return models.NewOutputClassSet(models.ModelFamilyDataset, nil).Name(id)
	}
	return e.classes.Name(id)
}

// classAP builds the precision/recall curve of one class at threshold k.
func classAP(recs []record, k, instances int) float64 {
	if instances == 0 || len(recs) == 0 {
		return 0
	}

	recall := make([]float64, len(recs))
	precision := make([]float64, len(recs))
	tp, fp := 0.0, 0.0
	for i, r := range recs {
		if r.tp[k] {
			tp++
		} else {
			fp++
		}
		recall[i] = tp / float64(instances)
		precision[i] = tp / (tp + fp)
	}
	return AveragePrecision(recall, precision)
}

// AveragePrecision integrates a precision/recall curve with 101-point
// interpolation. recall must be non-decreasing.
func AveragePrecision(recall, precision []float64) float64 {
	if len(recall) == 0 {
		return 0
	}

	// Precision envelope: the best precision at this recall or beyond.
	envelope := make([]float64, len(precision))
	copy(envelope, precision)
	for i := len(envelope) - 2; i >= 0; i-- {
		envelope[i] = max(envelope[i], envelope[i+1])
	}

	samples := make([]float64, 101)
	j := 0
	for i := range samples {
		r := float64(i) / 100
		for j < len(recall) && recall[j] < r {
			j++
		}
		if j < len(recall) {
			samples[i] = envelope[j]
		}
	}
	return floats.Sum(samples) / float64(len(samples))
}

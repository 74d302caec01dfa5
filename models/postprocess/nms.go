// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-targeting/common"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"` // Overlap threshold for suppression.
	ClassAware   bool    `json:"class_aware" yaml:"class_aware"`     // If true, suppress only within same class.
}

// DefaultNMSConfig matches the ultralytics YOLOv8 predictor defaults.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{IoUThreshold: 0.7, ClassAware: true}
}

// SortByConfidence orders detections by descending confidence, keeping the input
// order between equal scores.
func SortByConfidence(detections []common.BoundingBox) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: Candidate detections. They are sorted in place by descending confidence.
//   - config: NMS configuration.
//
// Returns:
//   - The kept detections, highest confidence first. Never nil.
func ApplyGreedyNMS(detections []common.BoundingBox, config NMSConfig) []common.BoundingBox {
	n := len(detections)
	filtered := make([]common.BoundingBox, 0, n)
	if n == 0 {
		return filtered
	}

	SortByConfidence(detections)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := &detections[i]
		filtered = append(filtered, *anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && detections[j].ClassID != anchor.ClassID {
				continue
			}

			// Suppress if IoU exceeds threshold
			if anchor.IoU(&detections[j]) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}

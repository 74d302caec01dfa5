// Package models - Class sets, datasets and model files for the detectors.
package models

// ModelFamily identifies the naming convention / dataset of a model's classes.
type ModelFamily string

const (
	// ModelFamilyWeed is the single-class weed detector.
	ModelFamilyWeed ModelFamily = "weed"
	// ModelFamilyCOCO is the COCO model family.
	ModelFamilyCOCO ModelFamily = "coco"
	// ModelFamilyYOLO is the YOLO model family.
	ModelFamilyYOLO ModelFamily = "yolo"
	// ModelFamilyDataset is a class set read from a dataset description.
	ModelFamilyDataset ModelFamily = "dataset"
)

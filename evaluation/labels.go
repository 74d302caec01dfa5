package evaluation

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-targeting/common"
	"github.com/nvr-ai/go-targeting/images"
	"github.com/nvr-ai/go-targeting/inference"
	"github.com/nvr-ai/go-targeting/models"
	"github.com/nvr-ai/go-targeting/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ReadLabels parses a YOLO label file ("class cx cy w h" per line, normalized)
// into pixel boxes for an image of the given size. A missing file is an image
// without objects.
func ReadLabels(path string, width, height int) ([]common.BoundingBox, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []common.BoundingBox{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open labels")
	}
	defer f.Close()

	boxes := []common.BoundingBox{}
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 5 {
			return nil, errors.Errorf("%s:%d: expected 5 fields, got %d", path, line, len(fields))
		}

		classID, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d: class", path, line)
		}
		var v [4]float32
		for i := range v {
			parsed, err := strconv.ParseFloat(fields[i+1], 32)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d: field %d", path, line, i+2)
			}
			v[i] = float32(parsed)
		}

		cx, cy := v[0]*float32(width), v[1]*float32(height)
		w, h := v[2]*float32(width), v[3]*float32(height)
		boxes = append(boxes, common.BoundingBox{
			ClassID:    classID,
			Confidence: 1,
			X1:         cx - w/2,
			Y1:         cy - h/2,
			X2:         cx + w/2,
			Y2:         cy + h/2,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read labels")
	}
	return boxes, nil
}

// Run evaluates detector on every image of dir, reading labels from the
// sibling "labels" directory.
//
// Arguments:
//   - ctx: Cancels the run between images.
//   - detector: The model under test.
//   - dir: An image directory of a YOLO dataset split.
//   - confidence: The detection threshold.
//   - classes: Names for the per-class results.
//   - log: Receives per-image progress at debug level.
//
// Returns:
//   - Metrics: The accumulated metrics.
//   - error: An error if the directory is empty or an image cannot be processed.
func Run(
	ctx context.Context,
	detector inference.Detector,
	dir string,
	confidence float32,
	classes *models.OutputClassSet,
	log logrus.FieldLogger,
) (Metrics, error) {
	paths, err := util.ListImageFiles(dir)
	if err != nil {
		return Metrics{}, err
	}
	if len(paths) == 0 {
		return Metrics{}, errors.Errorf("no images in %s", dir)
	}

	eval := NewEvaluator(classes)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return Metrics{}, err
		}
		if err := evaluateImage(ctx, eval, detector, path, confidence, log); err != nil {
			return Metrics{}, err
		}
	}
	return eval.Compute(), nil
}

func evaluateImage(
	ctx context.Context,
	eval *Evaluator,
	detector inference.Detector,
	path string,
	confidence float32,
	log logrus.FieldLogger,
) error {
	file, err := util.LoadImageFile(path)
	if err != nil {
		return err
	}
	img, err := images.Decode(path, file.Data)
	if err != nil {
		return err
	}
	defer img.Close()

	predictions, err := detector.Detect(ctx, img, confidence)
	if err != nil {
		return errors.Wrapf(err, "detect %s", path)
	}
	truth, err := ReadLabels(models.LabelPath(path), img.Cols(), img.Rows())
	if err != nil {
		return err
	}

	eval.Add(predictions, truth)
	log.WithFields(logrus.Fields{
		"image":       path,
		"predictions": len(predictions),
		"labels":      len(truth),
	}).Debug("image evaluated")
	return nil
}

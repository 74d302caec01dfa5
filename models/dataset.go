package models

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Names is the class list of a dataset. It accepts both the list form
// (names: [weed]) and the map form (names: {0: weed}).
type Names []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *Names) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*n = list
		return nil

	case yaml.MappingNode:
		var byID map[int]string
		if err := value.Decode(&byID); err != nil {
			return err
		}
		ids := make([]int, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for i, id := range ids {
			if id != i {
				return errors.Errorf("class ids must be contiguous from 0, missing %d", i)
			}
		}
		list := make([]string, len(ids))
		for _, id := range ids {
			list[id] = byID[id]
		}
		*n = list
		return nil
	}
	return errors.Errorf("names must be a list or a map, got line %d", value.Line)
}

// Dataset is a YOLO dataset description (data.yaml).
type Dataset struct {
	// Path is the dataset root. Relative roots resolve against the data.yaml directory.
	Path string `yaml:"path"`
	// Train, Val and Test are image directories relative to the root.
	Train string `yaml:"train"`
	Val   string `yaml:"val"`
	Test  string `yaml:"test"`
	// NC is the declared number of classes.
	NC int `yaml:"nc"`
	// Names lists the class labels by id.
	Names Names `yaml:"names"`

	dir string
}

// LoadDataset reads and validates a data.yaml file.
//
// Arguments:
//   - path: The path to data.yaml.
//
// Returns:
//   - *Dataset: The parsed dataset.
//   - error: An error if the file cannot be read or is inconsistent.
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read dataset")
	}

	var ds Dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if len(ds.Names) == 0 {
		return nil, errors.Errorf("%s declares no class names", path)
	}
	if ds.NC != 0 && ds.NC != len(ds.Names) {
		return nil, errors.Errorf("%s declares nc=%d but lists %d names", path, ds.NC, len(ds.Names))
	}
	ds.NC = len(ds.Names)
	ds.dir = filepath.Dir(path)
	return &ds, nil
}

// Classes returns the dataset labels as a class set.
func (d *Dataset) Classes() *OutputClassSet {
	return NewOutputClassSet(ModelFamilyDataset, d.Names)
}

// Root returns the resolved dataset root directory.
func (d *Dataset) Root() string {
	switch {
	case d.Path == "":
		return d.dir
	case filepath.IsAbs(d.Path):
		return d.Path
	default:
		return filepath.Join(d.dir, d.Path)
	}
}

// Split resolves a split ("train", "val" or "test") to its image directory.
func (d *Dataset) Split(name string) (string, error) {
	var rel string
	switch name {
	case "train":
		rel = d.Train
	case "val":
		rel = d.Val
	case "test":
		rel = d.Test
	default:
		return "", errors.Errorf("unknown split %q", name)
	}
	if rel == "" {
		return "", errors.Errorf("dataset has no %s split", name)
	}
	if filepath.IsAbs(rel) {
		return rel, nil
	}
	return filepath.Join(d.Root(), rel), nil
}

// LabelPath maps an image path to its YOLO label file by replacing the last
// "images" directory with "labels" and the extension with ".txt".
func LabelPath(imagePath string) string {
	dir, file := filepath.Split(imagePath)
	parts := strings.Split(filepath.ToSlash(filepath.Clean(dir)), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "images" {
			parts[i] = "labels"
			break
		}
	}
	base := strings.TrimSuffix(file, filepath.Ext(file)) + ".txt"
	return filepath.Join(filepath.FromSlash(strings.Join(parts, "/")), base)
}

// ClassSetFor resolves the labels for a model: from data.yaml when a path is given,
// otherwise from a built-in family.
func ClassSetFor(dataYAML string, fallback ModelFamily) (*OutputClassSet, error) {
	if dataYAML != "" {
		ds, err := LoadDataset(dataYAML)
		if err != nil {
			return nil, err
		}
		return ds.Classes(), nil
	}
	return Lookup(fallback)
}

// ParseFamily resolves a built-in family name. The empty string selects the weed set.
func ParseFamily(name string) (ModelFamily, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch ModelFamily(name) {
	case "":
		return ModelFamilyWeed, nil
	case ModelFamilyWeed, ModelFamilyCOCO, ModelFamilyYOLO:
		return ModelFamily(name), nil
	}
	return "", errors.Errorf("invalid model family %q", name)
}

package utils

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"ssdfuse/tensor"
)

// WeightData represents serializable parameter data for a layer.
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights represents all weights in a model, keyed by layer name.
type ModelWeights struct {
	Version string                 `json:"version"`
	Layers  map[string]LayerWeight `json:"layers"`
}

// LayerWeight contains the parameters of one layer. Mean and Var are only
// present for normalization layers.
type LayerWeight struct {
	Weight *WeightData `json:"weight,omitempty"`
	Bias   *WeightData `json:"bias,omitempty"`
	Mean   *WeightData `json:"mean,omitempty"`
	Var    *WeightData `json:"var,omitempty"`
}

// SaveWeights saves model weights to a JSON file.
func SaveWeights(filepath string, weights *ModelWeights) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal weights")
	}
	return os.WriteFile(filepath, data, 0o644)
}

// LoadWeights loads model weights from a JSON file.
func LoadWeights(filepath string) (*ModelWeights, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read weights file")
	}
	var weights ModelWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal weights")
	}
	return &weights, nil
}

// TensorToWeightData converts a tensor to serializable weight data.
func TensorToWeightData(name string, t *tensor.Tensor) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
}

// WeightDataToTensor converts weight data back to a tensor.
func WeightDataToTensor(wd *WeightData) *tensor.Tensor {
	t := tensor.New(wd.Shape...)
	copy(t.Data, wd.Data)
	return t
}

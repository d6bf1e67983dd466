package layers

import "ssdfuse/tensor"

// ReLU is the rectifying activation used after every convolution stage.
type ReLU struct{}

// Forward clamps negative values to zero.
func (ReLU) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out, nil
}

package lstm

import (
	"math"

	"RecessionLens/internal/domain/errs"
)

// Params is the serializable form of a Network's weights. Matrices are
// row-major with gate rows ordered input, forget, cell, output.
type Params struct {
	InputSize  int           `json:"input_size"`
	HiddenSize int           `json:"hidden_size"`
	Dropout    float64       `json:"dropout"`
	Layers     []LayerParams `json:"layers"`
	DenseW     []float64     `json:"dense_w"`
	DenseB     float64       `json:"dense_b"`
}

// LayerParams holds one LSTM layer: W is 4H x in, U is 4H x H, B is 4H.
type LayerParams struct {
	W []float64 `json:"w"`
	U []float64 `json:"u"`
	B []float64 `json:"b"`
}

// Params returns a deep copy of the current weights.
func (n *Network) Params() Params {
	p := Params{
		InputSize:  n.cfg.InputSize,
		HiddenSize: n.cfg.HiddenSize,
		Dropout:    n.cfg.Dropout,
		DenseW:     append([]float64(nil), n.dense.w...),
		DenseB:     n.bias.w[0],
	}
	for _, l := range n.layers {
		p.Layers = append(p.Layers, LayerParams{
			W: append([]float64(nil), l.w.w...),
			U: append([]float64(nil), l.u.w...),
			B: append([]float64(nil), l.b.w...),
		})
	}
	return p
}

// Validate checks that every tensor matches the declared sizes.
func (p Params) Validate() error {
	if p.InputSize <= 0 || p.HiddenSize <= 0 {
		return errs.Shape("model", "invalid sizes input=%d hidden=%d", p.InputSize, p.HiddenSize)
	}
	if len(p.Layers) == 0 {
		return errs.Shape("model", "no lstm layers")
	}
	H := p.HiddenSize
	in := p.InputSize
	for i, l := range p.Layers {
		if len(l.W) != 4*H*in || len(l.U) != 4*H*H || len(l.B) != 4*H {
			return errs.Shape("model", "layer %d tensors %d/%d/%d do not match input %d hidden %d",
				i, len(l.W), len(l.U), len(l.B), in, H)
		}
		if !finite(l.W) || !finite(l.U) || !finite(l.B) {
			return errs.Data("model", "layer %d has non-finite weights", i)
		}
		in = H
	}
	if len(p.DenseW) != H {
		return errs.Shape("model", "dense layer has %d weights, expected %d", len(p.DenseW), H)
	}
	if !finite(p.DenseW) || !finite([]float64{p.DenseB}) {
		return errs.Data("model", "dense layer has non-finite weights")
	}
	return nil
}

// FromParams rebuilds a network from stored weights. The optimizer settings
// come from DefaultConfig.
func FromParams(p Params) (*Network, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	cfg := DefaultConfig(p.InputSize)
	cfg.HiddenSize = p.HiddenSize
	cfg.Layers = len(p.Layers)
	cfg.Dropout = p.Dropout
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := newNetwork(cfg)
	for i, l := range n.layers {
		copy(l.w.w, p.Layers[i].W)
		copy(l.u.w, p.Layers[i].U)
		copy(l.b.w, p.Layers[i].B)
	}
	copy(n.dense.w, p.DenseW)
	n.bias.w[0] = p.DenseB
	return n, nil
}

// Constant returns parameters whose network outputs prob for every input:
// all weights are zero so the hidden state stays zero and only the output
// bias contributes.
func Constant(inputSize, hiddenSize, layers int, prob float64) Params {
	p := Params{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		DenseW:     make([]float64, hiddenSize),
		DenseB:     math.Log(prob / (1 - prob)),
	}
	in := inputSize
	for i := 0; i < layers; i++ {
		p.Layers = append(p.Layers, LayerParams{
			W: make([]float64, 4*hiddenSize*in),
			U: make([]float64, 4*hiddenSize*hiddenSize),
			B: make([]float64, 4*hiddenSize),
		})
		in = hiddenSize
	}
	return p
}

func finite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

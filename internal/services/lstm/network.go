package lstm

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"RecessionLens/internal/domain/errs"

	"gonum.org/v1/gonum/floats"
)

// Config fixes the architecture and optimizer of a Network.
type Config struct {
	InputSize    int
	HiddenSize   int
	Layers       int
	Dropout      float64
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	Seed         int64
}

// DefaultConfig returns two LSTM layers of 100 units with 0.2 dropout, trained
// with Adam at lr=0.001.
func DefaultConfig(inputSize int) Config {
	return Config{
		InputSize:    inputSize,
		HiddenSize:   100,
		Layers:       2,
		Dropout:      0.2,
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
		Seed:         42,
	}
}

func (c Config) Validate() error {
	switch {
	case c.InputSize <= 0:
		return errs.Shape("model", "input size must be positive, got %d", c.InputSize)
	case c.HiddenSize <= 0:
		return errs.Config("model", "hidden size must be positive, got %d", c.HiddenSize)
	case c.Layers <= 0:
		return errs.Config("model", "layers must be positive, got %d", c.Layers)
	case c.Dropout < 0 || c.Dropout >= 1:
		return errs.Config("model", "dropout must be in [0,1), got %v", c.Dropout)
	case c.LearningRate <= 0:
		return errs.Config("model", "learning rate must be positive, got %v", c.LearningRate)
	}
	return nil
}

// Network is a stacked LSTM binary classifier: each layer is followed by
// dropout, the last hidden state feeds one sigmoid unit.
//
// Predict only reads weights and is safe for concurrent use. TrainBatch
// mutates the network and must not run concurrently with anything else.
type Network struct {
	cfg    Config
	layers []*layer
	dense  *param
	bias   *param
	rng    *rand.Rand
	t      int
}

// New builds a network with Glorot-uniform weights drawn from cfg.Seed.
func New(cfg Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := newNetwork(cfg)
	initRng := rand.New(rand.NewSource(cfg.Seed))
	for _, l := range n.layers {
		l.init(initRng)
	}
	n.dense.glorot(initRng, cfg.HiddenSize, 1)
	return n, nil
}

func newNetwork(cfg Config) *Network {
	n := &Network{
		cfg:   cfg,
		dense: newParam(cfg.HiddenSize),
		bias:  newParam(1),
		rng:   rand.New(rand.NewSource(cfg.Seed + 1)),
	}
	in := cfg.InputSize
	for i := 0; i < cfg.Layers; i++ {
		n.layers = append(n.layers, newLayer(in, cfg.HiddenSize))
		in = cfg.HiddenSize
	}
	return n
}

// InputSize is the feature width every window row must have.
func (n *Network) InputSize() int { return n.cfg.InputSize }

// Config returns the network configuration.
func (n *Network) Config() Config { return n.cfg }

// Summary describes the layer stack.
func (n *Network) Summary() string {
	parts := make([]string, 0, 2*len(n.layers)+1)
	for range n.layers {
		parts = append(parts, fmt.Sprintf("lstm(%d)", n.cfg.HiddenSize))
		if n.cfg.Dropout > 0 {
			parts = append(parts, fmt.Sprintf("dropout(%g)", n.cfg.Dropout))
		}
	}
	parts = append(parts, "dense(1,sigmoid)")
	return fmt.Sprintf("input(%d) -> %s", n.cfg.InputSize, strings.Join(parts, " -> "))
}

// Predict returns the probability of the positive class for one window of
// shape (L, InputSize).
func (n *Network) Predict(window [][]float64) (float64, error) {
	if err := n.checkWindow(window); err != nil {
		return 0, err
	}
	z, _ := n.forward(window, false, false)
	return sigmoid(z), nil
}

func (n *Network) checkWindow(window [][]float64) error {
	if len(window) == 0 {
		return errs.Shape("model", "empty window")
	}
	for t, row := range window {
		if len(row) != n.cfg.InputSize {
			return errs.Shape("model", "window row %d has %d features, model expects %d", t, len(row), n.cfg.InputSize)
		}
	}
	return nil
}

// trace keeps one sample's activations for backpropagation.
type trace struct {
	steps [][]step
	masks [][][]float64
	last  []float64
}

// forward returns the output logit. With keep set a trace is returned; with
// dropout set masks are drawn for every layer output.
func (n *Network) forward(window [][]float64, keep, dropout bool) (float64, *trace) {
	var tr *trace
	if keep {
		tr = &trace{
			steps: make([][]step, len(n.layers)),
			masks: make([][][]float64, len(n.layers)),
		}
	}
	xs := window
	for li, l := range n.layers {
		outs, steps := l.forward(xs, keep)
		if keep {
			tr.steps[li] = steps
			if dropout && n.cfg.Dropout > 0 {
				tr.masks[li] = n.dropoutMasks(len(outs), l.hidden)
				outs = applyMasks(outs, tr.masks[li])
			}
		}
		xs = outs
	}
	last := xs[len(xs)-1]
	if keep {
		tr.last = last
	}
	return floats.Dot(n.dense.w, last) + n.bias.w[0], tr
}

func (n *Network) dropoutMasks(steps, width int) [][]float64 {
	keep := 1 - n.cfg.Dropout
	scale := 1 / keep
	masks := make([][]float64, steps)
	for t := range masks {
		m := make([]float64, width)
		for k := range m {
			if n.rng.Float64() < keep {
				m[k] = scale
			}
		}
		masks[t] = m
	}
	return masks
}

func applyMasks(rows, masks [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for t, r := range rows {
		v := make([]float64, len(r))
		floats.MulTo(v, r, masks[t])
		out[t] = v
	}
	return out
}

// backward pushes the output-logit gradient dz back through the stack.
func (n *Network) backward(tr *trace, dz float64) {
	floats.AddScaled(n.dense.g, dz, tr.last)
	n.bias.g[0] += dz

	T := len(tr.steps[0])
	top := len(n.layers) - 1
	dh := make([]float64, n.cfg.HiddenSize)
	floats.AddScaled(dh, dz, n.dense.w)
	if tr.masks[top] != nil {
		floats.Mul(dh, tr.masks[top][T-1])
	}
	dhs := make([][]float64, T)
	dhs[T-1] = dh

	for li := top; li >= 0; li-- {
		dx := n.layers[li].backward(tr.steps[li], dhs, li > 0)
		if li == 0 {
			break
		}
		if tr.masks[li-1] != nil {
			for t := range dx {
				floats.Mul(dx[t], tr.masks[li-1][t])
			}
		}
		dhs = dx
	}
}

func (n *Network) params() []*param {
	ps := make([]*param, 0, 3*len(n.layers)+2)
	for _, l := range n.layers {
		ps = append(ps, l.params()...)
	}
	return append(ps, n.dense, n.bias)
}

func (n *Network) zeroGrad() {
	for _, p := range n.params() {
		for i := range p.g {
			p.g[i] = 0
		}
	}
}

// gradients fills every parameter gradient with d(mean loss)/d(param) over the
// batch and returns the mean loss.
func (n *Network) gradients(xs [][][]float64, ys []float64, dropout bool) float64 {
	n.zeroGrad()
	scale := 1 / float64(len(xs))
	total := 0.0
	for s := range xs {
		z, tr := n.forward(xs[s], true, dropout)
		total += bce(z, ys[s])
		n.backward(tr, (sigmoid(z)-ys[s])*scale)
	}
	return total * scale
}

// TrainBatch runs one Adam step on the batch and returns its mean
// binary cross-entropy before the update.
func (n *Network) TrainBatch(xs [][][]float64, ys []float64) (float64, error) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return 0, errs.Shape("model", "batch has %d windows and %d labels", len(xs), len(ys))
	}
	for _, w := range xs {
		if err := n.checkWindow(w); err != nil {
			return 0, err
		}
	}
	loss := n.gradients(xs, ys, true)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, errs.NumericDivergence("model", "non-finite training loss %v", loss)
	}
	n.adamStep()
	return loss, nil
}

// Evaluate returns mean loss and accuracy at the decision threshold without
// dropout.
func (n *Network) Evaluate(xs [][][]float64, ys []float64) (loss, accuracy float64, err error) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return 0, 0, errs.Shape("model", "evaluation set has %d windows and %d labels", len(xs), len(ys))
	}
	correct := 0
	for i, w := range xs {
		if err := n.checkWindow(w); err != nil {
			return 0, 0, err
		}
		z, _ := n.forward(w, false, false)
		loss += bce(z, ys[i])
		pred := 0.0
		if sigmoid(z) > 0.5 {
			pred = 1
		}
		if pred == ys[i] {
			correct++
		}
	}
	return loss / float64(len(xs)), float64(correct) / float64(len(xs)), nil
}

func (n *Network) adamStep() {
	n.t++
	c := n.cfg
	b1 := 1 - math.Pow(c.Beta1, float64(n.t))
	b2 := 1 - math.Pow(c.Beta2, float64(n.t))
	lr := c.LearningRate * math.Sqrt(b2) / b1
	for _, p := range n.params() {
		for i, g := range p.g {
			p.m[i] = c.Beta1*p.m[i] + (1-c.Beta1)*g
			p.v[i] = c.Beta2*p.v[i] + (1-c.Beta2)*g*g
			p.w[i] -= lr * p.m[i] / (math.Sqrt(p.v[i]) + c.Epsilon)
		}
	}
}

// bce is binary cross-entropy computed from the logit.
func bce(z, y float64) float64 {
	return math.Max(z, 0) - z*y + math.Log1p(math.Exp(-math.Abs(z)))
}

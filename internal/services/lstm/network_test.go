package lstm

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"RecessionLens/internal/domain/errs"
)

func smallConfig() Config {
	cfg := DefaultConfig(3)
	cfg.HiddenSize = 4
	cfg.Dropout = 0
	cfg.Seed = 7
	return cfg
}

func randomBatch(rng *rand.Rand, batch, steps, width int) ([][][]float64, []float64) {
	xs := make([][][]float64, batch)
	ys := make([]float64, batch)
	for b := range xs {
		xs[b] = make([][]float64, steps)
		for t := range xs[b] {
			xs[b][t] = make([]float64, width)
			for k := range xs[b][t] {
				xs[b][t][k] = rng.Float64()
			}
		}
		ys[b] = float64(b % 2)
	}
	return xs, ys
}

func meanLoss(n *Network, xs [][][]float64, ys []float64) float64 {
	total := 0.0
	for i := range xs {
		z, _ := n.forward(xs[i], false, false)
		total += bce(z, ys[i])
	}
	return total / float64(len(xs))
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	n, err := New(smallConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	xs, ys := randomBatch(rand.New(rand.NewSource(1)), 3, 5, 3)
	n.gradients(xs, ys, false)

	const eps = 1e-6
	for pi, p := range n.params() {
		analytic := append([]float64(nil), p.g...)
		for _, i := range []int{0, len(p.w) / 2, len(p.w) - 1} {
			orig := p.w[i]
			p.w[i] = orig + eps
			up := meanLoss(n, xs, ys)
			p.w[i] = orig - eps
			down := meanLoss(n, xs, ys)
			p.w[i] = orig

			numeric := (up - down) / (2 * eps)
			diff := math.Abs(numeric - analytic[i])
			scale := math.Max(1e-6, math.Abs(numeric)+math.Abs(analytic[i]))
			if diff/scale > 1e-4 && diff > 1e-8 {
				t.Fatalf("param %d index %d: analytic %v numeric %v", pi, i, analytic[i], numeric)
			}
		}
	}
}

func TestInitIsDeterministic(t *testing.T) {
	a, _ := New(smallConfig())
	b, _ := New(smallConfig())
	pa, pb := a.Params(), b.Params()
	for l := range pa.Layers {
		for i := range pa.Layers[l].W {
			if pa.Layers[l].W[i] != pb.Layers[l].W[i] {
				t.Fatalf("layer %d weight %d differs", l, i)
			}
		}
	}
	if pa.Layers[0].B[smallConfig().HiddenSize] != 1 {
		t.Fatalf("forget gate bias should start at 1")
	}
}

func TestTrainingReducesLoss(t *testing.T) {
	cfg := smallConfig()
	cfg.Layers = 1
	cfg.LearningRate = 0.01
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	// label 1 for windows of high values, 0 for low values
	rng := rand.New(rand.NewSource(3))
	xs := make([][][]float64, 16)
	ys := make([]float64, 16)
	for b := range xs {
		level := 0.1
		if b%2 == 1 {
			level = 0.9
			ys[b] = 1
		}
		xs[b] = make([][]float64, 6)
		for s := range xs[b] {
			xs[b][s] = []float64{level + rng.Float64()*0.05, level, level}
		}
	}
	before := meanLoss(n, xs, ys)
	for i := 0; i < 300; i++ {
		if _, err := n.TrainBatch(xs, ys); err != nil {
			t.Fatalf("train: %v", err)
		}
	}
	after := meanLoss(n, xs, ys)
	if after >= before/2 {
		t.Fatalf("loss did not drop enough: before %v after %v", before, after)
	}
	_, acc, err := n.Evaluate(xs, ys)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if acc != 1 {
		t.Fatalf("expected perfect accuracy on separable data, got %v", acc)
	}
}

func TestConstantParams(t *testing.T) {
	n, err := FromParams(Constant(5, 8, 2, 0.9))
	if err != nil {
		t.Fatalf("from params: %v", err)
	}
	xs, _ := randomBatch(rand.New(rand.NewSource(2)), 4, 12, 5)
	for _, w := range xs {
		p, err := n.Predict(w)
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		if math.Abs(p-0.9) > 1e-12 {
			t.Fatalf("expected 0.9, got %v", p)
		}
	}
}

func TestParamsRoundTrip(t *testing.T) {
	n, _ := New(smallConfig())
	m, err := FromParams(n.Params())
	if err != nil {
		t.Fatalf("from params: %v", err)
	}
	xs, _ := randomBatch(rand.New(rand.NewSource(4)), 2, 7, 3)
	for _, w := range xs {
		a, _ := n.Predict(w)
		b, _ := m.Predict(w)
		if a != b {
			t.Fatalf("predictions differ: %v vs %v", a, b)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	p := Constant(5, 4, 2, 0.5)
	p.Layers[1].U = p.Layers[1].U[:3]
	if _, err := FromParams(p); !errors.Is(err, errs.ErrShape) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
	q := Constant(5, 4, 1, 0.5)
	q.DenseW[0] = math.NaN()
	if _, err := FromParams(q); !errors.Is(err, errs.ErrData) {
		t.Fatalf("expected DataError, got %v", err)
	}
}

func TestPredictRejectsWrongWidth(t *testing.T) {
	n, _ := New(smallConfig())
	_, err := n.Predict([][]float64{{1, 2}, {3, 4}})
	if !errors.Is(err, errs.ErrShape) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
	if _, err := n.Predict(nil); !errors.Is(err, errs.ErrShape) {
		t.Fatalf("expected ShapeError for empty window, got %v", err)
	}
}

func TestPredictConcurrent(t *testing.T) {
	n, _ := New(smallConfig())
	xs, _ := randomBatch(rand.New(rand.NewSource(5)), 1, 12, 3)
	want, _ := n.Predict(xs[0])

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := n.Predict(xs[0])
			if err != nil || got != want {
				t.Errorf("concurrent predict: %v %v", got, err)
			}
		}()
	}
	wg.Wait()
}

func TestSummary(t *testing.T) {
	n, _ := New(DefaultConfig(5))
	want := "input(5) -> lstm(100) -> dropout(0.2) -> lstm(100) -> dropout(0.2) -> dense(1,sigmoid)"
	if n.Summary() != want {
		t.Fatalf("got %q", n.Summary())
	}
}

package lstm

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// param is one trainable tensor stored flat, with its gradient and Adam moments.
type param struct {
	w []float64
	g []float64
	m []float64
	v []float64
}

func newParam(n int) *param {
	return &param{
		w: make([]float64, n),
		g: make([]float64, n),
		m: make([]float64, n),
		v: make([]float64, n),
	}
}

func (p *param) glorot(rng *rand.Rand, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range p.w {
		p.w[i] = (rng.Float64()*2 - 1) * limit
	}
}

// layer is a single LSTM layer. Gate rows are stacked in the order
// input, forget, cell, output: W is 4H x in, U is 4H x H.
type layer struct {
	in     int
	hidden int

	w *param
	u *param
	b *param

	W  *mat.Dense
	U  *mat.Dense
	GW *mat.Dense
	GU *mat.Dense
}

func newLayer(in, hidden int) *layer {
	l := &layer{
		in:     in,
		hidden: hidden,
		w:      newParam(4 * hidden * in),
		u:      newParam(4 * hidden * hidden),
		b:      newParam(4 * hidden),
	}
	l.bind()
	return l
}

// bind points the matrix views at the flat parameter slices.
func (l *layer) bind() {
	l.W = mat.NewDense(4*l.hidden, l.in, l.w.w)
	l.U = mat.NewDense(4*l.hidden, l.hidden, l.u.w)
	l.GW = mat.NewDense(4*l.hidden, l.in, l.w.g)
	l.GU = mat.NewDense(4*l.hidden, l.hidden, l.u.g)
}

func (l *layer) init(rng *rand.Rand) {
	l.w.glorot(rng, l.in, 4*l.hidden)
	l.u.glorot(rng, l.hidden, 4*l.hidden)
	for k := range l.b.w {
		l.b.w[k] = 0
	}
	for k := l.hidden; k < 2*l.hidden; k++ {
		l.b.w[k] = 1
	}
}

// step holds what backpropagation needs from one timestep.
type step struct {
	x     []float64
	hPrev []float64
	cPrev []float64
	i     []float64
	f     []float64
	g     []float64
	o     []float64
	tc    []float64
}

// forward runs the layer over xs and returns the hidden state per timestep.
// When keep is set the per-step activations are returned for backward.
func (l *layer) forward(xs [][]float64, keep bool) ([][]float64, []step) {
	H := l.hidden
	h := make([]float64, H)
	c := make([]float64, H)
	z := mat.NewVecDense(4*H, nil)
	rec := mat.NewVecDense(4*H, nil)
	bias := mat.NewVecDense(4*H, l.b.w)

	outs := make([][]float64, len(xs))
	var steps []step
	if keep {
		steps = make([]step, len(xs))
	}
	for t, x := range xs {
		z.MulVec(l.W, mat.NewVecDense(len(x), x))
		rec.MulVec(l.U, mat.NewVecDense(H, h))
		z.AddVec(z, rec)
		z.AddVec(z, bias)
		zr := z.RawVector().Data

		nh := make([]float64, H)
		nc := make([]float64, H)
		var s step
		if keep {
			s = step{
				x: x, hPrev: h, cPrev: c,
				i: make([]float64, H), f: make([]float64, H), g: make([]float64, H),
				o: make([]float64, H), tc: make([]float64, H),
			}
		}
		for k := 0; k < H; k++ {
			ig := sigmoid(zr[k])
			fg := sigmoid(zr[H+k])
			gg := math.Tanh(zr[2*H+k])
			og := sigmoid(zr[3*H+k])
			nc[k] = fg*c[k] + ig*gg
			tc := math.Tanh(nc[k])
			nh[k] = og * tc
			if keep {
				s.i[k], s.f[k], s.g[k], s.o[k], s.tc[k] = ig, fg, gg, og, tc
			}
		}
		if keep {
			steps[t] = s
		}
		h, c = nh, nc
		outs[t] = nh
	}
	return outs, steps
}

// backward accumulates parameter gradients through time. dhs[t] is the
// gradient flowing into h_t from above and may be nil. It returns the
// gradient with respect to each input when needDx is set.
func (l *layer) backward(steps []step, dhs [][]float64, needDx bool) [][]float64 {
	H := l.hidden
	var dx [][]float64
	if needDx {
		dx = make([][]float64, len(steps))
	}
	dhNext := make([]float64, H)
	dcNext := make([]float64, H)
	dz := mat.NewVecDense(4*H, nil)
	dzr := dz.RawVector().Data

	for t := len(steps) - 1; t >= 0; t-- {
		s := steps[t]
		for k := 0; k < H; k++ {
			dh := dhNext[k]
			if dhs[t] != nil {
				dh += dhs[t][k]
			}
			do := dh * s.tc[k]
			dc := dh*s.o[k]*(1-s.tc[k]*s.tc[k]) + dcNext[k]
			di := dc * s.g[k]
			dg := dc * s.i[k]
			df := dc * s.cPrev[k]
			dcNext[k] = dc * s.f[k]

			dzr[k] = di * s.i[k] * (1 - s.i[k])
			dzr[H+k] = df * s.f[k] * (1 - s.f[k])
			dzr[2*H+k] = dg * (1 - s.g[k]*s.g[k])
			dzr[3*H+k] = do * s.o[k] * (1 - s.o[k])
		}
		l.GW.RankOne(l.GW, 1, dz, mat.NewVecDense(len(s.x), s.x))
		l.GU.RankOne(l.GU, 1, dz, mat.NewVecDense(H, s.hPrev))
		floats.Add(l.b.g, dzr)

		if needDx {
			dxv := mat.NewVecDense(l.in, nil)
			dxv.MulVec(l.W.T(), dz)
			dx[t] = dxv.RawVector().Data
		}
		dhv := mat.NewVecDense(H, nil)
		dhv.MulVec(l.U.T(), dz)
		dhNext = dhv.RawVector().Data
	}
	return dx
}

func (l *layer) params() []*param { return []*param{l.w, l.u, l.b} }

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

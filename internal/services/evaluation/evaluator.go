package evaluation

import (
	"math"
	"sort"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ROC is the receiver operating characteristic curve with FPR ascending.
// Thresholds[i] is the lowest probability counted as positive for point i;
// the first point uses max(probability)+1 so that nothing is positive.
type ROC struct {
	FPR        []float64 `json:"fpr"`
	TPR        []float64 `json:"tpr"`
	Thresholds []float64 `json:"thresholds"`
}

// Report holds the metrics of one aligned evaluation.
type Report struct {
	Length    int       `json:"length"`
	Threshold float64   `json:"threshold"`
	Positives int       `json:"positives"`
	Negatives int       `json:"negatives"`
	Accuracy  float64   `json:"accuracy"`
	AUC       *float64  `json:"auc"`
	ROC       ROC       `json:"roc"`
	Confusion [2][2]int `json:"confusion_matrix"`
}

// TN returns true negatives.
func (r Report) TN() int { return r.Confusion[0][0] }

// FP returns false positives.
func (r Report) FP() int { return r.Confusion[0][1] }

// FN returns false negatives.
func (r Report) FN() int { return r.Confusion[1][0] }

// TP returns true positives.
func (r Report) TP() int { return r.Confusion[1][1] }

// Align truncates truth and probs to the shorter of the two, keeping the
// leading elements of each.
func Align(truth []int, probs []float64) ([]int, []float64) {
	n := len(truth)
	if len(probs) < n {
		n = len(probs)
	}
	return append([]int(nil), truth[:n]...), append([]float64(nil), probs[:n]...)
}

// Evaluate aligns the inputs and computes the ROC curve, AUC, the confusion
// matrix [[TN, FP], [FN, TP]] and accuracy. A probability is positive when it
// is strictly greater than threshold. AUC is nil when only one class is
// present; the ROC curve then moves along one axis only.
func Evaluate(truth []int, probs []float64, threshold float64) (Report, error) {
	y, p := Align(truth, probs)
	if len(y) == 0 {
		return Report{}, errs.InsufficientData("evaluator", "no aligned predictions to evaluate")
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return Report{}, errs.Config("evaluator", "threshold must be in [0,1], got %v", threshold)
	}

	rep := Report{Length: len(y), Threshold: threshold}
	classes := make([]bool, len(y))
	correct := 0
	for i := range y {
		if y[i] != 0 && y[i] != 1 {
			return Report{}, errs.Data("evaluator", "label %d at position %d is not 0 or 1", y[i], i)
		}
		if math.IsNaN(p[i]) || math.IsInf(p[i], 0) {
			return Report{}, errs.NumericDivergence("evaluator", "non-finite probability at position %d", i)
		}
		if p[i] < 0 || p[i] > 1 {
			return Report{}, errs.Data("evaluator", "probability %v at position %d is outside [0,1]", p[i], i)
		}
		pred := 0
		if p[i] > threshold {
			pred = 1
		}
		rep.Confusion[y[i]][pred]++
		if pred == y[i] {
			correct++
		}
		classes[i] = y[i] == 1
		if classes[i] {
			rep.Positives++
		} else {
			rep.Negatives++
		}
	}
	rep.Accuracy = float64(correct) / float64(len(y))

	if rep.Positives == 0 || rep.Negatives == 0 {
		rep.ROC = singleClassCurve(p, rep.Positives > 0)
		return rep, nil
	}
	rep.ROC = curve(p, classes)
	auc := integrate.Trapezoidal(rep.ROC.FPR, rep.ROC.TPR)
	if math.IsNaN(auc) {
		return Report{}, errs.NumericDivergence("evaluator", "auc is not finite")
	}
	rep.AUC = &auc
	return rep, nil
}

func curve(probs []float64, classes []bool) ROC {
	y := append([]float64(nil), probs...)
	c := append([]bool(nil), classes...)
	stat.SortWeightedLabeled(y, c, nil)
	tpr, fpr, thresh := stat.ROC(nil, y, c, nil)
	if len(thresh) > 0 && math.IsInf(thresh[0], 1) {
		thresh[0] = floats.Max(y) + 1
	}
	return ROC{FPR: fpr, TPR: tpr, Thresholds: thresh}
}

// singleClassCurve sweeps the same thresholds as curve when only one class
// is present. The rate of the missing class is undefined and stays 0.
func singleClassCurve(probs []float64, positive bool) ROC {
	y := append([]float64(nil), probs...)
	sort.Sort(sort.Reverse(sort.Float64Slice(y)))

	roc := ROC{Thresholds: []float64{y[0] + 1}}
	rates := []float64{0}
	n := float64(len(y))
	for i, v := range y {
		if i+1 < len(y) && y[i+1] == v {
			continue
		}
		roc.Thresholds = append(roc.Thresholds, v)
		rates = append(rates, float64(i+1)/n)
	}
	zeros := make([]float64, len(rates))
	if positive {
		roc.FPR, roc.TPR = zeros, rates
	} else {
		roc.FPR, roc.TPR = rates, zeros
	}
	return roc
}

// Labels converts probabilities to labels with the default decision threshold.
func Labels(probs []float64) []int {
	out := make([]int, len(probs))
	for i, p := range probs {
		if p > models.DecisionThreshold {
			out[i] = 1
		}
	}
	return out
}

package ml

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"text/tabwriter"
)

// ConfusionMatrix counts outcomes with fraud as the positive class.
type ConfusionMatrix struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

// ClassReport holds per-label scores.
type ClassReport struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// EvaluationReport summarises a model on the held-out split. Precision, recall
// and F1 refer to the fraud class and are 0 whenever their denominator is 0.
type EvaluationReport struct {
	Accuracy  float64         `json:"accuracy"`
	Precision float64         `json:"precision"`
	Recall    float64         `json:"recall"`
	F1        float64         `json:"f1"`
	AUC       float64         `json:"auc"`
	LogLoss   float64         `json:"log_loss"`
	Threshold float64         `json:"threshold"`
	Confusion ConfusionMatrix `json:"confusion"`
	Classes   [2]ClassReport  `json:"classes"`

	TrainSize  int  `json:"train_size"`
	TestSize   int  `json:"test_size"`
	Iterations int  `json:"iterations"`
	Converged  bool `json:"converged"`
}

// Evaluate scores probabilities against labels. A probability strictly above
// threshold predicts fraud.
func Evaluate(labels []int, probs []float64, threshold float64) *EvaluationReport {
	r := &EvaluationReport{Threshold: threshold}
	for i, y := range labels {
		pred := probs[i] > threshold
		switch {
		case y == 1 && pred:
			r.Confusion.TP++
		case y == 1:
			r.Confusion.FN++
		case pred:
			r.Confusion.FP++
		default:
			r.Confusion.TN++
		}
	}

	cm := r.Confusion
	r.Accuracy = ratio(cm.TP+cm.TN, len(labels))
	r.Precision = ratio(cm.TP, cm.TP+cm.FP)
	r.Recall = ratio(cm.TP, cm.TP+cm.FN)
	r.F1 = f1(r.Precision, r.Recall)

	legitPrecision := ratio(cm.TN, cm.TN+cm.FN)
	legitRecall := ratio(cm.TN, cm.TN+cm.FP)
	r.Classes[0] = ClassReport{
		Label:     0,
		Precision: legitPrecision,
		Recall:    legitRecall,
		F1:        f1(legitPrecision, legitRecall),
		Support:   cm.TN + cm.FP,
	}
	r.Classes[1] = ClassReport{
		Label:     1,
		Precision: r.Precision,
		Recall:    r.Recall,
		F1:        r.F1,
		Support:   cm.TP + cm.FN,
	}

	r.AUC = auc(labels, probs)
	r.LogLoss = logLoss(labels, probs)
	return r
}

// ClassificationReport renders the per-class table printed by the trainer.
func (r *EvaluationReport) ClassificationReport() string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "\tprecision\trecall\tf1-score\tsupport\t")
	for _, c := range r.Classes {
		fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%.2f\t%d\t\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	fmt.Fprintf(w, "accuracy\t\t\t%.2f\t%d\t\n", r.Accuracy, r.Classes[0].Support+r.Classes[1].Support)
	w.Flush()
	return buf.String()
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// auc uses the rank-sum form with averaged ranks for ties. It is 0 when only one
// class is present.
func auc(labels []int, probs []float64) float64 {
	n := len(labels)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] < probs[idx[b]] })

	var pos, neg int
	var rankSum float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && probs[idx[j+1]] == probs[idx[i]] {
			j++
		}
		rank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if labels[idx[k]] == 1 {
				rankSum += rank
			}
		}
		i = j + 1
	}
	for _, y := range labels {
		if y == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0
	}
	return (rankSum - float64(pos*(pos+1))/2) / float64(pos*neg)
}

const probEpsilon = 1e-15

func logLoss(labels []int, probs []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	var sum float64
	for i, y := range labels {
		p := math.Min(math.Max(probs[i], probEpsilon), 1-probEpsilon)
		if y == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(len(labels))
}

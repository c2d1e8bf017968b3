package ml

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate_Counts(t *testing.T) {
	labels := []int{1, 1, 1, 0, 0, 0, 0, 1}
	probs := []float64{0.9, 0.6, 0.2, 0.7, 0.1, 0.3, 0.5, 0.51}

	r := Evaluate(labels, probs, 0.5)
	assert.Equal(t, ConfusionMatrix{TN: 3, FP: 1, FN: 1, TP: 3}, r.Confusion)
	assert.InDelta(t, 0.75, r.Accuracy, 1e-12)
	assert.InDelta(t, 0.75, r.Precision, 1e-12)
	assert.InDelta(t, 0.75, r.Recall, 1e-12)
	assert.InDelta(t, 0.75, r.F1, 1e-12)
	assert.Equal(t, 4, r.Classes[0].Support)
	assert.Equal(t, 4, r.Classes[1].Support)
	assert.Equal(t, 0.5, r.Threshold)
}

func TestEvaluate_ThresholdIsStrict(t *testing.T) {
	r := Evaluate([]int{1}, []float64{0.5}, 0.5)
	assert.Equal(t, 1, r.Confusion.FN)
	assert.Equal(t, 0, r.Confusion.TP)
}

func TestEvaluate_ZeroDivisionIsZero(t *testing.T) {
	// No positive predictions and no positive labels.
	r := Evaluate([]int{0, 0, 0}, []float64{0.1, 0.2, 0.3}, 0.5)
	assert.Equal(t, 0.0, r.Precision)
	assert.Equal(t, 0.0, r.Recall)
	assert.Equal(t, 0.0, r.F1)
	assert.Equal(t, 1.0, r.Accuracy)
	assert.Equal(t, 0.0, r.AUC)
	assert.False(t, math.IsNaN(r.LogLoss))

	// Positive labels but nothing predicted positive.
	r = Evaluate([]int{1, 0}, []float64{0.1, 0.2}, 0.5)
	assert.Equal(t, 0.0, r.Precision)
	assert.Equal(t, 0.0, r.Recall)
	assert.Equal(t, 0.0, r.F1)
}

func TestAUC(t *testing.T) {
	assert.InDelta(t, 1.0, auc([]int{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}), 1e-12)
	assert.InDelta(t, 0.0, auc([]int{1, 1, 0, 0}, []float64{0.1, 0.2, 0.8, 0.9}), 1e-12)
	assert.InDelta(t, 0.5, auc([]int{0, 1}, []float64{0.4, 0.4}), 1e-12)
	assert.InDelta(t, 0.75, auc([]int{0, 1, 0, 1}, []float64{0.1, 0.3, 0.35, 0.8}), 1e-12)
}

func TestLogLoss(t *testing.T) {
	assert.InDelta(t, math.Log(2), logLoss([]int{1, 0}, []float64{0.5, 0.5}), 1e-12)
	assert.False(t, math.IsInf(logLoss([]int{1}, []float64{0}), 0))
	assert.Equal(t, 0.0, logLoss(nil, nil))
}

func TestClassificationReport(t *testing.T) {
	r := Evaluate([]int{1, 0, 0, 1}, []float64{0.9, 0.2, 0.6, 0.7}, 0.5)
	out := r.ClassificationReport()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "precision")
	assert.Contains(t, lines[0], "support")
	assert.Contains(t, lines[3], "accuracy")
	assert.Contains(t, lines[3], "0.75")
}

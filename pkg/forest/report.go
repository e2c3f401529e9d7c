package forest

import (
	"sort"
	"strconv"
)

// Summary row labels
const (
	LabelAccuracy    = "accuracy"
	LabelMacroAvg    = "macro avg"
	LabelWeightedAvg = "weighted avg"
)

// ClassMetrics are the precision, recall, F1 and support of one report row
type ClassMetrics struct {
	Label     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is a per-class classification report followed by accuracy,
// macro and weighted averages. Undefined ratios (zero denominators) are 0.
type Report struct {
	Classes     []ClassMetrics
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
	Total       int
}

// Accuracy returns the fraction of positions where yTrue and yPred agree
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// ClassificationReport builds a report over the union of labels present in
// yTrue and yPred, in ascending label order.
func ClassificationReport(yTrue, yPred []int) (*Report, error) {
	if len(yTrue) != len(yPred) {
		return nil, ErrShapeMismatch
	}
	if len(yTrue) == 0 {
		return nil, ErrEmptyInput
	}

	labelSet := make(map[int]bool)
	for i := range yTrue {
		labelSet[yTrue[i]] = true
		labelSet[yPred[i]] = true
	}
	labels := make([]int, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	r := &Report{
		Accuracy: Accuracy(yTrue, yPred),
		Total:    len(yTrue),
	}

	var macroP, macroR, macroF, wP, wR, wF float64
	for _, label := range labels {
		var tp, fp, fn, support int
		for i := range yTrue {
			t, p := yTrue[i] == label, yPred[i] == label
			switch {
			case t && p:
				tp++
			case p:
				fp++
			case t:
				fn++
			}
			if t {
				support++
			}
		}

		m := ClassMetrics{
			Label:     strconv.Itoa(label),
			Precision: ratio(tp, tp+fp),
			Recall:    ratio(tp, tp+fn),
			F1:        ratio(2*tp, 2*tp+fp+fn),
			Support:   support,
		}
		r.Classes = append(r.Classes, m)

		macroP += m.Precision
		macroR += m.Recall
		macroF += m.F1
		w := float64(support)
		wP += w * m.Precision
		wR += w * m.Recall
		wF += w * m.F1
	}

	n := float64(len(labels))
	total := float64(r.Total)
	r.MacroAvg = ClassMetrics{
		Label:     LabelMacroAvg,
		Precision: macroP / n,
		Recall:    macroR / n,
		F1:        macroF / n,
		Support:   r.Total,
	}
	r.WeightedAvg = ClassMetrics{
		Label:     LabelWeightedAvg,
		Precision: wP / total,
		Recall:    wR / total,
		F1:        wF / total,
		Support:   r.Total,
	}
	return r, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

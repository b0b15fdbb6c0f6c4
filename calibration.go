package semjoin

// minCalibrationSamples is the number of positive predictions a join type
// needs before its precision is applied to raw confidences.
const minCalibrationSamples = 10

type calibrationCounts struct {
	tp, fp, tn, fn int64
}

// CalibrationStats is a snapshot of the outcomes recorded for a join type.
type CalibrationStats struct {
	JoinType       string  `json:"join_type"`
	TruePositives  int64   `json:"true_positives"`
	FalsePositives int64   `json:"false_positives"`
	TrueNegatives  int64   `json:"true_negatives"`
	FalseNegatives int64   `json:"false_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	Multiplier     float64 `json:"multiplier"`
}

func (c *calibrationCounts) stats(joinType string) CalibrationStats {
	s := CalibrationStats{
		JoinType:       joinType,
		TruePositives:  c.tp,
		FalsePositives: c.fp,
		TrueNegatives:  c.tn,
		FalseNegatives: c.fn,
		Multiplier:     1,
	}
	if p := c.tp + c.fp; p > 0 {
		s.Precision = float64(c.tp) / float64(p)
		if p >= minCalibrationSamples {
			s.Multiplier = s.Precision
		}
	}
	if a := c.tp + c.fn; a > 0 {
		s.Recall = float64(c.tp) / float64(a)
	}
	return s
}

// RecordOutcome reports whether a match of joinType was predicted and
// whether it turned out to be real.
func (c *ConfidenceCalculator) RecordOutcome(joinType string, predicted, actual bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts, ok := c.calibration[joinType]
	if !ok {
		counts = &calibrationCounts{}
		c.calibration[joinType] = counts
	}
	switch {
	case predicted && actual:
		counts.tp++
	case predicted && !actual:
		counts.fp++
	case !predicted && !actual:
		counts.tn++
	default:
		counts.fn++
	}
}

// Calibrate scales a raw confidence by the observed precision of joinType.
// Join types with too few recorded predictions are returned unchanged.
func (c *ConfidenceCalculator) Calibrate(joinType string, raw float64) float64 {
	c.mu.RLock()
	counts, ok := c.calibration[joinType]
	var m float64 = 1
	if ok {
		m = counts.stats(joinType).Multiplier
	}
	c.mu.RUnlock()
	return clamp01(raw * m)
}

// CalibrationStats returns the outcomes recorded for joinType.
func (c *ConfidenceCalculator) CalibrationStats(joinType string) CalibrationStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if counts, ok := c.calibration[joinType]; ok {
		return counts.stats(joinType)
	}
	return CalibrationStats{JoinType: joinType, Multiplier: 1}
}

// ResetCalibration forgets the outcomes of joinType.
func (c *ConfidenceCalculator) ResetCalibration(joinType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.calibration, joinType)
}

package audio

import "math"

// RMS returns the root-mean-square level of samples [i, j) on a 0-1 scale.
func (c Clip) RMS(i, j int) float64 {
	i = max(0, min(i, len(c.Samples)))
	j = max(i, min(j, len(c.Samples)))
	if j == i {
		return 0
	}
	var sum float64
	for _, s := range c.Samples[i:j] {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(j-i))
}

// Peak returns the absolute peak level on a 0-1 scale.
func (c Clip) Peak() float64 {
	var peak int
	for _, s := range c.Samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	return float64(peak) / 32768
}

// Gain returns a copy of c scaled by a linear factor, clamped at full scale.
func (c Clip) Gain(factor float64) Clip {
	out := make([]int16, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = toInt16(float64(s) * factor)
	}
	return Clip{Rate: c.Rate, Samples: out}
}

// ToDB converts a linear 0-1 level to dBFS. Silence is -Inf.
func ToDB(level float64) float64 {
	if level <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(level)
}

// FromDB converts dBFS to a linear factor.
func FromDB(db float64) float64 {
	return math.Pow(10, db/20)
}

// IsSilent reports whether samples [i, j) stay below thresholdDB.
func (c Clip) IsSilent(i, j int, thresholdDB float64) bool {
	return ToDB(c.RMS(i, j)) < thresholdDB
}

package audio

// Resample converts c to rate with linear interpolation. The output length is
// SampleIndex(rate, c.Duration()).
func Resample(c Clip, rate int) Clip {
	if rate <= 0 || c.Rate == rate || c.Rate <= 0 {
		return Clip{Rate: max(rate, c.Rate), Samples: append([]int16(nil), c.Samples...)}
	}
	n := len(c.Samples)
	outLen := SampleIndex(rate, c.Duration())
	out := make([]int16, outLen)
	if n == 0 {
		return Clip{Rate: rate, Samples: out}
	}
	ratio := float64(c.Rate) / float64(rate)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= n-1 {
			out[i] = c.Samples[n-1]
			continue
		}
		frac := pos - float64(j)
		a, b := float64(c.Samples[j]), float64(c.Samples[j+1])
		out[i] = toInt16(a + (b-a)*frac)
	}
	return Clip{Rate: rate, Samples: out}
}

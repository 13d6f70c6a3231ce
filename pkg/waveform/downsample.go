package waveform

import "math"

// Downsample reduces src to at most maxPoints values by decimation.
// dst is reused when it has enough capacity. The same src length and
// maxPoints always pick the same indices, so the time axis and every
// trace stay aligned.
func Downsample(dst, src []float64, maxPoints int) []float64 {
	if maxPoints <= 0 || len(src) <= maxPoints {
		if cap(dst) >= len(src) {
			dst = dst[:len(src)]
		} else {
			dst = make([]float64, len(src))
		}
		copy(dst, src)
		return dst
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]float64, 0, maxPoints)
	}

	step := float64(len(src)) / float64(maxPoints)
	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(src) {
			dst = append(dst, src[idx])
		}
	}
	// keep the right edge so the x range is preserved
	dst[len(dst)-1] = src[len(src)-1]

	return dst
}

// MinMax reduces src to two values per bucket: the bucket minimum and
// maximum in the order they occur. Short spikes that plain decimation would
// step over stay visible. NaN samples are ignored; an all-NaN bucket yields
// two NaN. src no longer than 2*buckets is copied unchanged.
func MinMax(dst, src []float64, buckets int) []float64 {
	if buckets <= 0 || len(src) <= 2*buckets {
		return Downsample(dst, src, 0)
	}

	if cap(dst) >= 2*buckets {
		dst = dst[:0]
	} else {
		dst = make([]float64, 0, 2*buckets)
	}

	for k := range buckets {
		lo, hi := bucket(len(src), buckets, k)
		iMin, iMax := -1, -1
		for i := lo; i < hi; i++ {
			v := src[i]
			if math.IsNaN(v) {
				continue
			}
			if iMin < 0 || v < src[iMin] {
				iMin = i
			}
			if iMax < 0 || v > src[iMax] {
				iMax = i
			}
		}

		switch {
		case iMin < 0:
			dst = append(dst, math.NaN(), math.NaN())
		case iMin <= iMax:
			dst = append(dst, src[iMin], src[iMax])
		default:
			dst = append(dst, src[iMax], src[iMin])
		}
	}
	return dst
}

// Edges returns the first and last value of every bucket, the time axis
// matching MinMax over the same length and bucket count.
func Edges(dst, src []float64, buckets int) []float64 {
	if buckets <= 0 || len(src) <= 2*buckets {
		return Downsample(dst, src, 0)
	}

	if cap(dst) >= 2*buckets {
		dst = dst[:0]
	} else {
		dst = make([]float64, 0, 2*buckets)
	}

	for k := range buckets {
		lo, hi := bucket(len(src), buckets, k)
		dst = append(dst, src[lo], src[hi-1])
	}
	return dst
}

// bucket returns the half-open index range of bucket k out of buckets over n samples.
func bucket(n, buckets, k int) (lo, hi int) {
	return k * n / buckets, (k + 1) * n / buckets
}

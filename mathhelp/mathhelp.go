package mathhelp

func BetweenInc(f, p, q int) bool {
	if p <= q {
		return p <= f && f <= q
	}
	return q <= f && f <= p
}

func Pow2(n uint) uint {
	return 1 << n
}

func Clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func Clamp01(f float64) float64 {
	return Clamp(f, 0, 1)
}

// Lerp interpolates linearly between p and q, f in [0,1].
func Lerp(p, q, f float64) float64 {
	return p + f*(q-p)
}

func ClampInt(i, lo, hi int) int {
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}

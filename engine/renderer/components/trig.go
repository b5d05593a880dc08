package components

import stdmath "math"

func asin(x float32) float32 {
	return float32(stdmath.Asin(float64(x)))
}

func atan2(y, x float32) float32 {
	return float32(stdmath.Atan2(float64(y), float64(x)))
}

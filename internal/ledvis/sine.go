package ledvis

import "math"

// Reciprocal factorials of the Maclaurin series of sin.
const (
	inv3Fact = 1.0 / 6
	inv5Fact = 1.0 / 120
	inv7Fact = 1.0 / 5040
	inv9Fact = 1.0 / 362880
)

// Sin approximates math.Sin. The angle is reduced to [0, π/2] by symmetry and
// evaluated with the Maclaurin series through x⁹, which keeps the error
// below 4e-6. Non-finite input yields 0.
func Sin(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}

	x = math.Mod(x, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}

	sign := 1.0
	if x > math.Pi {
		x -= math.Pi
		sign = -1
	}
	if x > math.Pi/2 {
		x = math.Pi - x
	}

	x2 := x * x
	return sign * x * (1 - x2*(inv3Fact-x2*(inv5Fact-x2*(inv7Fact-x2*inv9Fact))))
}

package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// RelativeError returns mean and standard deviation of the relative error |est-truth|/|truth|
// computed over all samples. It returns error if the slices differ in length, are empty
// or if truth contains zero.
func RelativeError(est, truth []float64) (mean, std float64, err error) {
	if len(est) != len(truth) {
		return 0, 0, fmt.Errorf("length mismatch: %d != %d", len(est), len(truth))
	}

	if len(est) == 0 {
		return 0, 0, fmt.Errorf("no samples")
	}

	errs := make([]float64, len(est))
	for i := range est {
		if truth[i] == 0 {
			return 0, 0, fmt.Errorf("zero truth value at %d", i)
		}
		errs[i] = math.Abs(est[i]-truth[i]) / math.Abs(truth[i])
	}

	if len(errs) == 1 {
		return errs[0], 0, nil
	}
	mean, std = stat.MeanStdDev(errs, nil)

	return mean, std, nil
}

// RMSE returns root mean squared error between est and truth.
// It returns error if the slices differ in length or are empty.
func RMSE(est, truth []float64) (float64, error) {
	if len(est) != len(truth) {
		return 0, fmt.Errorf("length mismatch: %d != %d", len(est), len(truth))
	}

	if len(est) == 0 {
		return 0, fmt.Errorf("no samples")
	}

	sq := make([]float64, len(est))
	for i := range est {
		d := est[i] - truth[i]
		sq[i] = d * d
	}

	return math.Sqrt(stat.Mean(sq, nil)), nil
}

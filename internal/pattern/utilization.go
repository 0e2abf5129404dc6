package pattern

import "fmt"

// utilizationPresets maps a target normal-class block weight utilization (in
// percent) to the number of DCA schedules per block measured to reach it.
var utilizationPresets = map[int]int{
	10:  10,
	20:  20,
	30:  28,
	40:  38,
	50:  48,
	60:  56,
	70:  64,
	80:  72,
	90:  85,
	100: 100,
}

// UtilizationPreset returns the burst size for a target utilization percentage.
// Only multiples of ten between 10 and 100 are calibrated.
func UtilizationPreset(percent int) (int, error) {
	txs, ok := utilizationPresets[percent]
	if !ok {
		return 0, fmt.Errorf("no calibrated burst size for %d%% utilization (use 10, 20, ..., 100)", percent)
	}
	return txs, nil
}

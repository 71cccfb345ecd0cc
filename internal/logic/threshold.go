package logic

// IsProximate reports whether an object is close enough to the sensor to count
// as present. The threshold itself is not proximate.
func IsProximate(distanceCm, thresholdCm int) bool {
	return distanceCm < thresholdCm
}

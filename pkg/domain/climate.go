package domain

// Climate is one reading of the environment box sensors.
type Climate struct {
	ChuckTemperature float64
	BoxTemperature   float64
	BoxHumidity      float64
	BoxLightOn       bool
	BoxDoorOpen      bool
}

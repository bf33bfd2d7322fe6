package domain

// Key identifies one vital-sign data domain served by the trend-review
// backend. Widgets request data per key; the orchestrator caches and
// deduplicates per key.
type Key string

// Vital-sign domains rendered by the dashboard.
const (
	KeyBloodPressure Key = "blood_pressure"
	KeyHeartRate     Key = "heart_rate"
	KeyGlucose       Key = "glucose"
	KeySpO2          Key = "spo2"
	KeySleep         Key = "sleep"
	KeyEmotion       Key = "emotion"
	KeyNutrition     Key = "nutrition"
)

// Keys lists every supported domain in display order.
func Keys() []Key {
	return []Key{
		KeyBloodPressure,
		KeyHeartRate,
		KeyGlucose,
		KeySpO2,
		KeySleep,
		KeyEmotion,
		KeyNutrition,
	}
}

// Valid reports whether k names a known vital-sign domain.
func (k Key) Valid() bool {
	switch k {
	case KeyBloodPressure, KeyHeartRate, KeyGlucose, KeySpO2, KeySleep, KeyEmotion, KeyNutrition:
		return true
	}
	return false
}

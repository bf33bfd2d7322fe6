package main

import (
	"math/rand"
	"time"

	"github.com/vitalview/vitalcore/pkg/domain"
)

// fixtureFor returns a demo data generator producing plausible readings
// for one vital-sign domain. Values are regenerated per call so repeated
// refreshes look like live trend data.
func fixtureFor(key domain.Key) func() any {
	switch key {
	case domain.KeyBloodPressure:
		return func() any {
			return series(func() map[string]any {
				return map[string]any{
					"systolic":  110 + rand.Intn(30),
					"diastolic": 70 + rand.Intn(20),
				}
			})
		}
	case domain.KeyHeartRate:
		return func() any {
			return series(func() map[string]any {
				return map[string]any{"bpm": 58 + rand.Intn(40)}
			})
		}
	case domain.KeyGlucose:
		return func() any {
			return series(func() map[string]any {
				return map[string]any{"mgdl": 80 + rand.Intn(60)}
			})
		}
	case domain.KeySpO2:
		return func() any {
			return series(func() map[string]any {
				return map[string]any{"percent": 94 + rand.Intn(6)}
			})
		}
	case domain.KeySleep:
		return func() any {
			return series(func() map[string]any {
				return map[string]any{
					"total_min": 360 + rand.Intn(120),
					"deep_min":  60 + rand.Intn(60),
				}
			})
		}
	case domain.KeyEmotion:
		return func() any {
			moods := []string{"calm", "happy", "tired", "stressed"}
			return series(func() map[string]any {
				return map[string]any{"mood": moods[rand.Intn(len(moods))]}
			})
		}
	case domain.KeyNutrition:
		return func() any {
			return series(func() map[string]any {
				return map[string]any{"kcal": 1600 + rand.Intn(900)}
			})
		}
	}
	return func() any { return map[string]any{} }
}

// series wraps seven daily points in the trend-review response shape.
func series(point func() map[string]any) map[string]any {
	points := make([]map[string]any, 0, 7)
	day := time.Now().AddDate(0, 0, -6)
	for i := 0; i < 7; i++ {
		p := point()
		p["date"] = day.AddDate(0, 0, i).Format("2006-01-02")
		points = append(points, p)
	}
	return map[string]any{"points": points}
}

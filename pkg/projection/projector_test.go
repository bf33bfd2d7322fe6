package projection

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalview/vitalcore/pkg/domain"
	"github.com/vitalview/vitalcore/pkg/membrane"
)

func seal(t *testing.T, mem *membrane.Membrane, key domain.Key, payload any) *membrane.Sealed {
	t.Helper()
	sealed, err := mem.Seal(key, payload)
	require.NoError(t, err)
	return sealed
}

func TestProjectPassThrough(t *testing.T) {
	mem := membrane.New(nil)
	p := New(mem, Options{}, zerolog.Nop())

	payload := map[string]any{"bpm": 72}
	require.NoError(t, p.Project(seal(t, mem, domain.KeyHeartRate, payload)))

	state := p.State()
	assert.Equal(t, domain.ProjectionIdle, state.Phase)
	assert.Equal(t, payload, state.Data)
	assert.Equal(t, 1, state.ProjectionCount)
	require.NotNil(t, state.Epoch)
}

func TestProjectMorphism(t *testing.T) {
	mem := membrane.New(membrane.StaticContext{Locale: "de-DE", Theme: "dark"})

	t.Run("applies the transform with ambient context", func(t *testing.T) {
		p := New(mem, Options{
			Morphism: func(raw any, mctx membrane.MorphismContext) (any, error) {
				return map[string]any{"raw": raw, "locale": mctx.Locale}, nil
			},
		}, zerolog.Nop())

		require.NoError(t, p.Project(seal(t, mem, domain.KeyGlucose, map[string]any{"mgdl": 88})))
		data := p.State().Data.(map[string]any)
		assert.Equal(t, "de-DE", data["locale"])
	})

	t.Run("transform error surfaces without touching prior data", func(t *testing.T) {
		fail := false
		p := New(mem, Options{
			Morphism: func(raw any, _ membrane.MorphismContext) (any, error) {
				if fail {
					return nil, errors.New("bad shape")
				}
				return raw, nil
			},
		}, zerolog.Nop())

		first := map[string]any{"mgdl": 90}
		require.NoError(t, p.Project(seal(t, mem, domain.KeyGlucose, first)))

		fail = true
		err := p.Project(seal(t, mem, domain.KeyGlucose, map[string]any{"mgdl": 95}))
		require.ErrorIs(t, err, domain.ErrMorphismFailed)

		state := p.State()
		assert.Equal(t, domain.ProjectionError, state.Phase)
		assert.Equal(t, first, state.Data, "prior data must survive a failed transform")
		assert.Equal(t, 1, state.ProjectionCount)
	})

	t.Run("transform panic is contained", func(t *testing.T) {
		p := New(mem, Options{
			Morphism: func(any, membrane.MorphismContext) (any, error) {
				panic("caller bug")
			},
		}, zerolog.Nop())

		err := p.Project(seal(t, mem, domain.KeyGlucose, map[string]any{"mgdl": 90}))
		require.ErrorIs(t, err, domain.ErrMorphismFailed)
		assert.Equal(t, domain.ProjectionError, p.State().Phase)
	})
}

func TestProjectIntegrityFailure(t *testing.T) {
	mem := membrane.New(nil)
	p := New(mem, Options{}, zerolog.Nop())

	good := map[string]any{"percent": 97}
	require.NoError(t, p.Project(seal(t, mem, domain.KeySpO2, good)))

	bad := seal(t, mem, domain.KeySpO2, map[string]any{"percent": 96})
	membrane.Tamper(bad, map[string]any{"percent": 1})

	err := p.Project(bad)
	require.ErrorIs(t, err, domain.ErrSealIntegrity)

	state := p.State()
	assert.Equal(t, domain.ProjectionError, state.Phase)
	assert.Equal(t, good, state.Data)
	assert.NotEmpty(t, state.Err)
}

func TestEqualitySkip(t *testing.T) {
	mem := membrane.New(nil)
	p := New(mem, Options{
		IsEqual: func(prev, next any) bool { return reflect.DeepEqual(prev, next) },
	}, zerolog.Nop())

	payload := map[string]any{"kcal": 1800}
	require.NoError(t, p.Project(seal(t, mem, domain.KeyNutrition, payload)))
	before := p.State()

	// Same payload, new epoch: the predicate must suppress the transition.
	require.NoError(t, p.Project(seal(t, mem, domain.KeyNutrition, map[string]any{"kcal": 1800})))
	after := p.State()

	assert.Equal(t, before.ProjectionCount, after.ProjectionCount, "projectionCount must not increment on equal result")
	assert.Equal(t, before.Phase, after.Phase)
	assert.Equal(t, before.Epoch, after.Epoch)

	// A genuinely different payload projects normally.
	require.NoError(t, p.Project(seal(t, mem, domain.KeyNutrition, map[string]any{"kcal": 2100})))
	assert.Equal(t, before.ProjectionCount+1, p.State().ProjectionCount)
}

func TestInvalidate(t *testing.T) {
	mem := membrane.New(nil)
	p := New(mem, Options{
		IsEqual: func(prev, next any) bool { return reflect.DeepEqual(prev, next) },
	}, zerolog.Nop())

	payload := map[string]any{"total_min": 400}
	require.NoError(t, p.Project(seal(t, mem, domain.KeySleep, payload)))

	p.Invalidate()
	assert.Equal(t, domain.ProjectionStale, p.State().Phase)

	// The memoized previous result is cleared, so an equal payload is
	// still treated as a change after invalidation.
	require.NoError(t, p.Project(seal(t, mem, domain.KeySleep, map[string]any{"total_min": 400})))
	state := p.State()
	assert.Equal(t, domain.ProjectionIdle, state.Phase)
	assert.Equal(t, 2, state.ProjectionCount)
}

func TestAutoProject(t *testing.T) {
	mem := membrane.New(nil)
	p := New(mem, Options{}, zerolog.Nop())

	sealed := seal(t, mem, domain.KeyEmotion, map[string]any{"mood": "calm"})

	ran, err := p.AutoProject(sealed)
	require.NoError(t, err)
	assert.True(t, ran)

	// Same epoch again: nothing to do.
	ran, err = p.AutoProject(sealed)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, p.State().ProjectionCount)

	// New epoch re-projects.
	ran, err = p.AutoProject(seal(t, mem, domain.KeyEmotion, map[string]any{"mood": "happy"}))
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestProjectAll(t *testing.T) {
	mem := membrane.New(nil)
	p := New(mem, Options{}, zerolog.Nop())

	good := seal(t, mem, domain.KeyHeartRate, map[string]any{"bpm": 61})
	bad := seal(t, mem, domain.KeySleep, map[string]any{"total_min": 410})
	membrane.Tamper(bad, "corrupt")

	out := p.ProjectAll([]*membrane.Sealed{good, bad, nil})
	require.Len(t, out, 3)
	assert.NotNil(t, out[0])
	assert.Nil(t, out[1], "failed unseal yields nil for that source only")
	assert.Nil(t, out[2])
}

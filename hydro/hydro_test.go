package hydro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversionInverse(t *testing.T) {
	eos := EOS{Gamma: 1.4}
	table := []struct {
		w   Primitive
		vol float64
	}{
		{Primitive{1, 0, 0, 1}, 1},
		{Primitive{0.125, 0, 0, 0.1}, 0.01},
		{Primitive{2.5, -1.5, 0.75, 3}, 3.2e-4},
	}

	for i, test := range table {
		u := eos.ToConserved(&test.w, test.vol)
		w := eos.ToPrimitive(&u, test.vol)
		for k := 0; k < NumVars; k++ {
			assert.InDelta(t, test.w[k], w[k], 1e-12, "%d) variable %d", i+1, k)
		}
	}
}

func TestEOSValidate(t *testing.T) {
	assert.NoError(t, EOS{Gamma: 5.0 / 3}.Validate())
	assert.Error(t, EOS{Gamma: 1}.Validate())
	assert.Error(t, EOS{Gamma: 0.5}.Validate())
}

func TestFlux(t *testing.T) {
	eos := EOS{Gamma: 1.4}
	w := Primitive{2, 3, 0.5, 1}
	f := eos.Flux(&w)

	en := 1/0.4 + 0.5*2*(9+0.25)
	assert.InDelta(t, 6, f[Mass], 1e-12)
	assert.InDelta(t, 2*9+1, f[MomX], 1e-12)
	assert.InDelta(t, 2*3*0.5, f[MomY], 1e-12)
	assert.InDelta(t, 3*(en+1), f[Energy], 1e-12)
}

func TestPhysical(t *testing.T) {
	assert.True(t, Physical(&Primitive{1, 0, 0, 1}))
	assert.False(t, Physical(&Primitive{0, 0, 0, 1}))
	assert.False(t, Physical(&Primitive{1, 0, 0, -1e-9}))
}

package sim

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
)

func TestExcitationEval(t *testing.T) {
	assert := assert.New(t)

	e := Excitation{
		Tones: []Tone{
			{Amplitude: 1, Omega: 2},
			{Amplitude: 0.5, Omega: 3, Phase: math.Pi / 2},
		},
		Bias: 0.1,
	}

	assert.InDelta(0.6, e.Eval(0), 1e-12)
	assert.InDelta(0.1+math.Sin(2)+0.5*math.Cos(3), e.Eval(1), 1e-12)
}

func TestExcitationSample(t *testing.T) {
	assert := assert.New(t)

	e := Excitation{Tones: []Tone{{Amplitude: 1, Omega: 1}}}

	inputs, err := e.Sample(3, 0.5, nil)
	assert.NoError(err)
	assert.Len(inputs, 3)
	for k, in := range inputs {
		assert.Equal(1, in.Len())
		assert.InDelta(math.Sin(float64(k+1)*0.5), in.AtVec(0), 1e-12)
	}

	_, err = e.Sample(0, 0.5, nil)
	assert.Error(err)
	_, err = e.Sample(3, 0, nil)
	assert.Error(err)

	// noisy excitation requires random source
	e.NoiseStd = 0.1
	_, err = e.Sample(3, 0.5, nil)
	assert.Error(err)

	in1, err := e.Sample(100, 0.01, rand.NewSource(7))
	assert.NoError(err)
	in2, err := e.Sample(100, 0.01, rand.NewSource(7))
	assert.NoError(err)

	diff := 0.0
	for k := range in1 {
		assert.Equal(in1[k].AtVec(0), in2[k].AtVec(0))
		diff += math.Abs(in1[k].AtVec(0) - e.Eval(float64(k+1)*0.01))
	}
	assert.True(diff > 0)
}

func TestLoadExcitation(t *testing.T) {
	assert := assert.New(t)

	data := `# force samples
1.5
-2e-1

3
`
	inputs, err := LoadExcitation(strings.NewReader(data))
	assert.NoError(err)
	assert.Len(inputs, 3)
	assert.Equal(1.5, inputs[0].AtVec(0))
	assert.Equal(-0.2, inputs[1].AtVec(0))
	assert.Equal(3.0, inputs[2].AtVec(0))

	inputs, err = LoadExcitation(strings.NewReader("1, 2\n3\t4\n"))
	assert.NoError(err)
	assert.Len(inputs, 2)
	assert.Equal(2, inputs[1].Len())
	assert.Equal(4.0, inputs[1].AtVec(1))

	testCases := []string{
		"",
		"# only comment\n",
		"1\nfoo\n",
		"1,2\n3\n",
	}

	for _, tc := range testCases {
		inputs, err := LoadExcitation(strings.NewReader(tc))
		assert.Nil(inputs)
		assert.Error(err)
	}
}

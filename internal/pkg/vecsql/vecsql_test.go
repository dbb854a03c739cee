package vecsql

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	in := []float32{0.1, -2.5, 3, float32(math.Inf(1))}
	out, err := Decode(Encode(in))
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = Decode([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDistances(t *testing.T) {
	d, err := L2([]float32{0.1, 0.2}, []float32{0.1, 0.2})
	require.NoError(t, err)
	require.InDelta(t, 0.0, d, 1e-6)

	near, err := L2([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	far, err := L2([]float32{0, 0}, []float32{3, 4})
	require.NoError(t, err)
	require.Less(t, near, far)

	d, err = Cosine([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	require.InDelta(t, 0.0, d, 1e-6)

	d, err = Cosine([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	require.InDelta(t, 1.0, d, 1e-6)

	d, err = Cosine([]float32{2, 0}, []float32{-1, 0})
	require.NoError(t, err)
	require.InDelta(t, 2.0, d, 1e-6)

	d, err = Cosine([]float32{0, 0}, []float32{0, 1})
	require.NoError(t, err)
	require.Equal(t, 1.0, d)

	d, err = Cosine([]float32{0, 1}, []float32{0, 0})
	require.NoError(t, err)
	require.Equal(t, 1.0, d)

	_, err = L2([]float32{1}, []float32{1, 2})
	require.Error(t, err)
}

func TestFuncName(t *testing.T) {
	name, err := FuncName("")
	require.NoError(t, err)
	require.Equal(t, "vec_l2", name)
	name, err = FuncName(MetricCosine)
	require.NoError(t, err)
	require.Equal(t, "vec_cosine", name)
	_, err = FuncName("dot")
	require.Error(t, err)
}

func TestRegisterIdempotent(t *testing.T) {
	require.NoError(t, Register())
	require.NoError(t, Register())
}

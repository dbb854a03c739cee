package vecsql

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/viant/vec/search"
	sqlite "modernc.org/sqlite"
)

const (
	MetricL2     = "l2"
	MetricCosine = "cosine"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// Register adds vec_l2 and vec_cosine to the sqlite driver. Only connections
// opened after the first call can use them.
func Register() error {
	registerOnce.Do(func() {
		if err := sqlite.RegisterDeterministicScalarFunction("vec_l2", 2, l2Impl); err != nil {
			registerErr = err
			return
		}
		registerErr = sqlite.RegisterDeterministicScalarFunction("vec_cosine", 2, cosineImpl)
	})
	return registerErr
}

// FuncName maps a metric to its SQL function.
func FuncName(metric string) (string, error) {
	switch metric {
	case "", MetricL2:
		return "vec_l2", nil
	case MetricCosine:
		return "vec_cosine", nil
	default:
		return "", fmt.Errorf("unsupported metric: %s", metric)
	}
}

// Encode stores the vector as little-endian float32 values with no length prefix.
func Encode(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func Decode(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vecsql: invalid embedding blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

func L2(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vecsql: dimension mismatch %d != %d", len(a), len(b))
	}
	return float64(search.Float32s(a).EuclideanDistance(b)), nil
}

// Cosine returns 1 - cosine similarity. A zero vector is at distance 1 from everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vecsql: dimension mismatch %d != %d", len(a), len(b))
	}
	if search.Float32s(a).Magnitude() == 0 || search.Float32s(b).Magnitude() == 0 {
		return 1, nil
	}
	return float64(search.Float32s(a).CosineDistance(b)), nil
}

func twoVectors(name string, args []driver.Value) ([]float32, []float32, error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("%s: expected 2 arguments, got %d", name, len(args))
	}
	var out [2][]float32
	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
			return nil, nil, nil
		case []byte:
			vec, err := Decode(v)
			if err != nil {
				return nil, nil, err
			}
			out[i] = vec
		default:
			return nil, nil, fmt.Errorf("%s: unsupported argument type %T, want BLOB", name, arg)
		}
	}
	return out[0], out[1], nil
}

func l2Impl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, b, err := twoVectors("vec_l2", args)
	if err != nil || a == nil || b == nil {
		return nil, err
	}
	return L2(a, b)
}

func cosineImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, b, err := twoVectors("vec_cosine", args)
	if err != nil || a == nil || b == nil {
		return nil, err
	}
	return Cosine(a, b)
}

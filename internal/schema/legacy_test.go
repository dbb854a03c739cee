package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/postvec/internal/vectorstore"
)

func TestToMicros(t *testing.T) {
	ts := time.Date(2023, 11, 14, 22, 13, 20, 987654321, time.UTC)
	tests := []struct {
		name string
		typ  string
		in   interface{}
		want int64
	}{
		{name: "micro passthrough", typ: vectorstore.TimestampMicro, in: int64(42), want: 42},
		{name: "milli", typ: vectorstore.TimestampMilli, in: int64(1500), want: 1500000},
		{name: "milli text", typ: vectorstore.TimestampMilli, in: []byte("1500"), want: 1500000},
		{name: "nano floors", typ: vectorstore.TimestampNano, in: int64(1999), want: 1},
		{name: "nano negative floors", typ: vectorstore.TimestampNano, in: int64(-1), want: -1},
		{name: "datetime value", typ: vectorstore.TimestampText, in: ts, want: ts.UnixMicro()},
		{name: "datetime string", typ: vectorstore.TimestampText, in: "2023-11-14T22:13:20.987654321Z", want: ts.UnixMicro()},
		{name: "datetime date only", typ: vectorstore.TimestampText, in: "2023-11-14", want: time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC).UnixMicro()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMicros(tt.typ, tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestToMicrosNeverRoundsUp(t *testing.T) {
	for _, ns := range []int64{0, 1, 999, 1000, 1001, 123456789, -999, -1001} {
		got, err := ToMicros(vectorstore.TimestampNano, ns)
		require.NoError(t, err)
		require.LessOrEqual(t, got*1000, ns)
		require.Greater(t, (got+1)*1000, ns)
	}
}

func TestToMicrosErrors(t *testing.T) {
	_, err := ToMicros(vectorstore.TimestampMilli, nil)
	require.Error(t, err)
	_, err = ToMicros(vectorstore.TimestampText, "yesterday")
	require.Error(t, err)
	_, err = ToMicros("BLOB", int64(1))
	require.Error(t, err)
}

package dbutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
)

func TestValidateTable(t *testing.T) {
	require.NoError(t, ValidateTable("wordpress_posts"))
	require.NoError(t, ValidateTable("_t1"))
	for _, bad := range []string{"", "1abc", "posts; DROP TABLE x", `a"b`, "a-b"} {
		require.ErrorIs(t, ValidateTable(bad), appErr.ErrInvalid, bad)
	}
}

func TestPlaceholders(t *testing.T) {
	require.Equal(t, "", Placeholders(0))
	require.Equal(t, "?", Placeholders(1))
	require.Equal(t, "?,?,?", Placeholders(3))
}

func TestClassify(t *testing.T) {
	require.Nil(t, Classify(nil))
	require.ErrorIs(t, Classify(fmt.Errorf("q: %w", context.DeadlineExceeded)), appErr.ErrTimeout)
	require.ErrorIs(t, Classify(errors.New("SQL logic error: no such table: x (1)")), appErr.ErrTableNotFound)
	plain := errors.New("other")
	require.Equal(t, plain, Classify(plain))
}

func TestQuote(t *testing.T) {
	require.Equal(t, `"posts"`, Quote("posts"))
}

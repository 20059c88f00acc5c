package ids

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

const testULID = "01HYX3KQW7ERTV9XNBM2P8QJZF"

func TestNewULIDReturnsValid(t *testing.T) {
	value, err := NewULID()

	require.NoError(t, err)
	require.NoError(t, ValidateULID(value))
}

func TestNewULIDAtEncodesTimestamp(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	value, err := NewULIDAt(at)
	require.NoError(t, err)

	parsed, err := ulid.Parse(value)
	require.NoError(t, err)
	require.Equal(t, at.UnixMilli(), int64(parsed.Time()))
}

func TestIsULIDAndValidateULID(t *testing.T) {
	require.True(t, IsULID(testULID))
	require.True(t, IsULID(" "+testULID+" "))
	require.NoError(t, ValidateULID(testULID))

	require.False(t, IsULID("not-a-ulid"))
	require.ErrorIs(t, ValidateULID("not-a-ulid"), ErrInvalidULID)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, testULID, Normalize(" 01hyx3kqw7ertv9xnbm2p8qjzf "))
}

package core_test

import (
	"testing"

	"github.com/book-expert/tts-pad/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSlot(t *testing.T) {
	t.Parallel()

	slot, err := core.ParseSlot("2")
	require.NoError(t, err)
	assert.Equal(t, core.Slot2, slot)

	for _, raw := range []string{"", "0", "3", "x"} {
		_, err = core.ParseSlot(raw)
		require.ErrorIs(t, err, core.ErrInvalidSlot, raw)
	}
}

func TestSlotTextKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "text1", core.Slot1.TextKey())
	assert.Equal(t, "text2", core.Slot2.TextKey())
}

func TestCredentialsComplete(t *testing.T) {
	t.Parallel()

	assert.True(t, core.Settings{AzureKey: "k", AzureRegion: "westeurope"}.Credentials().Complete())
	assert.False(t, core.Credentials{Key: "k"}.Complete())
	assert.False(t, core.Credentials{Region: "westeurope"}.Complete())
}

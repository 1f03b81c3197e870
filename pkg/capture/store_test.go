package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"a", "scope/ch1", "run-01/trace_2.bin", "A.B/c-d"} {
		assert.NoError(t, ValidateKey(key), key)
	}

	for key, reason := range map[string]string{
		"":          "empty",
		"a/":        "empty path segment",
		"../x":      "relative path segment",
		"a b":       `character ' ' not allowed`,
		"mesure/é":  `character 'é' not allowed`,
		"back\\sla": `character '\\' not allowed`,
	} {
		var keyErr *InvalidKeyError
		require.ErrorAs(t, ValidateKey(key), &keyErr, key)
		assert.Equal(t, reason, keyErr.Reason, key)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	rec := Record{
		Key:      "scope/ch1",
		Host:     "192.0.2.10",
		Device:   "inst0",
		Query:    "CURV?",
		Response: []byte{0x23, 0x00, 0xff},
		Time:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := Marshal(rec)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, rec.Response, got.Response, "binary responses survive encoding")
	assert.True(t, rec.Time.Equal(got.Time))

	_, err = Unmarshal([]byte("{"))
	assert.Error(t, err)
}

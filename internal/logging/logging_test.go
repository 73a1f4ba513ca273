package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	l, err := SetupWriter(&buf, "warn", "json")
	require.NoError(t, err)

	l.Info().Msg("dropped")
	l.Warn().Int("iteration", 3).Msg("kept")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["message"])
	assert.Equal(t, "warn", rec["level"])
	assert.Equal(t, 3.0, rec["iteration"])
}

func TestSetupRejectsUnknownValues(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	_, err := SetupWriter(&bytes.Buffer{}, "loud", "json")
	assert.Error(t, err)
	_, err = SetupWriter(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
	_, err = SetupWriter(&bytes.Buffer{}, "", "")
	assert.NoError(t, err)
}

package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudEvent_ParseData(t *testing.T) {
	ce, err := NewCloudEvent("service-learning", "booking.confirmed", map[string]string{"booking_id": "b1"})
	require.NoError(t, err)

	raw, err := json.Marshal(ce)
	require.NoError(t, err)

	parsed, err := ParseCloudEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "booking.confirmed", parsed.Type)
	assert.Equal(t, "1.0", parsed.SpecVersion)

	var data map[string]string
	require.NoError(t, parsed.ParseData(&data))
	assert.Equal(t, "b1", data["booking_id"])
}

func TestParseCloudEvent_RejectsUntyped(t *testing.T) {
	_, err := ParseCloudEvent([]byte(`{"id":"x"}`))
	assert.Error(t, err)
}

package types

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretStringRedaction(t *testing.T) {
	secret := SecretString("whsec_supersecret")

	assert.Equal(t, "***REDACTED***", secret.String())
	assert.Equal(t, "***REDACTED***", fmt.Sprintf("%v", secret))
	assert.Equal(t, "***REDACTED***", fmt.Sprintf("%s", secret))
	assert.Equal(t, "whsec_supersecret", secret.Unmask())
}

func TestSecretStringJSONRoundTrip(t *testing.T) {
	out, err := json.Marshal(struct {
		Secret SecretString `json:"secret"`
	}{Secret: "whsec_supersecret"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"secret":"***REDACTED***"}`, string(out))
	assert.NotContains(t, string(out), "supersecret")

	var in struct {
		Secret SecretString `json:"secret"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"secret":"whsec_incoming"}`), &in))
	assert.Equal(t, "whsec_incoming", in.Secret.Unmask())
}

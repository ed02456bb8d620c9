package types

import "encoding/json"

// redactedPlaceholder replaces secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values (database URLs, webhook signing
// secrets). String() and MarshalJSON() return a redacted placeholder so
// secrets never leak through fmt functions or JSON output.
//
// Use Unmask() to retrieve the raw value where it is genuinely needed.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// UnmarshalJSON stores the raw string value. Incoming payloads (e.g.
// webhook create requests) carry real secrets that must be preserved.
func (s *SecretString) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SecretString(raw)
	return nil
}

// Unmask returns the raw plaintext value of the secret. Usage should be
// limited to constructing signatures and connection strings.
func (s SecretString) Unmask() string {
	return string(s)
}

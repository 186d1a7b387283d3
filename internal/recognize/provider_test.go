package recognize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStructured_PlainObject(t *testing.T) {
	body := `{"sender": "Karoo Lamb Farm", "receiver": "Karan Beef", "date": "2024-09-15",
	          "truckReg": "ABC 123 GP", "trailerReg": "XYZ 789 GP",
	          "table": [{"packages": "32", "description": "Lambs", "gross": "1250.50"}],
	          "raw_text": "DELIVERY NOTE"}`

	raw, err := decodeStructured([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "Karoo Lamb Farm", raw.Fields["sender"])
	assert.Equal(t, "Karan Beef", raw.Fields["receiver"])
	assert.Equal(t, "2024-09-15", raw.Fields["date"])
	assert.Equal(t, "ABC 123 GP", raw.Fields["truckReg"])
	assert.Equal(t, "XYZ 789 GP", raw.Fields["trailerReg"])
	assert.Equal(t, "DELIVERY NOTE", raw.Text)
	assert.Equal(t, "remote", raw.Source)

	require.Len(t, raw.Table, 1)
	assert.Equal(t, "Lambs", raw.Table[0].Description)
}

func TestDecodeStructured_StringEncodedBody(t *testing.T) {
	// Some responses wrap the object once more as a JSON string
	body := `"{\"sender\": \"Karoo Lamb Farm\", \"truckReg\": \"ABC 123 GP\"}"`

	raw, err := decodeStructured([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "Karoo Lamb Farm", raw.Fields["sender"])
	assert.Equal(t, "ABC 123 GP", raw.Fields["truckReg"])
}

func TestDecodeStructured_MarkdownFences(t *testing.T) {
	body := "```json\n{\"truckReg\": \"ABC 123 GP\"}\n```"

	raw, err := decodeStructured([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "ABC 123 GP", raw.Fields["truckReg"])
}

func TestDecodeStructured_SnakeCaseRegistrations(t *testing.T) {
	body := `{"truck_reg": "ABC 123 GP", "trailer_reg": "XYZ 789 GP"}`

	raw, err := decodeStructured([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "ABC 123 GP", raw.Fields["truckReg"])
	assert.Equal(t, "XYZ 789 GP", raw.Fields["trailerReg"])
}

func TestDecodeStructured_EmptyFieldsOmitted(t *testing.T) {
	body := `{"sender": "", "receiver": "  ", "truckReg": "ABC 123 GP"}`

	raw, err := decodeStructured([]byte(body))
	require.NoError(t, err)

	_, hasSender := raw.Fields["sender"]
	_, hasReceiver := raw.Fields["receiver"]
	assert.False(t, hasSender)
	assert.False(t, hasReceiver)
	assert.Equal(t, "ABC 123 GP", raw.Fields["truckReg"])
}

func TestDecodeStructured_Malformed(t *testing.T) {
	cases := []string{
		"",
		"not json at all",
		`{"sender": `,
		`"\"unterminated`,
	}

	for _, body := range cases {
		_, err := decodeStructured([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedBody, "body: %q", body)
	}
}

func TestTextQualityConfidence(t *testing.T) {
	assert.Zero(t, textQualityConfidence(""))
	assert.Zero(t, textQualityConfidence("   \n\t "))

	short := textQualityConfidence("abc 123")
	long := textQualityConfidence(makeWords(60))
	assert.Greater(t, long, short)
	assert.LessOrEqual(t, long, 85.0)
}

func makeWords(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += "delivery "
	}
	return s
}

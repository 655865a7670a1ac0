package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskSecrets(t *testing.T) {
	t.Run("api key masked wholesale", func(t *testing.T) {
		out := MaskSecrets("your key is sk-abcdefghij1234567890XYZ ok")
		assert.NotContains(t, out, "sk-abcdefghij")
		assert.Contains(t, out, "[PROTECTED]")
	})

	t.Run("client secret partially revealed", func(t *testing.T) {
		secret := "0123456789abcdef0123456789abcdef"
		out := MaskSecrets("secret: " + secret)
		assert.NotContains(t, out, secret)
		assert.Contains(t, out, "0123…cdef")
	})

	t.Run("plain text untouched", func(t *testing.T) {
		in := "台積電今日收盤 1085 元"
		assert.Equal(t, in, MaskSecrets(in))
	})
}

func TestPostprocess_MetaExtraction(t *testing.T) {
	raw := "好的，已為您選擇專業方案。\n{\"next_panel\":\"billing\",\"selected_plan\":\"pro\"}"

	text, meta := Postprocess(raw)

	assert.Equal(t, "好的，已為您選擇專業方案。", text)
	assert.Equal(t, "billing", meta.NextPanel)
	assert.Equal(t, "pro", meta.SelectedPlan)
}

func TestPostprocess_ExtraKeysPreserved(t *testing.T) {
	raw := `done {"next_panel":"chat","highlight":"price"}`

	_, meta := Postprocess(raw)

	require.NotNil(t, meta.Extra)
	assert.Equal(t, "price", meta.Extra["highlight"])
}

func TestPostprocess_MalformedJSONStripped(t *testing.T) {
	raw := `回覆內容 {"next_panel": "billing", broken}`

	text, meta := Postprocess(raw)

	assert.NotContains(t, text, "{")
	assert.NotContains(t, text, "}")
	assert.Equal(t, "chat", meta.NextPanel) // defaults on parse failure
}

func TestPostprocess_NoMeta(t *testing.T) {
	text, meta := Postprocess("純文字回覆，沒有任何結構化資料")

	assert.Equal(t, "純文字回覆，沒有任何結構化資料", text)
	assert.Equal(t, "chat", meta.NextPanel)
}

func TestPostprocess_Idempotent(t *testing.T) {
	inputs := []string{
		`回覆 {"next_panel":"billing"}`,
		`回覆 {"bad json`,
		"plain text",
		`nested {"a":{"b":1}}`,
	}

	for _, in := range inputs {
		text, _ := Postprocess(in)
		again, _ := Postprocess(text)
		assert.Equal(t, text, again, "postprocess must be idempotent on its own output: %q", in)
		assert.False(t, strings.HasSuffix(strings.TrimSpace(text), "}"),
			"no trailing brace object may survive: %q", in)
	}
}

package reconcile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) Payload {
	t.Helper()
	p, err := DecodePayload([]byte(body))
	require.NoError(t, err)
	return p
}

func TestReconcile_PlainStringLines(t *testing.T) {
	p := decode(t, `{"ocr_lines":["Milk 2 3.50","Bread & <Butter>"]}`)

	res := Reconcile(p)

	require.Equal(t, LineSourceOCR, res.Blocks.LineSource)
	require.Len(t, res.Blocks.Lines, 2)
	assert.Equal(t, "Milk 2 3.50", res.Blocks.Lines[0].Text)
	assert.Nil(t, res.Blocks.Lines[0].Confidence)
	assert.Contains(t, res.HTML, "<li>Milk 2 3.50</li>")
	assert.Contains(t, res.HTML, "<li>Bread &amp; &lt;Butter&gt;</li>")
	assert.NotContains(t, res.HTML, `class="confidence"`)
}

func TestExtractConfidence(t *testing.T) {
	tests := []struct {
		name string
		body string
		want *float64
	}{
		{name: "percentage", body: `{"text":"Milk","confidence":85}`, want: ptr(0.85)},
		{name: "fraction", body: `{"text":"Milk","confidence":0.5}`, want: ptr(0.5)},
		{name: "numeric string", body: `{"text":"Milk","confidence":" 92 "}`, want: ptr(0.92)},
		{name: "not a number", body: `{"text":"Milk","confidence":"not-a-number"}`, want: nil},
		{name: "above range", body: `{"text":"Milk","confidence":250}`, want: ptr(1)},
		{name: "negative", body: `{"text":"Milk","confidence":-3}`, want: ptr(0)},
		{name: "exactly one", body: `{"text":"Milk","confidence":1}`, want: ptr(1)},
		{name: "null", body: `{"text":"Milk","confidence":null}`, want: nil},
		{name: "missing", body: `{"text":"Milk"}`, want: nil},
		{name: "string line", body: `"Milk"`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var line OcrLine
			require.NoError(t, line.UnmarshalJSON([]byte(tt.body)))

			got := ExtractConfidence(line)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestReconcile_NoConfidenceLabelForUnparsableString(t *testing.T) {
	p := decode(t, `{"ocr_lines":[{"text":"Milk","confidence":"not-a-number"},{"text":"Eggs","confidence":85}]}`)

	res := Reconcile(p)

	assert.Contains(t, res.HTML, "<li>Milk</li>")
	assert.Contains(t, res.HTML, `<li>Eggs <span class="confidence">(85%)</span></li>`)
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "string", body: `"Milk"`, want: "Milk"},
		{name: "record", body: `{"text":"Eggs","confidence":0.9}`, want: "Eggs"},
		{name: "record with numeric text", body: `{"text":42}`, want: ""},
		{name: "number", body: `42`, want: ""},
		{name: "null", body: `null`, want: ""},
		{name: "array", body: `["a"]`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var line OcrLine
			require.NoError(t, line.UnmarshalJSON([]byte(tt.body)))
			assert.Equal(t, tt.want, ExtractText(line))
		})
	}
}

func TestReconcile_StructuredUnionIsCaseSensitive(t *testing.T) {
	p := decode(t, `{"structured":"{\"items\":[{\"name\":\"Pork Loin\"},{\"name\":\"pork loin\"},{\"name\":\"  \"},{\"qty\":2},{\"name\":\" Pork Loin \"}]}"}`)

	res := Reconcile(p)

	assert.Equal(t, []string{"Pork Loin", "pork loin"}, res.Items)
	assert.Equal(t, SourceUnion, res.ItemsSource)
}

func TestReconcile_UnionKeepsStructuredThenTableOrder(t *testing.T) {
	p := decode(t, `{
		"structured": {"items":[{"name":"Rice"},{"name":"Milk"}]},
		"ocr_raw": {"table":[{"description":"Milk"},{"description":"Sugar"},{"description":""},{"qty":"1"}]}
	}`)

	res := Reconcile(p)

	assert.Equal(t, []string{"Rice", "Milk", "Sugar"}, res.Items)
}

func TestReconcile_MalformedStructured(t *testing.T) {
	p := decode(t, `{
		"structured": "{not json",
		"ocr_raw": {"table":[{"description":"Chicken Breast"}]},
		"ocr_lines": ["Chicken Breast 1 120.00"]
	}`)

	res := Reconcile(p)

	assert.Equal(t, []string{"Chicken Breast"}, res.Items)
	assert.True(t, res.Blocks.Structured.Present)
	assert.NotEmpty(t, res.Blocks.Structured.Error)
	assert.Equal(t, "{not json", res.Blocks.Structured.Raw)
	assert.Contains(t, res.HTML, "Could not parse structured result")
	assert.Contains(t, res.HTML, `<pre class="raw">{not json</pre>`)
	// other blocks still render
	assert.Contains(t, res.HTML, "<li>Chicken Breast 1 120.00</li>")
}

func TestReconcile_MalformedStructuredWithoutTable(t *testing.T) {
	res := Reconcile(decode(t, `{"structured":"{not json"}`))

	assert.Empty(t, res.Items)
	assert.NotNil(t, res.Items)
}

func TestReconcile_ExplicitListOverridesUnion(t *testing.T) {
	p := decode(t, `{
		"items_for_dropdown": ["A","B"],
		"structured": {"items":[{"name":"C"}]},
		"ocr_raw": {"table":[{"description":"D"}]}
	}`)

	res := Reconcile(p)

	assert.Equal(t, []string{"A", "B"}, res.Items)
	assert.Equal(t, SourceExplicit, res.ItemsSource)
}

func TestReconcile_BlankExplicitListFallsThrough(t *testing.T) {
	p := decode(t, `{"items_for_dropdown":["  ",null,""],"structured":{"items":[{"name":"C"}]}}`)

	res := Reconcile(p)

	assert.Equal(t, []string{"C"}, res.Items)
	assert.Equal(t, SourceUnion, res.ItemsSource)
}

func TestReconcile_Idempotent(t *testing.T) {
	body := `{
		"ocr_lines": ["Milk", {"text":"Eggs","confidence":"0.7"}],
		"normalized_text": "Milk\nEggs",
		"structured": "{\"items\":[{\"name\":\"Milk\"}],\"total\":\"12.00\"}",
		"ocr_raw": {"table":[{"description":"Eggs"}]},
		"sample": ["x"]
	}`

	first := Reconcile(decode(t, body))
	second := Reconcile(decode(t, body))

	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.HTML, second.HTML)
	assert.Equal(t, first.OptionsHTML, second.OptionsHTML)
}

func TestReconcile_EscapesScript(t *testing.T) {
	p := decode(t, `{"items_for_dropdown":["<script>alert('x')</script>"],"ocr_lines":["<script>alert(1)</script>"]}`)

	res := Reconcile(p)

	assert.NotContains(t, res.HTML, "<script>")
	assert.NotContains(t, res.OptionsHTML, "<script>")
	assert.Contains(t, res.HTML, "&lt;script&gt;")
	assert.Contains(t, res.OptionsHTML, "&lt;script&gt;alert(&#39;x&#39;)&lt;/script&gt;")
}

func TestReconcile_LineFallbackChain(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantSource LineSource
		wantTexts  []string
	}{
		{
			name:       "ocr lines win",
			body:       `{"ocr_lines":["a"],"lines":["b"]}`,
			wantSource: LineSourceOCR,
			wantTexts:  []string{"a"},
		},
		{
			name:       "blank ocr lines fall back to lines",
			body:       `{"ocr_lines":["  ",null,{"confidence":0.9}],"lines":["b",3,{"k":"v"},null]}`,
			wantSource: LineSourceLegacy,
			wantTexts:  []string{"b", "3", `{"k":"v"}`},
		},
		{
			name:       "newline delimited lines",
			body:       `{"lines":"first\r\nsecond\n\nthird"}`,
			wantSource: LineSourceLegacy,
			wantTexts:  []string{"first", "second", "third"},
		},
		{
			name:       "legacy text alias",
			body:       `{"text":"one\ntwo"}`,
			wantSource: LineSourceLegacy,
			wantTexts:  []string{"one", "two"},
		},
		{
			name:       "nothing usable",
			body:       `{"ocr_lines":[],"lines":42}`,
			wantSource: LineSourceNone,
			wantTexts:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, source := DisplayLines(decode(t, tt.body))

			assert.Equal(t, tt.wantSource, source)
			texts := make([]string, 0, len(lines))
			for _, l := range lines {
				texts = append(texts, l.Text)
			}
			assert.Equal(t, tt.wantTexts, texts)
		})
	}
}

func TestReconcile_PlaceholderAndSample(t *testing.T) {
	res := Reconcile(decode(t, `{"sample":["legacy one",null,"  "]}`))

	assert.Contains(t, res.HTML, NoLinesPlaceholder)
	assert.Equal(t, []string{"legacy one"}, res.Blocks.Sample)
	assert.Contains(t, res.HTML, "<li>legacy one</li>")
}

func TestReconcile_SampleHiddenWhenLinesExist(t *testing.T) {
	res := Reconcile(decode(t, `{"ocr_lines":["Milk"],"sample":["legacy one"]}`))

	assert.Nil(t, res.Blocks.Sample)
	assert.NotContains(t, res.HTML, "legacy one")
	assert.NotContains(t, res.HTML, NoLinesPlaceholder)
}

func TestReconcile_StructuredPrettyKeepsKeyOrder(t *testing.T) {
	res := Reconcile(decode(t, `{"structured":{"total":"9.00","items":[{"name":"Tea"}]}}`))

	want := "{\n  \"total\": \"9.00\",\n  \"items\": [\n    {\n      \"name\": \"Tea\"\n    }\n  ]\n}"
	assert.Equal(t, want, res.Blocks.Structured.Pretty)
	assert.Contains(t, res.HTML, "Structured (normalized)")
	assert.True(t, strings.Index(res.HTML, "&#34;total&#34;") < strings.Index(res.HTML, "&#34;items&#34;"))
}

func TestReconcile_NormalizedTextFallsBackToRawText(t *testing.T) {
	res := Reconcile(decode(t, `{"ocr_raw":{"raw_text":"TOTAL 12.00"}}`))
	assert.Equal(t, "TOTAL 12.00", res.Blocks.NormalizedText)

	res = Reconcile(decode(t, `{"normalized_text":"Milk","ocr_raw":{"raw_text":"TOTAL 12.00"}}`))
	assert.Equal(t, "Milk", res.Blocks.NormalizedText)
}

func TestReconcile_EmptyPayload(t *testing.T) {
	res := Reconcile(Payload{})

	assert.Equal(t, []string{}, res.Items)
	assert.False(t, res.Blocks.Structured.Present)
	assert.Contains(t, res.HTML, NoLinesPlaceholder)
	assert.Empty(t, res.OptionsHTML)
}

func TestRenderOptions(t *testing.T) {
	got := RenderOptions([]string{"Milk", `Tom & "Jerry"`})

	assert.Equal(t, `<option value="Milk">Milk</option><option value="Tom &amp; &#34;Jerry&#34;">Tom &amp; &#34;Jerry&#34;</option>`, got)
}

func ptr(f float64) *float64 { return &f }

package report

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFeatureReport() FeatureReport {
	return FeatureReport{
		Version:  "2023-05-11_feature",
		Features: "110",
		Probes: []Pair{
			{"client_ua", "Mozilla/5.0"},
			{"outer_res", "1024x768"},
			{"chrome", "1"},
		},
		VisitedURL: "https://shop.test/items/",
	}
}

func TestFeatureReportWireOrder(t *testing.T) {
	data, err := json.Marshal(sampleFeatureReport())
	require.NoError(t, err)
	assert.JSONEq(t, `[
		["feature_fp_version","2023-05-11_feature"],
		["features","110"],
		["client_ua","Mozilla/5.0"],
		["outer_res","1024x768"],
		["chrome","1"],
		["visited_url","https://shop.test/items/"]
	]`, string(data))
}

func TestDecodeFeatureReport(t *testing.T) {
	data, err := json.Marshal(sampleFeatureReport())
	require.NoError(t, err)
	got, err := DecodeFeatureReport(data)
	require.NoError(t, err)
	assert.Equal(t, sampleFeatureReport(), got)

	v, ok := got.Probe("outer_res")
	assert.True(t, ok)
	assert.Equal(t, "1024x768", v)
	_, ok = got.Probe("missing")
	assert.False(t, ok)
}

func TestDecodeFeatureReportRejects(t *testing.T) {
	tests := map[string]string{
		"not json":          `[[`,
		"object":            `{"features":"1"}`,
		"too short":         `[["feature_fp_version","v"],["visited_url","u"]]`,
		"non-string value":  `[["feature_fp_version","v"],["features","1"],["x",1],["visited_url","u"]]`,
		"triple":            `[["feature_fp_version","v"],["features","1","2"],["visited_url","u"]]`,
		"version not first": `[["features","1"],["feature_fp_version","v"],["visited_url","u"]]`,
		"bad signature":     `[["feature_fp_version","v"],["features","102"],["visited_url","u"]]`,
		"url not last":      `[["feature_fp_version","v"],["features","1"],["visited_url","u"],["x","y"]]`,
		"duplicate":         `[["feature_fp_version","v"],["features","1"],["x","1"],["x","2"],["visited_url","u"]]`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFeatureReport([]byte(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestDecodeFeatureReportEmptySignature(t *testing.T) {
	r, err := DecodeFeatureReport([]byte(`[["feature_fp_version","v"],["features",""],["visited_url","u"]]`))
	require.NoError(t, err)
	assert.Equal(t, "", r.Features)
	assert.Empty(t, r.Probes)
}

func TestEngineReportRoundTrip(t *testing.T) {
	rep := EngineReport{
		EngineVersion: "3.4.1",
		VisitedURL:    "https://shop.test/",
		VisitorID:     "abc123",
		Components:    json.RawMessage(`{"fonts":{"value":["Arial"],"duration":3}}`),
	}
	data, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"fingerprintjs_version":"3.4.1"},
		{"visited_url":"https://shop.test/"},
		{"visitor_id":"abc123"},
		{"components":{"fonts":{"value":["Arial"],"duration":3}}}
	]`, string(data))

	back, err := DecodeEngineReport(data)
	require.NoError(t, err)
	assert.Equal(t, rep.VisitorID, back.VisitorID)
	assert.JSONEq(t, string(rep.Components), string(back.Components))
}

func TestEngineReportComponents(t *testing.T) {
	data, err := json.Marshal(EngineReport{VisitorID: "x"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"components":{}}`)

	_, err = json.Marshal(EngineReport{Components: json.RawMessage(`[1,2]`)})
	assert.Error(t, err)
}

func TestDecodeEngineReportRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"wrong count": `[{"fingerprintjs_version":"3.4.1"}]`,
		"wrong order": `[{"visited_url":"u"},{"fingerprintjs_version":"v"},{"visitor_id":"x"},{"components":{}}]`,
		"extra key":   `[{"fingerprintjs_version":"v","x":1},{"visited_url":"u"},{"visitor_id":"x"},{"components":{}}]`,
		"bad comps":   `[{"fingerprintjs_version":"v"},{"visited_url":"u"},{"visitor_id":"x"},{"components":"none"}]`,
		"numeric id":  `[{"fingerprintjs_version":"v"},{"visited_url":"u"},{"visitor_id":7},{"components":{}}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEngineReport([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestCSRFToken(t *testing.T) {
	tests := []struct {
		cookie string
		want   string
	}{
		{"csrftoken=abc", "abc"},
		{"sessionid=1; csrftoken=abc; theme=dark", "abc"},
		{"sessionid=1;csrftoken = abc", "abc"},
		{"sessionid=1", ""},
		{"", ""},
		{"csrftoken=", ""},
		{"xcsrftoken=nope", ""},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, CSRFToken(tt.cookie, "csrftoken"), "cookie %q", tt.cookie)
	}
	assert.Equal(t, "v", CSRFToken("a.b=v", "a.b"))
	assert.Equal(t, "", CSRFToken("axb=v", "a.b"))
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		page string
		want string
	}{
		{"https://shop.test/items", "https://shop.test/items/browser_info/"},
		{"https://shop.test/items/", "https://shop.test/items/browser_info/"},
		{"https://shop.test", "https://shop.test/browser_info/"},
		{"https://shop.test/a?q=1#top", "https://shop.test/a/browser_info/"},
	}
	for _, tt := range tests {
		got, err := Endpoint(tt.page, FeatureSegment)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := Endpoint("/relative", FeatureSegment)
	assert.Error(t, err)
}

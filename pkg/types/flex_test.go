package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexIntUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"number", `4`, 4, false},
		{"numeric string", `"4"`, 4, false},
		{"padded string", `" 7 "`, 7, false},
		{"float truncates", `2.9`, 2, false},
		{"float string truncates", `"2.5"`, 2, false},
		{"null is zero", `null`, 0, false},
		{"empty string is zero", `""`, 0, false},
		{"negative", `-2`, -2, false},
		{"garbage errors", `"lots"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexInt
			err := json.Unmarshal([]byte(tt.input), &f)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, int(f))
		})
	}
}

func TestFlexIntMarshal(t *testing.T) {
	out, err := json.Marshal(FlexInt(12))
	require.NoError(t, err)
	assert.Equal(t, "12", string(out))
}

func TestGPUSpecUnmarshal(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantCount   int
		wantIndices []int
	}{
		{"count", `2`, 2, []int{0, 1}},
		{"count string", `"3"`, 3, []int{0, 1, 2}},
		{"index list", `[0, 2]`, 2, []int{0, 2}},
		{"string index list", `["1", "3"]`, 2, []int{1, 3}},
		{"empty list", `[]`, 0, []int{}},
		{"null", `null`, 0, []int{}},
		{"negative count clamps", `-1`, 0, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var g GPUSpec
			require.NoError(t, json.Unmarshal([]byte(tt.input), &g))
			assert.Equal(t, tt.wantCount, g.Count())
			assert.Equal(t, tt.wantIndices, g.Indices())
		})
	}
}

func TestGPUSpecMarshal(t *testing.T) {
	out, err := json.Marshal(GPUCount(2))
	require.NoError(t, err)
	assert.Equal(t, "2", string(out))

	out, err = json.Marshal(GPUIndices([]int{0, 2}))
	require.NoError(t, err)
	assert.Equal(t, "[0,2]", string(out))
}

func TestStringListUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"array", `["gpu","cpu"]`, []string{"gpu", "cpu"}},
		{"comma string", `"gpu, cpu"`, []string{"gpu", "cpu"}},
		{"single value", `"gpu"`, []string{"gpu"}},
		{"empty string", `""`, nil},
		{"null", `null`, nil},
		{"stray commas", `"a,,b, "`, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l StringList
			require.NoError(t, json.Unmarshal([]byte(tt.input), &l))
			assert.Equal(t, StringList(tt.want), l)
		})
	}
}

func TestUserIDUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"number", `1000`, "1000"},
		{"numeric string", `"1000"`, "1000"},
		{"leading zeros normalized", `"007"`, "7"},
		{"non-numeric passes through", `"alice"`, "alice"},
		{"null empty", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u UserID
			require.NoError(t, json.Unmarshal([]byte(tt.input), &u))
			assert.Equal(t, tt.want, string(u))
		})
	}
}

func TestResourcesRoundTrip(t *testing.T) {
	var r Resources
	require.NoError(t, json.Unmarshal([]byte(`{"cpus":"2","gpus":[0,3]}`), &r))
	assert.Equal(t, 2, r.NeedCPUs())
	assert.Equal(t, 2, r.NeedGPUs())
	assert.Equal(t, []int{0, 3}, r.GPUs.Indices())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cpus":2,"gpus":[0,3]}`, string(out))
}

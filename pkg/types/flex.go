package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexInt is an int that accepts JSON numbers and numeric strings.
// Observed on chores_limit, gpus counts and owner fields.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var err error
		s, err = unquote(s)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil {
		*f = FlexInt(int(fl))
		return nil
	}
	return fmt.Errorf("invalid integer value %q", s)
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(f), 10), nil
}

// GPUSpec is a GPU request: either a count or an explicit index list.
// JSON forms accepted: 2, "2", [0, 2], null.
type GPUSpec struct {
	indices []int
	count   int
	isList  bool
}

// GPUCount builds the count form.
func GPUCount(n int) GPUSpec {
	return GPUSpec{count: n}
}

// GPUIndices builds the explicit-index form.
func GPUIndices(idx []int) GPUSpec {
	return GPUSpec{indices: idx, isList: true}
}

// Count is the number of devices requested.
func (g GPUSpec) Count() int {
	if g.isList {
		return len(g.indices)
	}
	if g.count > 0 {
		return g.count
	}
	return 0
}

// Indices is the device list the chore may see: the explicit list, or
// 0..count-1 for the count form.
func (g GPUSpec) Indices() []int {
	if g.isList {
		return g.indices
	}
	out := make([]int, 0, g.Count())
	for i := 0; i < g.Count(); i++ {
		out = append(out, i)
	}
	return out
}

func (g *GPUSpec) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*g = GPUSpec{}
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var raw []FlexInt
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("invalid gpu list: %w", err)
		}
		idx := make([]int, len(raw))
		for i, v := range raw {
			idx[i] = int(v)
		}
		*g = GPUIndices(idx)
		return nil
	}
	var n FlexInt
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid gpu count: %w", err)
	}
	*g = GPUCount(int(n))
	return nil
}

func (g GPUSpec) MarshalJSON() ([]byte, error) {
	if g.isList {
		return json.Marshal(g.indices)
	}
	return strconv.AppendInt(nil, int64(g.Count()), 10), nil
}

// StringList accepts a JSON array of strings or a single comma-separated
// string. Observed on prereg services.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var raw []string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*l = raw
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = nil
	for _, part := range strings.Split(one, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// UserID normalizes a JSON number or string uid to its decimal string form
// ("007" and 7 both become "7"; non-numeric strings pass through).
type UserID string

func (u *UserID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*u = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var err error
		if s, err = unquote(s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*u = UserID(strconv.FormatInt(n, 10))
		return nil
	}
	*u = UserID(s)
	return nil
}

func unquote(s string) (string, error) {
	var out string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return "", fmt.Errorf("invalid string value %s", s)
	}
	return out, nil
}

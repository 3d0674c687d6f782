package store

import (
	"fmt"
	"sort"

	"github.com/kart-io/vecstore/pkg/utils/errors"
	"github.com/kart-io/vecstore/pkg/validator"
)

// Filter 按元数据字段过滤记录。
//
// 标量值（string、bool、整数、浮点数）表示相等；切片值表示集合成员。
// 多个键之间为 AND 关系。
type Filter map[string]any

// condition 是规范化后的单个过滤条件。
// 整数规范化为 int64，浮点数规范化为 float64。
type condition struct {
	key    string
	values []any
	in     bool
}

// Validate 校验过滤条件，失败时返回 ErrInvalidFilter。
func (f Filter) Validate() error {
	_, err := f.conditions()
	return err
}

// conditions 按键名排序返回规范化后的条件。
func (f Filter) conditions() ([]condition, error) {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]condition, 0, len(keys))
	for _, k := range keys {
		if !validator.IsIdentifier(k) {
			return nil, errors.ErrInvalidFilter.WithMessagef("invalid filter key %q", k)
		}
		values, in, err := normalizeFilterValue(f[k])
		if err != nil {
			return nil, errors.ErrInvalidFilter.WithMessagef("filter key %q: %v", k, err)
		}
		conds = append(conds, condition{key: k, values: values, in: in})
	}
	return conds, nil
}

func normalizeFilterValue(v any) ([]any, bool, error) {
	switch vv := v.(type) {
	case []string:
		return normalizeList(len(vv), func(i int) any { return vv[i] })
	case []int:
		return normalizeList(len(vv), func(i int) any { return vv[i] })
	case []int64:
		return normalizeList(len(vv), func(i int) any { return vv[i] })
	case []float64:
		return normalizeList(len(vv), func(i int) any { return vv[i] })
	case []any:
		return normalizeList(len(vv), func(i int) any { return vv[i] })
	}
	s, ok := normalizeScalar(v)
	if !ok {
		return nil, false, fmt.Errorf("unsupported value type %T", v)
	}
	return []any{s}, false, nil
}

func normalizeList(n int, at func(int) any) ([]any, bool, error) {
	if n == 0 {
		return nil, true, fmt.Errorf("empty value list")
	}
	out := make([]any, n)
	for i := 0; i < n; i++ {
		s, ok := normalizeScalar(at(i))
		if !ok {
			return nil, true, fmt.Errorf("unsupported list element type %T", at(i))
		}
		out[i] = s
	}
	return out, true, nil
}

func normalizeScalar(v any) (any, bool) {
	switch vv := v.(type) {
	case string, bool, int64, float64:
		return vv, true
	case int:
		return int64(vv), true
	case int32:
		return int64(vv), true
	case uint32:
		return int64(vv), true
	case float32:
		return float64(vv), true
	default:
		return nil, false
	}
}

// matches 判断元数据是否满足全部条件，供内存后端使用。
func matches(conds []condition, md Metadata) bool {
	for _, c := range conds {
		got, ok := md[c.key]
		if !ok {
			return false
		}
		hit := false
		for _, want := range c.values {
			if scalarEqual(got, want) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// scalarEqual 比较元数据值与规范化后的过滤值，数值按 float64 比较。
func scalarEqual(got, want any) bool {
	g, ok := normalizeScalar(got)
	if !ok {
		return false
	}
	if gn, ok := asFloat(g); ok {
		wn, ok := asFloat(want)
		return ok && gn == wn
	}
	return g == want
}

func asFloat(v any) (float64, bool) {
	switch vv := v.(type) {
	case int64:
		return float64(vv), true
	case float64:
		return vv, true
	default:
		return 0, false
	}
}

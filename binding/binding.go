package binding

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ByLCY/chartfolio/layout"
)

var exprPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Interpolate 将文本中的 ${path.to.value} 替换为 data 中的值。
// 若 data 为空或路径不存在，则保留原占位符。
func Interpolate(text string, data any) string {
	if data == nil || !strings.Contains(text, "${") {
		return text
	}
	return exprPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := exprPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		path := strings.TrimSpace(groups[1])
		if path == "" {
			return match
		}
		if val, ok := resolvePath(data, path); ok {
			return fmt.Sprint(val)
		}
		return match
	})
}

// PageScope 构造单页的插值数据：${page} 从 1 开始，${pages} 为总页数，
// ${meta.key} 取自 meta。
func PageScope(page, pages int, meta map[string]string) map[string]any {
	m := make(map[string]any, len(meta))
	for k, v := range meta {
		m[k] = v
	}
	return map[string]any{"page": page, "pages": pages, "meta": m}
}

// MetaVars 将文档元信息与额外的键值合并为 ${meta.*} 变量，extra 优先。
func MetaVars(meta layout.DocumentMeta, extra map[string]string) map[string]string {
	vars := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			vars[k] = v
		}
	}
	set("title", meta.Title)
	set("author", meta.Author)
	set("subject", meta.Subject)
	set("creator", meta.Creator)
	set("keywords", strings.Join(meta.Keywords, ", "))
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

// Header 返回对页眉中所有文本完成插值后的副本。
func Header(h layout.Header, data any) layout.Header {
	out := layout.Header{
		Title:         Interpolate(h.Title, data),
		Subtitle:      Interpolate(h.Subtitle, data),
		FirstPageOnly: h.FirstPageOnly,
	}
	if len(h.Fields) > 0 {
		out.Fields = make([]layout.HeaderField, len(h.Fields))
		for i, f := range h.Fields {
			out.Fields[i] = layout.HeaderField{Label: Interpolate(f.Label, data), Value: Interpolate(f.Value, data)}
		}
	}
	if len(h.Rows) > 0 {
		out.Rows = make([][]string, len(h.Rows))
		for i, row := range h.Rows {
			cells := make([]string, len(row))
			for j, cell := range row {
				cells[j] = Interpolate(cell, data)
			}
			out.Rows[i] = cells
		}
	}
	return out
}

func resolvePath(data any, path string) (any, bool) {
	current := data
	for _, segment := range strings.Split(path, ".") {
		name, indexes := parseSegment(segment)
		if name != "" {
			var ok bool
			if current, ok = descendMap(current, name); !ok {
				return nil, false
			}
		}
		for _, idxStr := range indexes {
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, false
			}
			var ok bool
			if current, ok = descendArray(current, idx); !ok {
				return nil, false
			}
		}
	}
	return current, true
}

func parseSegment(segment string) (string, []string) {
	i := strings.Index(segment, "[")
	if i == -1 {
		return segment, nil
	}
	name, rest := segment[:i], segment[i:]
	var indexes []string
	for len(rest) > 0 && rest[0] == '[' {
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			break
		}
		indexes = append(indexes, rest[1:end])
		rest = rest[end+1:]
	}
	return name, indexes
}

func descendMap(current any, key string) (any, bool) {
	switch c := current.(type) {
	case map[string]any:
		val, ok := c[key]
		return val, ok
	case map[string]string:
		val, ok := c[key]
		return val, ok
	default:
		return nil, false
	}
}

func descendArray(current any, idx int) (any, bool) {
	switch c := current.(type) {
	case []any:
		if idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	case []string:
		if idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	default:
		return nil, false
	}
}

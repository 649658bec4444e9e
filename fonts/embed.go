package fonts

import (
	"fmt"
	"strings"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Names of the bundled faces.
const (
	Regular = "go-regular"
	Bold    = "go-bold"
)

// Load 返回内置字体的字节数据，name 可写为 "embed:go-bold" 或直接 "go-bold"。
func Load(name string) ([]byte, error) {
	switch strings.TrimPrefix(strings.ToLower(name), "embed:") {
	case Regular, "regular", "":
		return goregular.TTF, nil
	case Bold, "bold":
		return gobold.TTF, nil
	default:
		return nil, fmt.Errorf("读取内置字体 %s 失败: 未知字体", name)
	}
}

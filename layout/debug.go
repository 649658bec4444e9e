package layout

import (
	"encoding/json"
	"os"
)

// PlanDebug 记录一次导出的分页与放置结果，便于调试或可视化。
type PlanDebug struct {
	Geometry   PageGeometry `json:"geometry"`
	ContentBox Rect         `json:"contentBox"`
	Pages      []PageDebug  `json:"pages"`
}

// PageDebug 为单页的调试信息。
type PageDebug struct {
	Index     int            `json:"index"`
	Items     []string       `json:"items"`
	ImageSize Size           `json:"imageSize"`
	Placement RenderGeometry `json:"placement"`
	Unready   int            `json:"unready,omitempty"`
}

// WriteDebugJSON 将调试信息输出为 JSON。
func WriteDebugJSON(plan *PlanDebug, path string) error {
	if plan == nil {
		return nil
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

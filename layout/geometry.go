package layout

// FitWidth 计算一张 imgW×imgH 像素图片在内容区域中的放置位置。
// 先按内容宽度等比缩放；若高度超出内容区域，再整体等比缩小到内容高度并水平居中。
// 不会为了填满高度而放大。
func FitWidth(imgW, imgH float64, box Rect) RenderGeometry {
	if imgW <= 0 || imgH <= 0 || box.Width <= 0 || box.Height <= 0 {
		return RenderGeometry{X: box.X, Y: box.Y}
	}
	width := box.Width
	height := width * imgH / imgW
	if height <= box.Height {
		return RenderGeometry{X: box.X, Y: box.Y, Width: width, Height: height}
	}
	scale := box.Height / height
	width *= scale
	height = box.Height
	return RenderGeometry{
		X:      box.X + (box.Width-width)/2,
		Y:      box.Y,
		Width:  width,
		Height: height,
	}
}

// SliceOffsets 返回把高度为 imageHeight 的图片逐页切片时，每页的纵向偏移
// （相对内容区域顶部，依次递减一个内容高度），直到剩余高度小于 epsilon。
func SliceOffsets(imageHeight, contentHeight, epsilon float64) []float64 {
	if imageHeight <= 0 || contentHeight <= 0 {
		return nil
	}
	offsets := []float64{0}
	remaining := imageHeight - contentHeight
	for remaining > epsilon {
		offsets = append(offsets, offsets[len(offsets)-1]-contentHeight)
		remaining -= contentHeight
	}
	return offsets
}

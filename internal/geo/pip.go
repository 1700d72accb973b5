package geo

// 文档注释：点入多边形判定（Even-Odd）
// 背景：判断某点是否落在门店等时圈内；支持洞与多面。
// 约束：边界上的点结果不稳定，调用方不应依赖临界值。
func Contains(ps []Polygon, lat, lng float64) bool {
	for _, p := range ps {
		if inPolygon(p, lng, lat) {
			return true
		}
	}
	return false
}

func inPolygon(p Polygon, x, y float64) bool {
	if len(p) == 0 || !inRing(p[0], x, y) {
		return false
	}
	for i := 1; i < len(p); i++ {
		if inRing(p[i], x, y) {
			return false
		}
	}
	return true
}

// 射线法
func inRing(ring Ring, x, y float64) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi+1e-12)+xi {
			inside = !inside
		}
	}
	return inside
}

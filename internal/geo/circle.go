package geo

import (
	"encoding/json"
	"math"
)

const (
	// MetersPerDegreeLat：平面近似下每度纬度对应米数
	MetersPerDegreeLat = 111320.0
	// WalkMetersPerMinute：5 km/h 名义步速
	WalkMetersPerMinute = 83.3
	// CircleSteps：近似圆的分段数，环上共 CircleSteps+1 个点
	CircleSteps = 32
)

// 文档注释：以平面近似生成圆形环
// 背景：外部服务不可用时用于兜底展示；经度方向按 cos(lat) 缩放。
// 约束：返回 CircleSteps+1 个点，最后一点与第一点重合。
func CircleRing(lat, lng, radiusMeters float64) Ring {
	ring := make(Ring, 0, CircleSteps+1)
	cosLat := math.Cos(lat * math.Pi / 180)
	for i := 0; i <= CircleSteps; i++ {
		angle := float64(i) / CircleSteps * 2 * math.Pi
		dx := radiusMeters * math.Cos(angle)
		dy := radiusMeters * math.Sin(angle)
		dLat := dy / MetersPerDegreeLat
		dLng := dx / (MetersPerDegreeLat * cosLat)
		ring = append(ring, Position{lng + dLng, lat + dLat})
	}
	// 浮点误差下 cos(2π) 不严格为 1，强制闭合
	ring[CircleSteps] = append(Position(nil), ring[0]...)
	return ring
}

// FallbackCircle：步行时长对应的近似等时圈（FeatureCollection 形态，与服务响应同构）
func FallbackCircle(lat, lng float64, minutes int) *FeatureCollection {
	ring := CircleRing(lat, lng, float64(minutes)*WalkMetersPerMinute)
	return &FeatureCollection{
		Type: "FeatureCollection",
		Features: []Feature{{
			Type:     "Feature",
			Geometry: NewPolygonGeometry(ring),
			Properties: map[string]any{
				"mode":     "walk",
				"range":    map[string]any{"value": minutes * 60, "unit": "seconds"},
				"fallback": true,
			},
		}},
	}
}

// Decode：解析服务原始响应
func Decode(raw []byte) (*FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

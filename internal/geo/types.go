// 包 geo：坐标、GeoJSON 几何与近似计算，供提取、等时圈与覆盖分析共用
package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Position：GeoJSON 坐标 [lng, lat(, alt)]
type Position []float64

// Ring：闭合环，首尾点相同
type Ring []Position

// Polygon：第一环为外环，其后为洞
type Polygon []Ring

// Geometry：仅承载 Polygon / MultiPolygon / Point；坐标保留原始 JSON，按需解析
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature：GeoJSON 要素
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties,omitempty"`
}

// FeatureCollection：等时圈服务与预计算文件的统一载体
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// BBox：minLng, minLat, maxLng, maxLat
type BBox [4]float64

// NewPolygonGeometry：由环集合构造 Polygon 几何
func NewPolygonGeometry(rings ...Ring) Geometry {
	b, _ := json.Marshal(rings)
	return Geometry{Type: "Polygon", Coordinates: b}
}

// NewMultiPolygonGeometry：由多面构造 MultiPolygon 几何
func NewMultiPolygonGeometry(polys ...Polygon) Geometry {
	b, _ := json.Marshal(polys)
	return Geometry{Type: "MultiPolygon", Coordinates: b}
}

// Polygons：将 Polygon / MultiPolygon 统一展开为多面
// 约束：其它几何类型返回错误；坐标少于两维的点被丢弃
func (g Geometry) Polygons() ([]Polygon, error) {
	switch strings.ToLower(g.Type) {
	case "polygon":
		var p Polygon
		if err := json.Unmarshal(g.Coordinates, &p); err != nil {
			return nil, fmt.Errorf("decode polygon: %w", err)
		}
		return []Polygon{clean(p)}, nil
	case "multipolygon":
		var mp []Polygon
		if err := json.Unmarshal(g.Coordinates, &mp); err != nil {
			return nil, fmt.Errorf("decode multipolygon: %w", err)
		}
		for i := range mp {
			mp[i] = clean(mp[i])
		}
		return mp, nil
	}
	return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
}

func clean(p Polygon) Polygon {
	out := make(Polygon, 0, len(p))
	for _, r := range p {
		rr := make(Ring, 0, len(r))
		for _, pos := range r {
			if len(pos) >= 2 {
				rr = append(rr, pos)
			}
		}
		out = append(out, rr)
	}
	return out
}

// Shape：返回首个要素的几何
func (fc *FeatureCollection) Shape() (Geometry, bool) {
	if fc == nil || len(fc.Features) == 0 {
		return Geometry{}, false
	}
	return fc.Features[0].Geometry, true
}

// Valid：至少含一个可展开为多面的要素
func (fc *FeatureCollection) Valid() bool {
	g, ok := fc.Shape()
	if !ok {
		return false
	}
	ps, err := g.Polygons()
	return err == nil && len(ps) > 0
}

// Truncate：将所有 Polygon/MultiPolygon 坐标截断到 decimals 位小数，用于压缩预计算文件
// 约束：原地修改；仅保留经纬两维；无法解析的几何保持原样
func (fc *FeatureCollection) Truncate(decimals int) {
	if fc == nil {
		return
	}
	for i := range fc.Features {
		g := &fc.Features[i].Geometry
		ps, err := g.Polygons()
		if err != nil {
			continue
		}
		for _, p := range ps {
			for _, r := range p {
				for k, pos := range r {
					r[k] = Position{Round(pos[0], decimals), Round(pos[1], decimals)}
				}
			}
		}
		if strings.EqualFold(g.Type, "polygon") {
			*g = NewPolygonGeometry(ps[0]...)
		} else {
			*g = NewMultiPolygonGeometry(ps...)
		}
	}
}

// Round：按小数位四舍五入
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Bounds：多面的包围盒
func Bounds(ps []Polygon) BBox {
	b := BBox{180, 90, -180, -90}
	for _, p := range ps {
		for _, r := range p {
			for _, pt := range r {
				if pt[0] < b[0] {
					b[0] = pt[0]
				}
				if pt[1] < b[1] {
					b[1] = pt[1]
				}
				if pt[0] > b[2] {
					b[2] = pt[0]
				}
				if pt[1] > b[3] {
					b[3] = pt[1]
				}
			}
		}
	}
	return b
}

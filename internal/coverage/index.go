// 包 coverage：门店覆盖分析（邻近检索、重叠度、候选门店、位置可达性）
package coverage

import (
	"sort"

	"darkstore-coverage/internal/darkstore"
	"darkstore-coverage/internal/geo"

	"github.com/dhconnelly/rtreego"
)

const (
	// NeighborRadiusDeg：重叠度判定半径（约 500 m）
	NeighborRadiusDeg = 0.005
	// NearbyRadiusDeg：可达性检查的门店搜索半径（约 2 km）
	NearbyRadiusDeg = 0.02
)

type entry struct {
	idx   int
	store darkstore.Store
	rect  rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

// Index：门店空间索引，坐标系为 (lng, lat)
type Index struct {
	tree *rtreego.Rtree
	n    int
}

// NewIndex：按输入顺序建立索引
func NewIndex(stores []darkstore.Store) *Index {
	tree := rtreego.NewTree(2, 25, 50)
	for i, s := range stores {
		tree.Insert(&entry{idx: i, store: s, rect: rtreego.Point{s.Lng, s.Lat}.ToRect(1e-9)})
	}
	return &Index{tree: tree, n: len(stores)}
}

// Len：索引内门店数
func (x *Index) Len() int { return x.n }

// 文档注释：返回与 (lat, lng) 的经纬度平面距离严格小于 radius 的门店
// 约束：结果按建索引时的输入顺序排列；skip 为输入下标，传 -1 表示不排除
func (x *Index) within(lat, lng, radius float64, skip int) []*entry {
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{lng - radius, lat - radius},
		rtreego.Point{lng + radius, lat + radius},
	)
	if err != nil {
		return nil
	}
	var out []*entry
	for _, sp := range x.tree.SearchIntersect(rect) {
		e := sp.(*entry)
		if e.idx == skip {
			continue
		}
		if geo.DegreeDistance(lat, lng, e.store.Lat, e.store.Lng) < radius {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].idx < out[j].idx })
	return out
}

// Within：半径内的门店
func (x *Index) Within(lat, lng, radius float64) []darkstore.Store {
	es := x.within(lat, lng, radius, -1)
	out := make([]darkstore.Store, 0, len(es))
	for _, e := range es {
		out = append(out, e.store)
	}
	return out
}

// 文档注释：重叠度，即存在 NeighborRadiusDeg 内其他门店的门店占比（四舍五入的百分数）
// 参数：
// - generated：已生成的等时圈数量，少于 2 时重叠度无意义，返回 0。
func Redundancy(stores []darkstore.Store, generated int) int {
	if generated < 2 || len(stores) == 0 {
		return 0
	}
	x := NewIndex(stores)
	dup := 0
	for i, s := range stores {
		if len(x.within(s.Lat, s.Lng, NeighborRadiusDeg, i)) > 0 {
			dup++
		}
	}
	return int(geo.Round(float64(dup)/float64(len(stores))*100, 0))
}

// ZoneCandidates：按到中心的平方距离升序取前 limit 个门店；limit<=0 表示不截断
func ZoneCandidates(stores []darkstore.Store, centerLat, centerLng float64, limit int) []darkstore.Store {
	sorted := append([]darkstore.Store(nil), stores...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return geo.DegreeDistanceSq(sorted[i].Lat, sorted[i].Lng, centerLat, centerLng) <
			geo.DegreeDistanceSq(sorted[j].Lat, sorted[j].Lng, centerLat, centerLng)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// 包 darkstore：门店记录及按城市、品牌的筛选
package darkstore

import (
	"sort"

	"darkstore-coverage/internal/refdata"
)

// Store：一次解析产生的门店记录，创建后只读
type Store struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Brand       string  `json:"brand"`
	Description string  `json:"description,omitempty"`
}

// InCity：保留落在城市包围盒内的门店，保持原顺序
func InCity(stores []Store, c refdata.City) []Store {
	out := make([]Store, 0, len(stores))
	for _, s := range stores {
		if c.Bounds.Contains(s.Lat, s.Lng) {
			out = append(out, s)
		}
	}
	return out
}

// WithBrands：保留品牌在集合内的门店；集合为空时不过滤
func WithBrands(stores []Store, brands []string) []Store {
	if len(brands) == 0 {
		return stores
	}
	set := make(map[string]struct{}, len(brands))
	for _, b := range brands {
		set[b] = struct{}{}
	}
	out := make([]Store, 0, len(stores))
	for _, s := range stores {
		if _, ok := set[s.Brand]; ok {
			out = append(out, s)
		}
	}
	return out
}

// BrandCount：单个品牌的门店数
type BrandCount struct {
	Brand string `json:"brand"`
	Count int    `json:"count"`
}

// CountBrands：按数量降序统计，数量相同按品牌名排序
func CountBrands(stores []Store) []BrandCount {
	m := map[string]int{}
	for _, s := range stores {
		m[s.Brand]++
	}
	out := make([]BrandCount, 0, len(m))
	for b, n := range m {
		out = append(out, BrandCount{Brand: b, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Brand < out[j].Brand
	})
	return out
}

package coverage

import (
	"context"
	"fmt"

	"darkstore-coverage/internal/darkstore"
	"darkstore-coverage/internal/geo"
	"darkstore-coverage/internal/isochrone"
)

// Fetcher：单点等时圈来源，*isochrone.Provider 即为实现
type Fetcher interface {
	Fetch(ctx context.Context, q isochrone.Query) (isochrone.Isochrone, error)
}

// Access：附近某门店对目标位置的可达情况
type Access struct {
	Store     darkstore.Store `json:"store"`
	Reachable bool            `json:"reachable"`
	Fallback  bool            `json:"fallback"`
}

// AccessReport：位置可达性结果
type AccessReport struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Minutes   int      `json:"minutes"`
	Mode      string   `json:"mode"`
	Nearby    []Access `json:"nearby"`
	Reachable int      `json:"reachable"`
}

// 文档注释：检查附近门店能否在给定时长内到达目标位置
// 背景：取 NearbyRadiusDeg 内的门店逐个获取等时圈，以点是否落在等时圈内判定可达。
// 约束：等时圈不可解析时视为不可达；ctx 取消时返回已检查部分与错误。
func Accessibility(ctx context.Context, f Fetcher, x *Index, lat, lng float64, minutes int, mode, city string) (AccessReport, error) {
	rep := AccessReport{Lat: lat, Lng: lng, Minutes: minutes, Mode: mode, Nearby: []Access{}}
	for _, s := range x.Within(lat, lng, NearbyRadiusDeg) {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		iso, err := f.Fetch(ctx, isochrone.Query{Lat: s.Lat, Lng: s.Lng, Minutes: minutes, Mode: mode, City: city})
		if err != nil {
			return rep, fmt.Errorf("isochrone for store %d: %w", s.ID, err)
		}
		a := Access{Store: s, Fallback: iso.Fallback}
		if fc, err := geo.Decode(iso.Polygon); err == nil {
			if g, ok := fc.Shape(); ok {
				if ps, err := g.Polygons(); err == nil {
					a.Reachable = geo.Contains(ps, lat, lng)
				}
			}
		}
		if a.Reachable {
			rep.Reachable++
		}
		rep.Nearby = append(rep.Nearby, a)
	}
	return rep, nil
}

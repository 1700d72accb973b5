package api

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Locator：IP 到经纬度的解析
type Locator interface {
	Locate(ip net.IP) (lat, lng float64, ok bool)
}

// GeoIP：基于 GeoLite2/GeoIP2 City 库的 Locator
type GeoIP struct {
	db *geoip2.Reader
}

// OpenGeoIP：打开 mmdb 文件
func OpenGeoIP(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIP{db: db}, nil
}

// Locate：库中无记录或坐标为空时返回 ok=false
func (g *GeoIP) Locate(ip net.IP) (float64, float64, bool) {
	if ip == nil {
		return 0, 0, false
	}
	rec, err := g.db.City(ip)
	if err != nil {
		return 0, 0, false
	}
	lat, lng := rec.Location.Latitude, rec.Location.Longitude
	if lat == 0 && lng == 0 {
		return 0, 0, false
	}
	return lat, lng, true
}

func (g *GeoIP) Close() error { return g.db.Close() }

// 包 refdata：城市、片区车速与品牌规则等参考数据
// 背景：默认数据内嵌在二进制中，可通过 REFDATA_PATH 指定同结构 YAML 覆盖；加载后只读。
package refdata

import (
	"bytes"
	_ "embed"
	"math"
	"strings"

	"darkstore-coverage/internal/geo"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Unknown：未命中任何品牌规则时的品牌取值
const Unknown = "unknown"

//go:embed default.yaml
var defaultYAML []byte

// LatLng：经纬度点
type LatLng struct {
	Lat float64 `mapstructure:"lat" json:"lat"`
	Lng float64 `mapstructure:"lng" json:"lng"`
}

// Bounds：城市包围盒，边界包含在内
type Bounds struct {
	MinLat float64 `mapstructure:"min_lat" json:"min_lat"`
	MaxLat float64 `mapstructure:"max_lat" json:"max_lat"`
	MinLng float64 `mapstructure:"min_lng" json:"min_lng"`
	MaxLng float64 `mapstructure:"max_lng" json:"max_lng"`
}

// Contains：点是否落在包围盒内（含边界）
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// Area：命名片区及其骑行车速
type Area struct {
	Name     string  `mapstructure:"name" json:"name"`
	Lat      float64 `mapstructure:"lat" json:"lat"`
	Lng      float64 `mapstructure:"lng" json:"lng"`
	SpeedKmh float64 `mapstructure:"speed_kmh" json:"speed_kmh"`
}

// City：城市参考数据
type City struct {
	Key    string `mapstructure:"key" json:"key"`
	Name   string `mapstructure:"name" json:"name"`
	Center LatLng `mapstructure:"center" json:"center"`
	Bounds Bounds `mapstructure:"bounds" json:"bounds"`
	Areas  []Area `mapstructure:"areas" json:"areas"`
}

// Brand：品牌分类规则；Keywords 按小写子串匹配
type Brand struct {
	Key      string   `mapstructure:"key" json:"key"`
	Label    string   `mapstructure:"label" json:"label"`
	Color    string   `mapstructure:"color" json:"color"`
	Keywords []string `mapstructure:"keywords" json:"keywords"`
}

// 文档注释：参考数据快照
// 约束：Brands 与 Cities 的顺序即规则优先级与展示顺序；加载后不得修改。
type Data struct {
	DefaultSpeedKmh float64 `mapstructure:"default_speed_kmh"`
	Brands          []Brand `mapstructure:"brands"`
	Cities          []City  `mapstructure:"cities"`
}

// 文档注释：加载参考数据
// 参数：
// - path：覆盖文件路径；为空时仅使用内嵌默认值。
// 返回：校验通过的数据快照。
// 约束：覆盖文件中出现的顶层键整体替换默认值（列表不做逐项合并）。
func Load(path string) (*Data, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, errors.Wrap(err, "read embedded refdata")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "merge refdata %s", path)
		}
	}
	var d Data
	if err := v.Unmarshal(&d); err != nil {
		return nil, errors.Wrap(err, "decode refdata")
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	for i := range d.Brands {
		for k, kw := range d.Brands[i].Keywords {
			d.Brands[i].Keywords[k] = strings.ToLower(kw)
		}
	}
	return &d, nil
}

// Default：内嵌默认数据；内嵌文件损坏属于构建错误，直接 panic
func Default() *Data {
	d, err := Load("")
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Data) validate() error {
	if len(d.Cities) == 0 {
		return errors.New("refdata: no cities")
	}
	if len(d.Brands) == 0 {
		return errors.New("refdata: no brands")
	}
	if d.DefaultSpeedKmh <= 0 {
		d.DefaultSpeedKmh = 20
	}
	seen := map[string]bool{}
	for _, c := range d.Cities {
		if c.Key == "" || seen["city:"+c.Key] {
			return errors.Errorf("refdata: empty or duplicate city key %q", c.Key)
		}
		seen["city:"+c.Key] = true
	}
	for _, b := range d.Brands {
		if b.Key == "" || b.Key == Unknown || seen["brand:"+b.Key] {
			return errors.Errorf("refdata: invalid brand key %q", b.Key)
		}
		if len(b.Keywords) == 0 {
			return errors.Errorf("refdata: brand %q has no keywords", b.Key)
		}
		seen["brand:"+b.Key] = true
	}
	return nil
}

// Classify：按品牌顺序做大小写不敏感的子串匹配，首条命中即返回
func (d *Data) Classify(name string) string {
	lower := strings.ToLower(name)
	for _, b := range d.Brands {
		for _, kw := range b.Keywords {
			if strings.Contains(lower, kw) {
				return b.Key
			}
		}
	}
	return Unknown
}

// Brand：按键查找品牌
func (d *Data) Brand(key string) (Brand, bool) {
	for _, b := range d.Brands {
		if b.Key == key {
			return b, true
		}
	}
	return Brand{}, false
}

// BrandKeys：全部品牌键（按规则顺序）
func (d *Data) BrandKeys() []string {
	out := make([]string, 0, len(d.Brands))
	for _, b := range d.Brands {
		out = append(out, b.Key)
	}
	return out
}

// City：按键查找城市
func (d *Data) City(key string) (City, bool) {
	for _, c := range d.Cities {
		if c.Key == key {
			return c, true
		}
	}
	return City{}, false
}

// 文档注释：取坐标所在片区的骑行车速（km/h）
// 背景：以经纬度平面欧氏距离取最近片区，城市未知或无片区时返回默认车速。
func (d *Data) SpeedFor(cityKey string, lat, lng float64) float64 {
	c, ok := d.City(cityKey)
	if !ok || len(c.Areas) == 0 {
		return d.DefaultSpeedKmh
	}
	best := math.Inf(1)
	speed := 0.0
	for _, a := range c.Areas {
		if dist := geo.DegreeDistanceSq(a.Lat, a.Lng, lat, lng); dist < best {
			best = dist
			speed = a.SpeedKmh
		}
	}
	if speed <= 0 {
		return d.DefaultSpeedKmh
	}
	return speed
}

// CityFor：包围盒命中的第一个城市；均未命中时取中心最近的城市
func (d *Data) CityFor(lat, lng float64) City {
	for _, c := range d.Cities {
		if c.Bounds.Contains(lat, lng) {
			return c
		}
	}
	best := d.Cities[0]
	bestDist := math.Inf(1)
	for _, c := range d.Cities {
		if dist := geo.DegreeDistanceSq(c.Center.Lat, c.Center.Lng, lat, lng); dist < bestDist {
			bestDist = dist
			best = c
		}
	}
	return best
}

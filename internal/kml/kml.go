// 包 kml：门店标注文件（KML）与门店记录之间的转换
package kml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"darkstore-coverage/internal/darkstore"
	"darkstore-coverage/internal/refdata"
)

// Classifier：由名称推断品牌；*refdata.Data 即为实现
type Classifier interface {
	Classify(name string) string
}

type kmlRoot struct {
	XMLName  xml.Name
	Document *kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name       string         `xml:"name,omitempty"`
	Folders    []kmlFolder    `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlFolder struct {
	Name       string         `xml:"name"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name        string    `xml:"name"`
	Description string    `xml:"description"`
	Point       *kmlPoint `xml:"Point"`
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

// 文档注释：解析 KML 文本为门店列表
// 背景：文档下存在 Folder 时先按文件夹名识别品牌，已识别的品牌由其下所有标注继承；
// 文件夹品牌未知或文档无 Folder 时按标注自身名称识别。
// 返回：按文档遍历顺序输出，ID 在整个结果上从 1 连续编号；坐标无效的标注被跳过且不占用编号。
// 约束：根节点不是 kml 或缺少 Document 时返回空结果；无法解析的 XML 返回错误。
func Parse(text string, c Classifier) ([]darkstore.Store, error) {
	if strings.TrimSpace(text) == "" {
		return []darkstore.Store{}, nil
	}
	var root kmlRoot
	if err := xml.Unmarshal([]byte(text), &root); err != nil {
		return nil, fmt.Errorf("parse kml: %w", err)
	}
	stores := []darkstore.Store{}
	if root.XMLName.Local != "kml" || root.Document == nil {
		return stores, nil
	}
	add := func(pm kmlPlacemark, groupBrand string) {
		lat, lng, ok := pointOf(pm)
		if !ok {
			return
		}
		name := strings.TrimSpace(pm.Name)
		brand := groupBrand
		if brand == refdata.Unknown {
			brand = c.Classify(name)
		}
		id := len(stores) + 1
		if name == "" {
			name = fmt.Sprintf("Store %d", id)
		}
		stores = append(stores, darkstore.Store{
			ID:          id,
			Name:        name,
			Lat:         lat,
			Lng:         lng,
			Brand:       brand,
			Description: strings.TrimSpace(pm.Description),
		})
	}
	doc := root.Document
	if len(doc.Folders) > 0 {
		for _, f := range doc.Folders {
			brand := c.Classify(strings.TrimSpace(f.Name))
			for _, pm := range f.Placemarks {
				add(pm, brand)
			}
		}
		return stores, nil
	}
	for _, pm := range doc.Placemarks {
		add(pm, refdata.Unknown)
	}
	return stores, nil
}

// ParseFile：读取并解析 KML 文件
func ParseFile(path string, c Classifier) ([]darkstore.Store, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(b), c)
}

// pointOf：取坐标文本的前两个分量 "lng,lat[,alt]"
// 约束：逗号两侧允许空白；多元组文本只取首个元组
func pointOf(pm kmlPlacemark) (lat, lng float64, ok bool) {
	if pm.Point == nil {
		return 0, 0, false
	}
	parts := strings.Split(strings.TrimSpace(pm.Point.Coordinates), ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	latFields := strings.Fields(parts[1])
	if len(latFields) == 0 {
		return 0, 0, false
	}
	lng, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, err2 := strconv.ParseFloat(latFields[0], 64)
	if err1 != nil || err2 != nil || !finite(lat) || !finite(lng) {
		return 0, 0, false
	}
	return lat, lng, true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

type kmlOut struct {
	XMLName  xml.Name    `xml:"kml"`
	Xmlns    string      `xml:"xmlns,attr"`
	Document kmlDocument `xml:"Document"`
}

// Encode：将门店导出为 KML 文档；标注描述写入品牌，坐标为 lng,lat,0
func Encode(stores []darkstore.Store) ([]byte, error) {
	out := kmlOut{
		Xmlns:    "http://www.opengis.net/kml/2.2",
		Document: kmlDocument{Name: "Dark Stores"},
	}
	for _, s := range stores {
		out.Document.Placemarks = append(out.Document.Placemarks, kmlPlacemark{
			Name:        s.Name,
			Description: s.Brand,
			Point: &kmlPoint{Coordinates: strconv.FormatFloat(s.Lng, 'f', -1, 64) + "," +
				strconv.FormatFloat(s.Lat, 'f', -1, 64) + ",0"},
		})
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode kml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

package geo

import "math"

// DegreeDistance：经纬度平面上的欧氏距离（度）
// 约束：仅用于小范围内的相对比较（最近片区、邻近门店），不代表真实距离
func DegreeDistance(lat1, lng1, lat2, lng2 float64) float64 {
	return math.Sqrt(DegreeDistanceSq(lat1, lng1, lat2, lng2))
}

// DegreeDistanceSq：平方形式，排序时避免开方
func DegreeDistanceSq(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := lat1 - lat2
	dLng := lng1 - lng2
	return dLat*dLat + dLng*dLng
}

// HaversineKm：球面距离（千米）
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const R = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return R * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

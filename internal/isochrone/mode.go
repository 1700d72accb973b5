package isochrone

import (
	"fmt"
	"math"
	"strings"
)

// 出行方式
const (
	ModeWalk = "walk"
	ModeBike = "bike"
)

// NormalizeMode：空值视为步行；motorcycle 视为 bike 的别名
func NormalizeMode(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", ModeWalk:
		return ModeWalk, nil
	case ModeBike, "motorcycle":
		return ModeBike, nil
	}
	return "", fmt.Errorf("unsupported mode %q", s)
}

// DistanceMeters：按车速将时长换算为距离预算
func DistanceMeters(speedKmh float64, minutes int) int {
	return int(math.Round(speedKmh * 1000 / 60 * float64(minutes)))
}

// Key：缓存键，坐标固定保留 6 位小数
func Key(lat, lng float64, minutes int, mode string) string {
	return fmt.Sprintf("%.6f,%.6f,%d,%s", lat, lng, minutes, mode)
}

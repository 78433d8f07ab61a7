package staticanalysis

import (
	"bytes"
	"fmt"
	"image/png"
	"math/bits"
	"strconv"
	"strings"
)

// 启动图标 average-hash 相似度，用于识别仿冒知名应用图标的包。
// 8x8 灰度降采样，逐像素与均值比较得到 64 位指纹。

const hashSide = 8

// averageHash 计算 PNG 图标的 64 位 average-hash，返回 16 位十六进制串
func averageHash(data []byte) (string, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode icon: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return "", fmt.Errorf("decode icon: empty image")
	}

	// 最近邻降采样到 8x8 灰度
	var gray [hashSide * hashSide]uint32
	var sum uint64
	for y := 0; y < hashSide; y++ {
		for x := 0; x < hashSide; x++ {
			sx := bounds.Min.X + x*w/hashSide
			sy := bounds.Min.Y + y*h/hashSide
			r, g, b, _ := img.At(sx, sy).RGBA()
			// ITU-R 601 亮度权重
			lum := (299*r + 587*g + 114*b) / 1000
			gray[y*hashSide+x] = lum
			sum += uint64(lum)
		}
	}

	mean := uint32(sum / (hashSide * hashSide))
	var hash uint64
	for i, lum := range gray {
		if lum >= mean {
			hash |= 1 << uint(63-i)
		}
	}
	return fmt.Sprintf("%016x", hash), nil
}

// bestIconSimilarity 图标指纹与可信表的最高相似度 [0, 1]。
// 无可比对表项时返回 0。
func bestIconSimilarity(hash string, trusted []string) float64 {
	h, err := strconv.ParseUint(hash, 16, 64)
	if err != nil {
		return 0
	}

	best := 0.0
	for _, t := range trusted {
		tv, err := strconv.ParseUint(strings.TrimSpace(t), 16, 64)
		if err != nil {
			continue
		}
		similarity := 1.0 - float64(bits.OnesCount64(h^tv))/64.0
		if similarity > best {
			best = similarity
		}
	}
	return best
}

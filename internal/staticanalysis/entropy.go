package staticanalysis

import (
	"math"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
)

// shannonEntropy 单段字节流的香农熵，单位 bits/byte，范围 [0, 8]。
// 空输入返回 0 而不是错误。
func shannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var freq [256]int
	for _, b := range data {
		freq[b]++
	}

	total := float64(len(data))
	entropy := 0.0
	for _, n := range freq {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// codeEntropy 多个代码段按字节数加权平均的熵
func codeEntropy(sections []domain.CodeSection) float64 {
	var totalBytes int64
	for _, s := range sections {
		totalBytes += int64(len(s.Data))
	}
	if totalBytes == 0 {
		return 0
	}

	weighted := 0.0
	for _, s := range sections {
		if len(s.Data) == 0 {
			continue
		}
		weighted += shannonEntropy(s.Data) * float64(len(s.Data)) / float64(totalBytes)
	}
	return weighted
}

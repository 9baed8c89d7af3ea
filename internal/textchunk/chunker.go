// Package textchunk splits long replies into pieces the TTS provider accepts in a single call.
package textchunk

import "unicode"

// DefaultLimit 是 Murf 单次合成请求允许的最大字符数。
const DefaultLimit = 3000

// Split 按 limit 将文本切分为若干块。
//
// 优先在第 limit 个字符处或之前的最后一个空白处切分；若前 limit 个字符中没有空白则在 limit 处硬切。
// 输入及每次切分后的剩余文本都会去掉前导空白，因此每块都以非空白字符开头。长度按 rune 计算。
func Split(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	runes := trimLeftSpace([]rune(text))
	chunks := make([]string, 0, len(runes)/limit+1)

	for len(runes) > limit {
		splitAt := lastSpace(runes[:limit+1])
		if splitAt <= 0 {
			splitAt = limit
		}

		chunks = append(chunks, string(runes[:splitAt]))
		runes = trimLeftSpace(runes[splitAt:])
	}

	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// lastSpace 返回最后一段连续空白的起始下标，不存在时返回 -1。
func lastSpace(runes []rune) int {
	i := len(runes) - 1
	for i >= 0 && !unicode.IsSpace(runes[i]) {
		i--
	}
	if i < 0 {
		return -1
	}
	for i > 0 && unicode.IsSpace(runes[i-1]) {
		i--
	}
	return i
}

func trimLeftSpace(runes []rune) []rune {
	for len(runes) > 0 && unicode.IsSpace(runes[0]) {
		runes = runes[1:]
	}
	return runes
}

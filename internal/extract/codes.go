package extract

import "strings"

// 候选验证码提取的启发式参数。
const (
	minDigitRun = 4
	maxDigitRun = 8
	minAlnumRun = 4
	maxAlnumRun = 10
	maxCodes    = 5
)

// ExtractCandidateCodes 在纯文本中嗅探疑似一次性验证码的片段。
//
// 启发式规则：4–8 位连续数字，或 4–10 位连续大写字母/数字。
// 大小写不敏感去重，保留首次出现顺序，至多返回 5 个。
// 允许误报和漏报——这是嗅探器，不是保证。
func ExtractCandidateCodes(text string) []string {
	if text == "" {
		return nil
	}

	var codes []string
	seen := make(map[string]struct{})

	for _, token := range splitRuns(text) {
		if !isCandidate(token) {
			continue
		}
		key := strings.ToUpper(token)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		codes = append(codes, token)
		if len(codes) >= maxCodes {
			break
		}
	}

	return codes
}

// splitRuns 把文本切成连续的字母数字串。
func splitRuns(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !isAlnum(r)
	})
}

// isCandidate 判定一个字母数字串是否形似验证码。
func isCandidate(token string) bool {
	n := len(token)
	if n < minDigitRun || n > maxAlnumRun {
		return false
	}

	allDigits := true
	for i := 0; i < n; i++ {
		c := token[i]
		if c < '0' || c > '9' {
			allDigits = false
		}
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z') {
			return false
		}
	}

	if allDigits {
		return n >= minDigitRun && n <= maxDigitRun
	}
	return n >= minAlnumRun && n <= maxAlnumRun
}

func isAlnum(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}

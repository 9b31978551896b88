package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCandidateCodesSingle(t *testing.T) {
	codes := ExtractCandidateCodes("Your code is 123456, valid 10 minutes")
	assert.Equal(t, []string{"123456"}, codes)
}

func TestExtractCandidateCodesTwoDistinctInOrder(t *testing.T) {
	codes := ExtractCandidateCodes("first 111222 then 333444 done")
	assert.Equal(t, []string{"111222", "333444"}, codes)
}

func TestExtractCandidateCodesDeduplicates(t *testing.T) {
	codes := ExtractCandidateCodes("code 987654 repeated 987654 again 987654")
	assert.Equal(t, []string{"987654"}, codes)
}

func TestExtractCandidateCodesUppercaseAlnum(t *testing.T) {
	codes := ExtractCandidateCodes("Use token A7F9K2 to continue")
	assert.Contains(t, codes, "A7F9K2")
}

func TestExtractCandidateCodesLengthBounds(t *testing.T) {
	// 3 位太短，9 位纯数字超出数字规则
	codes := ExtractCandidateCodes("pin 123 order 123456789 ok 4455")
	assert.Equal(t, []string{"4455"}, codes)
}

func TestExtractCandidateCodesIgnoresLowercase(t *testing.T) {
	codes := ExtractCandidateCodes("the word abcdef is not a code")
	assert.Empty(t, codes)
}

func TestExtractCandidateCodesCap(t *testing.T) {
	codes := ExtractCandidateCodes("1111 2222 3333 4444 5555 6666 7777")
	assert.Len(t, codes, 5)
}

func TestExtractCandidateCodesEmpty(t *testing.T) {
	assert.Empty(t, ExtractCandidateCodes(""))
	assert.Empty(t, ExtractCandidateCodes("no codes here at all"))
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDomain(t *testing.T) {
	valid := []string{
		"temp.mail",
		"mail.example.com",
		"1398hnjfkdskd.de",
		"a-b.co",
	}
	for _, d := range valid {
		assert.NoError(t, ValidateDomain(d), d)
	}

	invalid := []string{
		"",
		"nodot",
		"has space.com",
		"user@host.com",
		"tab\t.com",
		"under_score.com",
		".leading.dot",
	}
	for _, d := range invalid {
		assert.Error(t, ValidateDomain(d), d)
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "abc@temp.mail", NormalizeAddress(" <ABC@Temp.Mail> "))
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("x7f9k2m1qp@temp.mail"))
	assert.NoError(t, ValidateAddress("user.name+tag@example.com"))
	assert.Error(t, ValidateAddress("no-at-sign"))
	assert.Error(t, ValidateAddress("two@@signs.com"))
	assert.Error(t, ValidateAddress("@empty.local"))
}

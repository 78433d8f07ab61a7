package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyURL(t *testing.T) {
	c := NewClassifier()

	assert.Equal(t, KindURL, c.Classify("https://evil.example.com/payload"))
	assert.Equal(t, KindURL, c.Classify("http://cdn.example.org:8080/a/b?x=1"))
	// IP 宿主的 URL 归为 URL，不重复计为 IP
	assert.Equal(t, KindURL, c.Classify("http://185.220.101.42/gate.php"))
}

func TestClassifyIP(t *testing.T) {
	c := NewClassifier()

	assert.Equal(t, KindIP, c.Classify("connect to 10.0.0.1 now"))
	assert.Equal(t, KindIP, c.Classify("255.255.255.255"))
	assert.Equal(t, KindNone, c.Classify("999.999.999.999"))
	assert.Equal(t, KindNone, c.Classify("1.2.3"))
}

func TestClassifyKeyword(t *testing.T) {
	c := NewClassifier()

	assert.Equal(t, KindKeyword, c.Classify("enterYourPassword"))
	assert.Equal(t, KindKeyword, c.Classify("OTP_FIELD"))
	assert.Equal(t, KindKeyword, c.Classify("NetBanking Portal"))
	assert.Equal(t, KindNone, c.Classify("helloWorldString"))
}

func TestClassifierExtraKeywords(t *testing.T) {
	c := NewClassifier("customtrojan")

	assert.Equal(t, KindKeyword, c.Classify("CustomTrojan v2"))
}

func TestExtractStrings(t *testing.T) {
	data := []byte("short\x00averyvalidstring\x01\x02ok\x00trailingrun")

	got := ExtractStrings(data, 6)
	assert.Equal(t, []string{"averyvalidstring", "trailingrun"}, got)

	// minLen <= 0 回落到默认值 5
	got = ExtractStrings([]byte("abcd\x00abcde"), 0)
	assert.Equal(t, []string{"abcde"}, got)

	assert.Empty(t, ExtractStrings(nil, 5))
}

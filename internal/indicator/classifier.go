package indicator

import (
	"regexp"
	"strings"
)

// Kind 字符串指标分类
type Kind int

const (
	KindNone Kind = iota
	KindIP
	KindURL
	KindKeyword
)

var (
	urlRegex = regexp.MustCompile(`(?i)https?://[\w\-.]+(:\d+)?(/[\w\-./?%&=+#]*)?`)
	ipRegex  = regexp.MustCompile(`\b((25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`)
)

// suspiciousKeywords 可疑关键词表。钓鱼/银行木马场景常见词，
// 独立成表便于演进，不影响管线控制流。
var suspiciousKeywords = []string{
	"login", "signin", "signup", "username", "userid",
	"password", "passwd", "pwd", "passcode", "mpin", "credential", "creds",
	"otp", "totp", "mfa", "2fa", "authenticate", "sessionid",
	"bank", "banking", "netbanking", "ifsc", "upi", "imps", "neft", "rtgs", "swift",
	"accno", "iban", "sortcode", "routing",
	"transaction", "txn", "payout", "withdrawal",
	"cvc", "cvv", "expdate", "expiry", "mastercard",
	"visa", "rupay", "amex", "wallet", "paytm", "gpay", "googlepay", "phonepe",
	"bhim", "paypal", "cashapp", "venmo", "zelle",
	"verification", "unlock",
	"privatekey", "apikey", "jwt",
	"lottery", "winner", "prize", "promotion",
	"activate", "activation",
	"urgent", "suspend", "blocked", "breach", "compromise", "hacked",
	"unauthorized", "fraud", "phish", "spoof",
	"exploit", "payload", "meterpreter", "inject",
	"keylogger", "spyware", "exfil", "rootkit", "autorun", "persistence",
	"encrypt", "decrypt", "ransom", "bitcoin", "monero",
	"smtp", "imap", "webmail",
	"ssn", "aadhaar", "passport", "payroll",
}

// Classifier 字符串指标分类器
type Classifier struct {
	keywords []string
}

// NewClassifier 创建分类器，extra 追加到内置关键词表
func NewClassifier(extra ...string) *Classifier {
	kw := make([]string, 0, len(suspiciousKeywords)+len(extra))
	kw = append(kw, suspiciousKeywords...)
	kw = append(kw, extra...)
	return &Classifier{keywords: kw}
}

// Classify 判定单个字符串的指标类型。URL 优先判定，
// 带 IP 宿主的 URL 归为 URL 而不重复计为 IP。
func (c *Classifier) Classify(s string) Kind {
	if urlRegex.MatchString(s) {
		return KindURL
	}
	if ipRegex.MatchString(s) {
		return KindIP
	}
	lower := strings.ToLower(s)
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return KindKeyword
		}
	}
	return KindNone
}

// ExtractStrings 从字节流中提取可打印 ASCII 字符串（长度 >= minLen）
func ExtractStrings(data []byte, minLen int) []string {
	if minLen <= 0 {
		minLen = 5
	}
	var out []string
	var acc []byte
	for _, b := range data {
		if b >= 32 && b <= 126 {
			acc = append(acc, b)
			continue
		}
		if len(acc) >= minLen {
			out = append(out, string(acc))
		}
		acc = acc[:0]
	}
	if len(acc) >= minLen {
		out = append(out, string(acc))
	}
	return out
}

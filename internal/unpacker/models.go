package unpacker

// Limits 解包资源上限。超限直接拒绝，不做部分提取。
type Limits struct {
	MaxDecompressedBytes int64
	MaxEntryCount        int
	RequireSignature     bool
}

// DefaultLimits 默认上限
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedBytes: 512 * 1024 * 1024,
		MaxEntryCount:        10000,
		RequireSignature:     false,
	}
}

// Manifest 解析后的清单信息
type Manifest struct {
	Package     string
	AppLabel    string
	VersionName string
	VersionCode string
	Permissions []string
}

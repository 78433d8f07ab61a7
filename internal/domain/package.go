package domain

// ContentDigest 包内容的稳定哈希标识（sha256 hex）。
// 相同字节内容必定产生相同摘要，是所有下游查询的键。
type ContentDigest string

func (d ContentDigest) String() string {
	return string(d)
}

// Certificate 签名证书块
type Certificate struct {
	Entry  string // META-INF 内的条目名
	SHA256 string // 证书块内容的 sha256 指纹 (hex)
}

// CodeSection 代码段（classes.dex 等）
type CodeSection struct {
	Name string
	Data []byte
}

// Package 解包后的不可变应用包。由 Unpacker 一次性构建，
// 各阶段只读消费，管线结束后即丢弃。
type Package struct {
	PackageName  string
	AppLabel     string
	VersionName  string
	VersionCode  string
	Permissions  []string // 有序去重
	Certificates []Certificate
	CodeSections []CodeSection
	IconData     []byte // 主图标（PNG），可能为空
	FileSize     int64
	Digest       ContentDigest
}

package unpacker

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/sirupsen/logrus"
)

const manifestEntry = "AndroidManifest.xml"

// Unpacker 包解析器。纯转换：输入原始字节，输出不可变 Package，
// 不做任何 I/O（读取上传文件是调用方的职责）。
type Unpacker struct {
	logger *logrus.Logger
	limits Limits
}

// NewUnpacker 创建解包器
func NewUnpacker(limits Limits, logger *logrus.Logger) *Unpacker {
	if limits.MaxDecompressedBytes <= 0 {
		limits.MaxDecompressedBytes = DefaultLimits().MaxDecompressedBytes
	}
	if limits.MaxEntryCount <= 0 {
		limits.MaxEntryCount = DefaultLimits().MaxEntryCount
	}
	return &Unpacker{logger: logger, limits: limits}
}

// Unpack 解析原始包字节。失败类型见 domain.ErrorKind：
// 非法容器 -> malformed_package，缺清单 -> missing_manifest，
// 超出资源上限 -> resource_limit_exceeded（在任何解压发生之前检查声明尺寸）。
func (u *Unpacker) Unpack(data []byte) (*domain.Package, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.WrapAnalysisError(domain.ErrMalformedPackage, "not a valid zip container", err)
	}

	// 解压炸弹防御：先核对条目数与声明的解压总量，再碰任何数据
	if len(reader.File) > u.limits.MaxEntryCount {
		return nil, domain.NewAnalysisError(domain.ErrResourceLimitExceeded,
			fmt.Sprintf("entry count %d exceeds limit %d", len(reader.File), u.limits.MaxEntryCount))
	}
	var declared int64
	for _, f := range reader.File {
		declared += int64(f.UncompressedSize64)
		if declared > u.limits.MaxDecompressedBytes {
			return nil, domain.NewAnalysisError(domain.ErrResourceLimitExceeded,
				fmt.Sprintf("declared decompressed size exceeds limit %d bytes", u.limits.MaxDecompressedBytes))
		}
	}

	var manifestData []byte
	var codeSections []domain.CodeSection
	var certs []domain.Certificate
	var iconData []byte
	remaining := u.limits.MaxDecompressedBytes

	for _, f := range reader.File {
		switch {
		case f.Name == manifestEntry:
			manifestData, err = u.readEntry(f, &remaining)
			if err != nil {
				return nil, err
			}

		case strings.HasSuffix(f.Name, ".dex") && !strings.Contains(f.Name, "/"):
			// 根目录下的 classes.dex / classes2.dex ...
			section, err := u.readEntry(f, &remaining)
			if err != nil {
				return nil, err
			}
			codeSections = append(codeSections, domain.CodeSection{Name: f.Name, Data: section})

		case isCertEntry(f.Name):
			block, err := u.readEntry(f, &remaining)
			if err != nil {
				return nil, err
			}
			certs = append(certs, domain.Certificate{
				Entry:  f.Name,
				SHA256: fmt.Sprintf("%x", sha256.Sum256(block)),
			})

		case iconData == nil && isIconEntry(f.Name):
			iconData, err = u.readEntry(f, &remaining)
			if err != nil {
				return nil, err
			}
		}
	}

	if manifestData == nil {
		return nil, domain.NewAnalysisError(domain.ErrMissingManifest, "no AndroidManifest.xml entry in package")
	}
	if len(certs) == 0 && u.limits.RequireSignature {
		return nil, domain.NewAnalysisError(domain.ErrUnsignedPackage, "no signing certificate in META-INF")
	}

	manifest := u.parseManifest(manifestData)

	pkg := &domain.Package{
		PackageName:  manifest.Package,
		AppLabel:     manifest.AppLabel,
		VersionName:  manifest.VersionName,
		VersionCode:  manifest.VersionCode,
		Permissions:  dedupeOrdered(manifest.Permissions),
		Certificates: certs,
		CodeSections: codeSections,
		IconData:     iconData,
		FileSize:     int64(len(data)),
		Digest:       domain.ContentDigest(fmt.Sprintf("%x", sha256.Sum256(data))),
	}

	u.logger.WithFields(logrus.Fields{
		"package":       pkg.PackageName,
		"sha256":        pkg.Digest,
		"permissions":   len(pkg.Permissions),
		"code_sections": len(pkg.CodeSections),
		"certificates":  len(pkg.Certificates),
	}).Debug("Package unpacked")

	return pkg, nil
}

// readEntry 读取单个条目，实际读取量同样受总预算约束
// （防御声明尺寸与真实内容不符的构造包）。
func (u *Unpacker) readEntry(f *zip.File, remaining *int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, domain.WrapAnalysisError(domain.ErrMalformedPackage,
			fmt.Sprintf("cannot open entry %s", f.Name), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, *remaining+1))
	if err != nil {
		return nil, domain.WrapAnalysisError(domain.ErrMalformedPackage,
			fmt.Sprintf("cannot read entry %s", f.Name), err)
	}
	if int64(len(data)) > *remaining {
		return nil, domain.NewAnalysisError(domain.ErrResourceLimitExceeded,
			fmt.Sprintf("entry %s exceeds decompressed size budget", f.Name))
	}
	*remaining -= int64(len(data))
	return data, nil
}

// parseManifest 解析清单。APK 内通常是二进制 AXML；
// 解析失败降级为空清单而不是中止（字段缺失由下游以 unknown 呈现）。
func (u *Unpacker) parseManifest(data []byte) *Manifest {
	if isBinaryXML(data) {
		m, err := parseBinaryManifest(data)
		if err != nil {
			u.logger.WithError(err).Warn("Failed to parse binary AndroidManifest.xml, metadata will be empty")
			return &Manifest{}
		}
		return m
	}

	m, err := parsePlainManifest(data)
	if err != nil {
		u.logger.WithError(err).Warn("Failed to parse plaintext AndroidManifest.xml, metadata will be empty")
		return &Manifest{}
	}
	return m
}

func isCertEntry(name string) bool {
	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "META-INF/") {
		return false
	}
	return strings.HasSuffix(upper, ".RSA") || strings.HasSuffix(upper, ".DSA") || strings.HasSuffix(upper, ".EC")
}

func isIconEntry(name string) bool {
	return strings.HasPrefix(name, "res/") &&
		strings.Contains(name, "ic_launcher") &&
		strings.HasSuffix(name, ".png")
}

// dedupeOrdered 保序去重
func dedupeOrdered(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

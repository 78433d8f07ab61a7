package unpacker

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"testing"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `<?xml version="1.0" encoding="utf-8"?>
<manifest xmlns:android="http://schemas.android.com/apk/res/android"
    package="com.example.bank" android:versionName="2.1.0" android:versionCode="21">
    <uses-permission android:name="android.permission.INTERNET"/>
    <uses-permission android:name="android.permission.READ_SMS"/>
    <uses-permission android:name="android.permission.READ_SMS"/>
    <application android:label="Example Bank"/>
</manifest>`

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// buildAPK 构造内存中的测试包
func buildAPK(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestUnpackValidPackage(t *testing.T) {
	certBlock := []byte("fake pkcs7 signature block")
	data := buildAPK(t, map[string][]byte{
		"AndroidManifest.xml": []byte(sampleManifest),
		"classes.dex":         []byte("dex\n035 code bytes"),
		"classes2.dex":        []byte("more code bytes"),
		"META-INF/CERT.RSA":   certBlock,
		"res/layout/main.xml": []byte("<layout/>"),
	})

	u := NewUnpacker(DefaultLimits(), testLogger())
	pkg, err := u.Unpack(data)
	require.NoError(t, err)

	assert.Equal(t, "com.example.bank", pkg.PackageName)
	assert.Equal(t, "Example Bank", pkg.AppLabel)
	assert.Equal(t, "2.1.0", pkg.VersionName)
	assert.Equal(t, "21", pkg.VersionCode)
	// 权限保序去重
	assert.Equal(t, []string{"android.permission.INTERNET", "android.permission.READ_SMS"}, pkg.Permissions)
	assert.Len(t, pkg.CodeSections, 2)

	require.Len(t, pkg.Certificates, 1)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256(certBlock)), pkg.Certificates[0].SHA256)
	assert.Equal(t, domain.ContentDigest(fmt.Sprintf("%x", sha256.Sum256(data))), pkg.Digest)
}

func TestUnpackDigestDeterminism(t *testing.T) {
	data := buildAPK(t, map[string][]byte{
		"AndroidManifest.xml": []byte(sampleManifest),
		"classes.dex":         []byte("code"),
	})

	u := NewUnpacker(DefaultLimits(), testLogger())
	pkg1, err := u.Unpack(data)
	require.NoError(t, err)
	pkg2, err := u.Unpack(data)
	require.NoError(t, err)

	// 相同字节必得相同摘要
	assert.Equal(t, pkg1.Digest, pkg2.Digest)
	assert.Equal(t, pkg1.Permissions, pkg2.Permissions)
}

func TestUnpackMalformedContainer(t *testing.T) {
	u := NewUnpacker(DefaultLimits(), testLogger())
	_, err := u.Unpack([]byte("this is definitely not a zip archive"))
	require.Error(t, err)
	assert.Equal(t, domain.ErrMalformedPackage, domain.KindOf(err))
}

func TestUnpackMissingManifest(t *testing.T) {
	data := buildAPK(t, map[string][]byte{
		"classes.dex": []byte("code without manifest"),
	})

	u := NewUnpacker(DefaultLimits(), testLogger())
	_, err := u.Unpack(data)
	require.Error(t, err)
	assert.Equal(t, domain.ErrMissingManifest, domain.KindOf(err))
}

func TestUnpackUnsignedPackagePolicy(t *testing.T) {
	data := buildAPK(t, map[string][]byte{
		"AndroidManifest.xml": []byte(sampleManifest),
	})

	// 默认策略：无签名不是硬失败
	u := NewUnpacker(DefaultLimits(), testLogger())
	pkg, err := u.Unpack(data)
	require.NoError(t, err)
	assert.Empty(t, pkg.Certificates)

	// require_signature 策略下硬失败
	limits := DefaultLimits()
	limits.RequireSignature = true
	u = NewUnpacker(limits, testLogger())
	_, err = u.Unpack(data)
	require.Error(t, err)
	assert.Equal(t, domain.ErrUnsignedPackage, domain.KindOf(err))
}

func TestUnpackDeclaredSizeRejectedBeforeExtraction(t *testing.T) {
	data := buildAPK(t, map[string][]byte{
		"AndroidManifest.xml": []byte(sampleManifest),
		"classes.dex":         bytes.Repeat([]byte("A"), 4096),
	})

	limits := Limits{MaxDecompressedBytes: 1024, MaxEntryCount: 100}
	u := NewUnpacker(limits, testLogger())
	_, err := u.Unpack(data)
	require.Error(t, err)
	assert.Equal(t, domain.ErrResourceLimitExceeded, domain.KindOf(err))
}

func TestUnpackEntryCountLimit(t *testing.T) {
	entries := map[string][]byte{"AndroidManifest.xml": []byte(sampleManifest)}
	for i := 0; i < 5; i++ {
		entries[fmt.Sprintf("assets/file%d.txt", i)] = []byte("x")
	}
	data := buildAPK(t, entries)

	limits := Limits{MaxDecompressedBytes: 1 << 20, MaxEntryCount: 3}
	u := NewUnpacker(limits, testLogger())
	_, err := u.Unpack(data)
	require.Error(t, err)
	assert.Equal(t, domain.ErrResourceLimitExceeded, domain.KindOf(err))
}

func TestUnpackUnparsableManifestDegrades(t *testing.T) {
	data := buildAPK(t, map[string][]byte{
		"AndroidManifest.xml": []byte("<<< not xml at all"),
		"classes.dex":         []byte("code"),
	})

	// 清单解析失败降级为空元数据，不中止分析
	u := NewUnpacker(DefaultLimits(), testLogger())
	pkg, err := u.Unpack(data)
	require.NoError(t, err)
	assert.Empty(t, pkg.PackageName)
	assert.Len(t, pkg.CodeSections, 1)
}

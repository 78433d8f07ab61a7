package unpacker

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axmlBuilder 拼装合法的二进制清单，够解码器走完整路径即可
type axmlBuilder struct {
	strings []string
	index   map[string]uint32
	chunks  [][]byte
}

func newAXMLBuilder() *axmlBuilder {
	return &axmlBuilder{index: make(map[string]uint32)}
}

func (b *axmlBuilder) stringIdx(s string) uint32 {
	if idx, ok := b.index[s]; ok {
		return idx
	}
	idx := uint32(len(b.strings))
	b.strings = append(b.strings, s)
	b.index[s] = idx
	return idx
}

type axmlAttr struct {
	name     string
	strValue string
	intValue int32
	isInt    bool
}

func (b *axmlBuilder) addElement(name string, attrs ...axmlAttr) {
	nameIdx := b.stringIdx(name)

	type resolved struct {
		nameIdx  uint32
		rawValue uint32
		dataType byte
		data     uint32
	}
	rs := make([]resolved, 0, len(attrs))
	for _, a := range attrs {
		r := resolved{nameIdx: b.stringIdx(a.name)}
		if a.isInt {
			r.rawValue = 0xFFFFFFFF
			r.dataType = 0x10
			r.data = uint32(a.intValue)
		} else {
			idx := b.stringIdx(a.strValue)
			r.rawValue = idx
			r.dataType = 0x03
			r.data = idx
		}
		rs = append(rs, r)
	}

	var body bytes.Buffer
	le := binary.LittleEndian

	// 元素体：ns、name、attrStart、attrSize、attrCount、id/class/style
	writeU32(&body, 0xFFFFFFFF)
	writeU32(&body, nameIdx)
	writeU16(&body, 20) // attrStart
	writeU16(&body, 20) // attrSize
	writeU16(&body, uint16(len(rs)))
	writeU16(&body, 0)
	writeU16(&body, 0)
	writeU16(&body, 0)

	for _, r := range rs {
		writeU32(&body, 0xFFFFFFFF) // attr namespace
		writeU32(&body, r.nameIdx)
		writeU32(&body, r.rawValue)
		writeU16(&body, 8)
		body.WriteByte(0)
		body.WriteByte(r.dataType)
		writeU32(&body, r.data)
	}

	chunk := make([]byte, 16+body.Len())
	le.PutUint16(chunk[0:2], 0x0102) // StartElement
	le.PutUint16(chunk[2:4], 16)     // headerSize
	le.PutUint32(chunk[4:8], uint32(len(chunk)))
	copy(chunk[16:], body.Bytes())
	b.chunks = append(b.chunks, chunk)
}

func (b *axmlBuilder) buildStringPool() []byte {
	le := binary.LittleEndian

	var blob bytes.Buffer
	offsets := make([]uint32, len(b.strings))
	for i, s := range b.strings {
		offsets[i] = uint32(blob.Len())
		units := utf16.Encode([]rune(s))
		writeU16(&blob, uint16(len(units)))
		for _, u := range units {
			writeU16(&blob, u)
		}
		writeU16(&blob, 0)
	}

	headerSize := 28
	stringsStart := headerSize + 4*len(b.strings)
	total := stringsStart + blob.Len()

	chunk := make([]byte, total)
	le.PutUint16(chunk[0:2], 0x0001) // StringPool
	le.PutUint16(chunk[2:4], uint16(headerSize))
	le.PutUint32(chunk[4:8], uint32(total))
	le.PutUint32(chunk[8:12], uint32(len(b.strings)))
	le.PutUint32(chunk[12:16], 0) // styleCount
	le.PutUint32(chunk[16:20], 0) // flags: UTF-16
	le.PutUint32(chunk[20:24], uint32(stringsStart))
	le.PutUint32(chunk[24:28], 0)
	for i, off := range offsets {
		le.PutUint32(chunk[headerSize+4*i:], off)
	}
	copy(chunk[stringsStart:], blob.Bytes())
	return chunk
}

func (b *axmlBuilder) build() []byte {
	le := binary.LittleEndian

	pool := b.buildStringPool()
	total := 8 + len(pool)
	for _, c := range b.chunks {
		total += len(c)
	}

	out := make([]byte, 0, total)
	header := make([]byte, 8)
	le.PutUint16(header[0:2], 0x0003) // XML file
	le.PutUint16(header[2:4], 8)
	le.PutUint32(header[4:8], uint32(total))
	out = append(out, header...)
	out = append(out, pool...)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func buildBinaryManifest() []byte {
	b := newAXMLBuilder()
	b.addElement("manifest",
		axmlAttr{name: "package", strValue: "com.evil.dropper"},
		axmlAttr{name: "versionName", strValue: "3.4.1"},
		axmlAttr{name: "versionCode", intValue: 341, isInt: true},
	)
	b.addElement("uses-permission", axmlAttr{name: "name", strValue: "android.permission.SEND_SMS"})
	b.addElement("uses-permission", axmlAttr{name: "name", strValue: "android.permission.READ_CONTACTS"})
	b.addElement("application", axmlAttr{name: "label", strValue: "Free Wallet"})
	return b.build()
}

func TestIsBinaryXML(t *testing.T) {
	assert.True(t, isBinaryXML(buildBinaryManifest()))
	assert.False(t, isBinaryXML([]byte(`<?xml version="1.0"?><manifest/>`)))
	assert.False(t, isBinaryXML([]byte{0x03}))
	assert.False(t, isBinaryXML(nil))
}

func TestParseBinaryManifest(t *testing.T) {
	m, err := parseBinaryManifest(buildBinaryManifest())
	require.NoError(t, err)

	assert.Equal(t, "com.evil.dropper", m.Package)
	assert.Equal(t, "3.4.1", m.VersionName)
	assert.Equal(t, "341", m.VersionCode)
	assert.Equal(t, "Free Wallet", m.AppLabel)
	assert.Equal(t, []string{
		"android.permission.SEND_SMS",
		"android.permission.READ_CONTACTS",
	}, m.Permissions)
}

func TestParseBinaryManifestCorrupt(t *testing.T) {
	data := buildBinaryManifest()

	// 截断字符串池
	_, err := parseBinaryManifest(data[:40])
	assert.Error(t, err)

	// 无字符串池
	empty := make([]byte, 8)
	binary.LittleEndian.PutUint16(empty[0:2], 0x0003)
	binary.LittleEndian.PutUint16(empty[2:4], 8)
	binary.LittleEndian.PutUint32(empty[4:8], 8)
	_, err = parseBinaryManifest(empty)
	assert.Error(t, err)
}

func TestParseBinaryManifestViaUnpack(t *testing.T) {
	data := buildAPK(t, map[string][]byte{
		"AndroidManifest.xml": buildBinaryManifest(),
		"classes.dex":         []byte("code"),
	})

	u := NewUnpacker(DefaultLimits(), testLogger())
	pkg, err := u.Unpack(data)
	require.NoError(t, err)
	assert.Equal(t, "com.evil.dropper", pkg.PackageName)
	assert.Equal(t, "Free Wallet", pkg.AppLabel)
	assert.Len(t, pkg.Permissions, 2)
}

func TestParsePlainManifest(t *testing.T) {
	m, err := parsePlainManifest([]byte(sampleManifest))
	require.NoError(t, err)
	assert.Equal(t, "com.example.bank", m.Package)
	assert.Equal(t, "Example Bank", m.AppLabel)
	assert.Len(t, m.Permissions, 3) // 去重在 Unpack 层做
}

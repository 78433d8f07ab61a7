package unpacker

import (
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"strconv"
	"unicode/utf16"
)

// Android 二进制 XML (AXML) 的最小解码器。
// 只解出判定所需的字段：包名、版本、应用标签、权限声明。
// 参考 ResChunk / ResStringPool / ResXMLTree 的布局。

const (
	chunkStringPool   = 0x0001
	chunkXMLFile      = 0x0003
	chunkStartElement = 0x0102

	stringPoolUTF8Flag = 0x0100
	attrTypeString     = 0x03
	attrTypeIntDec     = 0x10
	noRawValue         = 0xFFFFFFFF
)

func isBinaryXML(data []byte) bool {
	return len(data) >= 8 && binary.LittleEndian.Uint16(data[0:2]) == chunkXMLFile
}

func u16(data []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(data[off : off+2])
}

func u32(data []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(data[off : off+4])
}

// parseBinaryManifest 遍历 chunk 流，取字符串池和各 StartElement
func parseBinaryManifest(data []byte) (*Manifest, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("axml: truncated header")
	}

	m := &Manifest{}
	var pool *stringPool

	off := int(u16(data, 2)) // 文件级 chunk 的 headerSize
	if off < 8 {
		off = 8
	}

	for off+8 <= len(data) {
		ctype := u16(data, off)
		headerSize := int(u16(data, off+2))
		size := int(u32(data, off+4))
		if size < 8 || off+size > len(data) || headerSize < 8 || headerSize > size {
			return nil, fmt.Errorf("axml: corrupt chunk at offset %d", off)
		}

		chunk := data[off : off+size]
		switch ctype {
		case chunkStringPool:
			if pool == nil {
				p, err := parseStringPool(chunk)
				if err != nil {
					return nil, err
				}
				pool = p
			}
		case chunkStartElement:
			if pool != nil {
				if err := parseStartElement(chunk, headerSize, pool, m); err != nil {
					return nil, err
				}
			}
		}

		off += size
	}

	if pool == nil {
		return nil, fmt.Errorf("axml: no string pool chunk")
	}
	return m, nil
}

// stringPool 解码后的字符串池
type stringPool struct {
	strings []string
}

func (p *stringPool) get(idx uint32) string {
	if idx == noRawValue || int(idx) >= len(p.strings) {
		return ""
	}
	return p.strings[idx]
}

func parseStringPool(chunk []byte) (*stringPool, error) {
	if len(chunk) < 28 {
		return nil, fmt.Errorf("axml: string pool too small")
	}
	headerSize := int(u16(chunk, 2))
	count := int(u32(chunk, 8))
	flags := u32(chunk, 16)
	stringsStart := int(u32(chunk, 20))
	isUTF8 := flags&stringPoolUTF8Flag != 0

	if count < 0 || count > len(chunk) {
		return nil, fmt.Errorf("axml: implausible string count %d", count)
	}
	if headerSize+4*count > len(chunk) || stringsStart > len(chunk) {
		return nil, fmt.Errorf("axml: string pool offsets out of range")
	}

	pool := &stringPool{strings: make([]string, count)}
	for i := 0; i < count; i++ {
		strOff := stringsStart + int(u32(chunk, headerSize+4*i))
		if strOff < 0 || strOff >= len(chunk) {
			return nil, fmt.Errorf("axml: string %d offset out of range", i)
		}
		s, err := decodePoolString(chunk, strOff, isUTF8)
		if err != nil {
			return nil, err
		}
		pool.strings[i] = s
	}
	return pool, nil
}

func decodePoolString(chunk []byte, off int, isUTF8 bool) (string, error) {
	if isUTF8 {
		// 两个长度前缀（字符数、字节数），高位置位表示双字节编码
		if off+2 > len(chunk) {
			return "", fmt.Errorf("axml: utf8 string truncated")
		}
		if chunk[off]&0x80 != 0 {
			off += 2
		} else {
			off++
		}
		if off >= len(chunk) {
			return "", fmt.Errorf("axml: utf8 string truncated")
		}
		byteLen := int(chunk[off])
		if chunk[off]&0x80 != 0 {
			if off+2 > len(chunk) {
				return "", fmt.Errorf("axml: utf8 string truncated")
			}
			byteLen = (int(chunk[off]&0x7F) << 8) | int(chunk[off+1])
			off += 2
		} else {
			off++
		}
		if off+byteLen > len(chunk) {
			return "", fmt.Errorf("axml: utf8 string overruns pool")
		}
		return string(chunk[off : off+byteLen]), nil
	}

	// UTF-16LE：u16 字符数前缀，高位置位表示扩展长度
	if off+2 > len(chunk) {
		return "", fmt.Errorf("axml: utf16 string truncated")
	}
	charLen := int(u16(chunk, off))
	off += 2
	if charLen&0x8000 != 0 {
		if off+2 > len(chunk) {
			return "", fmt.Errorf("axml: utf16 string truncated")
		}
		charLen = ((charLen & 0x7FFF) << 16) | int(u16(chunk, off))
		off += 2
	}
	if off+2*charLen > len(chunk) {
		return "", fmt.Errorf("axml: utf16 string overruns pool")
	}
	units := make([]uint16, charLen)
	for i := 0; i < charLen; i++ {
		units[i] = u16(chunk, off+2*i)
	}
	return string(utf16.Decode(units)), nil
}

// parseStartElement 提取单个元素及其属性
func parseStartElement(chunk []byte, headerSize int, pool *stringPool, m *Manifest) error {
	body := headerSize
	if body+20 > len(chunk) {
		return fmt.Errorf("axml: start element truncated")
	}

	nameIdx := u32(chunk, body+4)
	attrStart := int(u16(chunk, body+8))
	attrSize := int(u16(chunk, body+10))
	attrCount := int(u16(chunk, body+12))
	element := pool.get(nameIdx)

	if attrSize < 20 {
		attrSize = 20
	}
	attrsBase := body + attrStart
	if attrsBase+attrCount*attrSize > len(chunk) {
		return fmt.Errorf("axml: attributes overrun chunk")
	}

	attrs := make(map[string]string, attrCount)
	for i := 0; i < attrCount; i++ {
		a := attrsBase + i*attrSize
		attrName := pool.get(u32(chunk, a+4))
		rawValue := u32(chunk, a+8)
		dataType := chunk[a+15]
		dataVal := u32(chunk, a+16)

		var value string
		switch {
		case rawValue != noRawValue:
			value = pool.get(rawValue)
		case dataType == attrTypeString:
			value = pool.get(dataVal)
		case dataType == attrTypeIntDec:
			value = strconv.Itoa(int(int32(dataVal)))
		}
		if attrName != "" {
			attrs[attrName] = value
		}
	}

	switch element {
	case "manifest":
		m.Package = attrs["package"]
		m.VersionName = attrs["versionName"]
		m.VersionCode = attrs["versionCode"]
	case "application":
		if m.AppLabel == "" {
			m.AppLabel = attrs["label"]
		}
	case "uses-permission":
		if name := attrs["name"]; name != "" {
			m.Permissions = append(m.Permissions, name)
		}
	}
	return nil
}

// plainManifest 明文 XML 清单（调试构建和测试夹具会出现）
type plainManifest struct {
	XMLName     xml.Name `xml:"manifest"`
	Package     string   `xml:"package,attr"`
	VersionName string   `xml:"versionName,attr"`
	VersionCode string   `xml:"versionCode,attr"`
	Application struct {
		Label string `xml:"label,attr"`
	} `xml:"application"`
	UsesPermissions []struct {
		Name string `xml:"name,attr"`
	} `xml:"uses-permission"`
}

func parsePlainManifest(data []byte) (*Manifest, error) {
	var pm plainManifest
	if err := xml.Unmarshal(data, &pm); err != nil {
		return nil, err
	}

	m := &Manifest{
		Package:     pm.Package,
		AppLabel:    pm.Application.Label,
		VersionName: pm.VersionName,
		VersionCode: pm.VersionCode,
	}
	for _, p := range pm.UsesPermissions {
		m.Permissions = append(m.Permissions, p.Name)
	}
	return m, nil
}

package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestDiscover_Directory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "民法典.txt"), []byte("第一条"))
	writeFile(t, filepath.Join(root, "sub", "刑法.md"), []byte("# 刑法"))
	writeFile(t, filepath.Join(root, "scan.pdf"), []byte("%PDF-1.4"))
	writeFile(t, filepath.Join(root, ".git", "HEAD.txt"), []byte("ref"))

	files, err := New(nil, nil).Discover(root)
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, "sub/刑法.md", files[0].SourceFile)
	assert.Equal(t, "民法典.txt", files[1].SourceFile)
	assert.Equal(t, filepath.Join(root, "民法典.txt"), files[1].Path)
}

func TestDiscover_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "合同法.txt")
	writeFile(t, path, []byte("第一条"))

	files, err := New(nil, nil).Discover(path)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "合同法.txt", files[0].SourceFile)
}

func TestDiscover_CustomPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), []byte("a"))
	writeFile(t, filepath.Join(root, "draft", "b.txt"), []byte("b"))

	files, err := New([]string{"**/*.txt"}, []string{"draft/**"}).Discover(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].SourceFile)
}

func TestDiscover_Missing(t *testing.T) {
	_, err := New(nil, nil).Discover(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoad_UTF8WithBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, path, append([]byte("\xef\xbb\xbf"), []byte("\n第五百七十七条 违约责任\n")...))

	doc, err := New(nil, nil).Load(File{Path: path, SourceFile: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "\n第五百七十七条 违约责任\n", doc.Text)
	assert.Equal(t, "第五百七十七条 违约责任", doc.Title)
	assert.Equal(t, "utf-8", doc.Encoding)
}

func TestLoad_GBK(t *testing.T) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().String("当事人一方不履行合同义务的，应当承担违约责任。")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "gbk.txt")
	writeFile(t, path, []byte(encoded))

	doc, err := New(nil, nil).Load(File{Path: path, SourceFile: "gbk.txt"})
	require.NoError(t, err)
	assert.Equal(t, "当事人一方不履行合同义务的，应当承担违约责任。", doc.Text)
	assert.Equal(t, "gb18030", doc.Encoding)
}

func TestLoad_Binary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.txt")
	writeFile(t, path, []byte{0x89, 'P', 'N', 'G', 0x00, 0x01})

	_, err := New(nil, nil).Load(File{Path: path, SourceFile: "blob.txt"})
	assert.True(t, errors.Is(err, ErrNotText), "expected ErrNotText, got %v", err)
}

func TestLoad_Markdown(t *testing.T) {
	source := `# 中华人民共和国民法典

## 第三编 合同

**第五百七十七条** 当事人一方不履行合同义务的，应当承担*违约责任*。

- 继续履行
- 赔偿损失
`
	path := filepath.Join(t.TempDir(), "民法典.md")
	writeFile(t, path, []byte(source))

	doc, err := New(nil, nil).Load(File{Path: path, SourceFile: "民法典.md"})
	require.NoError(t, err)

	assert.Equal(t, "中华人民共和国民法典", doc.Title)
	assert.Contains(t, doc.Text, "第五百七十七条 当事人一方不履行合同义务的，应当承担违约责任。")
	assert.Contains(t, doc.Text, "继续履行")
	assert.NotContains(t, doc.Text, "**")
	assert.NotContains(t, doc.Text, "#")
}

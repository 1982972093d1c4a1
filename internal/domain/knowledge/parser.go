package knowledge

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	applog "knowbase/internal/platform/log"
)

// ── Parser 接口 ───────────────────────────────────────────────

// ParseResult 文档解析结果
type ParseResult struct {
	Content  string            `json:"content"`
	Format   FormatTag         `json:"format"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Pages    int               `json:"pages,omitempty"`
}

// Parser 文档解析器接口
type Parser interface {
	// Parse 解析文档，返回纯文本内容
	Parse(reader io.Reader, filename string) (*ParseResult, error)
	// Format 该解析器产出的格式标签
	Format() FormatTag
	// SupportedTypes 支持的文件扩展名
	SupportedTypes() []string
}

// ── Plain Text / Markdown Parser ─────────────────────────────

// PlainTextParser 纯文本与 Markdown 原样读取。
// 非法 UTF-8 字节序列直接丢弃而不是报错。
type PlainTextParser struct {
	format FormatTag
	exts   []string
}

func NewPlainTextParser() *PlainTextParser {
	return &PlainTextParser{
		format: FormatText,
		exts:   []string{".txt", ".text", ".log", ".csv"},
	}
}

func NewMarkdownParser() *PlainTextParser {
	return &PlainTextParser{
		format: FormatMarkdown,
		exts:   []string{".md", ".markdown"},
	}
}

func (p *PlainTextParser) Format() FormatTag        { return p.format }
func (p *PlainTextParser) SupportedTypes() []string { return p.exts }

func (p *PlainTextParser) Parse(reader io.Reader, filename string) (*ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrParse, filename, err)
	}

	text := strings.ToValidUTF8(string(data), "")
	return &ParseResult{
		Content: strings.TrimSpace(text),
		Format:  p.format,
	}, nil
}

// ── HTML Parser ──────────────────────────────────────────────

var (
	reHTMLScript = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reHTMLStyle  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	reHTMLTag    = regexp.MustCompile(`<[^>]+>`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// HTMLParser 去除 script/style 块与全部标签，折叠空白。
type HTMLParser struct{}

func (p *HTMLParser) Format() FormatTag        { return FormatHTML }
func (p *HTMLParser) SupportedTypes() []string { return []string{".html", ".htm"} }

func (p *HTMLParser) Parse(reader io.Reader, filename string) (*ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrParse, filename, err)
	}

	text := strings.ToValidUTF8(string(data), "")
	text = reHTMLScript.ReplaceAllString(text, " ")
	text = reHTMLStyle.ReplaceAllString(text, " ")
	text = reHTMLTag.ReplaceAllString(text, " ")
	text = htmlEntities.Replace(text)
	text = reWhitespace.ReplaceAllString(text, " ")

	return &ParseResult{
		Content: strings.TrimSpace(text),
		Format:  FormatHTML,
	}, nil
}

// 常见实体替换，完整实体表不在此展开
var htmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

// ── PDF Parser ───────────────────────────────────────────────

// PDFParser 提取 PDF 文本。解析能力通过 Capability 注入，
// 缺失时返回 ErrMissingCapability 而不是崩溃。
type PDFParser struct {
	cap Capability
}

func NewPDFParser(cap Capability) *PDFParser {
	if cap == nil {
		cap = StaticCapability(true)
	}
	return &PDFParser{cap: cap}
}

func (p *PDFParser) Format() FormatTag        { return FormatPDF }
func (p *PDFParser) SupportedTypes() []string { return []string{".pdf"} }

func (p *PDFParser) Parse(reader io.Reader, filename string) (*ParseResult, error) {
	if !p.cap.Available() {
		return nil, fmt.Errorf("%w: pdf parsing for %s", ErrMissingCapability, filename)
	}

	// pdf 库需要 io.ReaderAt + size，先读到内存
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrParse, filename, err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf %s: %v", ErrParse, filename, err)
	}

	pages := r.NumPage()
	var sb strings.Builder

	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			applog.Warn("[Knowledge/PDF] Failed to extract page text", "page", i, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}
	}

	return &ParseResult{
		Content: strings.TrimSpace(sb.String()),
		Format:  FormatPDF,
		Pages:   pages,
		Metadata: map[string]string{
			"pages": fmt.Sprintf("%d", pages),
		},
	}, nil
}

// ── DOCX Parser ──────────────────────────────────────────────

// DOCXParser 提取 Word 文档文本，解析能力同样通过 Capability 注入。
type DOCXParser struct {
	cap Capability
}

func NewDOCXParser(cap Capability) *DOCXParser {
	if cap == nil {
		cap = StaticCapability(true)
	}
	return &DOCXParser{cap: cap}
}

func (p *DOCXParser) Format() FormatTag        { return FormatWord }
func (p *DOCXParser) SupportedTypes() []string { return []string{".docx"} }

func (p *DOCXParser) Parse(reader io.Reader, filename string) (*ParseResult, error) {
	if !p.cap.Available() {
		return nil, fmt.Errorf("%w: docx parsing for %s", ErrMissingCapability, filename)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrParse, filename, err)
	}

	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open docx %s: %v", ErrParse, filename, err)
	}
	defer r.Close()

	// docx 返回带 XML 的内容，去除标签后按行提取纯文本
	var sb strings.Builder
	content := reHTMLTag.ReplaceAllString(r.Editable().GetContent(), " ")
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	return &ParseResult{
		Content: strings.TrimSpace(sb.String()),
		Format:  FormatWord,
	}, nil
}

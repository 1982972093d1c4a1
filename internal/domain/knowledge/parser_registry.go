package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ParserRegistry 文档解析器注册表。
// 未知扩展名回退为纯文本解析（FormatUnknown）。
type ParserRegistry struct {
	mu       sync.RWMutex
	parsers  map[string]Parser // key = ".ext"
	fallback Parser
}

// ParserCapabilities 内置解析器的可选能力开关。
type ParserCapabilities struct {
	PDF  Capability
	DOCX Capability
}

// NewParserRegistry 创建解析器注册表并注册内置解析器。
func NewParserRegistry(caps ParserCapabilities) *ParserRegistry {
	r := &ParserRegistry{
		parsers:  make(map[string]Parser),
		fallback: NewPlainTextParser(),
	}

	r.Register(NewPlainTextParser())
	r.Register(NewMarkdownParser())
	r.Register(&HTMLParser{})
	r.Register(NewPDFParser(caps.PDF))
	r.Register(NewDOCXParser(caps.DOCX))

	return r
}

// Register 注册解析器
func (r *ParserRegistry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.SupportedTypes() {
		r.parsers[strings.ToLower(ext)] = p
	}
}

// DetectType 根据文件扩展名推断格式标签。
func (r *ParserRegistry) DetectType(path string) FormatTag {
	ext := strings.ToLower(filepath.Ext(path))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.parsers[ext]; ok {
		return p.Format()
	}
	return FormatUnknown
}

// Get 根据文件名获取解析器。未注册的扩展名返回纯文本回退解析器。
func (r *ParserRegistry) Get(filename string) Parser {
	ext := strings.ToLower(filepath.Ext(filename))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.parsers[ext]; ok {
		return p
	}
	return r.fallback
}

// ParseFile 打开并解析一个本地文件。
// 返回的 Format 为 DetectType 的结果（未知扩展名保留 unknown 标签，内容按纯文本处理）。
func (r *ParserRegistry) ParseFile(path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrParse, path, err)
	}
	defer f.Close()

	result, err := r.Get(path).Parse(f, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if tag := r.DetectType(path); tag == FormatUnknown {
		result.Format = FormatUnknown
	}
	return result, nil
}

// SupportedTypes 返回所有支持的文件扩展名
func (r *ParserRegistry) SupportedTypes() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		types = append(types, ext)
	}
	sort.Strings(types)
	return strings.Join(types, ", ")
}

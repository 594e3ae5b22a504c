package validation

import (
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Лимиты размера по типу артефакта.
const (
	MaxSizeModel   = 10 * 1024 * 1024 * 1024 // 10 ГБ
	MaxSizeDataset = 50 * 1024 * 1024 * 1024 // 50 ГБ
	MaxSizeCode    = 1 * 1024 * 1024 * 1024  // 1 ГБ
	MaxSizeDefault = 1 * 1024 * 1024 * 1024  // 1 ГБ
)

// DefaultMaxSizes возвращает лимиты размера по типу артефакта.
func DefaultMaxSizes() map[string]int64 {
	return map[string]int64{
		"model":   MaxSizeModel,
		"dataset": MaxSizeDataset,
		"code":    MaxSizeCode,
		"default": MaxSizeDefault,
	}
}

// DefaultAllowedMIME возвращает разрешённые MIME-типы для артефактов.
func DefaultAllowedMIME() map[string]struct{} {
	return map[string]struct{}{
		"application/octet-stream": {},
		"application/zip":          {},
		"application/gzip":         {},
		"application/x-tar":        {},
		"text/plain":               {},
		"application/json":         {},
		"application/x-python":     {},
		"application/x-hdf":        {},
		"image/png":                {},
		"image/jpeg":               {},
		"text/csv":                 {},
	}
}

// reservedNames — имена устройств Windows, запрещённые как имена файлов.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// FilenameCheck — проверка безопасности имени файла: обход путей,
// нулевые байты, длина, непечатаемые символы, зарезервированные имена.
type FilenameCheck struct{}

// Name возвращает имя проверки.
func (fc *FilenameCheck) Name() string { return "filename" }

// Evaluate выполняет проверку имени файла.
func (fc *FilenameCheck) Evaluate(c *Candidate) Result {
	var issues []string

	if c.Filename == "" {
		issues = append(issues, "имя файла пустое")
	}
	if strings.Contains(c.Filename, "..") ||
		strings.ContainsAny(c.Filename, `/\`) {
		issues = append(issues, "имя файла содержит обход путей")
	}
	if strings.ContainsRune(c.Filename, 0) {
		issues = append(issues, "имя файла содержит нулевые байты")
	}
	if len(c.Filename) > 255 {
		issues = append(issues, "имя файла длиннее 255 символов")
	}
	for _, r := range c.Filename {
		if !unicode.IsPrint(r) {
			issues = append(issues, "имя файла содержит непечатаемые символы")
			break
		}
	}
	base := strings.ToUpper(strings.TrimSuffix(c.Filename, filepath.Ext(c.Filename)))
	if _, ok := reservedNames[base]; ok {
		issues = append(issues, "имя файла зарезервировано системой")
	}

	res := Result{
		Check:     fc.Name(),
		OK:        len(issues) == 0,
		CheckedAt: time.Now(),
		Details: map[string]string{
			"filename": c.Filename,
			"length":   strconv.Itoa(len(c.Filename)),
		},
	}
	if res.OK {
		res.Reason = "имя файла корректно"
	} else {
		res.Reason = strings.Join(issues, "; ")
	}
	return res
}

// SizeCheck — проверка размера файла против лимита для типа артефакта.
type SizeCheck struct {
	// MaxSizes — лимиты по типу артефакта; ключ "default" обязателен.
	MaxSizes map[string]int64
	// Override — явный лимит, имеет приоритет над MaxSizes.
	Override int64
}

// Name возвращает имя проверки.
func (sc *SizeCheck) Name() string { return "size" }

// Evaluate выполняет проверку размера.
func (sc *SizeCheck) Evaluate(c *Candidate) Result {
	limit := sc.Override
	if limit == 0 {
		var ok bool
		limit, ok = sc.MaxSizes[c.ArtifactType]
		if !ok {
			limit = sc.MaxSizes["default"]
		}
	}

	res := Result{
		Check:     sc.Name(),
		OK:        c.SizeBytes <= limit,
		CheckedAt: time.Now(),
		Details: map[string]string{
			"size_bytes":  strconv.FormatInt(c.SizeBytes, 10),
			"limit_bytes": strconv.FormatInt(limit, 10),
		},
	}
	if res.OK {
		res.Reason = fmt.Sprintf("размер %d байт в пределах лимита", c.SizeBytes)
	} else {
		res.Reason = fmt.Sprintf("размер %d байт превышает лимит %d байт", c.SizeBytes, limit)
	}
	return res
}

// MIMECheck — проверка MIME-типа против списка разрешённых.
// Тип определяется по расширению имени, заявленный Content-Type
// имеет приоритет.
type MIMECheck struct {
	// Allowed — список разрешённых типов; пустой список пропускает всё.
	Allowed map[string]struct{}
}

// Name возвращает имя проверки.
func (mc *MIMECheck) Name() string { return "mime_type" }

// Evaluate выполняет проверку MIME-типа.
func (mc *MIMECheck) Evaluate(c *Candidate) Result {
	guessed := mime.TypeByExtension(filepath.Ext(c.Filename))
	if guessed == "" {
		guessed = "application/octet-stream"
	}
	// mime.TypeByExtension может вернуть тип с параметрами (charset).
	if idx := strings.IndexByte(guessed, ';'); idx >= 0 {
		guessed = strings.TrimSpace(guessed[:idx])
	}

	actual := c.ContentType
	if actual == "" {
		actual = guessed
	}

	ok := true
	reason := fmt.Sprintf("MIME-тип %s допустим", actual)
	if len(mc.Allowed) > 0 {
		if _, allowed := mc.Allowed[actual]; !allowed {
			ok = false
			reason = fmt.Sprintf("MIME-тип %s не входит в список разрешённых", actual)
		}
	}

	return Result{
		Check:     mc.Name(),
		OK:        ok,
		Reason:    reason,
		CheckedAt: time.Now(),
		Details: map[string]string{
			"guessed_type":  guessed,
			"provided_type": c.ContentType,
			"actual_type":   actual,
		},
	}
}

// magicSignatures — сигнатуры известных форматов файлов.
var magicSignatures = []struct {
	prefix []byte
	name   string
}{
	{[]byte("\x89PNG"), "PNG image"},
	{[]byte("\xff\xd8\xff"), "JPEG image"},
	{[]byte("PK\x03\x04"), "ZIP archive"},
	{[]byte("\x1f\x8b\x08"), "GZIP archive"},
	{[]byte("BM"), "BMP image"},
	{[]byte("%PDF"), "PDF document"},
	{[]byte("\xfd7zXZ"), "7z archive"},
	{[]byte("Rar!"), "RAR archive"},
}

// MagicBytesCheck — определение типа файла по первым байтам содержимого.
// Расхождение между заявленным MIME-типом и сигнатурой фиксируется
// как предупреждение, но не блокирует загрузку.
type MagicBytesCheck struct{}

// Name возвращает имя проверки.
func (mb *MagicBytesCheck) Name() string { return "metadata" }

// Evaluate определяет тип файла по сигнатуре.
func (mb *MagicBytesCheck) Evaluate(c *Candidate) Result {
	detected := DetectFileType(c.Head)

	magic := ""
	if len(c.Head) >= 4 {
		magic = fmt.Sprintf("%x", c.Head[:4])
	}

	return Result{
		Check:     mb.Name(),
		OK:        true,
		Reason:    "метаданные извлечены",
		CheckedAt: time.Now(),
		Details: map[string]string{
			"extension":     strings.ToLower(filepath.Ext(c.Filename)),
			"magic_bytes":   magic,
			"detected_type": detected,
		},
	}
}

// DetectFileType определяет тип файла по сигнатуре в первых байтах.
func DetectFileType(head []byte) string {
	for _, sig := range magicSignatures {
		if len(head) >= len(sig.prefix) &&
			strings.HasPrefix(string(head), string(sig.prefix)) {
			return sig.name
		}
	}
	return "Unknown/Binary"
}

// MalwareCheck — проверка содержимого сканером. Отказ сканера
// фиксируется как предупреждение: решение о блокировке принимает
// вышестоящий слой.
type MalwareCheck struct {
	Scanner Scanner
}

// Name возвращает имя проверки.
func (mw *MalwareCheck) Name() string { return "malware" }

// Evaluate выполняет проверку содержимого сканером.
func (mw *MalwareCheck) Evaluate(c *Candidate) Result {
	if mw.Scanner == nil {
		return Result{
			Check:     mw.Name(),
			OK:        true,
			Reason:    "проверка на вредоносное содержимое отключена",
			CheckedAt: time.Now(),
			Details:   map[string]string{"scan_enabled": "false"},
		}
	}

	verdict := mw.Scanner.Scan(c.Head, c.Filename)
	res := Result{
		Check:     mw.Name(),
		OK:        verdict.Clean,
		Warning:   !verdict.Clean,
		CheckedAt: time.Now(),
		Details: map[string]string{
			"scan_type": "heuristic",
			"engine":    mw.Scanner.Engine(),
		},
	}
	if verdict.Clean {
		res.Reason = "файл прошёл проверку"
	} else {
		res.Reason = "файл помечен сканером: " + verdict.Reason
	}
	return res
}

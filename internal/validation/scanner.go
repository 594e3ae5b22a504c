package validation

import "strings"

// Verdict — заключение сканера о содержимом файла.
type Verdict struct {
	Clean  bool
	Reason string
}

// Scanner — интерфейс сканера содержимого. Реализация может быть
// внешней (ClamAV, VirusTotal) или встроенной эвристикой.
type Scanner interface {
	// Engine возвращает имя движка для отчёта.
	Engine() string
	// Scan проверяет первые байты содержимого файла.
	Scan(head []byte, filename string) Verdict
}

// HeuristicScanner — встроенный эвристический сканер: сигнатуры
// исполняемых файлов и подозрительные строки в начале содержимого.
type HeuristicScanner struct{}

// executableSignatures — сигнатуры исполняемых файлов и скриптов.
var executableSignatures = [][]byte{
	[]byte("MZ\x90\x00"),   // PE executable
	[]byte("#!/bin/bash"),  // bash-скрипт
	[]byte("#!/bin/sh"),    // shell-скрипт
}

// suspiciousPatterns — строки, характерные для внедрённого кода.
var suspiciousPatterns = []string{
	"eval(",
	"exec(",
	"system(",
	"subprocess",
	"/bin/bash",
	"cmd.exe",
}

// Engine возвращает имя движка.
func (hs *HeuristicScanner) Engine() string { return "integrated_scanner" }

// Scan проверяет содержимое эвристиками. Файлы с расширениями
// скриптов и исполняемых файлов пропускаются явно: клиент заявил тип.
func (hs *HeuristicScanner) Scan(head []byte, filename string) Verdict {
	window := head
	if len(window) > 512 {
		window = window[:512]
	}
	explicitExecutable := hasSuffixAny(filename, ".sh", ".exe", ".dll")
	for _, sig := range executableSignatures {
		if containsBytes(window, sig) && !explicitExecutable {
			return Verdict{Clean: false, Reason: "обнаружена сигнатура исполняемого файла"}
		}
	}

	textWindow := head
	if len(textWindow) > 10000 {
		textWindow = textWindow[:10000]
	}
	text := string(textWindow)
	explicitScript := hasSuffixAny(filename, ".py", ".sh", ".js")
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(text, pattern) && !explicitScript {
			return Verdict{Clean: false, Reason: "обнаружена подозрительная строка " + pattern}
		}
	}

	return Verdict{Clean: true}
}

func hasSuffixAny(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func containsBytes(haystack, needle []byte) bool {
	return strings.Contains(string(haystack), string(needle))
}

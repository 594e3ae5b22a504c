package validation

import (
	"strings"
	"testing"
)

func validCandidate() *Candidate {
	return &Candidate{
		Filename:     "model.bin",
		ContentType:  "application/octet-stream",
		ArtifactType: "model",
		SizeBytes:    1024,
		Head:         []byte{0x00, 0x01, 0x02, 0x03},
	}
}

func TestPipelineValid(t *testing.T) {
	p := Default(DefaultMaxSizes(), DefaultAllowedMIME(), &HeuristicScanner{})
	report := p.Run(validCandidate())

	if !report.AllPassed {
		t.Errorf("AllPassed: хотели true, получили false: %+v", report.Results)
	}
	if got := report.Status(); got != "valid" {
		t.Errorf("Status: хотели valid, получили %s", got)
	}
	if len(report.Results) != 5 {
		t.Errorf("Results: хотели 5 проверок, получили %d", len(report.Results))
	}
}

func TestPipelineShortCircuit(t *testing.T) {
	p := Default(DefaultMaxSizes(), DefaultAllowedMIME(), &HeuristicScanner{})
	c := validCandidate()
	c.Filename = "../../etc/passwd"
	report := p.Run(c)

	if report.AllPassed {
		t.Error("AllPassed: хотели false, получили true")
	}
	// Жёсткий отказ первой проверки прерывает конвейер.
	if len(report.Results) != 1 {
		t.Errorf("Results: хотели 1 проверку, получили %d", len(report.Results))
	}
	if fail := report.FirstFailure(); fail == nil || fail.Check != "filename" {
		t.Errorf("FirstFailure: хотели filename, получили %+v", fail)
	}
}

func TestPipelineRunAll(t *testing.T) {
	p := Default(DefaultMaxSizes(), DefaultAllowedMIME(), &HeuristicScanner{})
	c := validCandidate()
	c.Filename = "bad\x00name"
	c.SizeBytes = MaxSizeModel + 1
	report := p.RunAll(c)

	if report.AllPassed {
		t.Error("AllPassed: хотели false, получили true")
	}
	if len(report.Results) != 5 {
		t.Errorf("RunAll: хотели 5 проверок, получили %d", len(report.Results))
	}
	if got := report.Status(); got != "invalid" {
		t.Errorf("Status: хотели invalid, получили %s", got)
	}
}

func TestFilenameCheck(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     bool
	}{
		{"обычное имя", "model.bin", true},
		{"обход путей", "../secret", false},
		{"прямой слэш", "dir/file", false},
		{"обратный слэш", `dir\file`, false},
		{"нулевой байт", "file\x00.bin", false},
		{"длинное имя", strings.Repeat("a", 256), false},
		{"зарезервированное имя", "CON.txt", false},
		{"зарезервированное com", "com1.dat", false},
		{"пустое имя", "", false},
		{"кириллица", "модель.bin", true},
	}

	fc := &FilenameCheck{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := fc.Evaluate(&Candidate{Filename: tt.filename})
			if res.OK != tt.want {
				t.Errorf("Evaluate(%q): хотели OK=%v, получили %v (%s)",
					tt.filename, tt.want, res.OK, res.Reason)
			}
		})
	}
}

func TestSizeCheck(t *testing.T) {
	sc := &SizeCheck{MaxSizes: DefaultMaxSizes()}

	tests := []struct {
		name         string
		artifactType string
		size         int64
		want         bool
	}{
		{"модель в лимите", "model", MaxSizeModel, true},
		{"модель сверх лимита", "model", MaxSizeModel + 1, false},
		{"датасет в лимите", "dataset", MaxSizeDataset, true},
		{"неизвестный тип берёт лимит по умолчанию", "weird", MaxSizeDefault + 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := sc.Evaluate(&Candidate{ArtifactType: tt.artifactType, SizeBytes: tt.size})
			if res.OK != tt.want {
				t.Errorf("Evaluate: хотели OK=%v, получили %v (%s)", tt.want, res.OK, res.Reason)
			}
		})
	}
}

func TestSizeCheckOverride(t *testing.T) {
	sc := &SizeCheck{MaxSizes: DefaultMaxSizes(), Override: 100}
	res := sc.Evaluate(&Candidate{ArtifactType: "model", SizeBytes: 101})
	if res.OK {
		t.Error("Override: хотели отказ при превышении явного лимита, получили OK")
	}
}

func TestMIMECheck(t *testing.T) {
	mc := &MIMECheck{Allowed: DefaultAllowedMIME()}

	tests := []struct {
		name        string
		filename    string
		contentType string
		want        bool
	}{
		{"заявленный разрешён", "m.bin", "application/zip", true},
		{"заявленный запрещён", "m.bin", "video/mp4", false},
		{"определённый по расширению", "data.json", "", true},
		{"без расширения octet-stream", "weights", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mc.Evaluate(&Candidate{Filename: tt.filename, ContentType: tt.contentType})
			if res.OK != tt.want {
				t.Errorf("Evaluate: хотели OK=%v, получили %v (%s)", tt.want, res.OK, res.Reason)
			}
		})
	}
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want string
	}{
		{"png", []byte("\x89PNG\r\n"), "PNG image"},
		{"zip", []byte("PK\x03\x04rest"), "ZIP archive"},
		{"gzip", []byte("\x1f\x8b\x08"), "GZIP archive"},
		{"неизвестный", []byte{0xde, 0xad, 0xbe, 0xef}, "Unknown/Binary"},
		{"пустой", nil, "Unknown/Binary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFileType(tt.head); got != tt.want {
				t.Errorf("DetectFileType: хотели %s, получили %s", tt.want, got)
			}
		})
	}
}

func TestHeuristicScanner(t *testing.T) {
	hs := &HeuristicScanner{}

	tests := []struct {
		name     string
		head     []byte
		filename string
		clean    bool
	}{
		{"обычный бинарник", []byte{0x00, 0x01, 0x02}, "model.bin", true},
		{"PE сигнатура", []byte("MZ\x90\x00..."), "model.bin", false},
		{"PE сигнатура в exe разрешена", []byte("MZ\x90\x00..."), "tool.exe", true},
		{"bash шебанг", []byte("#!/bin/bash\necho hi"), "weights.bin", false},
		{"bash шебанг в sh разрешён", []byte("#!/bin/bash\necho hi"), "run.sh", true},
		{"eval в данных", []byte("data eval(payload)"), "data.csv", false},
		{"eval в py разрешён", []byte("eval(expr)"), "script.py", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := hs.Scan(tt.head, tt.filename)
			if v.Clean != tt.clean {
				t.Errorf("Scan(%s): хотели Clean=%v, получили %v (%s)",
					tt.filename, tt.clean, v.Clean, v.Reason)
			}
		})
	}
}

func TestMalwareCheckWarningOnly(t *testing.T) {
	p := Default(DefaultMaxSizes(), DefaultAllowedMIME(), &HeuristicScanner{})
	c := validCandidate()
	c.Head = []byte("MZ\x90\x00payload")
	report := p.Run(c)

	// Отказ сканера — предупреждение, не блокировка.
	if !report.AllPassed {
		t.Error("AllPassed: хотели true при срабатывании сканера, получили false")
	}
	if !report.HasWarning {
		t.Error("HasWarning: хотели true, получили false")
	}
	if got := report.Status(); got != "warnings" {
		t.Errorf("Status: хотели warnings, получили %s", got)
	}
}

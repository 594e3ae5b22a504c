// Пакет validation — конвейер проверок загружаемых файлов.
// Проверки упорядочены и выполняются последовательно: жёсткий отказ
// прерывает конвейер, предупреждение (Warning) фиксируется, но не
// останавливает загрузку.
package validation

import "time"

// Candidate — кандидат на проверку: метаданные файла и первые байты
// содержимого. Head может быть пустым, если содержимое ещё не получено
// (проверка на этапе init).
type Candidate struct {
	Filename     string
	ContentType  string
	ArtifactType string
	SizeBytes    int64
	Head         []byte
}

// Result — итог одной проверки.
type Result struct {
	Check     string            // имя проверки
	OK        bool              // прошла ли проверка
	Warning   bool              // мягкий отказ: фиксируем, но не блокируем
	Reason    string            // пояснение для клиента
	Details   map[string]string // дополнительные сведения
	CheckedAt time.Time
}

// Report — итог всего конвейера.
type Report struct {
	Results    []Result
	AllPassed  bool
	HasWarning bool
}

// Status возвращает сводный статус: valid, warnings или invalid.
func (r *Report) Status() string {
	if !r.AllPassed {
		return "invalid"
	}
	if r.HasWarning {
		return "warnings"
	}
	return "valid"
}

// FirstFailure возвращает первую жёстко проваленную проверку или nil.
func (r *Report) FirstFailure() *Result {
	for i := range r.Results {
		if !r.Results[i].OK && !r.Results[i].Warning {
			return &r.Results[i]
		}
	}
	return nil
}

// Check — одна проверка конвейера.
type Check interface {
	// Name возвращает имя проверки для отчёта.
	Name() string
	// Evaluate выполняет проверку кандидата.
	Evaluate(c *Candidate) Result
}

// Pipeline — упорядоченный набор проверок.
type Pipeline struct {
	checks []Check
}

// New создаёт конвейер из заданных проверок. Порядок значим.
func New(checks ...Check) *Pipeline {
	return &Pipeline{checks: checks}
}

// Default возвращает полный конвейер для финализации и ручной проверки:
// имя файла, размер, MIME-тип, определение типа по сигнатуре,
// эвристическая проверка на вредоносное содержимое.
func Default(maxSizes map[string]int64, allowedMIME map[string]struct{}, scanner Scanner) *Pipeline {
	return New(
		&FilenameCheck{},
		&SizeCheck{MaxSizes: maxSizes},
		&MIMECheck{Allowed: allowedMIME},
		&MagicBytesCheck{},
		&MalwareCheck{Scanner: scanner},
	)
}

// ForInit возвращает сокращённый конвейер для инициализации сессии:
// содержимого ещё нет, проверяем только имя, заявленный размер и MIME.
func ForInit(maxSizes map[string]int64, allowedMIME map[string]struct{}) *Pipeline {
	return New(
		&FilenameCheck{},
		&SizeCheck{MaxSizes: maxSizes},
		&MIMECheck{Allowed: allowedMIME},
	)
}

// Run выполняет проверки по порядку. Жёсткий отказ прерывает конвейер:
// последующие проверки не выполняются.
func (p *Pipeline) Run(c *Candidate) *Report {
	report := &Report{AllPassed: true}
	for _, check := range p.checks {
		res := check.Evaluate(c)
		report.Results = append(report.Results, res)
		if !res.OK {
			if res.Warning {
				report.HasWarning = true
				continue
			}
			report.AllPassed = false
			break
		}
	}
	return report
}

// RunAll выполняет все проверки без прерывания. Используется для
// ручной проверки файла: клиенту нужен полный отчёт.
func (p *Pipeline) RunAll(c *Candidate) *Report {
	report := &Report{AllPassed: true}
	for _, check := range p.checks {
		res := check.Evaluate(c)
		report.Results = append(report.Results, res)
		if !res.OK {
			if res.Warning {
				report.HasWarning = true
			} else {
				report.AllPassed = false
			}
		}
	}
	return report
}
